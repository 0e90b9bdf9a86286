package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// readLoopDeadline bounds each individual read so the loop can notice a
// closed done channel promptly instead of blocking indefinitely.
const readLoopDeadline = 100 * time.Millisecond

// readLoop demultiplexes inbound MBAP+PDU frames onto the transaction pool
// by transaction id, verifying the MBAP envelope before handing the decoded
// response to its waiting caller.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header)
func (t *TCPTransport) readLoop() {
	ctx := context.Background()
	t.logger.Debug(ctx, "read loop starting")
	defer func() {
		t.logger.Debug(ctx, "read loop exiting")
		t.setDisconnected(fmt.Errorf("read loop exited"))
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		if !t.IsConnected() {
			return
		}

		if deadline, ok := t.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			deadline.SetReadDeadline(time.Now().Add(readLoopDeadline))
		}

		header := make([]byte, common.TCPHeaderLength)
		if _, err := io.ReadFull(t.reader, header); err != nil {
			if isTimeout(err) {
				select {
				case <-t.done:
					return
				default:
					continue
				}
			}
			select {
			case <-t.done:
				return
			default:
				t.logger.Error(ctx, "read header: %v", err)
				t.setDisconnected(fmt.Errorf("read header: %w", err))
				return
			}
		}

		transactionID := common.TransactionID(binary.BigEndian.Uint16(header[0:2]))
		protocolID := common.ProtocolID(binary.BigEndian.Uint16(header[2:4]))
		length := binary.BigEndian.Uint16(header[4:6])
		unitID := common.UnitID(header[6])

		t.logger.Debug(ctx, "received frame: txID=%d length=%d", transactionID, length)

		if protocolID != common.TCPProtocolIdentifier {
			t.logger.Error(ctx, "invalid protocol id %d on transaction %d", protocolID, transactionID)
			t.failTransaction(transactionID, common.ErrInvalidProtocolHeader)
			continue
		}

		bodyLength := int(length) - 1
		if bodyLength <= 0 {
			t.logger.Error(ctx, "invalid length field %d on transaction %d", length, transactionID)
			t.failTransaction(transactionID, common.ErrInvalidResponseLength)
			continue
		}

		body := make([]byte, bodyLength)
		if _, err := io.ReadFull(t.reader, body); err != nil {
			if isTimeout(err) {
				select {
				case <-t.done:
					return
				default:
					continue
				}
			}
			select {
			case <-t.done:
				return
			default:
				t.logger.Error(ctx, "read body: %v", err)
				t.failTransaction(transactionID, fmt.Errorf("read body: %w", err))
				t.setDisconnected(err)
				return
			}
		}

		functionCode := common.FunctionCode(body[0])
		response := NewResponse(transactionID, unitID, functionCode, body[1:])

		tx, ok := t.pool.Release(transactionID)
		if !ok {
			t.logger.Warn(ctx, "response for unknown transaction %d", transactionID)
			continue
		}

		// Ref: SPEC_FULL.md §4.6 step 5 - the echoed unit id must match the
		// request's; a mismatch means the frame cannot be trusted to belong
		// to this exchange even though the transaction id lined up.
		if tx.Request.GetUnitID() != unitID {
			t.logger.Error(ctx, "unit id mismatch on transaction %d: sent %d, got %d",
				transactionID, tx.Request.GetUnitID(), unitID)
			tx.Complete(nil, common.ErrMBAPMismatch)
			continue
		}

		t.logger.Debug(ctx, "completing transaction %d", transactionID)
		tx.Complete(response, nil)
	}
}

// failTransaction completes a transaction looked up solely by transaction
// id, for frame-level errors discovered before the unit id can be checked.
func (t *TCPTransport) failTransaction(txID common.TransactionID, err error) {
	ctx := context.Background()
	if tx, ok := t.pool.Release(txID); ok {
		t.logger.Debug(ctx, "failing transaction %d: %v", txID, err)
		tx.Complete(nil, err)
	} else {
		t.logger.Warn(ctx, "error for unknown transaction %d: %v", txID, err)
	}
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
