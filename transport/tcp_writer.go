package transport

import (
	"context"
	"fmt"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// writeLoop serializes queued transactions onto the socket, one at a time,
// so that concurrent Send() callers never race on the underlying writer.
func (t *TCPTransport) writeLoop() {
	ctx := context.Background()
	t.logger.Debug(ctx, "write loop starting")
	defer func() {
		t.logger.Debug(ctx, "write loop exiting")
		t.setDisconnected(fmt.Errorf("write loop exited"))
	}()

	for {
		if !t.IsConnected() {
			return
		}

		select {
		case <-t.done:
			return
		case tx, ok := <-t.writeChan:
			if !ok {
				return
			}
			if !t.IsConnected() {
				tx.Complete(nil, common.ErrNotConnected)
				return
			}

			select {
			case <-tx.Context().Done():
				t.logger.Debug(ctx, "transaction %d cancelled before write", tx.Request.GetTransactionID())
				continue
			case <-t.done:
				tx.Complete(nil, common.ErrTransportClosing)
				return
			default:
			}

			t.logger.Debug(ctx, "writing transaction %d", tx.Request.GetTransactionID())

			data, err := tx.Request.Encode()
			if err != nil {
				t.logger.Error(ctx, "encode request: %v", err)
				tx.Complete(nil, err)
				continue
			}

			select {
			case <-t.done:
				tx.Complete(nil, common.ErrTransportClosing)
				return
			default:
			}

			if _, err := t.writer.Write(data); err != nil {
				select {
				case <-t.done:
					tx.Complete(nil, common.ErrTransportClosing)
					return
				default:
					t.logger.Error(ctx, "write request: %v", err)
					tx.Complete(nil, err)
					t.setDisconnected(fmt.Errorf("write error: %w", err))
					return
				}
			}

			t.logger.Debug(ctx, "wrote transaction %d", tx.Request.GetTransactionID())
		}
	}
}
