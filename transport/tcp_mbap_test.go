package transport

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// buildFrame assembles a raw MBAP+PDU frame for feeding into a mockConn's
// read buffer, mirroring what a real server would put on the wire.
func buildFrame(txID common.TransactionID, unitID common.UnitID, functionCode common.FunctionCode, data []byte) []byte {
	body := append([]byte{byte(functionCode)}, data...)
	length := uint16(1 + len(body)) // unit id + PDU

	frame := make([]byte, 0, 7+len(body))
	frame = binary.BigEndian.AppendUint16(frame, uint16(txID))
	frame = binary.BigEndian.AppendUint16(frame, uint16(common.TCPProtocolIdentifier))
	frame = binary.BigEndian.AppendUint16(frame, length)
	frame = append(frame, byte(unitID))
	frame = append(frame, body...)
	return frame
}

// TestReadLoopDetectsUnitIDMismatch verifies SPEC_FULL.md §4.6 step 5: a
// response whose unit id doesn't match the request's fails the transaction
// with ErrMBAPMismatch even though the transaction id lined up.
func TestReadLoopDetectsUnitIDMismatch(t *testing.T) {
	conn := newMockConn()
	tr := NewTCPTransport("localhost")
	tr.conn = conn
	tr.reader = conn
	tr.writer = conn
	tr.connected = true

	go tr.readLoop()
	defer func() {
		tr.connected = false
		close(tr.done)
		time.Sleep(50 * time.Millisecond)
	}()

	request := NewRequest(common.UnitID(1), common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	ctx := context.Background()
	tx, err := tr.pool.Place(ctx, request)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	// Server echoes a different unit id (7, not the request's 1).
	frame := buildFrame(request.GetTransactionID(), common.UnitID(7), common.FuncReadHoldingRegisters, []byte{0x02, 0x00, 0x01})
	conn.mutex.Lock()
	conn.readData = frame
	conn.mutex.Unlock()

	select {
	case err := <-tx.ErrCh:
		if err != common.ErrMBAPMismatch {
			t.Errorf("expected ErrMBAPMismatch, got %v", err)
		}
	case <-tx.ResponseCh:
		t.Fatal("expected an error, got a response despite the unit id mismatch")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the mismatched transaction to fail")
	}
}

// TestReadLoopAcceptsMatchingUnitID is the control case for the above: a
// correctly echoed unit id completes the transaction normally.
func TestReadLoopAcceptsMatchingUnitID(t *testing.T) {
	conn := newMockConn()
	tr := NewTCPTransport("localhost")
	tr.conn = conn
	tr.reader = conn
	tr.writer = conn
	tr.connected = true

	go tr.readLoop()
	defer func() {
		tr.connected = false
		close(tr.done)
		time.Sleep(50 * time.Millisecond)
	}()

	request := NewRequest(common.UnitID(1), common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	ctx := context.Background()
	tx, err := tr.pool.Place(ctx, request)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	frame := buildFrame(request.GetTransactionID(), common.UnitID(1), common.FuncReadHoldingRegisters, []byte{0x02, 0x00, 0x01})
	conn.mutex.Lock()
	conn.readData = frame
	conn.mutex.Unlock()

	select {
	case response := <-tx.ResponseCh:
		if response.GetUnitID() != common.UnitID(1) {
			t.Errorf("expected unit id 1, got %d", response.GetUnitID())
		}
	case err := <-tx.ErrCh:
		t.Fatalf("expected a response, got error %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the transaction to complete")
	}
}

func TestSetHostAndSetPortCloseOpenSocket(t *testing.T) {
	conn := newMockConn()
	tr := NewTCPTransport("localhost")
	tr.conn = conn
	tr.reader = conn
	tr.writer = conn
	tr.connected = true

	go tr.readLoop()
	go tr.writeLoop()
	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	if err := tr.SetHost(ctx, "otherhost"); err != nil {
		t.Fatalf("SetHost: %v", err)
	}
	if tr.IsConnected() {
		t.Error("SetHost should close any open socket")
	}
	if tr.Host() != "otherhost" {
		t.Errorf("Host: expected otherhost, got %s", tr.Host())
	}

	if err := tr.SetPort(ctx, 1502); err != nil {
		t.Fatalf("SetPort: %v", err)
	}
	if tr.Port() != 1502 {
		t.Errorf("Port: expected 1502, got %d", tr.Port())
	}
}
