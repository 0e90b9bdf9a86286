package client

import (
	"context"
	"errors"
	"testing"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/common/test"
)

func TestBaseClient_LastErrorResetsOnSuccess(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	transport.QueueError(errors.New("boom"))
	if _, err := c.ReadCoils(ctx, 0, 1); err == nil {
		t.Fatal("expected error from transport")
	}
	if c.LastError() == common.ErrKindNone {
		t.Error("LastError should not be ErrKindNone after a transport failure")
	}

	responseData := []byte{1, 0x01}
	transport.QueueResponse(test.NewMockResponse(1, 0, common.FuncReadCoils, responseData))
	if _, err := c.ReadCoils(ctx, 0, 1); err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if got := c.LastError(); got != common.ErrKindNone {
		t.Errorf("LastError after success: expected ErrKindNone, got %s", got)
	}
}

func TestBaseClient_LastExceptionOnModbusError(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	exceptionFunc := common.FuncReadCoils | common.FunctionCode(common.ExceptionBit)
	transport.QueueResponse(test.NewMockResponse(1, 0, exceptionFunc, []byte{byte(common.ExceptionDataAddressNotAvailable)}))

	_, err := c.ReadCoils(ctx, 0, 1)
	if err == nil {
		t.Fatal("expected a modbus exception error")
	}
	if !common.IsModbusError(err) {
		t.Errorf("expected a *ModbusError, got %T", err)
	}
	if got := c.LastError(); got != common.ErrKindModbusException {
		t.Errorf("LastError: expected ErrKindModbusException, got %s", got)
	}
	if got := c.LastException(); got != common.ExceptionDataAddressNotAvailable {
		t.Errorf("LastException: expected %v, got %v", common.ExceptionDataAddressNotAvailable, got)
	}
}

func TestBaseClient_CustomRequestReturnsNilOnException(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	customFunc := common.FunctionCode(0x41)
	exceptionFunc := customFunc | common.FunctionCode(common.ExceptionBit)
	transport.QueueResponse(test.NewMockResponse(1, 0, exceptionFunc, []byte{byte(common.ExceptionFunctionCodeNotSupported)}))

	data, err := c.CustomRequest(ctx, customFunc, []byte{0x01})
	if err != nil {
		t.Fatalf("CustomRequest should return a nil error on a well-formed exception, got %v", err)
	}
	if data != nil {
		t.Errorf("CustomRequest should return nil data on exception, got %v", data)
	}
	if got := c.LastException(); got != common.ExceptionFunctionCodeNotSupported {
		t.Errorf("LastException: expected %v, got %v", common.ExceptionFunctionCodeNotSupported, got)
	}
}

func TestBaseClient_CustomRequestReturnsData(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	customFunc := common.FunctionCode(0x41)
	transport.QueueResponse(test.NewMockResponse(1, 0, customFunc, []byte{0xAA, 0xBB}))

	data, err := c.CustomRequest(ctx, customFunc, []byte{0x01})
	if err != nil {
		t.Fatalf("CustomRequest: %v", err)
	}
	if len(data) != 2 || data[0] != 0xAA || data[1] != 0xBB {
		t.Errorf("CustomRequest data: got %v", data)
	}
}

func TestBaseClient_AutoOpenConnectsBeforeRequest(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport, WithAutoOpen(true))
	ctx := context.Background()

	if c.IsConnected() {
		t.Fatal("client should start disconnected")
	}

	transport.QueueResponse(test.NewMockResponse(1, 0, common.FuncReadCoils, []byte{1, 0x00}))
	if _, err := c.ReadCoils(ctx, 0, 1); err != nil {
		t.Fatalf("ReadCoils with auto_open: %v", err)
	}
	if !c.IsConnected() {
		t.Error("auto_open should have connected the transport")
	}
}

func TestBaseClient_AutoOpenDisabledFailsOnClosedSocket(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport, WithAutoOpen(false))
	ctx := context.Background()

	_, err := c.ReadCoils(ctx, 0, 1)
	if !errors.Is(err, common.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected with auto_open disabled, got %v", err)
	}
}

func TestBaseClient_AutoCloseDisconnectsAfterSuccess(t *testing.T) {
	transport := test.NewMockTransport()
	c := NewBaseClient(transport, WithAutoClose(true))
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	transport.QueueResponse(test.NewMockResponse(1, 0, common.FuncReadCoils, []byte{1, 0x00}))
	if _, err := c.ReadCoils(ctx, 0, 1); err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if c.IsConnected() {
		t.Error("auto_close should have disconnected the transport after a successful request")
	}
}
