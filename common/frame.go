package common

// This file groups the three wire-level building blocks shared by every
// transport and protocol package in this module: the PDU payload and the
// Request/Response contracts that wrap it in an MBAP envelope.
//
// Wire layout (MBAP, 7 bytes, big-endian) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1:
//
//	offset  size  field
//	0       2     transaction id   (opaque correlator, echoed by the server)
//	2       2     protocol id      (always 0 for Modbus/TCP)
//	4       2     length           (bytes following: unit id + PDU)
//	6       1     unit id          (slave address)
//
// The PDU (function code + function-specific data, 1..253 bytes) follows
// immediately. A full Modbus/TCP frame is MBAP ‖ PDU, 8..260 bytes.

// PDU is the function-code-prefixed payload carried inside every MBAP frame.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (MODBUS Data Model)
type PDU struct {
	FunctionCode FunctionCode
	Data         []byte
}

// Request is an outbound MBAP+PDU pair, built by a client and decoded by a server.
type Request interface {
	GetTransactionID() TransactionID
	SetTransactionID(id TransactionID)
	GetUnitID() UnitID
	GetPDU() *PDU
	Encode() ([]byte, error)
}

// Response is an inbound MBAP+PDU pair, built by a server and decoded by a client.
// A response is an exception when its function code has the 0x80 bit set; the
// original function code and exception byte are then recoverable via
// GetException/ToError without re-inspecting the raw PDU.
type Response interface {
	GetTransactionID() TransactionID
	GetUnitID() UnitID
	GetPDU() *PDU
	IsException() bool
	GetException() ExceptionCode
	ToError() error
	Encode() ([]byte, error)
}
