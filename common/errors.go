package common

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the protocol codec and transport layers.
// These are distinct from the client-facing error taxonomy in ClientErrorKind:
// a sentinel describes *what* failed mechanically, while a ClientErrorKind
// classifies *where in the request lifecycle* a client-visible failure
// happened (so callers can branch on LastError() without string matching).
var (
	ErrNotConnected     = errors.New("client not connected")
	ErrAlreadyConnected = errors.New("client already connected")

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes) - Various constraints
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidAddress  = errors.New("invalid address")

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (MODBUS Data Model)
	ErrInvalidResponseLength = errors.New("invalid response length")
	ErrInvalidCRC            = errors.New("invalid CRC")

	ErrInvalidFunction       = errors.New("invalid function code")
	ErrInvalidValue          = errors.New("invalid value")
	ErrInvalidResponseFormat = errors.New("invalid response format")

	ErrTimeout         = errors.New("timeout")
	ErrContextCanceled = errors.New("context canceled")

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header)
	ErrInvalidProtocolHeader = errors.New("invalid protocol header")
	ErrMBAPMismatch          = errors.New("response MBAP does not match request")

	ErrTooManyRegisters = errors.New("too many registers requested")
	ErrTooManyCoils     = errors.New("too many coils requested")

	ErrEmptyResponse    = errors.New("empty response")
	ErrResponseTooLarge = errors.New("response too large")
	ErrRequestTooLarge  = errors.New("request too large")

	ErrTransactionTimeout = errors.New("transaction timeout")
	ErrTransportClosing   = errors.New("transport closing")

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
	ErrServerDeviceFailure = errors.New("server device failure")
	ErrNoResponse          = errors.New("no response from server")
)

// ClientErrorKind classifies the last failure recorded by a client, mirroring
// the internal-error taxonomy every pyModbusTCP-style client exposes via
// last_error()/last_except(): callers poll it instead of parsing a wrapped
// error's text. It is reset to ErrKindNone at the start of every client
// request (Send, CustomRequest, ...); a request that completes without
// error leaves it at ErrKindNone.
type ClientErrorKind int

const (
	// ErrKindNone means the most recent request completed without error.
	ErrKindNone ClientErrorKind = iota
	// ErrKindConnect means the implicit or explicit connection attempt failed.
	ErrKindConnect
	// ErrKindSend means writing the request frame to the socket failed.
	ErrKindSend
	// ErrKindRecv means reading or validating the response frame failed
	// (including an MBAP header with a mismatched unit id, a bad protocol id
	// or an out-of-range length).
	ErrKindRecv
	// ErrKindTimeout means the configured timeout elapsed waiting on
	// connect, send, or recv.
	ErrKindTimeout
	// ErrKindFrameFormat means a decoded response PDU violated the wire
	// format (ErrInvalidResponseFormat).
	ErrKindFrameFormat
	// ErrKindModbusException means the server replied with a well-formed
	// exception response; the exception code is in LastException().
	ErrKindModbusException
	// ErrKindCRC means an RTU-framed reply failed CRC validation.
	ErrKindCRC
	// ErrKindClosed means the call was attempted against, or caused, a
	// closed socket.
	ErrKindClosed
)

func (k ClientErrorKind) String() string {
	switch k {
	case ErrKindNone:
		return "none"
	case ErrKindConnect:
		return "connect_error"
	case ErrKindSend:
		return "send_error"
	case ErrKindRecv:
		return "recv_error"
	case ErrKindTimeout:
		return "timeout_error"
	case ErrKindFrameFormat:
		return "frame_format_error"
	case ErrKindModbusException:
		return "modbus_exception"
	case ErrKindCRC:
		return "crc_error"
	case ErrKindClosed:
		return "socket_closed"
	default:
		return fmt.Sprintf("unknown_error_kind(%d)", int(k))
	}
}

// ValueError reports a malformed client-side argument, caught before any I/O
// is attempted. Ref: SPEC_FULL.md §4.7 - input-validation failures raise
// synchronously and never touch LastError()/LastException().
type ValueError struct {
	Field  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("modbus: invalid argument %s: %s", e.Field, e.Reason)
}

// NewValueError constructs a ValueError for the named argument.
func NewValueError(field, reason string) *ValueError {
	return &ValueError{Field: field, Reason: reason}
}

// IsValueError reports whether err is a client-side argument validation
// failure rather than a wire or transport failure.
func IsValueError(err error) bool {
	_, ok := err.(*ValueError)
	return ok
}

// ModbusError represents an error from a Modbus exception response.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses):
// "If the Server returns an Exception Response, the Exception Code field
// contains the reason why the Server is unable to process the requested
// function."
type ModbusError struct {
	FunctionCode  FunctionCode
	ExceptionCode ExceptionCode
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("modbus: exception response: function: %s, exception code: %#x (%s)",
		e.FunctionCode, e.ExceptionCode, GetExceptionString(e.ExceptionCode))
}

// NewModbusError creates a new ModbusError.
func NewModbusError(functionCode FunctionCode, exceptionCode ExceptionCode) *ModbusError {
	return &ModbusError{FunctionCode: functionCode, ExceptionCode: exceptionCode}
}

// IsModbusError reports whether err is a *ModbusError.
func IsModbusError(err error) bool {
	_, ok := err.(*ModbusError)
	return ok
}

// IsExceptionError reports whether err is a *ModbusError carrying exceptionCode.
func IsExceptionError(err error, exceptionCode ExceptionCode) bool {
	modbusErr, ok := err.(*ModbusError)
	return ok && modbusErr.ExceptionCode == exceptionCode
}

// IsFunctionNotSupportedError reports whether err is the illegal-function exception.
func IsFunctionNotSupportedError(err error) bool {
	return IsExceptionError(err, ExceptionFunctionCodeNotSupported)
}

// GetExceptionString returns a human-readable description of a Modbus exception code.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
func GetExceptionString(exceptionCode ExceptionCode) string {
	switch exceptionCode {
	case ExceptionFunctionCodeNotSupported:
		return "function code not supported"
	case ExceptionDataAddressNotAvailable:
		return "data address not available"
	case ExceptionInvalidDataValue:
		return "invalid data value"
	case ExceptionServerDeviceFailure:
		return "server device failure"
	case ExceptionAcknowledge:
		return "acknowledge"
	case ExceptionServerDeviceBusy:
		return "server device busy"
	case ExceptionNegativeAcknowledge:
		return "negative acknowledge"
	case ExceptionMemoryParityError:
		return "memory parity error"
	case ExceptionGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionGatewayTargetNoResponse:
		return "gateway target failed to respond"
	default:
		return fmt.Sprintf("unknown exception code: %#x", exceptionCode)
	}
}
