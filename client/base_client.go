package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/logging"
	"github.com/Moonlight-Companies/gomodbus/protocol"
	"github.com/Moonlight-Companies/gomodbus/transport"
)

// defaultRequestTimeout bounds a single request when the caller's context
// carries no deadline of its own.
const defaultRequestTimeout = 30 * time.Second

// BaseClient drives a common.Transport and common.Protocol pair through the
// request/response lifecycle described in SPEC_FULL.md §4.6: it owns the
// socket state machine (auto_open/auto_close, §4.8) and the last_error/
// last_exception taxonomy (§4.9) that every typed method below reports
// through.
type BaseClient struct {
	logger   common.LoggerInterface
	transport common.Transport
	protocol  common.Protocol
	unitID    common.UnitID
	timeout   time.Duration
	autoOpen  bool
	autoClose bool

	stateMu        sync.Mutex
	lastError      common.ClientErrorKind
	lastException  common.ExceptionCode
}

// Option configures a BaseClient at construction time.
type Option func(*BaseClient)

// WithLogger sets the client's logger, propagating it to the transport and
// protocol layers too.
func WithLogger(logger common.LoggerInterface) Option {
	return func(c *BaseClient) {
		c.logger = logger
		if c.transport != nil {
			c.transport = c.transport.WithLogger(logger)
		}
		if c.protocol != nil {
			c.protocol = c.protocol.WithLogger(logger)
		}
	}
}

// WithUnitID sets the unit (slave) id placed in every request's MBAP header.
func WithUnitID(unitID common.UnitID) Option {
	return func(c *BaseClient) {
		c.unitID = unitID
	}
}

// WithProtocol overrides the PDU codec; mainly useful for tests.
func WithProtocol(p common.Protocol) Option {
	return func(c *BaseClient) {
		c.protocol = p
	}
}

// WithRequestTimeout sets the per-request deadline applied when the caller's
// context has none of its own. Defaults to 30s.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *BaseClient) {
		c.timeout = timeout
	}
}

// WithAutoOpen controls whether a request transparently connects a closed
// socket before sending (SPEC_FULL.md §4.8). Defaults to true, matching the
// pyModbusTCP client this library's wire behavior is modeled on.
func WithAutoOpen(enabled bool) Option {
	return func(c *BaseClient) {
		c.autoOpen = enabled
	}
}

// WithAutoClose controls whether a request transparently disconnects the
// socket after a successful exchange (SPEC_FULL.md §4.8). Defaults to false.
func WithAutoClose(enabled bool) Option {
	return func(c *BaseClient) {
		c.autoClose = enabled
	}
}

// NewBaseClient wires transport and a default PDU codec into a BaseClient
// with spec-default auto_open=true, auto_close=false.
func NewBaseClient(t common.Transport, options ...Option) *BaseClient {
	client := &BaseClient{
		logger:    logging.NewLogger(),
		transport: t,
		protocol:  protocol.NewPDUCodec(),
		unitID:    0,
		timeout:   defaultRequestTimeout,
		autoOpen:  true,
		autoClose: false,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithLogger returns a new client sharing this one's transport/protocol but
// logging through logger.
func (c *BaseClient) WithLogger(logger common.LoggerInterface) common.Client {
	return NewBaseClient(
		c.transport,
		WithLogger(logger),
		WithUnitID(c.unitID),
		WithProtocol(c.protocol),
		WithRequestTimeout(c.timeout),
		WithAutoOpen(c.autoOpen),
		WithAutoClose(c.autoClose),
	)
}

// Connect opens the underlying transport.
func (c *BaseClient) Connect(ctx context.Context) error {
	c.logger.Info(ctx, "connecting (unit id %d)", c.unitID)
	return c.transport.Connect(ctx)
}

// Disconnect closes the underlying transport.
func (c *BaseClient) Disconnect(ctx context.Context) error {
	c.logger.Info(ctx, "disconnecting")
	return c.transport.Disconnect(ctx)
}

// IsConnected reports the transport's current socket state.
func (c *BaseClient) IsConnected() bool {
	return c.transport.IsConnected()
}

// LastError reports the kind of the most recent request's failure, or
// ErrKindNone after a request that succeeded.
func (c *BaseClient) LastError() common.ClientErrorKind {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastError
}

// LastException reports the exception code of the most recent request when
// LastError() is ErrKindModbusException.
func (c *BaseClient) LastException() common.ExceptionCode {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastException
}

// setState records the outcome of a request for LastError/LastException.
// Per SPEC_FULL.md §4.7, value-errors raised before any I/O never call this.
func (c *BaseClient) setState(kind common.ClientErrorKind, exception common.ExceptionCode) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.lastError = kind
	c.lastException = exception
}

// classifyTransportError maps a transport/context-layer error onto the
// ClientErrorKind taxonomy from SPEC_FULL.md §4.9. Order matters: the more
// specific sentinels are checked before the generic net.Error fallback.
func classifyTransportError(err error) common.ClientErrorKind {
	switch {
	case errors.Is(err, common.ErrNotConnected), errors.Is(err, common.ErrTransportClosing):
		return common.ErrKindClosed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, common.ErrTimeout), errors.Is(err, common.ErrTransactionTimeout):
		return common.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return common.ErrKindRecv
	case errors.Is(err, common.ErrMBAPMismatch), errors.Is(err, common.ErrInvalidProtocolHeader), errors.Is(err, common.ErrInvalidResponseLength):
		return common.ErrKindRecv
	case errors.Is(err, common.ErrInvalidResponseFormat):
		return common.ErrKindFrameFormat
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return common.ErrKindTimeout
		}
		return common.ErrKindConnect
	}
	return common.ErrKindRecv
}

// ensureOpen implements auto_open (SPEC_FULL.md §4.8): if the socket is
// closed and auto_open is enabled, connect it transparently; otherwise it
// returns ErrNotConnected, which Send records as ErrKindClosed.
func (c *BaseClient) ensureOpen(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if !c.autoOpen {
		return common.ErrNotConnected
	}
	c.logger.Debug(ctx, "auto_open: connecting before request")
	if err := c.transport.Connect(ctx); err != nil {
		c.logger.Error(ctx, "auto_open failed: %v", err)
		return err
	}
	return nil
}

// finishAutoClose implements auto_close (SPEC_FULL.md §4.8): after a
// successful exchange, transparently drop the connection if requested.
func (c *BaseClient) finishAutoClose(ctx context.Context) {
	if !c.autoClose {
		return
	}
	c.logger.Debug(ctx, "auto_close: disconnecting after request")
	if err := c.transport.Disconnect(ctx); err != nil {
		c.logger.Warn(ctx, "auto_close disconnect failed: %v", err)
	}
}

// withRequestDeadline derives a context carrying the client's default
// timeout when ctx has no deadline of its own, and returns its cancel func.
func (c *BaseClient) withRequestDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Send runs the full request lifecycle for a single PDU exchange: auto_open,
// transport round trip, exception/error classification into
// LastError/LastException, and auto_close. Every typed method on this client
// funnels through here so they share one error-handling contract.
func (c *BaseClient) Send(ctx context.Context, functionCode common.FunctionCode, data []byte) (common.Response, error) {
	c.setState(common.ErrKindNone, 0)

	if err := c.ensureOpen(ctx); err != nil {
		if errors.Is(err, common.ErrNotConnected) {
			c.setState(common.ErrKindClosed, 0)
		} else {
			c.setState(common.ErrKindConnect, 0)
		}
		return nil, err
	}

	ctx, cancel := c.withRequestDeadline(ctx)
	defer cancel()

	request := transport.NewRequest(c.unitID, functionCode, data)

	c.logger.Debug(ctx, "sending request: function=%s, data=%v", functionCode, data)
	response, err := c.transport.Send(ctx, request)
	if err != nil {
		kind := classifyTransportError(err)
		c.logger.Error(ctx, "request failed (%s): %v", kind, err)
		c.setState(kind, 0)
		return nil, err
	}

	if response.IsException() {
		exception := response.GetException()
		c.logger.Warn(ctx, "exception response: function=%s, exception=%s", response.GetPDU().FunctionCode, exception)
		c.setState(common.ErrKindModbusException, exception)
		return nil, response.ToError()
	}

	c.logger.Debug(ctx, "received response: function=%s", response.GetPDU().FunctionCode)
	c.finishAutoClose(ctx)
	return response, nil
}

// CustomRequest sends a raw PDU for a function code this client has no
// dedicated typed method for. Per SPEC_FULL.md §9, a well-formed exception
// response yields (nil, nil) with LastException set, matching every typed
// method's contract rather than returning the ModbusError to the caller.
func (c *BaseClient) CustomRequest(ctx context.Context, functionCode common.FunctionCode, data []byte) ([]byte, error) {
	c.logger.Debug(ctx, "custom request: function=%s, data=%v", functionCode, data)

	response, err := c.Send(ctx, functionCode, data)
	if err != nil {
		if common.IsModbusError(err) {
			return nil, nil
		}
		return nil, err
	}

	return response.GetPDU().Data, nil
}

// ReadCoils reads quantity coils starting at address.
func (c *BaseClient) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	requestData, err := c.protocol.GenerateReadCoilsRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadCoils, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadCoilsResponse(response.GetPDU().Data, quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (c *BaseClient) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	requestData, err := c.protocol.GenerateReadDiscreteInputsRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadDiscreteInputs, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadDiscreteInputsResponse(response.GetPDU().Data, quantity)
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (c *BaseClient) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	requestData, err := c.protocol.GenerateReadHoldingRegistersRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadHoldingRegisters, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadHoldingRegistersResponse(response.GetPDU().Data, quantity)
}

// ReadInputRegisters reads quantity input registers starting at address.
func (c *BaseClient) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	requestData, err := c.protocol.GenerateReadInputRegistersRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadInputRegisters, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadInputRegistersResponse(response.GetPDU().Data, quantity)
}

// WriteSingleCoil writes value to the coil at address.
func (c *BaseClient) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	requestData, err := c.protocol.GenerateWriteSingleCoilRequest(address, value)
	if err != nil {
		return err
	}
	response, err := c.Send(ctx, common.FuncWriteSingleCoil, requestData)
	if err != nil {
		return err
	}
	_, _, err = c.protocol.ParseWriteSingleCoilResponse(response.GetPDU().Data)
	return err
}

// WriteSingleRegister writes value to the register at address.
func (c *BaseClient) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	requestData, err := c.protocol.GenerateWriteSingleRegisterRequest(address, value)
	if err != nil {
		return err
	}
	response, err := c.Send(ctx, common.FuncWriteSingleRegister, requestData)
	if err != nil {
		return err
	}
	_, _, err = c.protocol.ParseWriteSingleRegisterResponse(response.GetPDU().Data)
	return err
}

// WriteMultipleCoils writes values starting at address.
func (c *BaseClient) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	requestData, err := c.protocol.GenerateWriteMultipleCoilsRequest(address, values)
	if err != nil {
		return err
	}
	response, err := c.Send(ctx, common.FuncWriteMultipleCoils, requestData)
	if err != nil {
		return err
	}
	_, _, err = c.protocol.ParseWriteMultipleCoilsResponse(response.GetPDU().Data)
	return err
}

// WriteMultipleRegisters writes values starting at address.
func (c *BaseClient) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	requestData, err := c.protocol.GenerateWriteMultipleRegistersRequest(address, values)
	if err != nil {
		return err
	}
	response, err := c.Send(ctx, common.FuncWriteMultipleRegisters, requestData)
	if err != nil {
		return err
	}
	_, _, err = c.protocol.ParseWriteMultipleRegistersResponse(response.GetPDU().Data)
	return err
}

// ReadWriteMultipleRegisters writes writeValues starting at writeAddress and
// returns readQuantity registers starting at readAddress, in one exchange.
func (c *BaseClient) ReadWriteMultipleRegisters(ctx context.Context, readAddress common.Address, readQuantity common.Quantity, writeAddress common.Address, writeValues []common.RegisterValue) ([]common.RegisterValue, error) {
	requestData, err := c.protocol.GenerateReadWriteMultipleRegistersRequest(readAddress, readQuantity, writeAddress, writeValues)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadWriteMultipleRegisters, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadWriteMultipleRegistersResponse(response.GetPDU().Data, readQuantity)
}

// ReadExceptionStatus reads the server's 8-bit exception status coils.
func (c *BaseClient) ReadExceptionStatus(ctx context.Context) (common.ExceptionStatus, error) {
	requestData, err := c.protocol.GenerateReadExceptionStatusRequest()
	if err != nil {
		return 0, err
	}
	response, err := c.Send(ctx, common.FuncReadExceptionStatus, requestData)
	if err != nil {
		return 0, err
	}
	return c.protocol.ParseReadExceptionStatusResponse(response.GetPDU().Data)
}

// ReadDeviceIdentification reads device identification objects via the MEI
// ReadDeviceID sub-function. For readDeviceIDCode != ReadDeviceIDSpecific,
// objectID should be DeviceIDObjectCode(0).
func (c *BaseClient) ReadDeviceIdentification(ctx context.Context, readDeviceIDCode common.ReadDeviceIDCode, objectID common.DeviceIDObjectCode) (*common.DeviceIdentification, error) {
	requestData, err := c.protocol.GenerateReadDeviceIdentificationRequest(readDeviceIDCode, objectID)
	if err != nil {
		return nil, err
	}
	response, err := c.Send(ctx, common.FuncReadDeviceIdentification, requestData)
	if err != nil {
		return nil, err
	}
	return c.protocol.ParseReadDeviceIdentificationResponse(response.GetPDU().Data)
}
