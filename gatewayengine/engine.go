// Package gatewayengine implements common.ExternalEngine on top of an RTU
// serial line, letting a server.TCPServer act as a Modbus TCP-to-RTU
// gateway: requests decoded by the TCP front end are re-framed as RTU
// ADUs, sent to a serial slave, and the reply is re-framed back into a
// TCP response without ever being re-parsed for Modbus semantics.
package gatewayengine

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/logging"
	"github.com/Moonlight-Companies/gomodbus/transport"
)

// queueDepth is the bounded request queue size. A serial line is a single
// shared medium and can only serve one in-flight request at a time; this
// caps how many callers can be waiting for the port before the gateway
// starts rejecting with ExceptionGatewayPathUnavailable.
const queueDepth = 5

// maxRTUFrame is the largest RTU ADU the gateway will read: unit id (1) +
// PDU (up to common.MaxPDULength) + CRC16 (2).
const maxRTUFrame = 1 + common.MaxPDULength + 2

// Engine bridges TCP-decoded requests to an RTU serial slave. It implements
// common.ExternalEngine and is meant to be installed on a server.TCPServer
// via a functional option (server.WithExternalEngine), so the TCP front end
// is unaware it's ultimately talking to a serial device.
type Engine struct {
	port        serial.Port
	portName    string
	mode        *serial.Mode
	timeout     time.Duration
	logger      common.LoggerInterface
	requests    chan gatewayRequest
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

type gatewayRequest struct {
	ctx     context.Context
	request common.Request
	reply   chan gatewayReply
}

type gatewayReply struct {
	response common.Response
	err      error
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger used for serial I/O diagnostics.
func WithLogger(logger common.LoggerInterface) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTimeout sets the per-request timeout waiting for an RTU reply.
// Defaults to 1 second.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// WithMode overrides the serial port mode. Defaults to 9600-8N1, the
// conventional Modbus RTU default.
// Ref: Modbus_over_Serial_Line_V1_02.pdf, Section 2.5.1 (default serial transmission mode)
func WithMode(mode *serial.Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// NewEngine creates a gateway Engine bound to portName. The serial port is
// not opened until Start is called.
func NewEngine(portName string, options ...Option) *Engine {
	e := &Engine{
		portName: portName,
		mode: &serial.Mode{
			BaudRate: 9600,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		timeout: time.Second,
		logger:  logging.NewNoopLogger(),
		requests: make(chan gatewayRequest, queueDepth),
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Start opens the serial port and launches the single worker goroutine that
// owns it. The port is opened exclusively by this goroutine for the
// lifetime of the Engine, since RS-485/RS-232 lines cannot be shared
// across concurrent readers/writers.
func (e *Engine) Start(ctx context.Context) error {
	port, err := serial.Open(e.portName, e.mode)
	if err != nil {
		return fmt.Errorf("gatewayengine: open %s: %w", e.portName, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("gatewayengine: set read timeout: %w", err)
	}

	e.port = port
	e.stopChan = make(chan struct{})
	e.stoppedChan = make(chan struct{})

	go e.run()

	return nil
}

// Stop closes the serial port and waits for the worker goroutine to exit.
func (e *Engine) Stop() error {
	close(e.stopChan)
	<-e.stoppedChan
	return e.port.Close()
}

// HandleRequest implements common.ExternalEngine. It enqueues request for
// the serial worker and blocks until a reply arrives, the queue is full, or
// ctx is cancelled.
func (e *Engine) HandleRequest(ctx context.Context, request common.Request) (common.Response, error) {
	reply := make(chan gatewayReply, 1)

	select {
	case e.requests <- gatewayRequest{ctx: ctx, request: request, reply: reply}:
	default:
		e.logger.Warn(ctx, "gatewayengine: request queue full, rejecting unit=%d fc=%s", request.GetUnitID(), request.GetPDU().FunctionCode)
		return nil, common.NewModbusError(request.GetPDU().FunctionCode, common.ExceptionGatewayPathUnavailable)
	}

	select {
	case r := <-reply:
		return r.response, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the sole owner of the serial port. It serializes every request
// onto the wire and feeds the reply (or a timeout exception) back to the
// waiting caller.
func (e *Engine) run() {
	defer close(e.stoppedChan)

	for {
		select {
		case <-e.stopChan:
			return
		case req := <-e.requests:
			resp, err := e.roundTrip(req.request)
			req.reply <- gatewayReply{response: resp, err: err}
		}
	}
}

// roundTrip sends one RTU ADU and waits up to e.timeout for a validated
// reply.
func (e *Engine) roundTrip(request common.Request) (common.Response, error) {
	ctx := context.Background()
	pdu := request.GetPDU()

	adu := make([]byte, 0, 2+len(pdu.Data))
	adu = append(adu, byte(request.GetUnitID()), byte(pdu.FunctionCode))
	adu = append(adu, pdu.Data...)
	adu = appendCRC(adu)

	e.logger.Debug(ctx, "gatewayengine: tx unit=%d fc=%s bytes=%d", request.GetUnitID(), pdu.FunctionCode, len(adu))

	if _, err := e.port.Write(adu); err != nil {
		return nil, fmt.Errorf("gatewayengine: write: %w", err)
	}

	frame, err := e.readFrame()
	if err != nil {
		e.logger.Warn(ctx, "gatewayengine: unit %d did not respond: %v", request.GetUnitID(), err)
		return nil, common.NewModbusError(pdu.FunctionCode, common.ExceptionGatewayTargetNoResponse)
	}

	payload, ok := verifyCRC(frame)
	if !ok {
		e.logger.Warn(ctx, "gatewayengine: bad CRC from unit %d", request.GetUnitID())
		return nil, common.NewModbusError(pdu.FunctionCode, common.ExceptionGatewayTargetNoResponse)
	}
	if len(payload) < 2 {
		return nil, common.NewModbusError(pdu.FunctionCode, common.ExceptionGatewayTargetNoResponse)
	}

	respFC := common.FunctionCode(payload[1])
	respData := payload[2:]

	return transport.NewResponse(request.GetTransactionID(), request.GetUnitID(), respFC, respData), nil
}

// readFrame reads one RTU ADU from the serial port, polling with the
// port's short read timeout until either the inter-frame silence elapses
// (end of frame, Ref: Modbus_over_Serial_Line_V1_02.pdf, Section 2.5.1.1,
// t3.5 inter-frame delay) or e.timeout is exceeded with no bytes at all.
func (e *Engine) readFrame() ([]byte, error) {
	deadline := time.Now().Add(e.timeout)
	buf := make([]byte, maxRTUFrame)
	frame := make([]byte, 0, maxRTUFrame)

	for {
		n, err := e.port.Read(buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			frame = append(frame, buf[:n]...)
			continue
		}
		if len(frame) > 0 {
			return frame, nil
		}
		if time.Now().After(deadline) {
			return nil, common.ErrTimeout
		}
	}
}
