package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/logging"
)

// TCPTransport implements common.Transport over a single Modbus/TCP socket.
// A background read loop demultiplexes inbound frames by transaction id onto
// a pool of in-flight transactions, and a write loop serializes outbound
// frames onto the socket; Send() itself never touches the connection
// directly.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (MODBUS Data Model)
type TCPTransport struct {
	logger common.LoggerInterface
	host   string
	port   int
	dialTimeout time.Duration

	mutex     sync.Mutex
	conn      net.Conn
	reader    io.Reader
	writer    io.Writer
	connected bool
	closeOnce sync.Once

	pool      *TransactionPool
	writeChan chan *Transaction
	done      chan struct{}
}

// TCPTransportOption configures a TCPTransport at construction time.
type TCPTransportOption func(*TCPTransport)

// WithPort overrides the default Modbus/TCP port (502).
func WithPort(port int) TCPTransportOption {
	return func(t *TCPTransport) {
		t.port = port
	}
}

// WithTimeoutOption sets the connect timeout used when the caller's context
// carries no deadline of its own.
func WithTimeoutOption(timeout time.Duration) TCPTransportOption {
	return func(t *TCPTransport) {
		t.dialTimeout = timeout
	}
}

// WithReader overrides the socket reader; used by tests to drive the
// transport over an in-memory pipe instead of a real TCP connection.
func WithReader(reader io.Reader) TCPTransportOption {
	return func(t *TCPTransport) {
		t.reader = reader
	}
}

// WithWriter overrides the socket writer; see WithReader.
func WithWriter(writer io.Writer) TCPTransportOption {
	return func(t *TCPTransport) {
		t.writer = writer
	}
}

// WithTransportLogger sets the logger used for connection/frame tracing.
func WithTransportLogger(logger common.LoggerInterface) TCPTransportOption {
	return func(t *TCPTransport) {
		t.logger = logger
	}
}

// NewTCPTransport creates a TCPTransport targeting host, defaulting to the
// standard Modbus/TCP port and a 30s connect timeout.
func NewTCPTransport(host string, options ...TCPTransportOption) *TCPTransport {
	t := &TCPTransport{
		logger:      logging.NewLogger(),
		host:        host,
		port:        common.DefaultTCPPort,
		dialTimeout: 30 * time.Second,
		pool:        NewTransactionPool(),
		writeChan:   make(chan *Transaction, 100),
		done:        make(chan struct{}),
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// WithLogger sets the logger and returns the same transport instance (the
// underlying socket and in-flight transactions are not duplicated).
func (t *TCPTransport) WithLogger(logger common.LoggerInterface) common.Transport {
	t.logger = logger
	return t
}

// Connect dials the server and starts the read/write goroutines.
func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.connected {
		return common.ErrAlreadyConnected
	}

	t.logger.Info(ctx, "dialing %s:%d", t.host, t.port)

	select {
	case <-t.done:
		t.done = make(chan struct{})
	default:
	}

	t.pool.transactionsMu.Lock()
	t.pool.unsafeReset()
	t.pool.transactionsMu.Unlock()

	if t.writeChan == nil {
		t.writeChan = make(chan *Transaction, 100)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.dialTimeout)
	}

	dialer := net.Dialer{Timeout: time.Until(deadline)}
	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.logger.Error(ctx, "dial %s failed: %v", addr, err)
		return err
	}

	t.conn = conn
	if t.reader == nil {
		t.reader = t.conn
	}
	if t.writer == nil {
		t.writer = t.conn
	}

	t.closeOnce = sync.Once{}
	t.connected = true
	t.logger.Info(ctx, "connected to %s:%d", t.host, t.port)

	go t.readLoop()
	go t.writeLoop()

	return nil
}

// Disconnect signals the read/write goroutines to stop and closes the socket.
func (t *TCPTransport) Disconnect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.connected {
		return nil
	}

	t.logger.Info(ctx, "disconnecting")
	t.connected = false
	close(t.done)

	// Give the loop goroutines a moment to observe the closed done channel
	// before we pull the socket out from under them.
	time.Sleep(10 * time.Millisecond)

	var err error
	t.closeOnce.Do(func() {
		t.pool.transactionsMu.Lock()
		t.pool.unsafeReset()
		t.pool.transactionsMu.Unlock()

		if t.conn != nil {
			err = t.conn.Close()
		}
	})

	t.logger.Info(ctx, "disconnected")
	return err
}

// IsConnected reports whether the socket is currently open.
func (t *TCPTransport) IsConnected() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.connected
}

// Host returns the server hostname/IP this transport targets.
func (t *TCPTransport) Host() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.host
}

// Port returns the TCP port this transport targets.
func (t *TCPTransport) Port() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.port
}

// SetHost retargets the transport at a new hostname/IP. Per SPEC_FULL.md §6,
// changing the host closes any open socket; the next request's auto_open (or
// an explicit Connect) dials the new target.
func (t *TCPTransport) SetHost(ctx context.Context, host string) error {
	if err := t.Disconnect(ctx); err != nil {
		return err
	}
	t.mutex.Lock()
	t.host = host
	t.mutex.Unlock()
	return nil
}

// SetPort retargets the transport at a new TCP port; see SetHost.
func (t *TCPTransport) SetPort(ctx context.Context, port int) error {
	if err := t.Disconnect(ctx); err != nil {
		return err
	}
	t.mutex.Lock()
	t.port = port
	t.mutex.Unlock()
	return nil
}

// ResetTransactions clears the in-flight transaction pool without closing
// the socket; used to recover from a corrupted transaction state (e.g. after
// an MBAP mismatch) without paying for a full reconnect.
func (t *TCPTransport) ResetTransactions(ctx context.Context) {
	t.logger.Info(ctx, "resetting transaction pool")
	t.pool.transactionsMu.Lock()
	defer t.pool.transactionsMu.Unlock()
	t.pool.unsafeReset()
}

// setDisconnected marks the transport closed and cancels every in-flight
// transaction; called by the read/write loops whenever the socket dies.
func (t *TCPTransport) setDisconnected(err error) {
	ctx := context.Background()
	t.mutex.Lock()
	wasConnected := t.connected
	t.connected = false
	t.mutex.Unlock()

	if wasConnected {
		t.logger.Error(ctx, "transport closed: %v", err)
		t.pool.transactionsMu.Lock()
		t.pool.unsafeReset()
		t.pool.transactionsMu.Unlock()
	}
}

// Send places request in the transaction pool, queues it for the write loop,
// and blocks until a matching response or error arrives (or ctx is done).
func (t *TCPTransport) Send(ctx context.Context, request common.Request) (common.Response, error) {
	if !t.IsConnected() {
		return nil, common.ErrNotConnected
	}

	t.logger.Debug(ctx, "sending request: function=%d", request.GetPDU().FunctionCode)

	tx, err := t.pool.Place(ctx, request)
	if err != nil {
		t.logger.Error(ctx, "failed to allocate transaction: %v", err)
		return nil, fmt.Errorf("allocate transaction: %w", err)
	}

	t.logger.Debug(ctx, "allocated transaction %d", request.GetTransactionID())

	select {
	case t.writeChan <- tx:
		t.logger.Debug(ctx, "queued transaction %d", request.GetTransactionID())
	case <-ctx.Done():
		t.pool.Release(request.GetTransactionID())
		return nil, ctx.Err()
	case <-t.done:
		t.pool.Release(request.GetTransactionID())
		return nil, common.ErrTransportClosing
	}

	select {
	case response := <-tx.ResponseCh:
		t.logger.Debug(ctx, "received response for transaction %d", request.GetTransactionID())
		return response, nil
	case err := <-tx.ErrCh:
		t.logger.Debug(ctx, "transaction %d failed: %v", request.GetTransactionID(), err)
		return nil, err
	case <-ctx.Done():
		// The timeout monitor reclaims the slot; we just stop waiting.
		return nil, ctx.Err()
	}
}
