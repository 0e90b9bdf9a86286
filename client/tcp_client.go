package client

import (
	"context"
	"io"
	"time"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/transport"
)

// TCPClient is a Modbus/TCP client: a BaseClient driving a TCPTransport,
// with Host/Port accessors that implement SPEC_FULL.md §6's "changing the
// target closes any open socket" rule.
type TCPClient struct {
	*BaseClient
	tcpTransport *transport.TCPTransport
}

// TCPOption configures a TCPClient at construction time.
type TCPOption func(*TCPClient)

// WithTCPLogger sets the client's logger.
func WithTCPLogger(logger common.LoggerInterface) TCPOption {
	return func(c *TCPClient) {
		c.BaseClient = c.BaseClient.WithLogger(logger).(*BaseClient)
	}
}

// WithTCPUnitID sets the unit id placed in every request's MBAP header.
func WithTCPUnitID(unitID common.UnitID) TCPOption {
	return func(c *TCPClient) {
		c.BaseClient = rebuildBaseClient(c.BaseClient, c.tcpTransport, WithUnitID(unitID))
	}
}

// WithTCPTimeout sets the per-request timeout applied when the caller's
// context carries no deadline (SPEC_FULL.md §6 "timeout").
func WithTCPTimeout(timeout time.Duration) TCPOption {
	return func(c *TCPClient) {
		c.BaseClient = rebuildBaseClient(c.BaseClient, c.tcpTransport, WithRequestTimeout(timeout))
	}
}

// WithTCPAutoOpen toggles implicit connect-before-request (SPEC_FULL.md §4.8, §6).
func WithTCPAutoOpen(enabled bool) TCPOption {
	return func(c *TCPClient) {
		c.BaseClient = rebuildBaseClient(c.BaseClient, c.tcpTransport, WithAutoOpen(enabled))
	}
}

// WithTCPAutoClose toggles implicit disconnect-after-success (SPEC_FULL.md §4.8, §6).
func WithTCPAutoClose(enabled bool) TCPOption {
	return func(c *TCPClient) {
		c.BaseClient = rebuildBaseClient(c.BaseClient, c.tcpTransport, WithAutoClose(enabled))
	}
}

// rebuildBaseClient reconstructs a BaseClient around the same transport,
// carrying forward every field that isn't being overridden by extra.
func rebuildBaseClient(current *BaseClient, t common.Transport, extra Option) *BaseClient {
	options := []Option{
		WithLogger(current.logger),
		WithUnitID(current.unitID),
		WithProtocol(current.protocol),
		WithRequestTimeout(current.timeout),
		WithAutoOpen(current.autoOpen),
		WithAutoClose(current.autoClose),
		extra,
	}
	return NewBaseClient(t, options...)
}

// NewTCPClient creates a Modbus/TCP client dialing host (default port 502,
// default timeout 30s, auto_open enabled, auto_close disabled).
func NewTCPClient(host string, options ...transport.TCPTransportOption) *TCPClient {
	tcpTransport := transport.NewTCPTransport(host, options...)
	baseClient := NewBaseClient(tcpTransport)

	return &TCPClient{
		BaseClient:   baseClient,
		tcpTransport: tcpTransport,
	}
}

// WithOptions applies the given options and returns the same client,
// allowing chained construction: client.WithOptions(WithTCPUnitID(2)).
func (c *TCPClient) WithOptions(options ...TCPOption) *TCPClient {
	for _, option := range options {
		option(c)
	}
	return c
}

// Host returns the server hostname/IP this client targets.
func (c *TCPClient) Host() string {
	return c.tcpTransport.Host()
}

// Port returns the TCP port this client targets.
func (c *TCPClient) Port() int {
	return c.tcpTransport.Port()
}

// SetHost retargets the client at a new hostname/IP, closing any open
// socket per SPEC_FULL.md §6.
func (c *TCPClient) SetHost(ctx context.Context, host string) error {
	return c.tcpTransport.SetHost(ctx, host)
}

// SetPort retargets the client at a new TCP port; see SetHost.
func (c *TCPClient) SetPort(ctx context.Context, port int) error {
	return c.tcpTransport.SetPort(ctx, port)
}

// WithUnitID sets the unit id and returns the client.
// Deprecated: use WithOptions(WithTCPUnitID(unitID)).
func (c *TCPClient) WithUnitID(unitID common.UnitID) *TCPClient {
	return c.WithOptions(WithTCPUnitID(unitID))
}

// WithLogger sets the logger and returns the client as a common.Client.
// Deprecated: use WithOptions(WithTCPLogger(logger)).
func (c *TCPClient) WithLogger(logger common.LoggerInterface) common.Client {
	return c.WithOptions(WithTCPLogger(logger))
}

// FromReaderWriter builds a TCPClient driven by an arbitrary reader/writer
// pair instead of a dialed socket; used by tests to exercise the client
// engine over an in-memory pipe.
func FromReaderWriter(reader io.Reader, writer io.Writer) *TCPClient {
	tcpTransport := transport.NewTCPTransport("test",
		transport.WithReader(reader),
		transport.WithWriter(writer),
	)
	baseClient := NewBaseClient(tcpTransport)

	return &TCPClient{
		BaseClient:   baseClient,
		tcpTransport: tcpTransport,
	}
}
