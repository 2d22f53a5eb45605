package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/cqstream/errors"
)

// Conn is a live connection handle. NextReader returns a reader for the next
// data message; the reader yields the message payload frame by frame.
type Conn interface {
	NextReader() (messageType int, r io.Reader, err error)
	Close() error
	Healthy() bool
}

// Connector opens connections to the event endpoint
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// DialConnector dials the endpoint with a gorilla websocket dialer
type DialConnector struct {
	endpoint Endpoint
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewDialConnector creates a connector for endpoint using the dial settings in cfg
func NewDialConnector(endpoint Endpoint, cfg Config, logger *slog.Logger) *DialConnector {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   cfg.readBufferSize(),
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 45 * time.Second
	}

	return &DialConnector{
		endpoint: endpoint,
		dialer:   dialer,
		logger:   logger,
	}
}

// WithTLSConfig sets the TLS configuration used for wss endpoints
func (d *DialConnector) WithTLSConfig(cfg *tls.Config) *DialConnector {
	d.dialer.TLSClientConfig = cfg
	return d
}

// Connect performs the websocket handshake. Cancelling ctx before or during
// the handshake returns an error matching ctx.Err().
func (d *DialConnector) Connect(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.endpoint, err)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint.URL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connect %s: %w", d.endpoint, ctxErr)
		}
		action := fmt.Sprintf("dial %s", d.endpoint)
		if resp != nil {
			action = fmt.Sprintf("dial %s: handshake status %d", d.endpoint, resp.StatusCode)
		}
		return nil, errors.WrapTransient(err, "DialConnector", "Connect", action)
	}

	d.logger.Debug("WebSocket connected", "endpoint", d.endpoint.String())
	return newWSConn(conn), nil
}

// wsConn adapts *websocket.Conn to Conn
type wsConn struct {
	conn      *websocket.Conn
	healthy   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{conn: conn}
	c.healthy.Store(true)

	// The default close handler echoes the close frame; the connection is done either way
	defaultClose := conn.CloseHandler()
	conn.SetCloseHandler(func(code int, text string) error {
		c.healthy.Store(false)
		return defaultClose(code, text)
	})
	return c
}

func (c *wsConn) NextReader() (int, io.Reader, error) {
	messageType, r, err := c.conn.NextReader()
	if err != nil {
		c.healthy.Store(false)
		return messageType, nil, err
	}
	return messageType, &healthReader{r: r, conn: c}, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.healthy.Store(false)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) Healthy() bool {
	return c.healthy.Load()
}

// healthReader marks the connection unhealthy on any read error except the
// end of the current message.
type healthReader struct {
	r    io.Reader
	conn *wsConn
}

func (h *healthReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if err != nil && err != io.EOF {
		h.conn.healthy.Store(false)
	}
	return n, err
}
