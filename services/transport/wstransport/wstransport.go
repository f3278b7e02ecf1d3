package wstransport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kychandar/gqlwsc/common"
	"github.com/kychandar/gqlwsc/ds"
	"github.com/kychandar/gqlwsc/services"
	slogctx "github.com/veqryn/slog-context"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReceiveTimeout = 60 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	maxMessageSize        = 512 * 1024
)

// Options configure one WebSocket transport. Zero timeouts fall back to the
// defaults above.
type Options struct {
	URL            string
	Origin         string
	Headers        map[string]string
	Subprotocol    string
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
	WriteTimeout   time.Duration
}

type wsTransport struct {
	opts Options
	conn *websocket.Conn
}

// New creates a Transport speaking JSON protocol messages over a single
// gorilla WebSocket connection.
func New(opts Options) services.Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = defaultReceiveTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &wsTransport{opts: opts}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.opts.ConnectTimeout,
		TLSClientConfig:  t.opts.TLSConfig,
	}
	if t.opts.Subprotocol != "" {
		dialer.Subprotocols = []string{t.opts.Subprotocol}
	}

	header := http.Header{}
	if t.opts.Origin != "" {
		header.Set("Origin", t.opts.Origin)
	}
	for k, v := range t.opts.Headers {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(ctx, t.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	t.conn = conn
	return nil
}

// Disconnect sends a close frame best-effort and tears the connection down.
// It always succeeds locally, even when called twice or before Connect.
func (t *wsTransport) Disconnect(ctx context.Context) error {
	if t.conn == nil {
		return nil
	}
	deadline := time.Now().Add(t.opts.WriteTimeout)
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		slogctx.FromCtx(ctx).DebugContext(ctx, "close after disconnect", "err", err)
	}
	return nil
}

func (t *wsTransport) Send(ctx context.Context, msg *ds.Msg) error {
	if t.conn == nil {
		return fmt.Errorf("send on disconnected transport")
	}
	data, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive returns the next protocol message. Its deadline is the transport's
// own per-call receive timeout; expiry surfaces as *common.TimeoutError so
// callers with a larger wall-clock budget can keep polling.
func (t *wsTransport) Receive(ctx context.Context) (*ds.Msg, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("receive on disconnected transport")
	}
	t.conn.SetReadDeadline(time.Now().Add(t.opts.ReceiveTimeout))
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			return nil, &common.TimeoutError{After: t.opts.ReceiveTimeout}
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	msg := &ds.Msg{}
	if err := msg.DeserializeFrom(data); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// WaitDisconnect blocks until the peer closes the connection. Messages still
// in flight are drained and dropped.
func (t *wsTransport) WaitDisconnect(ctx context.Context, timeout time.Duration) error {
	if t.conn == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = t.opts.ReceiveTimeout
	}
	t.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if isTimeout(err) {
				return &common.TimeoutError{After: timeout}
			}
			// Any close, expected or not, means the peer is gone.
			t.conn.Close()
			t.conn = nil
			return nil
		}
	}
}

func (t *wsTransport) Timeout() time.Duration {
	return t.opts.ReceiveTimeout
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// BuildTLSConfig assembles a tls.Config from file-based settings.
func BuildTLSConfig(certFile, keyFile, caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: insecureSkipVerify}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
