package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

// Client is the connection a reference uses to reach a remote service. The
// connection is dialled on first use and again after a transport failure.
// Calls are serialised: one request is in flight at a time.
type Client struct {
	url    string
	config Config
	dialer *websocket.Dialer
	logger log.Log

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url string, config Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		url:    url,
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger: logger.With(log.String("protocol", "websocket"), log.String("url", url)),
	}
}

// URL returns the service address.
func (c *Client) URL() string {
	return c.url
}

// Provider creates a reference invoker per operation, all sharing c.
func (c *Client) Provider() wire.TargetInvokerProvider {
	return wire.InvokerProviderFunc(func(op *interfacedef.Operation) (invocation.Invoker, error) {
		return &ReferenceInvoker{client: c, operation: op.Name}, nil
	})
}

func (c *Client) call(ctx context.Context, req *request) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, conn, req)
	if err != nil {
		c.logger.Warn("Dropping connection after transport failure", log.Error(err))
		c.closeLocked()
		return nil, err
	}
	return resp, nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial")
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn = conn
	c.logger.Debug("Connected")
	return conn, nil
}

func (c *Client) roundTrip(ctx context.Context, conn *websocket.Conn, req *request) (*response, error) {
	// Unblock reads and writes once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	_ = conn.SetWriteDeadline(c.deadline(ctx, c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, errors.Wrap(err, "failed to write request")
	}

	_ = conn.SetReadDeadline(c.deadline(ctx, c.config.ReadTimeout))
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errors.Wrap(err, "failed to read response")
		}
		if resp.ID == req.ID {
			return &resp, nil
		}
		c.logger.Debug("Discarding stale response", log.String("message_id", resp.ID))
	}
}

// deadline is the earlier of ctx's deadline and now+timeout. Zero means none.
func (c *Client) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// Close closes the current connection, if any. The client stays usable.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ReferenceInvoker is the tail of a reference chain targeting a remote
// service. Transport failures and remote faults become fault bodies.
type ReferenceInvoker struct {
	client    *Client
	operation string
}

var _ invocation.Invoker = (*ReferenceInvoker)(nil)

func (r *ReferenceInvoker) Invoke(ctx context.Context, msg *invocation.Message) *invocation.Message {
	req, err := newRequest(msg, r.operation)
	if err != nil {
		msg.SetFaultBody(&invocation.ServiceRuntimeError{Operation: r.operation, Cause: err})
		return msg
	}

	resp, err := r.client.call(ctx, req)
	if err != nil {
		msg.SetFaultBody(invocation.NewError(invocation.ErrorCodeTargetUnavailable, err.Error(), invocation.ErrTargetUnavailable).
			WithContext("url", r.client.url).
			WithContext("operation", r.operation))
		return msg
	}
	if resp.Fault != nil {
		msg.SetFaultBody(resp.Fault.err())
		return msg
	}
	if len(resp.Result) == 0 {
		msg.SetBody(nil)
		return msg
	}
	msg.SetBody(resp.Result)
	return msg
}
