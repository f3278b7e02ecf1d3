package client

import (
	"context"
	"fmt"
	"time"

	"github.com/alphadose/haxmap"
	set "github.com/duke-git/lancet/v2/datastructure/set"
	"github.com/kychandar/gqlwsc/common"
	"github.com/kychandar/gqlwsc/ds"
	"github.com/kychandar/gqlwsc/services"
	slogctx "github.com/veqryn/slog-context"
)

// client drives the WebSocket GraphQL protocol over a single Transport: the
// connection handshake, request/response correlation, subscription lifecycle
// and deadline-bounded waiting. One instance owns one connection; it holds no
// locks because callers serialize their waits (see services.GraphQLWsClient).
type client struct {
	transport       services.Transport
	metricsRegistry services.MetricsRegistry
	state           common.ConnState
	liveSubs        *haxmap.Map[string, struct{}]
}

func New(transport services.Transport, metricsRegistry services.MetricsRegistry) services.GraphQLWsClient {
	return &client{
		transport:       transport,
		metricsRegistry: metricsRegistry,
		state:           common.Disconnected,
		liveSubs:        haxmap.New[string, struct{}](),
	}
}

func (c *client) Connected() bool {
	return c.state != common.Disconnected
}

func (c *client) State() common.ConnState {
	return c.state
}

// Connect establishes the transport-level connection.
func (c *client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return &common.ConnectionError{Op: "connect", Err: err}
	}
	c.state = common.Connected
	return nil
}

// Init performs the protocol handshake: it sends connection_init and demands
// a connection_ack back. The ack carries no caller id, so the receive here
// bypasses correlation entirely.
func (c *client) Init(ctx context.Context) error {
	logger := slogctx.FromCtx(ctx).With("component", "gqlws-client")

	if _, err := c.Send(ctx, ds.NoID(), common.MsgTypeConnectionInit, ""); err != nil {
		return err
	}
	resp, err := c.transport.Receive(ctx)
	if err != nil {
		return &common.ConnectionError{Op: "init receive", Err: err}
	}
	if resp.GetType() != common.MsgTypeConnectionAck {
		return &common.ProtocolViolationError{Expected: common.MsgTypeConnectionAck, Message: resp}
	}
	logger.DebugContext(ctx, "connection initialized")
	c.state = common.Initialized
	return nil
}

// ConnectAndInit composes Connect and Init. With connectOnly the handshake is
// skipped and the client is still marked usable; this relaxed mode exists for
// raw-handshake testing against the server.
func (c *client) ConnectAndInit(ctx context.Context, connectOnly bool) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if connectOnly {
		return nil
	}
	return c.Init(ctx)
}

// Finalize stops live subscriptions best-effort, tears the transport down and
// resets the state. Safe to call even if the client never connected.
func (c *client) Finalize(ctx context.Context) error {
	logger := slogctx.FromCtx(ctx).With("component", "gqlws-client")

	if c.state == common.Initialized {
		// Snapshot first: Stop mutates the registry while we iterate.
		ids := set.New[string]()
		c.liveSubs.ForEach(func(id string, _ struct{}) bool {
			ids.Add(id)
			return true
		})
		for id := range ids {
			if err := c.Stop(ctx, id); err != nil {
				logger.WarnContext(ctx, "failed to stop subscription during finalize", "id", id, "err", err)
			}
		}
	}

	if err := c.transport.Disconnect(ctx); err != nil {
		c.state = common.Disconnected
		return &common.ConnectionError{Op: "disconnect", Err: err}
	}
	c.state = common.Disconnected
	return nil
}

// WaitDisconnect suspends until the server closes the connection.
func (c *client) WaitDisconnect(ctx context.Context, timeout time.Duration) error {
	if err := c.transport.WaitDisconnect(ctx, timeout); err != nil {
		return err
	}
	c.state = common.Disconnected
	return nil
}

// Send builds and transmits one message, returning the id actually used.
// Fire-and-forget: no reply is awaited here.
func (c *client) Send(ctx context.Context, id ds.MsgID, msgType string, payload any) (string, error) {
	msg, resolved := ds.New(id, msgType, payload)
	if err := c.transport.Send(ctx, msg); err != nil {
		return "", &common.ConnectionError{Op: "send", Err: err}
	}
	c.metricsRegistry.IncMsgSent(msgType)
	return resolved, nil
}

// ReceiveRaw pulls messages from the transport until one is accepted, then
// applies the caller's assertions and error classification.
//
// Keep-alives are dropped unconditionally, invisible to every caller. With
// WaitID set, a message carrying any other id is silently discarded — not
// buffered, not redelivered. A caller waiting on a specific id therefore
// skips intermediate traffic at the cost of losing messages addressed to
// other logical waiters; overlapping correlated receives on one client are
// not supported.
func (c *client) ReceiveRaw(ctx context.Context, opts services.ReceiveOpts) (*ds.Msg, error) {
	logger := slogctx.FromCtx(ctx).With("component", "gqlws-client")

	var resp *ds.Msg
	for {
		var err error
		resp, err = c.transport.Receive(ctx)
		if err != nil {
			if common.IsTimeout(err) {
				return nil, err
			}
			return nil, &common.ConnectionError{Op: "receive", Err: err}
		}
		c.metricsRegistry.IncMsgReceived(resp.GetType())
		if resp.IsKeepAlive() {
			c.metricsRegistry.IncKeepAliveDropped()
			continue
		}
		if opts.WaitID == "" || resp.GetID() == opts.WaitID {
			break
		}
		c.metricsRegistry.IncMismatchDropped()
		logger.DebugContext(ctx, "discarding mismatched reply", "want-id", opts.WaitID, "got-id", resp.GetID())
	}

	if opts.AssertType != "" && resp.GetType() != opts.AssertType {
		return nil, &common.UnexpectedTypeError{Expected: opts.AssertType, Actual: resp.GetType(), Message: resp}
	}
	if opts.AssertID != "" && resp.GetID() != opts.AssertID {
		return nil, &common.UnexpectedIDError{Expected: opts.AssertID, Actual: resp.GetID(), Message: resp}
	}

	if resp.HasErrors() {
		c.metricsRegistry.IncGraphQLErrors()
		return nil, &common.GraphQLResponseError{Response: resp}
	}
	return resp, nil
}

// Receive is ReceiveRaw returning only the payload of the accepted message.
func (c *client) Receive(ctx context.Context, opts services.ReceiveOpts) (any, error) {
	resp, err := c.ReceiveRaw(ctx, opts)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// Start sends a start request for a query, mutation or subscription and
// returns the new id. Responses must be consumed explicitly by the caller.
func (c *client) Start(ctx context.Context, query string, variables map[string]any) (string, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	payload := map[string]any{
		"query":     dedent(query),
		"variables": variables,
	}
	id, err := c.Send(ctx, ds.AutoID(), common.MsgTypeStart, payload)
	if err != nil {
		return "", err
	}
	c.liveSubs.Set(id, struct{}{})
	return id, nil
}

// Execute runs a query or mutation and waits for its reply. The terminating
// complete message is drained even when the primary receive fails; the
// primary failure wins, and a cleanup failure after a clean primary receive
// is surfaced as well.
func (c *client) Execute(ctx context.Context, query string, variables map[string]any) (any, error) {
	started := time.Now()
	id, err := c.Start(ctx, query, variables)
	if err != nil {
		return nil, err
	}
	defer c.liveSubs.Del(id)

	resp, primaryErr := c.Receive(ctx, services.ReceiveOpts{WaitID: id})
	_, cleanupErr := c.Receive(ctx, services.ReceiveOpts{WaitID: id})
	if primaryErr != nil {
		return nil, primaryErr
	}
	if cleanupErr != nil {
		return nil, fmt.Errorf("consuming complete message: %w", cleanupErr)
	}
	c.metricsRegistry.ObserveCorrelatedRoundTrip(started)
	return resp, nil
}

// Subscribe starts a subscription. With waitConfirmation it blocks until the
// first correlated message arrives before handing the id back.
func (c *client) Subscribe(ctx context.Context, query string, variables map[string]any, waitConfirmation bool) (string, error) {
	id, err := c.Start(ctx, query, variables)
	if err != nil {
		return "", err
	}
	if waitConfirmation {
		if _, err := c.Receive(ctx, services.ReceiveOpts{WaitID: id}); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Stop ends a running subscription. The server's complete reply, if any, is
// left for the caller to consume.
func (c *client) Stop(ctx context.Context, id string) error {
	if _, err := c.Send(ctx, ds.ID(id), common.MsgTypeStop, nil); err != nil {
		return err
	}
	c.liveSubs.Del(id)
	return nil
}

// WaitResponse skips messages until check accepts one, bounded by a
// wall-clock budget that spans any number of underlying receives. A single
// receive timing out on its own deadline counts as "no message yet"; only
// exhaustion of the overall budget fails the wait. Zero timeout means the
// transport's default.
func (c *client) WaitResponse(ctx context.Context, check func(payload any) bool, timeout time.Duration) (any, error) {
	if check == nil {
		return nil, fmt.Errorf("response checker must not be nil")
	}
	if timeout <= 0 {
		timeout = c.transport.Timeout()
	}

	budget := timeout
	for budget > 0 {
		start := time.Now()
		payload, err := c.Receive(ctx, services.ReceiveOpts{})
		if err == nil {
			if check(payload) {
				return payload, nil
			}
		} else if !common.IsTimeout(err) {
			return nil, err
		}
		budget -= time.Since(start)
	}
	return nil, &common.TimeoutError{After: timeout}
}
