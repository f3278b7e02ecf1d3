package services

import (
	"context"
	"net/http"
	"time"

	"github.com/kychandar/gqlwsc/common"
	"github.com/kychandar/gqlwsc/ds"
)

// Transport delivers protocol messages over one WebSocket connection. The
// connection is exclusively owned by one client instance for its lifetime.
type Transport interface {
	Connect(ctx context.Context) error
	// Disconnect always succeeds locally, even if the socket is already
	// closed.
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, msg *ds.Msg) error
	// Receive returns the next message or a *common.TimeoutError once its
	// own configured receive deadline expires.
	Receive(ctx context.Context) (*ds.Msg, error)
	// WaitDisconnect suspends until the remote side closes the connection
	// or the timeout expires.
	WaitDisconnect(ctx context.Context, timeout time.Duration) error
	// Timeout is the transport's default receive budget.
	Timeout() time.Duration
}

// ReceiveOpts steers one dispatcher call. WaitID makes the call skip (and
// silently drop) every message whose id differs; AssertID and AssertType turn
// mismatches on the accepted message into errors.
type ReceiveOpts struct {
	WaitID     string
	AssertID   string
	AssertType string
}

// GraphQLWsClient is the client-side protocol engine. All operations execute
// one at a time from the caller's point of view: the engine is single-flow
// per connection and callers must not issue overlapping correlated receives
// for different ids — a mismatched reply arriving during a correlated wait is
// discarded, not buffered.
type GraphQLWsClient interface {
	Connected() bool
	State() common.ConnState

	Connect(ctx context.Context) error
	Init(ctx context.Context) error
	ConnectAndInit(ctx context.Context, connectOnly bool) error
	Finalize(ctx context.Context) error
	WaitDisconnect(ctx context.Context, timeout time.Duration) error

	Send(ctx context.Context, id ds.MsgID, msgType string, payload any) (string, error)
	Receive(ctx context.Context, opts ReceiveOpts) (any, error)
	ReceiveRaw(ctx context.Context, opts ReceiveOpts) (*ds.Msg, error)

	Start(ctx context.Context, query string, variables map[string]any) (string, error)
	Execute(ctx context.Context, query string, variables map[string]any) (any, error)
	Subscribe(ctx context.Context, query string, variables map[string]any, waitConfirmation bool) (string, error)
	Stop(ctx context.Context, id string) error

	WaitResponse(ctx context.Context, check func(payload any) bool, timeout time.Duration) (any, error)
}

type MetricsRegistry interface {
	GetHandler() http.Handler
	IncMsgSent(msgType string)
	IncMsgReceived(msgType string)
	IncKeepAliveDropped()
	IncMismatchDropped()
	IncGraphQLErrors()
	ObserveCorrelatedRoundTrip(start time.Time)
}
