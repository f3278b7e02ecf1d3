package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kychandar/gqlwsc/common"
	"github.com/kychandar/gqlwsc/ds"
	"github.com/kychandar/gqlwsc/mocks"
	"github.com/kychandar/gqlwsc/services"
	metricsregistry "github.com/kychandar/gqlwsc/services/metricsRegistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// step is one scripted transport receive: a message, an error, and an
// optional artificial latency.
type step struct {
	msg   *ds.Msg
	err   error
	delay time.Duration
}

// fakeTransport replays a scripted inbound stream and records every outbound
// message. Once the script is exhausted, Receive behaves like an idle
// connection: it waits briefly and reports its own receive timeout.
type fakeTransport struct {
	steps             []step
	pos               int
	sent              []*ds.Msg
	onSend            func(msg *ds.Msg)
	sendErr           error
	connectErr        error
	waitDisconnectErr error
	disconnects       int
	idleDelay         time.Duration
	timeout           time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		idleDelay: 10 * time.Millisecond,
		timeout:   100 * time.Millisecond,
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.disconnects++
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, msg *ds.Msg) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	if f.onSend != nil {
		f.onSend(msg)
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (*ds.Msg, error) {
	if f.pos >= len(f.steps) {
		time.Sleep(f.idleDelay)
		return nil, &common.TimeoutError{After: f.timeout}
	}
	s := f.steps[f.pos]
	f.pos++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.msg, nil
}

func (f *fakeTransport) WaitDisconnect(ctx context.Context, timeout time.Duration) error {
	return f.waitDisconnectErr
}

func (f *fakeTransport) Timeout() time.Duration {
	return f.timeout
}

func (f *fakeTransport) enqueue(msgs ...*ds.Msg) {
	for _, msg := range msgs {
		f.steps = append(f.steps, step{msg: msg})
	}
}

func wireMsg(id, msgType string, payload any) *ds.Msg {
	msgID := ds.NoID()
	if id != "" {
		msgID = ds.ID(id)
	}
	msg, _ := ds.New(msgID, msgType, payload)
	return msg
}

func keepAlive() *ds.Msg {
	return wireMsg("", common.MsgTypeKeepAlive, nil)
}

func newTestClient(t *testing.T) (services.GraphQLWsClient, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	return New(transport, metricsregistry.New("test")), transport
}

func TestConnect_Success(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, common.Connected, c.State())
}

func TestConnect_TransportFailure(t *testing.T) {
	c, transport := newTestClient(t)
	transport.connectErr = errors.New("refused")

	err := c.Connect(context.Background())
	var connErr *common.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, c.Connected())
}

func TestInit_AckReceived(t *testing.T) {
	c, transport := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	transport.enqueue(wireMsg("", common.MsgTypeConnectionAck, nil))

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, common.Initialized, c.State())

	require.Len(t, transport.sent, 1)
	init := transport.sent[0]
	assert.Nil(t, init.ID, "connection_init carries no id")
	assert.Equal(t, common.MsgTypeConnectionInit, init.GetType())
	assert.Equal(t, "", init.Payload)
}

func TestInit_WrongAckType(t *testing.T) {
	c, transport := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	transport.enqueue(wireMsg("", common.MsgTypeError, map[string]any{"message": "nope"}))

	err := c.Init(context.Background())
	var violation *common.ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, common.MsgTypeConnectionAck, violation.Expected)
	assert.NotEqual(t, common.Initialized, c.State())
}

func TestConnectAndInit_ConnectOnly(t *testing.T) {
	c, transport := newTestClient(t)

	require.NoError(t, c.ConnectAndInit(context.Background(), true))
	assert.True(t, c.Connected())
	assert.Equal(t, common.Connected, c.State())
	assert.Empty(t, transport.sent, "connect-only mode must not send connection_init")
}

func TestConnectAndInit_FullHandshake(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("", common.MsgTypeConnectionAck, nil))

	require.NoError(t, c.ConnectAndInit(context.Background(), false))
	assert.Equal(t, common.Initialized, c.State())
}

func TestReceive_KeepAlivesAreInvisible(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(
		keepAlive(),
		keepAlive(),
		wireMsg("op-1", common.MsgTypeData, map[string]any{"data": map[string]any{"field": float64(1)}}),
	)

	raw, err := c.ReceiveRaw(context.Background(), services.ReceiveOpts{WaitID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, "op-1", raw.GetID())
	assert.Equal(t, 3, transport.pos, "both keep-alives must have been consumed and dropped")
}

func TestReceive_UncorrelatedSkipsKeepAlives(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(
		keepAlive(),
		wireMsg("whatever", common.MsgTypeData, map[string]any{"data": "x"}),
	)

	payload, err := c.Receive(context.Background(), services.ReceiveOpts{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": "x"}, payload)
}

func TestReceive_MismatchedIDDiscardedNotBuffered(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(
		wireMsg("other", common.MsgTypeData, map[string]any{"data": "lost"}),
		wireMsg("mine", common.MsgTypeData, map[string]any{"data": "kept"}),
	)

	payload, err := c.Receive(context.Background(), services.ReceiveOpts{WaitID: "mine"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": "kept"}, payload)

	// The discarded reply for "other" must not come back.
	_, err = c.Receive(context.Background(), services.ReceiveOpts{WaitID: "other"})
	assert.True(t, common.IsTimeout(err), "discarded message must be gone for good, got %v", err)
}

func TestReceive_AssertTypeMismatch(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("op-1", common.MsgTypeError, nil))

	_, err := c.ReceiveRaw(context.Background(), services.ReceiveOpts{
		WaitID:     "op-1",
		AssertType: common.MsgTypeData,
	})
	var typeErr *common.UnexpectedTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, common.MsgTypeData, typeErr.Expected)
	assert.Equal(t, common.MsgTypeError, typeErr.Actual)
	assert.NotNil(t, typeErr.Message)
}

func TestReceive_AssertIDMismatch(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("op-2", common.MsgTypeData, nil))

	_, err := c.ReceiveRaw(context.Background(), services.ReceiveOpts{AssertID: "op-1"})
	var idErr *common.UnexpectedIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, "op-1", idErr.Expected)
	assert.Equal(t, "op-2", idErr.Actual)
}

func TestReceive_PayloadErrorsClassified(t *testing.T) {
	c, transport := newTestClient(t)
	errPayload := map[string]any{"errors": []any{map[string]any{"message": "boom"}}}
	transport.enqueue(wireMsg("op-1", common.MsgTypeData, errPayload))

	_, err := c.ReceiveRaw(context.Background(), services.ReceiveOpts{WaitID: "op-1"})
	var gqlErr *common.GraphQLResponseError
	require.ErrorAs(t, err, &gqlErr)

	raw, ok := gqlErr.Response.(*ds.Msg)
	require.True(t, ok, "error must carry the full response message")
	assert.Equal(t, "op-1", raw.GetID())
}

func TestReceive_EmptyErrorsIsNotAnError(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("op-1", common.MsgTypeData, map[string]any{"errors": []any{}, "data": "ok"}))

	payload, err := c.Receive(context.Background(), services.ReceiveOpts{WaitID: "op-1"})
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestStart_SendsDedentedQuery(t *testing.T) {
	c, transport := newTestClient(t)

	id, err := c.Start(context.Background(), "\n\t\tsubscription {\n\t\t\tonEvent { id }\n\t\t}\n", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, transport.sent, 1)
	sent := transport.sent[0]
	assert.Equal(t, common.MsgTypeStart, sent.GetType())
	assert.Equal(t, id, sent.GetID())

	payload, ok := sent.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "\nsubscription {\n\tonEvent { id }\n}\n", payload["query"])
	assert.Equal(t, map[string]any{}, payload["variables"], "nil variables become an empty object")
}

// scriptQueryReply wires the fake transport to answer every start request
// with keep-alive chatter, one data reply and the terminating complete.
func scriptQueryReply(transport *fakeTransport, payload any) {
	transport.onSend = func(msg *ds.Msg) {
		if msg.GetType() != common.MsgTypeStart {
			return
		}
		transport.enqueue(
			keepAlive(),
			wireMsg(msg.GetID(), common.MsgTypeData, payload),
			keepAlive(),
			wireMsg(msg.GetID(), common.MsgTypeComplete, nil),
		)
	}
}

func TestExecute_ReturnsResultAndDrainsComplete(t *testing.T) {
	c, transport := newTestClient(t)
	scriptQueryReply(transport, map[string]any{"data": map[string]any{"field": float64(1)}})

	payload, err := c.Execute(context.Background(), "{ field }", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": map[string]any{"field": float64(1)}}, payload)

	assert.Equal(t, len(transport.steps), transport.pos, "the complete message must be consumed")
	require.Len(t, transport.sent, 1, "execute sends exactly one start")
}

func TestExecute_GraphQLErrorRaisedAfterDrainingComplete(t *testing.T) {
	c, transport := newTestClient(t)
	scriptQueryReply(transport, map[string]any{"errors": []any{map[string]any{"message": "boom"}}})

	_, err := c.Execute(context.Background(), "{ field }", nil)
	var gqlErr *common.GraphQLResponseError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, len(transport.steps), transport.pos,
		"complete must be drained before the error reaches the caller")
}

func TestExecute_CleanupFailureNotSwallowed(t *testing.T) {
	c, transport := newTestClient(t)
	transport.onSend = func(msg *ds.Msg) {
		if msg.GetType() == common.MsgTypeStart {
			// Result arrives, complete never does.
			transport.enqueue(wireMsg(msg.GetID(), common.MsgTypeData, map[string]any{"data": "x"}))
		}
	}

	_, err := c.Execute(context.Background(), "{ field }", nil)
	require.Error(t, err)
	assert.True(t, common.IsTimeout(err))
	assert.Contains(t, err.Error(), "complete")
}

func TestExecute_PrimaryFailureWinsOverCleanupFailure(t *testing.T) {
	c, transport := newTestClient(t)
	transport.onSend = func(msg *ds.Msg) {
		if msg.GetType() == common.MsgTypeStart {
			transport.enqueue(wireMsg(msg.GetID(), common.MsgTypeError,
				map[string]any{"errors": []any{"bad request"}}))
		}
	}

	_, err := c.Execute(context.Background(), "{ field }", nil)
	var gqlErr *common.GraphQLResponseError
	require.ErrorAs(t, err, &gqlErr, "the primary failure must not be masked by the cleanup timeout")
}

func TestSubscribe_WaitsForConfirmation(t *testing.T) {
	c, transport := newTestClient(t)
	transport.onSend = func(msg *ds.Msg) {
		if msg.GetType() == common.MsgTypeStart {
			transport.enqueue(
				keepAlive(),
				wireMsg(msg.GetID(), common.MsgTypeData, map[string]any{"data": "confirmed"}),
			)
		}
	}

	id, err := c.Subscribe(context.Background(), "subscription { onEvent { id } }", nil, true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, len(transport.steps), transport.pos, "confirmation must be consumed before returning")
}

func TestSubscribe_NoConfirmationReturnsImmediately(t *testing.T) {
	c, transport := newTestClient(t)

	id, err := c.Subscribe(context.Background(), "subscription { onEvent { id } }", nil, false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 0, transport.pos, "no receive may happen without wait_confirmation")
	require.Len(t, transport.sent, 1)
}

func TestStop_SendsStopForID(t *testing.T) {
	c, transport := newTestClient(t)

	id, err := c.Subscribe(context.Background(), "subscription { onEvent { id } }", nil, false)
	require.NoError(t, err)

	require.NoError(t, c.Stop(context.Background(), id))
	require.Len(t, transport.sent, 2)
	stop := transport.sent[1]
	assert.Equal(t, common.MsgTypeStop, stop.GetType())
	assert.Equal(t, id, stop.GetID())
}

func TestFinalize_StopsLiveSubscriptionsAndDisconnects(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("", common.MsgTypeConnectionAck, nil))
	require.NoError(t, c.ConnectAndInit(context.Background(), false))

	id1, err := c.Subscribe(context.Background(), "subscription { a }", nil, false)
	require.NoError(t, err)
	id2, err := c.Subscribe(context.Background(), "subscription { b }", nil, false)
	require.NoError(t, err)

	require.NoError(t, c.Finalize(context.Background()))
	assert.Equal(t, common.Disconnected, c.State())
	assert.Equal(t, 1, transport.disconnects)

	stopped := map[string]bool{}
	for _, msg := range transport.sent {
		if msg.GetType() == common.MsgTypeStop {
			stopped[msg.GetID()] = true
		}
	}
	assert.True(t, stopped[id1])
	assert.True(t, stopped[id2])
}

func TestFinalize_SafeWhenNeverConnected(t *testing.T) {
	c, transport := newTestClient(t)

	require.NoError(t, c.Finalize(context.Background()))
	assert.Equal(t, common.Disconnected, c.State())
	assert.Equal(t, 1, transport.disconnects, "transport teardown is still attempted")
	assert.Empty(t, transport.sent)
}

func TestWaitDisconnect_ResetsState(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.WaitDisconnect(context.Background(), time.Second))
	assert.Equal(t, common.Disconnected, c.State())
}

func TestWaitDisconnect_TimeoutLeavesStateUnchanged(t *testing.T) {
	c, transport := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	transport.waitDisconnectErr = &common.TimeoutError{After: time.Second}

	err := c.WaitDisconnect(context.Background(), time.Second)
	assert.True(t, common.IsTimeout(err))
	assert.Equal(t, common.Connected, c.State(), "a timed-out wait must leave the client connected")
}

func TestWaitResponse_ReturnsFirstMatch(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(
		wireMsg("a", common.MsgTypeData, map[string]any{"progress": float64(10)}),
		keepAlive(),
		wireMsg("b", common.MsgTypeData, map[string]any{"progress": float64(100)}),
	)

	payload, err := c.WaitResponse(context.Background(), func(payload any) bool {
		m, ok := payload.(map[string]any)
		return ok && m["progress"] == float64(100)
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"progress": float64(100)}, payload)
}

func TestWaitResponse_BudgetSpansReceiveTimeouts(t *testing.T) {
	c, transport := newTestClient(t)
	// Two idle receive timeouts pass before the match arrives; they must be
	// swallowed, not propagated.
	transport.steps = append(transport.steps,
		step{err: &common.TimeoutError{After: transport.timeout}, delay: 20 * time.Millisecond},
		step{err: &common.TimeoutError{After: transport.timeout}, delay: 20 * time.Millisecond},
		step{msg: wireMsg("a", common.MsgTypeData, map[string]any{"done": true})},
	)

	payload, err := c.WaitResponse(context.Background(), func(payload any) bool {
		m, ok := payload.(map[string]any)
		return ok && m["done"] == true
	}, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestWaitResponse_TimesOutOnSchedule(t *testing.T) {
	c, transport := newTestClient(t)
	timeout := 200 * time.Millisecond
	// One non-matching message roughly every timeout/2.
	for i := 0; i < 10; i++ {
		transport.steps = append(transport.steps, step{
			msg:   wireMsg("a", common.MsgTypeData, map[string]any{"progress": float64(i)}),
			delay: 60 * time.Millisecond,
		})
	}

	start := time.Now()
	_, err := c.WaitResponse(context.Background(), func(any) bool { return false }, timeout)
	elapsed := time.Since(start)

	assert.True(t, common.IsTimeout(err), "expected timeout, got %v", err)
	assert.GreaterOrEqual(t, elapsed, timeout, "must never time out early")
	assert.Less(t, elapsed, 3*timeout, "must not run substantially past the budget")
}

func TestWaitResponse_PropagatesNonTimeoutErrors(t *testing.T) {
	c, transport := newTestClient(t)
	transport.steps = append(transport.steps, step{err: errors.New("connection reset")})

	_, err := c.WaitResponse(context.Background(), func(any) bool { return true }, time.Second)
	var connErr *common.ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestWaitResponse_NilCheckerRejected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.WaitResponse(context.Background(), nil, time.Second)
	assert.Error(t, err)
}

func TestWaitResponse_ZeroTimeoutUsesTransportDefault(t *testing.T) {
	c, transport := newTestClient(t)
	transport.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.WaitResponse(context.Background(), func(any) bool { return false }, 0)
	assert.True(t, common.IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), transport.timeout)
}

func TestClient_TransportCallForwarding(t *testing.T) {
	transport := &mocks.MockTransport{}
	transport.On("Connect", mock.Anything).Return(nil)
	transport.On("Disconnect", mock.Anything).Return(nil)

	c := New(transport, metricsregistry.New("test"))
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Finalize(context.Background()))
	transport.AssertExpectations(t)
}

func TestScenario_FullQueryFlow(t *testing.T) {
	c, transport := newTestClient(t)
	transport.enqueue(wireMsg("", common.MsgTypeConnectionAck, nil))
	scriptQueryReply(transport, map[string]any{"data": map[string]any{"field": float64(1)}})

	require.NoError(t, c.ConnectAndInit(context.Background(), false))

	payload, err := c.Execute(context.Background(), "{ field }", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": map[string]any{"field": float64(1)}}, payload)

	require.NoError(t, c.Finalize(context.Background()))
	assert.False(t, c.Connected())
}
