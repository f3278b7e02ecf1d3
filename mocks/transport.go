package mocks

import (
	"context"
	"time"

	"github.com/kychandar/gqlwsc/ds"
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Send(ctx context.Context, msg *ds.Msg) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockTransport) Receive(ctx context.Context) (*ds.Msg, error) {
	args := m.Called(ctx)
	if msg := args.Get(0); msg != nil {
		return msg.(*ds.Msg), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransport) WaitDisconnect(ctx context.Context, timeout time.Duration) error {
	args := m.Called(ctx, timeout)
	return args.Error(0)
}

func (m *MockTransport) Timeout() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}
