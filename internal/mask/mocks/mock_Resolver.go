// Package mocks provides test doubles for the mask resolver.
package mocks

import (
	"context"

	mask "github.com/sells-group/mapwarper-cli/internal/mask"
	mock "github.com/stretchr/testify/mock"
)

// MockResolver is a mock type for the Resolver interface.
type MockResolver struct {
	mock.Mock
}

// Resolve provides a mock function with given fields: ctx, mapID, transform
func (_m *MockResolver) Resolve(ctx context.Context, mapID int64, transform string) (mask.Result, error) {
	ret := _m.Called(ctx, mapID, transform)

	if len(ret) == 0 {
		panic("no return value specified for Resolve")
	}

	var r0 mask.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int64, string) (mask.Result, error)); ok {
		return rf(ctx, mapID, transform)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int64, string) mask.Result); ok {
		r0 = rf(ctx, mapID, transform)
	} else {
		r0 = ret.Get(0).(mask.Result)
	}

	if rf, ok := ret.Get(1).(func(context.Context, int64, string) error); ok {
		r1 = rf(ctx, mapID, transform)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockResolver creates a new instance of MockResolver.
func NewMockResolver(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResolver {
	mock := &MockResolver{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
