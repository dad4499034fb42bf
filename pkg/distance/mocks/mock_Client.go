// Package mocks provides test doubles for the distance client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	distance "github.com/owoblo/quote2move/pkg/distance"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Lookup provides a mock function with given fields: ctx, origin, destination
func (_m *MockClient) Lookup(ctx context.Context, origin string, destination string) (*distance.Result, error) {
	ret := _m.Called(ctx, origin, destination)

	if len(ret) == 0 {
		panic("no return value specified for Lookup")
	}

	var r0 *distance.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*distance.Result, error)); ok {
		return rf(ctx, origin, destination)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *distance.Result); ok {
		r0 = rf(ctx, origin, destination)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*distance.Result)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, origin, destination)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
