package llm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/owoblo/quote2move/pkg/anthropic"
	"github.com/owoblo/quote2move/pkg/gemini"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.Response), args.Error(1)
}

func (m *mockGemini) Close() error { return nil }
