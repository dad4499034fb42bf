// Package llm is the provider-neutral model client used by every AI stage.
package llm

import (
	"context"

	"github.com/owoblo/quote2move/internal/cost"
)

// Request is one model call. ImageURLs are attached to the user turn.
type Request struct {
	Stage       string
	System      string
	Prompt      string
	ImageURLs   []string
	MaxTokens   int
	Temperature *float64
}

// Response is the text reply and what it cost.
type Response struct {
	Text     string
	Provider cost.Provider
	Model    string
	Usage    cost.Usage
	CostUSD  float64
}

// Client completes a Request.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Temperature returns a pointer to t.
func Temperature(t float64) *float64 { return &t }
