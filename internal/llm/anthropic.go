package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/cost"
	"github.com/owoblo/quote2move/internal/resilience"
	"github.com/owoblo/quote2move/pkg/anthropic"
)

const defaultMaxTokens = 4096

type anthropicClient struct {
	api   anthropic.Client
	model string
	calc  *cost.Calculator
}

// NewAnthropic adapts an Anthropic client. System prompts are sent as cached
// blocks and image URLs as URL image sources.
func NewAnthropic(api anthropic.Client, model string, calc *cost.Calculator) Client {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &anthropicClient{api: api, model: model, calc: calc}
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := c.api.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Temperature: req.Temperature,
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   req.Prompt,
			ImageURLs: req.ImageURLs,
		}},
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.TransientStatus(code) {
			return nil, resilience.Transient(err, code)
		}
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.Errorf("llm: empty anthropic reply (stop_reason=%s)", resp.StopReason)
	}

	usage := cost.Usage{
		Input:      int(resp.Usage.InputTokens),
		Output:     int(resp.Usage.OutputTokens),
		CacheWrite: int(resp.Usage.CacheCreationInputTokens),
		CacheRead:  int(resp.Usage.CacheReadInputTokens),
	}
	return &Response{
		Text:     text,
		Provider: cost.ProviderAnthropic,
		Model:    c.model,
		Usage:    usage,
		CostUSD:  c.calc.Model(cost.ProviderAnthropic, c.model, usage),
	}, nil
}
