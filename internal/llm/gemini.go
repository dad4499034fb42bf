package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/cost"
	"github.com/owoblo/quote2move/internal/resilience"
	"github.com/owoblo/quote2move/pkg/gemini"
)

type geminiClient struct {
	api     gemini.Client
	fetcher *gemini.Fetcher
	model   string
	calc    *cost.Calculator
}

// NewGemini adapts a Gemini client. Gemini takes inline image bytes, so photo
// URLs are downloaded with fetcher first.
func NewGemini(api gemini.Client, fetcher *gemini.Fetcher, model string, calc *cost.Calculator) Client {
	if fetcher == nil {
		fetcher = gemini.NewFetcher(nil, 0)
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &geminiClient{api: api, fetcher: fetcher, model: model, calc: calc}
}

func (c *geminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	images, err := c.fetcher.FetchAll(ctx, req.ImageURLs)
	if err != nil {
		return nil, eris.Wrap(err, "llm: fetch images for gemini")
	}

	var temp *float32
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		temp = &t
	}

	resp, err := c.api.Generate(ctx, gemini.Request{
		Model:       c.model,
		System:      req.System,
		Prompt:      req.Prompt,
		Images:      images,
		MaxTokens:   int32(req.MaxTokens),
		Temperature: temp,
		JSON:        true,
	})
	if err != nil {
		if gemini.Retryable(err) {
			return nil, resilience.Transient(err, 0)
		}
		return nil, err
	}
	if resp.Text == "" {
		return nil, eris.New("llm: empty gemini reply")
	}

	usage := cost.Usage{
		Input:     resp.Usage.PromptTokens - resp.Usage.CachedTokens,
		Output:    resp.Usage.OutputTokens,
		CacheRead: resp.Usage.CachedTokens,
	}
	return &Response{
		Text:     resp.Text,
		Provider: cost.ProviderGemini,
		Model:    c.model,
		Usage:    usage,
		CostUSD:  c.calc.Model(cost.ProviderGemini, c.model, usage),
	}, nil
}
