// Package gemini wraps google/generative-ai-go for JSON-mode multimodal
// generation.
package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Image is inline image data for a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is one generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Images      []Image
	MaxTokens   int32
	Temperature *float32
	// JSON requests an application/json response.
	JSON bool
}

// Usage is the token accounting of one call.
type Usage struct {
	PromptTokens int
	OutputTokens int
	CachedTokens int
}

// Response is the generated text and its usage.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client is the Gemini operation used by the pipeline.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

type sdkClient struct {
	client *genai.Client
}

// NewClient dials the Gemini API. Extra options are appended after the key.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, eris.New("gemini: api key is empty")
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &sdkClient{client: cl}, nil
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (*Response, error) {
	m := c.client.GenerativeModel(req.Model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: req.Temperature}
	if req.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = &req.MaxTokens
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, &genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: generate content (%s)", req.Model)
	}
	return fromResponse(req.Model, resp), nil
}

func (c *sdkClient) Close() error {
	return c.client.Close()
}

func fromResponse(model string, resp *genai.GenerateContentResponse) *Response {
	out := &Response{Model: model, Text: collectText(resp)}
	if resp != nil && resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			CachedTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	return out
}

// collectText joins the text parts of the first candidate that has any.
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

// Retryable reports whether err carries a gRPC status worth retrying.
func Retryable(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
		codes.Internal, codes.Aborted:
		return true
	}
	return false
}
