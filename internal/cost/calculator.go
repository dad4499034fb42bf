// Package cost attributes dollar cost to model and maps API usage.
package cost

// Provider names a billed upstream.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// ModelRate is per-million-token pricing for one model.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates is the pricing table.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
	// DistancePerElement is the Distance Matrix price per origin/destination pair.
	DistancePerElement float64 `yaml:"distance_per_element" mapstructure:"distance_per_element"`
}

// Usage is the token count of one model call.
type Usage struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Calculator prices usage against Rates.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Model returns the USD cost of one call. Unknown models cost 0.
func (c *Calculator) Model(p Provider, model string, u Usage) float64 {
	var table map[string]ModelRate
	switch p {
	case ProviderAnthropic:
		table = c.rates.Anthropic
	case ProviderGemini:
		table = c.rates.Gemini
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}

	perTok := func(n int, price float64) float64 { return float64(n) / 1e6 * price }
	return perTok(u.Input, rate.Input) +
		perTok(u.Output, rate.Output) +
		perTok(u.CacheWrite, rate.Input*rate.CacheWriteMul) +
		perTok(u.CacheRead, rate.Input*rate.CacheReadMul)
}

// Distance returns the cost of a Distance Matrix lookup with n elements.
func (c *Calculator) Distance(elements int) float64 {
	return float64(elements) * c.rates.DistancePerElement
}

// DefaultRates returns list pricing for the models the service ships with.
func DefaultRates() Rates {
	claude := func(in, out float64) ModelRate {
		return ModelRate{Input: in, Output: out, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  claude(1.00, 5.00),
			"claude-sonnet-4-5-20250929": claude(3.00, 15.00),
			"claude-opus-4-1-20250805":   claude(15.00, 75.00),
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
		DistancePerElement: 0.005,
	}
}
