// Package config loads service configuration from config.yaml and QUOTE_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/owoblo/quote2move/internal/cost"
	"github.com/owoblo/quote2move/internal/db"
)

// Config is the root configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Vision     VisionConfig     `yaml:"vision" mapstructure:"vision"`
	Estimator  EstimatorConfig  `yaml:"estimator" mapstructure:"estimator"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Upsells    UpsellConfig     `yaml:"upsells" mapstructure:"upsells"`
	Distance   DistanceConfig   `yaml:"distance" mapstructure:"distance"`
	Costs      cost.Rates       `yaml:"costs" mapstructure:"costs"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	MaxImageBytes int64  `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
}

// VisionConfig configures room classification and per-room detection.
type VisionConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	DetectConcurrency int     `yaml:"detect_concurrency" mapstructure:"detect_concurrency"`
}

// EstimatorConfig configures the move-time estimation call.
type EstimatorConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMins  int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	FallbackCrew  int     `yaml:"fallback_crew" mapstructure:"fallback_crew"`
	FallbackHours float64 `yaml:"fallback_hours" mapstructure:"fallback_hours"`
}

// ResilienceConfig tunes retries, breakers and rate limits for model calls.
type ResilienceConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier         float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	AttemptTimeoutSecs int     `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs   int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst              int     `yaml:"burst" mapstructure:"burst"`
}

// SpecialtyRate is the surcharge and extra handling time of one specialty class.
type SpecialtyRate struct {
	Surcharge float64 `yaml:"surcharge" mapstructure:"surcharge"`
	Minutes   float64 `yaml:"minutes" mapstructure:"minutes"`
}

// PricingConfig is the move pricing policy. Map keys are strings so they
// survive YAML and env decoding unchanged: crew sizes ("2"), crew-by-truck
// combinations ("4x2") and specialty classes ("piano_grand").
type PricingConfig struct {
	TaxRate              float64                  `yaml:"tax_rate" mapstructure:"tax_rate"`
	MinHours             float64                  `yaml:"min_hours" mapstructure:"min_hours"`
	CrewRates            map[string]float64       `yaml:"crew_rates" mapstructure:"crew_rates"`
	MultiTruckRates      map[string]float64       `yaml:"multi_truck_rates" mapstructure:"multi_truck_rates"`
	CoordinationOverhead float64                  `yaml:"coordination_overhead" mapstructure:"coordination_overhead"`
	Efficiency           map[string]float64       `yaml:"efficiency" mapstructure:"efficiency"`
	TruckCapacity        float64                  `yaml:"truck_capacity" mapstructure:"truck_capacity"`
	SetupMinsPerTruck    float64                  `yaml:"setup_mins_per_truck" mapstructure:"setup_mins_per_truck"`
	ExtraTruckSetupMins  float64                  `yaml:"extra_truck_setup_mins" mapstructure:"extra_truck_setup_mins"`
	StandardBuffer       float64                  `yaml:"standard_buffer" mapstructure:"standard_buffer"`
	ConservativeBuffer   float64                  `yaml:"conservative_buffer" mapstructure:"conservative_buffer"`
	StairsPerFloor       float64                  `yaml:"stairs_per_floor" mapstructure:"stairs_per_floor"`
	StairsCap            float64                  `yaml:"stairs_cap" mapstructure:"stairs_cap"`
	ElevatorPerEnd       float64                  `yaml:"elevator_per_end" mapstructure:"elevator_per_end"`
	DifficultParking     float64                  `yaml:"difficult_parking" mapstructure:"difficult_parking"`
	FloorMismatch        float64                  `yaml:"floor_mismatch" mapstructure:"floor_mismatch"`
	Specialty            map[string]SpecialtyRate `yaml:"specialty" mapstructure:"specialty"`
}

// UpsellConfig prices the base upsell catalog and points at tenant add-ons.
type UpsellConfig struct {
	CustomFile       string  `yaml:"custom_file" mapstructure:"custom_file"`
	PackingPerItem   float64 `yaml:"packing_per_item" mapstructure:"packing_per_item"`
	UnpackingPerItem float64 `yaml:"unpacking_per_item" mapstructure:"unpacking_per_item"`
	BoxesPerItem     float64 `yaml:"boxes_per_item" mapstructure:"boxes_per_item"`
	PackingThreshold int     `yaml:"packing_threshold" mapstructure:"packing_threshold"`
	PremiumThreshold float64 `yaml:"premium_threshold" mapstructure:"premium_threshold"`
	DeluxeThreshold  float64 `yaml:"deluxe_threshold" mapstructure:"deluxe_threshold"`
	PremiumPrice     float64 `yaml:"premium_price" mapstructure:"premium_price"`
	DeluxePrice      float64 `yaml:"deluxe_price" mapstructure:"deluxe_price"`
}

// DistanceConfig configures the Google Distance Matrix client.
type DistanceConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// StoreConfig selects the run log and estimate cache backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 180)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quote2move.db")

	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.max_image_bytes", 20<<20)

	v.SetDefault("vision.provider", "anthropic")
	v.SetDefault("vision.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("vision.max_tokens", 4096)
	v.SetDefault("vision.temperature", 0.0)
	v.SetDefault("vision.detect_concurrency", 4)

	v.SetDefault("estimator.provider", "anthropic")
	v.SetDefault("estimator.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("estimator.max_tokens", 2048)
	v.SetDefault("estimator.temperature", 0.2)
	v.SetDefault("estimator.timeout_secs", 45)
	v.SetDefault("estimator.cache_ttl_mins", 60)
	v.SetDefault("estimator.fallback_crew", 2)
	v.SetDefault("estimator.fallback_hours", 3.0)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 20000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.attempt_timeout_secs", 60)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_reset_secs", 30)
	v.SetDefault("resilience.rate_per_sec", 5.0)
	v.SetDefault("resilience.burst", 5)

	v.SetDefault("pricing.tax_rate", 0.13)
	v.SetDefault("pricing.min_hours", 3.0)
	v.SetDefault("pricing.crew_rates", map[string]float64{"2": 150, "3": 230, "4": 250, "5": 360, "6": 400})
	v.SetDefault("pricing.multi_truck_rates", map[string]float64{"4x2": 330})
	v.SetDefault("pricing.coordination_overhead", 40.0)
	v.SetDefault("pricing.efficiency", map[string]float64{"2": 0.65, "3": 1.0, "4": 1.3, "5": 1.5})
	v.SetDefault("pricing.truck_capacity", 1700.0)
	v.SetDefault("pricing.setup_mins_per_truck", 15.0)
	v.SetDefault("pricing.extra_truck_setup_mins", 20.0)
	v.SetDefault("pricing.standard_buffer", 0.10)
	v.SetDefault("pricing.conservative_buffer", 0.20)
	v.SetDefault("pricing.stairs_per_floor", 0.25)
	v.SetDefault("pricing.stairs_cap", 1.0)
	v.SetDefault("pricing.elevator_per_end", 0.15)
	v.SetDefault("pricing.difficult_parking", 0.20)
	v.SetDefault("pricing.floor_mismatch", 0.10)
	v.SetDefault("pricing.specialty", map[string]any{
		"piano_upright": map[string]any{"surcharge": 225, "minutes": 75},
		"piano_grand":   map[string]any{"surcharge": 400, "minutes": 105},
		"safe_small":    map[string]any{"surcharge": 100, "minutes": 30},
		"safe_large":    map[string]any{"surcharge": 250, "minutes": 60},
		"pool_table":    map[string]any{"surcharge": 300, "minutes": 105},
		"gym":           map[string]any{"surcharge": 125, "minutes": 45},
		"tv_large":      map[string]any{"surcharge": 40, "minutes": 0},
		"appliance":     map[string]any{"surcharge": 75, "minutes": 30},
		"hoisting":      map[string]any{"surcharge": 100, "minutes": 45},
	})

	v.SetDefault("upsells.custom_file", "")
	v.SetDefault("upsells.packing_per_item", 10.0)
	v.SetDefault("upsells.unpacking_per_item", 6.0)
	v.SetDefault("upsells.boxes_per_item", 4.0)
	v.SetDefault("upsells.packing_threshold", 25)
	v.SetDefault("upsells.premium_threshold", 1000.0)
	v.SetDefault("upsells.deluxe_threshold", 2500.0)
	v.SetDefault("upsells.premium_price", 100.0)
	v.SetDefault("upsells.deluxe_price", 200.0)

	v.SetDefault("distance.base_url", "https://maps.googleapis.com/maps/api/distancematrix/json")
	v.SetDefault("distance.timeout_secs", 10)
	v.SetDefault("distance.rate_per_sec", 10.0)
}

// Load reads config.yaml from the working directory (optional) and applies
// QUOTE_* environment overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	defaults := cost.DefaultRates()
	if len(cfg.Costs.Anthropic) == 0 {
		cfg.Costs.Anthropic = defaults.Anthropic
	}
	if len(cfg.Costs.Gemini) == 0 {
		cfg.Costs.Gemini = defaults.Gemini
	}
	if cfg.Costs.DistancePerElement == 0 {
		cfg.Costs.DistancePerElement = defaults.DistancePerElement
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "serve",
// "detect", "estimate" or "trucks".
func (c *Config) Validate(mode string) error {
	var errs []string

	provider := func(name, value string) {
		switch value {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for "+name)
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required for "+name)
			}
		default:
			errs = append(errs, fmt.Sprintf("%s must be anthropic or gemini, got %q", name, value))
		}
	}

	switch mode {
	case "serve":
		provider("vision.provider", c.Vision.Provider)
		provider("estimator.provider", c.Estimator.Provider)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "detect":
		provider("vision.provider", c.Vision.Provider)
	case "estimate":
		provider("estimator.provider", c.Estimator.Provider)
	case "trucks", "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "trucks" {
		switch c.Store.Driver {
		case "sqlite", "memory":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	if c.Vision.DetectConcurrency < 1 || c.Vision.DetectConcurrency > 16 {
		errs = append(errs, "vision.detect_concurrency must be between 1 and 16")
	}
	if c.Pricing.TaxRate < 0 || c.Pricing.TaxRate > 1 {
		errs = append(errs, "pricing.tax_rate must be between 0 and 1")
	}
	if m := c.Pricing.ExtraTruckSetupMins; m < 15 || m > 30 {
		errs = append(errs, "pricing.extra_truck_setup_mins must be between 15 and 30")
	}
	if c.Pricing.StandardBuffer < 0 || c.Pricing.ConservativeBuffer < c.Pricing.StandardBuffer {
		errs = append(errs, "pricing.conservative_buffer must be >= standard_buffer >= 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger builds the global zap logger from cfg.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
