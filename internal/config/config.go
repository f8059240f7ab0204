package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/usagegov/internal/domain/pricing"
)

// Config holds the usage governor configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Governor GovernorConfig `yaml:"governor"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for the read surface.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	OpTimeoutMs      int      `yaml:"op_timeout_ms"` // per-operation bound before fallback
}

// StorageConfig holds key layout settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// GovernorConfig holds metering, budget, and alerting settings.
type GovernorConfig struct {
	TotalBudgetUSD float64                  `yaml:"total_budget_usd"`
	Thresholds     ThresholdConfig          `yaml:"thresholds"`
	DailyTTLDays   int                      `yaml:"daily_ttl_days"`
	MonthlyTTLDays int                      `yaml:"monthly_ttl_days"`
	Services       map[string]ServiceConfig `yaml:"services"`
}

// ThresholdConfig holds percent-of-limit alert ratios.
type ThresholdConfig struct {
	Warning  float64 `yaml:"warning"`  // default 0.70
	Critical float64 `yaml:"critical"` // default 0.90
}

// ServiceConfig describes one metered third-party service.
type ServiceConfig struct {
	Limit          int64            `yaml:"limit"` // advisory unit cap per period; 0 = uncapped
	EndpointLimits map[string]int64 `yaml:"endpoint_limits"`
	BudgetUSD      float64          `yaml:"budget_usd"`
	Pricing        PricingConfig    `yaml:"pricing"`
}

// Pricing shape names.
const (
	ShapeFreeCapped    = "free_capped"
	ShapeTokenMetered  = "token_metered"
	ShapeVolumeMetered = "volume_metered"
	ShapeEventTiered   = "event_tiered"
)

// PricingConfig selects a pricing shape and its parameters. Exactly one of
// the shape sections must match Shape.
type PricingConfig struct {
	Shape         string               `yaml:"shape"`
	FreeCapped    *FreeCappedConfig    `yaml:"free_capped"`
	TokenMetered  *TokenMeteredConfig  `yaml:"token_metered"`
	VolumeMetered *VolumeMeteredConfig `yaml:"volume_metered"`
	EventTiered   *EventTieredConfig   `yaml:"event_tiered"`
}

// FreeCappedConfig parameterizes the free-capped shape.
type FreeCappedConfig struct {
	FreeUnits       int64   `yaml:"free_units"`
	FlatFeeUSD      float64 `yaml:"flat_fee_usd"`
	OverageChunk    int64   `yaml:"overage_chunk"`
	OveragePerChunk float64 `yaml:"overage_per_chunk_usd"`
	PaidTier        string  `yaml:"paid_tier"`
}

// TokenMeteredConfig parameterizes the token-metered shape.
type TokenMeteredConfig struct {
	Per1KTokensUSD float64 `yaml:"per_1k_tokens_usd"`
	PerRequestUSD  float64 `yaml:"per_request_usd"`
	CostTriggerUSD float64 `yaml:"cost_trigger_usd"`
}

// VolumeMeteredConfig parameterizes the volume-metered shape.
type VolumeMeteredConfig struct {
	FreeDailyCommands int64   `yaml:"free_daily_commands"`
	Per100KUSD        float64 `yaml:"per_100k_usd"`
}

// EventTieredConfig parameterizes the event-tiered shape.
type EventTieredConfig struct {
	FreeEvents   int64   `yaml:"free_events"`
	TeamEvents   int64   `yaml:"team_events"`
	TeamPriceUSD float64 `yaml:"team_price_usd"`
	EventTrigger int64   `yaml:"event_trigger"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.OpTimeoutMs <= 0 {
		c.Database.OpTimeoutMs = 500
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "usagegov:"
	}
	if c.Governor.Thresholds.Warning <= 0 {
		c.Governor.Thresholds.Warning = 0.70
	}
	if c.Governor.Thresholds.Critical <= 0 {
		c.Governor.Thresholds.Critical = 0.90
	}
	if c.Governor.DailyTTLDays <= 0 {
		c.Governor.DailyTTLDays = 90
	}
	if c.Governor.MonthlyTTLDays <= 0 {
		c.Governor.MonthlyTTLDays = 365
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "memory":
		// no connection settings
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	if c.Governor.Thresholds.Warning >= c.Governor.Thresholds.Critical {
		return fmt.Errorf("governor.thresholds.warning (%v) must be below critical (%v)",
			c.Governor.Thresholds.Warning, c.Governor.Thresholds.Critical)
	}
	for name, svc := range c.Governor.Services {
		if _, err := svc.PricingModel(); err != nil {
			return fmt.Errorf("governor.services.%s: %w", name, err)
		}
	}
	return nil
}

// PricingModel builds the domain pricing model for the service.
func (s ServiceConfig) PricingModel() (pricing.Model, error) {
	p := s.Pricing
	switch p.Shape {
	case ShapeFreeCapped:
		if p.FreeCapped == nil {
			return nil, fmt.Errorf("pricing.free_capped section is required for shape %q", p.Shape)
		}
		tier := p.FreeCapped.PaidTier
		if tier == "" {
			tier = "pro"
		}
		return pricing.FreeCapped{
			FreeUnits:    p.FreeCapped.FreeUnits,
			FlatFeeUSD:   p.FreeCapped.FlatFeeUSD,
			OverageChunk: p.FreeCapped.OverageChunk,
			OverageUSD:   p.FreeCapped.OveragePerChunk,
			PaidTier:     tier,
		}, nil
	case ShapeTokenMetered:
		if p.TokenMetered == nil {
			return nil, fmt.Errorf("pricing.token_metered section is required for shape %q", p.Shape)
		}
		return pricing.TokenMetered{
			Per1KTokensUSD: p.TokenMetered.Per1KTokensUSD,
			PerRequestUSD:  p.TokenMetered.PerRequestUSD,
			CostTriggerUSD: p.TokenMetered.CostTriggerUSD,
		}, nil
	case ShapeVolumeMetered:
		if p.VolumeMetered == nil {
			return nil, fmt.Errorf("pricing.volume_metered section is required for shape %q", p.Shape)
		}
		return pricing.VolumeMetered{
			FreeDailyCommands: p.VolumeMetered.FreeDailyCommands,
			Per100KUSD:        p.VolumeMetered.Per100KUSD,
		}, nil
	case ShapeEventTiered:
		if p.EventTiered == nil {
			return nil, fmt.Errorf("pricing.event_tiered section is required for shape %q", p.Shape)
		}
		return pricing.EventTiered{
			FreeEvents:   p.EventTiered.FreeEvents,
			TeamEvents:   p.EventTiered.TeamEvents,
			TeamPriceUSD: p.EventTiered.TeamPriceUSD,
			EventTrigger: p.EventTiered.EventTrigger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown pricing shape %q", p.Shape)
	}
}

// LimitFor resolves the advisory unit limit for a service+endpoint.
// An endpoint-specific limit overrides the service-wide one; 0 means uncapped.
func (c *Config) LimitFor(service, endpoint string) int64 {
	svc, ok := c.Governor.Services[service]
	if !ok {
		return 0
	}
	if l, ok := svc.EndpointLimits[endpoint]; ok {
		return l
	}
	return svc.Limit
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
