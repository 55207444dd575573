package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// Config holds the full process configuration. Operator-tunable values
// that may change while the bot runs live in the settings table instead.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Images     ImagesConfig     `yaml:"images" mapstructure:"images"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// OllamaConfig holds the local LLM server settings.
type OllamaConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	Model             string `yaml:"model" mapstructure:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	HealthTimeoutSecs int    `yaml:"health_timeout_secs" mapstructure:"health_timeout_secs"`
}

// AnthropicConfig holds hosted LLM settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AIConfig selects and guards the AI backend.
type AIConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"` // ollama, anthropic or none
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	LookupTTLHours   int    `yaml:"lookup_ttl_hours" mapstructure:"lookup_ttl_hours"`
	GeneratedTTLDays int    `yaml:"generated_ttl_days" mapstructure:"generated_ttl_days"`
	PerMinute        int    `yaml:"per_minute" mapstructure:"per_minute"`
	PerHour          int    `yaml:"per_hour" mapstructure:"per_hour"`
}

// SourcesConfig configures the external source clients.
type SourcesConfig struct {
	UserAgent        string                             `yaml:"user_agent" mapstructure:"user_agent"`
	WikipediaAPIURL  string                             `yaml:"wikipedia_api_url" mapstructure:"wikipedia_api_url"`
	WikipediaRESTURL string                             `yaml:"wikipedia_rest_url" mapstructure:"wikipedia_rest_url"`
	CommonsURL       string                             `yaml:"commons_url" mapstructure:"commons_url"`
	CagematchURL     string                             `yaml:"cagematch_url" mapstructure:"cagematch_url"`
	RequestsPerSec   float64                            `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	DefaultBudget    resilience.BudgetLimits            `yaml:"default_budget" mapstructure:"default_budget"`
	Budgets          map[string]resilience.BudgetLimits `yaml:"budgets" mapstructure:"budgets"`
}

// ImagesConfig configures image download and storage.
type ImagesConfig struct {
	MaxBytes      int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	HostRPS       float64 `yaml:"host_rps" mapstructure:"host_rps"`
	StorageDir    string  `yaml:"storage_dir" mapstructure:"storage_dir"`
	PublicBaseURL string  `yaml:"public_base_url" mapstructure:"public_base_url"`
}

// ScheduleConfig holds cron specs per cycle. An empty spec disables the
// cycle in serve mode.
type ScheduleConfig struct {
	Discovery    string `yaml:"discovery" mapstructure:"discovery"`
	Enrichment   string `yaml:"enrichment" mapstructure:"enrichment"`
	Cleanup      string `yaml:"cleanup" mapstructure:"cleanup"`
	Verification string `yaml:"verification" mapstructure:"verification"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold  float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinOperations       int     `yaml:"min_operations" mapstructure:"min_operations"`
	RealertMinutes      int     `yaml:"realert_minutes" mapstructure:"realert_minutes"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WRESTLEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "wrestlebot.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("ollama.timeout_secs", 60)
	v.SetDefault("ollama.health_timeout_secs", 5)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ai.backend", "ollama")
	v.SetDefault("ai.failure_threshold", 3)
	v.SetDefault("ai.cooldown_secs", 300)
	v.SetDefault("ai.lookup_ttl_hours", 24)
	v.SetDefault("ai.generated_ttl_days", 7)
	v.SetDefault("ai.per_minute", 10)
	v.SetDefault("ai.per_hour", 200)
	v.SetDefault("sources.user_agent", "wrestlebot/1.0 (knowledge base curation)")
	v.SetDefault("sources.wikipedia_api_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("sources.wikipedia_rest_url", "https://en.wikipedia.org/api/rest_v1")
	v.SetDefault("sources.commons_url", "https://commons.wikimedia.org/w/api.php")
	v.SetDefault("sources.cagematch_url", "https://www.cagematch.net")
	v.SetDefault("sources.requests_per_sec", 1.0)
	v.SetDefault("sources.default_budget.per_minute", 30)
	v.SetDefault("sources.default_budget.per_hour", 500)
	v.SetDefault("sources.default_budget.per_day", 5000)
	v.SetDefault("sources.budgets", map[string]any{
		"cagematch": map[string]any{"per_minute": 10, "per_hour": 100, "per_day": 500},
	})
	v.SetDefault("images.max_bytes", 10<<20)
	v.SetDefault("images.timeout_secs", 30)
	v.SetDefault("images.host_rps", 2.0)
	v.SetDefault("images.storage_dir", "images")
	v.SetDefault("images.public_base_url", "/images")
	v.SetDefault("schedule.discovery", "@every 30m")
	v.SetDefault("schedule.enrichment", "@every 15m")
	v.SetDefault("schedule.cleanup", "0 3 * * *")
	v.SetDefault("schedule.verification", "@every 6h")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_operations", 5)
	v.SetDefault("monitoring.realert_minutes", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values viper cannot constrain. Mode is "cli" for one-shot
// commands or "serve" for the long-running server.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	switch c.AI.Backend {
	case "ollama", "none":
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for the anthropic backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("ai.backend %q is not ollama, anthropic or none", c.AI.Backend))
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.ErrorRateThreshold < 0 || c.Monitoring.ErrorRateThreshold > 1 {
			errs = append(errs, "monitoring.error_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
