package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Resubmission engine knobs.
	MinConfidence    float64       `mapstructure:"MIN_CONFIDENCE"`
	MaxAttempts      int           `mapstructure:"MAX_ATTEMPTS"`
	WorkerCount      int           `mapstructure:"WORKER_COUNT"`
	BaseDelay        time.Duration `mapstructure:"BASE_DELAY"`
	MaxDelay         time.Duration `mapstructure:"MAX_DELAY"`
	SubmitTimeout    time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
	RecoveryInterval time.Duration `mapstructure:"RECOVERY_INTERVAL"`

	// External collaborators. Empty URLs select the in-process sandbox
	// implementations, which is the default for development.
	GatewayURL string `mapstructure:"GATEWAY_URL"`
	LookupURL  string `mapstructure:"LOOKUP_URL"`
	ScorerURL  string `mapstructure:"SCORER_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("MIN_CONFIDENCE", 0.75)
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("BASE_DELAY", "1s")
	v.SetDefault("MAX_DELAY", "1m")
	v.SetDefault("SUBMIT_TIMEOUT", "30s")
	v.SetDefault("RECOVERY_INTERVAL", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("MIN_CONFIDENCE")
	v.BindEnv("MAX_ATTEMPTS")
	v.BindEnv("WORKER_COUNT")
	v.BindEnv("BASE_DELAY")
	v.BindEnv("MAX_DELAY")
	v.BindEnv("SUBMIT_TIMEOUT")
	v.BindEnv("RECOVERY_INTERVAL")
	v.BindEnv("GATEWAY_URL")
	v.BindEnv("LOOKUP_URL")
	v.BindEnv("SCORER_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production requires a
// real database and a real payer gateway; the in-memory sandbox stores and the
// loopback gateway are development conveniences only.
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be within [0,1], got %v", c.MinConfidence)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("BASE_DELAY must be positive and MAX_DELAY >= BASE_DELAY (got %v, %v)", c.BaseDelay, c.MaxDelay)
	}
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.GatewayURL == "" {
			return fmt.Errorf("GATEWAY_URL is required in production")
		}
	}
	return nil
}
