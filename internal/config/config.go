package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	AthenaBaseURL      string        `mapstructure:"ATHENA_BASE_URL"`
	AthenaAuthorizeURL string        `mapstructure:"ATHENA_AUTHORIZE_URL"`
	AthenaTokenURL     string        `mapstructure:"ATHENA_TOKEN_URL"`
	AthenaClientID     string        `mapstructure:"ATHENA_CLIENT_ID"`
	AthenaClientSecret string        `mapstructure:"ATHENA_CLIENT_SECRET"`
	AthenaRedirectURI  string        `mapstructure:"ATHENA_REDIRECT_URI"`
	AthenaTimeout      time.Duration `mapstructure:"ATHENA_TIMEOUT"`
	AthenaRateLimit    float64       `mapstructure:"ATHENA_RATE_LIMIT"`
	AthenaRateBurst    int           `mapstructure:"ATHENA_RATE_BURST"`
	AthenaMaxRetries   int           `mapstructure:"ATHENA_MAX_RETRIES"`
	OAuthStateKey      string        `mapstructure:"OAUTH_STATE_KEY"`

	ScorePolicy         string   `mapstructure:"SCORE_POLICY"`
	DefaultSubtypes     []string `mapstructure:"DEFAULT_SUBTYPES"`
	ImagingPositiveOnly bool     `mapstructure:"IMAGING_POSITIVE_ONLY"`
	LegacyBasis         bool     `mapstructure:"LEGACY_BASIS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV",
	"ATHENA_BASE_URL", "ATHENA_AUTHORIZE_URL", "ATHENA_TOKEN_URL",
	"ATHENA_CLIENT_ID", "ATHENA_CLIENT_SECRET", "ATHENA_REDIRECT_URI",
	"ATHENA_TIMEOUT", "ATHENA_RATE_LIMIT", "ATHENA_RATE_BURST", "ATHENA_MAX_RETRIES",
	"OAUTH_STATE_KEY",
	"SCORE_POLICY", "DEFAULT_SUBTYPES", "IMAGING_POSITIVE_ONLY", "LEGACY_BASIS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("ATHENA_BASE_URL", "https://api.athenahealth.com")
	v.SetDefault("ATHENA_TIMEOUT", "30s")
	v.SetDefault("ATHENA_RATE_LIMIT", 10)
	v.SetDefault("ATHENA_RATE_BURST", 5)
	v.SetDefault("ATHENA_MAX_RETRIES", 3)
	v.SetDefault("SCORE_POLICY", risk.OrchestrationPolicy.Name)
	v.SetDefault("DEFAULT_SUBTYPES", "Soft Tissue Sarcoma,Osteosarcoma")
	v.SetDefault("IMAGING_POSITIVE_ONLY", false)
	v.SetDefault("LEGACY_BASIS", false)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind explicitly so Unmarshal sees keys that have no default.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.DefaultSubtypes = splitList(cfg.DefaultSubtypes)

	base := strings.TrimRight(cfg.AthenaBaseURL, "/")
	if cfg.AthenaAuthorizeURL == "" {
		cfg.AthenaAuthorizeURL = base + "/oauth/authorize"
	}
	if cfg.AthenaTokenURL == "" {
		cfg.AthenaTokenURL = base + "/oauth/token"
	}

	return cfg, nil
}

// splitList trims entries and drops empty ones, accepting either a single
// comma-separated value or an already split list.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ArchiveEnabled reports whether assessments are persisted to Postgres.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

// Policy resolves SCORE_POLICY.
func (c *Config) Policy() (risk.Policy, error) {
	return risk.PolicyByName(c.ScorePolicy)
}

// Validate checks that the configuration is safe to run. Production needs
// real OAuth client credentials and a stable state signing key.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("SCORE_POLICY: %w", err)
	}
	if c.AthenaBaseURL == "" {
		return fmt.Errorf("ATHENA_BASE_URL is required")
	}

	if c.IsProduction() {
		missing := []string{}
		for name, val := range map[string]string{
			"ATHENA_CLIENT_ID":     c.AthenaClientID,
			"ATHENA_CLIENT_SECRET": c.AthenaClientSecret,
			"ATHENA_REDIRECT_URI":  c.AthenaRedirectURI,
			"OAUTH_STATE_KEY":      c.OAuthStateKey,
		} {
			if val == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("required in production: %s", strings.Join(missing, ", "))
		}
		if len(c.OAuthStateKey) < 32 {
			return fmt.Errorf("OAUTH_STATE_KEY must be at least 32 bytes in production")
		}
	}

	if c.AthenaRateLimit < 0 || c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.AthenaMaxRetries < 0 {
		return fmt.Errorf("ATHENA_MAX_RETRIES must not be negative")
	}
	if c.ArchiveEnabled() && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
