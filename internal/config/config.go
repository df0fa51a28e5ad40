package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	CatalogDir          string        `mapstructure:"CATALOG_DIR"`
	CalculatorsDir      string        `mapstructure:"CALCULATORS_DIR"`
	WatchSchemas        bool          `mapstructure:"WATCH_SCHEMAS"`
	ResolveDependencies bool          `mapstructure:"CALC_RESOLVE_DEPENDENCIES"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	AuditMemorySize     int           `mapstructure:"AUDIT_MEMORY_SIZE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "CATALOG_DIR", "CALCULATORS_DIR", "WATCH_SCHEMAS",
	"CALC_RESOLVE_DEPENDENCIES", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUDIT_MEMORY_SIZE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
}

// minSigningKeyLen is the shortest HS256 secret accepted outside development.
const minSigningKeyLen = 32

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("WATCH_SCHEMAS", false)
	v.SetDefault("CALC_RESOLVE_DEPENDENCIES", false)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("AUDIT_MEMORY_SIZE", 1000)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "5s")
	v.SetDefault("BODY_LIMIT", "256K")

	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, nil
}

// splitList normalizes a list that may arrive as one comma-separated value.
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

// UsesEmbeddedCatalog reports whether unit and analyte documents come from
// the binary rather than CATALOG_DIR.
func (c *Config) UsesEmbeddedCatalog() bool {
	return c.CatalogDir == ""
}

// UsesEmbeddedCalculators reports whether calculator documents come from the
// binary rather than CALCULATORS_DIR.
func (c *Config) UsesEmbeddedCalculators() bool {
	return c.CalculatorsDir == ""
}

// Validate checks that the configuration is safe to serve with. Outside
// development a signing key is required so admin routes are protected.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.AuthSigningKey) < minSigningKeyLen {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes, got %d", minSigningKeyLen, len(c.AuthSigningKey))
		}
	}
	if c.WatchSchemas && c.CalculatorsDir == "" {
		return fmt.Errorf("WATCH_SCHEMAS requires CALCULATORS_DIR; embedded calculators cannot change")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if n, err := bytes.Parse(c.BodyLimit); err != nil || n <= 0 {
		return fmt.Errorf("BODY_LIMIT %q is not a positive size such as 256K or 1M", c.BodyLimit)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
