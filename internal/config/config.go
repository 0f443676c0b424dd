package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harms/harms/internal/domain/scheduling"
)

type Config struct {
	Port                  string                    `mapstructure:"PORT"`
	Env                   string                    `mapstructure:"ENV"`
	LogLevel              string                    `mapstructure:"LOG_LEVEL"`
	DatabaseURL           string                    `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32                     `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32                     `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir         string                    `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret             string                    `mapstructure:"JWT_SECRET"`
	JWTTTL                time.Duration             `mapstructure:"JWT_TTL"`
	CORSOrigins           []string                  `mapstructure:"CORS_ORIGINS"`
	TrustedProxies        []string                  `mapstructure:"TRUSTED_PROXIES"`
	RateLimitRPS          float64                   `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int                       `mapstructure:"RATE_LIMIT_BURST"`
	SlotPolicy            scheduling.SlotPolicy     `mapstructure:"SLOT_POLICY"`
	BookingConflictPolicy scheduling.ConflictPolicy `mapstructure:"BOOKING_CONFLICT_POLICY"`
	SMTPHost              string                    `mapstructure:"SMTP_HOST"`
	SMTPPort              int                       `mapstructure:"SMTP_PORT"`
	SMTPUser              string                    `mapstructure:"SMTP_USER"`
	SMTPPassword          string                    `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom              string                    `mapstructure:"SMTP_FROM"`
}

// devJWTSecret is only accepted when ENV=development.
const devJWTSecret = "harms-dev-secret-change-me"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("SLOT_POLICY", string(scheduling.SlotPolicyExact))
	v.SetDefault("BOOKING_CONFLICT_POLICY", string(scheduling.ConflictPolicyReject))
	v.SetDefault("SMTP_PORT", 587)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"MIGRATIONS_DIR", "JWT_SECRET", "JWT_TTL", "CORS_ORIGINS", "TRUSTED_PROXIES", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "SLOT_POLICY", "BOOKING_CONFLICT_POLICY", "SMTP_HOST",
		"SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// TrustedProxyNets parses TRUSTED_PROXIES. A bare IP is treated as a single host.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", entry, bits)
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed outside development")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if !c.SlotPolicy.Valid() {
		return fmt.Errorf("SLOT_POLICY must be one of %v, got %q", scheduling.SlotPolicies, c.SlotPolicy)
	}
	if !c.BookingConflictPolicy.Valid() {
		return fmt.Errorf("BOOKING_CONFLICT_POLICY must be one of %v, got %q",
			scheduling.ConflictPolicies, c.BookingConflictPolicy)
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}

	return nil
}
