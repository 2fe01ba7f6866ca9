package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Lock       LockConfig
	Changesets ChangesetsConfig
	Approvals  ApprovalsConfig
	Exports    ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LockConfig tunes the distributed lock manager guarding entity
// transitions.
type LockConfig struct {
	TTL             time.Duration
	BlockingTimeout time.Duration
	PollInterval    time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// ChangesetsConfig tunes risk scoring and apply retries.
type ChangesetsConfig struct {
	RiskThreshold     float64
	MaxSingleApprover int
	ApplyMaxRetries   int
	ApplyRetryBase    time.Duration
	DeleteRiskFloor   float64
	RiskPerChange     float64
}

// ApprovalsConfig gates the two-person approval workflow.
type ApprovalsConfig struct {
	Enabled           bool
	EscalationTickets bool
}

// ExportsConfig controls audit trail export rendering.
type ExportsConfig struct {
	Enabled bool
	MaxRows int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lock = LockConfig{
		TTL:             parseDuration(v.GetString("LOCK_TTL"), 30*time.Second),
		BlockingTimeout: parseDuration(v.GetString("LOCK_BLOCKING_TIMEOUT"), 5*time.Second),
		PollInterval:    parseDuration(v.GetString("LOCK_POLL_INTERVAL"), 25*time.Millisecond),
		MaxRetries:      v.GetInt("LOCK_MAX_RETRIES"),
		RetryBaseDelay:  parseDuration(v.GetString("LOCK_RETRY_BASE_DELAY"), 100*time.Millisecond),
	}

	cfg.Changesets = ChangesetsConfig{
		RiskThreshold:     v.GetFloat64("CHANGESET_RISK_THRESHOLD"),
		MaxSingleApprover: v.GetInt("CHANGESET_MAX_SINGLE_APPROVER"),
		ApplyMaxRetries:   v.GetInt("CHANGESET_APPLY_MAX_RETRIES"),
		ApplyRetryBase:    parseDuration(v.GetString("CHANGESET_APPLY_RETRY_BASE"), 100*time.Millisecond),
		DeleteRiskFloor:   v.GetFloat64("CHANGESET_DELETE_RISK_FLOOR"),
		RiskPerChange:     v.GetFloat64("CHANGESET_RISK_PER_CHANGE"),
	}

	cfg.Approvals = ApprovalsConfig{
		Enabled:           v.GetBool("ENABLE_APPROVALS"),
		EscalationTickets: v.GetBool("ENABLE_ESCALATION_TICKETS"),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_AUDIT_EXPORTS"),
		MaxRows: v.GetInt("AUDIT_EXPORT_MAX_ROWS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "siteops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOCK_BLOCKING_TIMEOUT", "5s")
	v.SetDefault("LOCK_POLL_INTERVAL", "25ms")
	v.SetDefault("LOCK_MAX_RETRIES", 3)
	v.SetDefault("LOCK_RETRY_BASE_DELAY", "100ms")

	v.SetDefault("CHANGESET_RISK_THRESHOLD", 0.7)
	v.SetDefault("CHANGESET_MAX_SINGLE_APPROVER", 10)
	v.SetDefault("CHANGESET_APPLY_MAX_RETRIES", 3)
	v.SetDefault("CHANGESET_APPLY_RETRY_BASE", "100ms")
	v.SetDefault("CHANGESET_DELETE_RISK_FLOOR", 0.5)
	v.SetDefault("CHANGESET_RISK_PER_CHANGE", 0.05)

	v.SetDefault("ENABLE_APPROVALS", true)
	v.SetDefault("ENABLE_ESCALATION_TICKETS", true)

	v.SetDefault("ENABLE_AUDIT_EXPORTS", true)
	v.SetDefault("AUDIT_EXPORT_MAX_ROWS", 5000)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
