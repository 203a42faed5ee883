package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CAMPUSTRADE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CAMPUSTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CAMPUSTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "CAMPUSTRADE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CAMPUSTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CAMPUSTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CAMPUSTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CAMPUSTRADE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CAMPUSTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CAMPUSTRADE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CAMPUSTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CAMPUSTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CAMPUSTRADE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CAMPUSTRADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CAMPUSTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CAMPUSTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CAMPUSTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CAMPUSTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CAMPUSTRADE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CAMPUSTRADE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CAMPUSTRADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CAMPUSTRADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "CAMPUSTRADE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CAMPUSTRADE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CAMPUSTRADE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CAMPUSTRADE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CAMPUSTRADE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "CAMPUSTRADE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CAMPUSTRADE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CAMPUSTRADE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CAMPUSTRADE_SERVER_RATE_LIMIT")

	// ── Market ──
	setInt(&cfg.Market.SlotOpenHour, "CAMPUSTRADE_MARKET_SLOT_OPEN_HOUR")
	setInt(&cfg.Market.SlotCloseHour, "CAMPUSTRADE_MARKET_SLOT_CLOSE_HOUR")
	setDuration(&cfg.Market.SweepInterval, "CAMPUSTRADE_MARKET_SWEEP_INTERVAL")
	setInt(&cfg.Market.ArchiveRetentionDays, "CAMPUSTRADE_MARKET_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "CAMPUSTRADE_NOTIFY_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "CAMPUSTRADE_MODE")
	setStr(&cfg.LogLevel, "CAMPUSTRADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
