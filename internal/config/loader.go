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
// built-in defaults, applies MARKETCORE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MARKETCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Owner, "MARKETCORE_MARKET_OWNER")
	setStr(&cfg.Market.Operator, "MARKETCORE_MARKET_OPERATOR")
	setStr(&cfg.Market.DefaultOracle, "MARKETCORE_MARKET_DEFAULT_ORACLE")

	// ── Auction ──
	setDuration(&cfg.Auction.CommitWindow, "MARKETCORE_AUCTION_COMMIT_WINDOW")
	setDuration(&cfg.Auction.RevealWindow, "MARKETCORE_AUCTION_REVEAL_WINDOW")

	// ── Launch ──
	setInt64(&cfg.Launch.TVLThreshold, "MARKETCORE_LAUNCH_TVL_THRESHOLD")
	setInt(&cfg.Launch.MinParticipants, "MARKETCORE_LAUNCH_MIN_PARTICIPANTS")
	setDuration(&cfg.Launch.CommitWindow, "MARKETCORE_LAUNCH_COMMIT_WINDOW")
	setDuration(&cfg.Launch.VestingWindow, "MARKETCORE_LAUNCH_VESTING_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETCORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "MARKETCORE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKETCORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETCORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETCORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETCORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETCORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETCORE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETCORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETCORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETCORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETCORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETCORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETCORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETCORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETCORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETCORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETCORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETCORE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKETCORE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "MARKETCORE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETCORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETCORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETCORE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RatePerMinute, "MARKETCORE_SERVER_RATE_PER_MINUTE")
	setStr(&cfg.Server.APIKey, "MARKETCORE_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETCORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETCORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETCORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETCORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETCORE_MODE")
	setStr(&cfg.LogLevel, "MARKETCORE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
