package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LEDGERD_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the service then
// runs on defaults plus environment overrides. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LEDGERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "LEDGERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LEDGERD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LEDGERD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "LEDGERD_SERVER_RATE_LIMIT_WINDOW")

	// ── Storage ──
	setStr(&cfg.Storage.Mode, "LEDGERD_STORAGE_MODE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LEDGERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LEDGERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LEDGERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LEDGERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LEDGERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LEDGERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LEDGERD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LEDGERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LEDGERD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGERD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGERD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGERD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LEDGERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGERD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LEDGERD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "LEDGERD_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "LEDGERD_ARCHIVE_PREFIX")

	// ── Transfer ──
	setStr(&cfg.Transfer.Mode, "LEDGERD_TRANSFER_MODE")
	setStr(&cfg.Transfer.EVM.RPCURL, "LEDGERD_TRANSFER_EVM_RPC_URL")
	setStr(&cfg.Transfer.EVM.PrivateKey, "LEDGERD_TRANSFER_EVM_PRIVATE_KEY")
	setInt64(&cfg.Transfer.EVM.ChainID, "LEDGERD_TRANSFER_EVM_CHAIN_ID")
	setDuration(&cfg.Transfer.EVM.ConfirmTimeout, "LEDGERD_TRANSFER_EVM_CONFIRM_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LEDGERD_LOG_LEVEL")
	setBool(&cfg.LogJSON, "LEDGERD_LOG_JSON")
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
