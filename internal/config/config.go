package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Prefix is prepended to every key below.
const Prefix = "CANVASS_"

// Config holds runtime configuration for the Canvass server.
type Config struct {
	Addr           string        `env:"ADDR,default=:8080"`
	DBPath         string        `env:"DB_PATH"`
	SnapshotPath   string        `env:"SNAPSHOT_PATH"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR"`
	JWTSecret      string        `env:"JWT_SECRET,default=dev-secret-change-me"`
	TokenTTL       time.Duration `env:"TOKEN_TTL,default=720h"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RedisURL       string        `env:"REDIS_URL"`
	NATSURL        string        `env:"NATS_URL"`
	OTLPEndpoint   string        `env:"OTLP_ENDPOINT"`
	RateLimit      int           `env:"RATE_LIMIT,default=300"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	// RecentActivityWindow bounds the dashboard "recentActivity" count.
	RecentActivityWindow time.Duration `env:"RECENT_ACTIVITY_WINDOW,default=168h"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	LogFormat            string        `env:"LOG_FORMAT,default=console"`
	StaticDir            string        `env:"STATIC_DIR"`
	DevFrontendURL       string        `env:"DEV_FRONTEND_URL"`
	Commit               string        `env:"COMMIT"`
	BuildTime            string        `env:"BUILD_TIME"`
}

// Load returns a Config populated from CANVASS_* environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l. The standard OTEL_EXPORTER_OTLP_ENDPOINT
// is honoured when CANVASS_OTLP_ENDPOINT is unset.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	}); err != nil {
		return Config{}, err
	}
	if cfg.OTLPEndpoint == "" {
		if v, ok := l.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			cfg.OTLPEndpoint = v
		}
	}
	return cfg, nil
}

// InMemory reports whether no database path is configured.
func (c Config) InMemory() bool {
	return c.DBPath == ""
}
