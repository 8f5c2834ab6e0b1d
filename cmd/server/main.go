package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Canvass/internal/api"
	"github.com/soaringjerry/Canvass/internal/config"
	"github.com/soaringjerry/Canvass/internal/db"
	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/middleware"
	"github.com/soaringjerry/Canvass/internal/telemetry"
	"github.com/soaringjerry/Canvass/internal/utils"
)

const serviceName = "canvass"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Survey invitations, responses and creator dashboards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

// loadConfig reads CANVASS_* settings and configures the global logger from them.
func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg, os.Stdout)
	return cfg, nil
}

func setupLogger(cfg config.Config, out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.Commit, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	feed, publisher, closeEvents, err := openEvents(cfg)
	if err != nil {
		return err
	}
	defer closeEvents()

	logger := log.Logger
	router := api.NewRouter(api.Options{
		Store:          store,
		Auth:           middleware.NewAuth(cfg.JWTSecret),
		Feed:           feed,
		Publisher:      publisher,
		Logger:         &logger,
		ServiceName:    serviceName,
		PublicBaseURL:  cfg.PublicBaseURL,
		AllowedOrigins: cfg.AllowedOrigins,
		TokenTTL:       cfg.TokenTTL,
		ActivityWindow: cfg.RecentActivityWindow,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.RequestTimeout,
	})
	mux := router.Mux()
	mux.Get("/health", healthHandler(cfg))
	mux.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"commit": cfg.Commit, "build_time": cfg.BuildTime})
	})
	if h := frontendHandler(cfg); h != nil {
		mux.Handle("/*", h)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Bool("sqlite", !cfg.InMemory()).Msg("canvass listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore uses SQLite when a database path is configured and the JSON
// snapshot store otherwise. A first SQLite start imports an existing snapshot.
func openStore(ctx context.Context, cfg config.Config) (api.Store, func(), error) {
	if cfg.InMemory() {
		store, err := api.NewMemoryStoreFromPath(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		return store, func() {}, nil
	}
	if err := MigrateIfNeeded(ctx, cfg.SnapshotPath, cfg.DBPath, cfg.MigrationsDir); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB, cfg.MigrationsDir); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	store, err := db.NewSQLiteStore(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close sqlite")
		}
	}, nil
}

// openEvents picks the poll feed (Redis or in-process) and optionally fans
// events out to NATS as well.
func openEvents(cfg config.Config) (events.Feed, events.Publisher, func(), error) {
	var (
		feed    events.Feed
		closers []func()
	)
	if cfg.RedisURL != "" {
		rf, err := events.NewRedisFeed(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		feed = rf
		closers = append(closers, func() { _ = rf.Close() })
	} else {
		feed = events.NewMemoryFeed()
	}
	var publisher events.Publisher = feed
	if cfg.NATSURL != "" {
		bus, err := events.NewBus(cfg.NATSURL)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		publisher = events.Multi{feed, bus}
		closers = append(closers, bus.Close)
	}
	return feed, publisher, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func healthHandler(cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Canvass API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	}
}

// frontendHandler serves the built web app from StaticDir, or proxies to a
// dev server. Nil when neither is configured.
func frontendHandler(cfg config.Config) http.Handler {
	if cfg.StaticDir != "" {
		return http.FileServer(http.Dir(cfg.StaticDir))
	}
	if cfg.DevFrontendURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.DevFrontendURL)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.DevFrontendURL).Msg("invalid dev frontend url")
		return nil
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ModifyResponse = func(res *http.Response) error {
		res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		res.Header.Set("Pragma", "no-cache")
		res.Header.Set("Expires", "0")
		return nil
	}
	return rp
}
