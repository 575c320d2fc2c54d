package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizbee/internal/app"
	"quizbee/internal/config"
	pgstore "quizbee/internal/infra/postgres"
	redisinfra "quizbee/internal/infra/redis"
	"quizbee/internal/infra/sqlite"
	transport "quizbee/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = cfg.Server.AdminPassword
	}
	if adminPassword == "" {
		adminPassword = "admin"
		log.Warn().Msg("no admin password configured, using default")
	}

	// Postgres when configured, sqlite otherwise.
	var store app.Store
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
		log.Info().Msg("using postgres store")
	} else {
		path := cfg.SQLite.Path
		if path == "" {
			path = "quizbee.db"
		}
		sq, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer sq.Close()
		store = sq
		log.Info().Str("path", path).Msg("using sqlite store")
	}

	hub := transport.NewHub(log)

	var cache *redisinfra.SnapshotCache
	bus := app.Broadcaster(hub)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = redisinfra.NewSnapshotCache(client, config.TTLDuration(cfg.Redis.TTL, 30*time.Second))
		bus = app.MultiBroadcaster{hub, cache}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("snapshot cache enabled")
	}

	service := app.NewGameService(store, bus)

	var source transport.Source = service
	if cache != nil {
		cache.SetFallback(service)
		source = cache
	}
	hub.SetSource(source)

	api := transport.NewAPI(service, source, hub, adminPassword, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quizbee server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
