package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	bitbucketadapter "github.com/ericfisherdev/prharmony/internal/adapter/driven/bitbucket"
	"github.com/ericfisherdev/prharmony/internal/adapter/driven/configstore"
	githubadapter "github.com/ericfisherdev/prharmony/internal/adapter/driven/github"
	"github.com/ericfisherdev/prharmony/internal/adapter/driven/metrics"
	sqliteadapter "github.com/ericfisherdev/prharmony/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/prharmony/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/prharmony/internal/adapter/driving/web"
	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/config"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// platform is what the host platform adapter provides.
type platform interface {
	driven.Directory
	driven.MergeChecker
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"store_url", cfg.StoreURL,
		"platform", cfg.Platform,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	schemaVersion, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath, "schema_version", schemaVersion)

	logger := slog.Default()
	promMetrics := metrics.NewProm("prharmony")
	health := application.NewHealthService(2 * time.Second)
	health.Register("database", db.Ping)

	// 4. Host platform adapter.
	var host platform
	switch cfg.Platform {
	case config.PlatformGitHub:
		gh := githubadapter.NewClient(cfg.PlatformToken, cfg.GitHubOrg)
		if cfg.PlatformToken != "" {
			health.Register("platform", func(ctx context.Context) error {
				_, err := gh.Authenticated(ctx)
				return err
			})
		}
		host = gh
	default:
		bb, err := bitbucketadapter.NewClient(cfg.PlatformURL, cfg.PlatformToken, logger)
		if err != nil {
			return fmt.Errorf("create bitbucket client: %w", err)
		}
		host = bb
	}

	// 5. Application services.
	policyRepo := sqliteadapter.NewPolicyRepo(db)
	storeClient := configstore.NewClient(cfg.StoreURL, cfg.StoreRetries, logger)

	settings := application.LookupSettings{
		MinimumQueryLength: cfg.MinQueryLength,
		QuietPeriod:        cfg.QuietPeriod,
	}
	editor := application.NewEditorService(
		storeClient,
		application.NewUserLookup(host, settings),
		application.NewGroupLookup(host, settings),
		application.WithEditorMetrics(promMetrics),
		application.WithEditorLogger(logger),
	)
	sessions := webhandler.NewSessionRegistry(clockwork.NewRealClock(), cfg.SessionTTL, logger)

	bus := application.NewEventBus()
	gate := application.NewMergeGate(bus, host, promMetrics, logger)
	health.Register("merge_gate", func(context.Context) error {
		if bus.Subscribers() == 0 {
			return errors.New("merge gate is not subscribed")
		}
		return nil
	})
	reviewers := application.NewReviewerService(policyRepo, host, logger)

	// 6. HTTP routes.
	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(policyRepo, policyRepo, reviewers, bus, health, logger)
	httphandler.RegisterAPIRoutes(mux, apiHandler, promMetrics.Handler())

	webHandler := webhandler.NewHandler(editor, sessions, cfg.StoreURL, logger)
	webhandler.RegisterRoutes(mux, webHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.ApplyMiddleware(mux, logger, promMetrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 7. Run server, merge gate and session sweeper until a signal arrives
	// or one of them fails.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		gate.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	slog.Info("prharmony started", "listen_addr", cfg.ListenAddr, "platform", cfg.Platform)

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("prharmony stopped")
	return nil
}
