package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/handlers"
	"github.com/crucial707/rule-scheduler/internal/logging"
	"github.com/crucial707/rule-scheduler/internal/pce"
	"github.com/crucial707/rule-scheduler/internal/repo"
	"github.com/crucial707/rule-scheduler/internal/scheduler"
)

// envConfigPath names the optional TOML config file.
const envConfigPath = "RULESCHED_CONFIG"

func main() {
	path := os.Getenv(envConfigPath)
	cfg, err := config.LoadFile(path)
	if err != nil {
		bootLog := logging.New("text", "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, path, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func jwtTTL(cfg config.Config) time.Duration {
	return time.Duration(cfg.JWTExpireHours) * time.Hour
}

func newEngine(cfg config.Config, store repo.Store, audit repo.AuditLog, client *pce.Client, log zerolog.Logger) (*engine.Engine, error) {
	opts, err := engine.FromConfig(cfg.Monitor)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		engine.WithLogger(log),
		engine.WithAudit(audit),
		engine.WithReadiness(client.Ready),
	)
	return engine.New(store, client, opts...), nil
}

func run(ctx context.Context, cfg config.Config, path string, log zerolog.Logger) error {
	store, audit, err := repo.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("schedule store opened")

	client := pce.New(cfg.PCE, log)
	if err := client.Ready(); err != nil {
		log.Warn().Err(err).Msg("pce not configured; passes will fail until it is")
	}
	eng, err := newEngine(cfg, store, audit, client, log)
	if err != nil {
		return err
	}

	checks := &handlers.CheckHandler{Engine: eng, Log: log}
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(deps{
			cfg:    cfg,
			log:    log,
			engine: eng,
			pce:    client,
			ready:  client.Ready,
			store:  store,
			audit:  audit,
			checks: checks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	var daemon *scheduler.Daemon
	if cfg.Monitor.Enabled {
		daemon = scheduler.New(eng, cfg.Monitor.Interval(), log)
		g.Go(func() error { return daemon.Run(ctx) })
	}

	// JWT, TLS, port and store settings need a restart; the rest is live.
	if err := config.Watch(ctx, path, log, func(next config.Config) {
		client.Apply(next.PCE)
		if err := eng.Reconfigure(next.Monitor); err != nil {
			log.Warn().Err(err).Msg("monitor settings not applied")
		}
		if daemon != nil {
			daemon.SetInterval(next.Monitor.Interval())
		}
	}); err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Bool("monitor", cfg.Monitor.Enabled).Msg("starting server")
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return checks.Wait(shutdownCtx)
	})

	return g.Wait()
}
