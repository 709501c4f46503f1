// Package main runs the scoreboard API server: the shared store, the match
// operations API, accounts, and optionally the widget page.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scoreboard/cmd/scoreboard-server/cli"
	"scoreboard/internal/logging"
	"scoreboard/internal/metrics"
	"scoreboard/internal/server/config"
	"scoreboard/internal/server/http"
	"scoreboard/internal/server/processor"
	"scoreboard/internal/server/service"
	"scoreboard/internal/server/storage"
	"scoreboard/internal/server/webserver"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

const gracefulShutdownTimeout = 5 * time.Second

func main() {
	// Database administration runs instead of the server
	if len(os.Args) > 1 && os.Args[1] == "db" {
		if err := cli.Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(logging.Options{Name: "scoreboard", Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the --config file, SCOREBOARD_* variables and
// flags, each overriding the one before
func loadConfig(args []string) (config.Config, error) {
	cfg := config.Default()

	pre := pflag.NewFlagSet("scoreboard-server", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	configPath := pre.String("config", "", "")
	_ = pre.Parse(args)

	if *configPath != "" {
		if err := config.LoadFile(&cfg, *configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	fs := pflag.NewFlagSet("scoreboard-server", pflag.ContinueOnError)
	fs.String("config", *configPath, "Path to a YAML configuration file")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config, log hclog.Logger) error {
	if cfg.Server.PIDFile != "" {
		cleanup, err := managePIDFile(cfg.Server.PIDFile, cfg.Server.PIDLock)
		if err != nil {
			return fmt.Errorf("failed to manage PID file: %w", err)
		}
		defer cleanup()
		log.Info("PID file created", "path", cfg.Server.PIDFile, "lock", cfg.Server.PIDLock)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// 1. Storage (optional)
	var st *storage.Store
	if cfg.Storage.Path != "" {
		log.Info("initializing persistent storage", "path", cfg.Storage.Path)
		st, err = storage.NewStore(cfg.Storage.Path, cfg.Server.Dev, log.Named("storage"))
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := st.InitDB(); err != nil {
			st.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				log.Warn("failed to close storage cleanly", "error", err)
			}
		}()
	} else {
		log.Info("persistent storage disabled, state is kept in memory (use --storage-path to enable)")
	}

	secret, err := tokenSecret(cfg, log)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// 2. Service owns the store tree, the engines and accounts
	svc, err := service.New(service.Options{
		Storage:      st,
		Secret:       secret,
		TokenTTL:     cfg.Auth.TokenTTL,
		Location:     loc,
		AtomicScores: cfg.Match.AtomicScores,
		Logger:       log,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go svc.RunCleanupJob(cleanupCtx, service.CleanupJobInterval)

	// 3. Processor and HTTP app
	proc := processor.New(svc, cfg.Match.PageSize)

	opts := http.DefaultOptions()
	opts.Dev = cfg.Server.Dev
	opts.ReadTimeout = cfg.Server.ReadTimeout
	opts.WriteTimeout = cfg.Server.WriteTimeout
	opts.IdleTimeout = cfg.Server.IdleTimeout
	opts.MetricsPath = ""
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	// Without storage there are no accounts to sign in with
	opts.AnonymousWrites = cfg.Server.Dev && st == nil
	app := http.NewFiberApp(proc, svc, opts)

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 2)
	go func() {
		log.Info("API server listening",
			"addr", "http://"+apiAddr,
			"storage", svc.GetStorageHealth(),
			"dev", cfg.Server.Dev,
			"anonymous_writes", opts.AnonymousWrites,
			"atomic_scores", cfg.Match.AtomicScores,
		)
		if err := app.Listen(apiAddr); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// 4. Widget page (optional)
	var web interface{ ShutdownWithContext(context.Context) error }
	if cfg.Server.Serve {
		apiURL := "http://" + apiAddr
		webApp, err := webserver.NewApp(apiURL, cfg.Server.Dev)
		if err != nil {
			return err
		}
		web = webApp
		go func() {
			log.Info("widget server listening",
				"addr", fmt.Sprintf("http://%s:%d", cfg.Server.WebHost, cfg.Server.WebPort),
				"api", apiURL)
			if err := webserver.Start(webApp, cfg.Server.WebHost, cfg.Server.WebPort); err != nil {
				errCh <- fmt.Errorf("widget server: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("listener failed, shutting down", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	// Release parked long polls first so the listener can drain
	if err := svc.Shutdown(gracefulShutdownTimeout); err != nil {
		log.Warn("service shutdown error", "error", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("API server forced to shut down", "error", err)
	}
	if web != nil {
		if err := web.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("widget server forced to shut down", "error", err)
		}
	}
	cleanupCancel()

	log.Info("servers exited")
	return nil
}

// tokenSecret picks the signing key: configured, fixed in dev mode, or random
// per process so tokens die with it
func tokenSecret(cfg config.Config, log hclog.Logger) ([]byte, error) {
	switch {
	case cfg.Auth.Secret != "":
		return []byte(cfg.Auth.Secret), nil
	case cfg.Server.Dev:
		log.Info("using fixed token secret (dev mode)")
		return []byte(config.DevSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	log.Info("token secret generated, sessions are valid until restart")
	return secret, nil
}
