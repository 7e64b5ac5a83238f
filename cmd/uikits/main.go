// Package main is the entry point for the uikits directory server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uikits/config"
	"uikits/internal/app"
	"uikits/internal/logging"
	"uikits/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	seedPath := flag.String("seed", "", "Load a YAML catalog seed file before starting")
	prefetch := flag.Bool("prefetch", false, "Fetch npm download statistics for every catalog package")
	serve := flag.Bool("serve", false, "Keep serving after -seed (serving is the default without -seed)")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
	})
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("starting uikits",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	if err := run(cfg, logger, *seedPath, *prefetch, *serve || *seedPath == ""); err != nil {
		slog.Error("uikits stopped", "error", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, seedPath string, prefetch, serve bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if seedPath != "" {
		if err := seed(ctx, application, seedPath); err != nil {
			return shutdownWith(application, err)
		}
	}

	if !serve {
		if prefetch {
			prefetchNow(ctx, application)
		}
		return shutdownWith(application, nil)
	}
	if prefetch {
		go prefetchNow(ctx, application)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("application shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		stop()
		<-done
		return err
	}
	<-done
	return nil
}

func prefetchNow(ctx context.Context, application *app.App) {
	n := application.Prefetch(ctx)
	slog.Info("prefetch complete", "with_data", n)
}

func seed(ctx context.Context, application *app.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	_, err = application.Seed(ctx, f)
	return err
}

func shutdownWith(application *app.App, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil && cause == nil {
		return err
	}
	return cause
}
