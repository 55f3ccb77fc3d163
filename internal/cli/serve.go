package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ollama-dash/internal/activity"
	"ollama-dash/internal/config"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/telemetry"
	"ollama-dash/internal/views"
	"ollama-dash/web"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control panel (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	logger := newLogger(cfg.LogLevel, os.Stdout)
	logConfig(logger, cfg)

	h, bus, err := a.buildHandler(cmd.Context(), logger)
	if err != nil {
		return err
	}
	srv := newHTTPServer(cfg.ListenAddr, h, bus)

	logger.Info("starting ollama-dash", "listen", cfg.ListenAddr, "daemon", cfg.DaemonURL, "version", a.version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHTTPServer wraps the panel handler. Shutdown closes the activity bus so
// open /events streams end instead of holding the server open.
func newHTTPServer(addr string, h http.Handler, bus *activity.Bus) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(bus.Shutdown)
	return srv
}

// buildHandler assembles the panel. The daemon is probed once so the panel
// opens connected when it is already up.
func (a *app) buildHandler(ctx context.Context, logger *slog.Logger) (http.Handler, *activity.Bus, error) {
	cfg := a.cfg
	client, err := a.newClient()
	if err != nil {
		return nil, nil, fmt.Errorf("create daemon client: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics()
		client.Observer = metrics
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, nil, err
	}
	static, err := web.Static()
	if err != nil {
		return nil, nil, err
	}

	bus := activity.NewBus(64)
	state := session.New(cfg.DaemonURL)
	checker := telemetry.NewChecker(client, metrics, logger)

	h, err := views.NewServer(cfg, views.Deps{
		State:     state,
		Client:    client,
		Shows:     ollama.NewShowCache(client, cfg.ShowCacheTTL),
		Activity:  activity.NewLog(cfg.ActivityBuffer, bus),
		Bus:       bus,
		Metrics:   metrics,
		Checker:   checker,
		Templates: templates,
		Static:    static,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	if v, err := checker.Check(ctx); err != nil {
		logger.Warn("daemon not reachable at startup", "daemon", cfg.DaemonURL, "err", err)
	} else {
		state.MarkConnected(session.ServerInfo{Version: v.Version, Build: v.Build, CheckedAt: time.Now()})
		logger.Info("daemon reachable", "daemon", cfg.DaemonURL, "version", v.Version)
	}

	return views.LogRequests(logger, h), bus, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"listen_addr", cfg.ListenAddr,
		"daemon_url", cfg.DaemonURL,
		"metadata_timeout", cfg.MetadataTimeout,
		"show_timeout", cfg.ShowTimeout,
		"load_timeout", cfg.LoadTimeout,
		"show_cache_ttl", cfg.ShowCacheTTL,
		"auto_refresh_interval", cfg.AutoRefreshInterval,
		"activity_buffer", cfg.ActivityBuffer,
		"throughput_sample_interval", cfg.ThroughputSampleInterval,
		"default_keep_alive", cfg.DefaultKeepAlive,
		"quick_load_keep_alive", cfg.QuickLoadKeepAlive,
		"metrics_enabled", cfg.MetricsEnabled,
		"log_level", cfg.LogLevel,
	)
}
