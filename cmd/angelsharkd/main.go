// Command angelsharkd is the OSSI fan-out HTTP daemon: it loads a login
// file into a Runner, builds a Haystack over it, and serves both over
// HTTP, reloading its login file on change and refreshing the Haystack on
// an independent timer so a slow ACM never blocks request serving.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/angelshark"
	"github.com/ehrlich-b/angelshark/internal/audit"
	"github.com/ehrlich-b/angelshark/internal/config"
	"github.com/ehrlich-b/angelshark/internal/httpapi"
	"github.com/ehrlich-b/angelshark/internal/logger"
)

const haystackRefreshInterval = 15 * time.Minute

// liveRunner holds the daemon's current Runner registrations behind an
// atomic pointer, so a login-file hot-reload (internal/config.WatchFiles)
// can swap it out without any request in flight observing a half-updated
// Runner.
type liveRunner struct {
	ptr atomic.Pointer[angelshark.Runner]
}

func (l *liveRunner) get() *angelshark.Runner { return l.ptr.Load() }
func (l *liveRunner) set(r *angelshark.Runner) { l.ptr.Store(r) }

func main() {
	root := &cobra.Command{
		Use:   "angelsharkd",
		Short: "angelshark OSSI fan-out daemon",
		RunE:  run,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Haystack.Refresh reads its job list from the environment; publish the
	// resolved value so a YAML ext_search_acms setting takes effect too.
	if cfg.ExtSearchACMs != "" {
		os.Setenv(angelshark.ExtSearchACMsEnv, cfg.ExtSearchACMs)
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	if err := logger.Init(level, "", "angelsharkd"); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	initial, err := loadRunner(cfg.LoginsPath)
	if err != nil {
		return fmt.Errorf("load logins: %w", err)
	}
	runner := &liveRunner{}
	runner.set(initial)

	haystack := angelshark.NewHaystack(initial)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := config.WatchFiles(ctx, 2*time.Second, func() {
		reloaded, err := loadRunner(cfg.LoginsPath)
		if err != nil {
			logger.Log.Error("failed to reload logins", "error", err)
			return
		}
		runner.set(reloaded)
		haystack.SetTemplate(reloaded)
		logger.Log.Info("reloaded logins", "path", cfg.LoginsPath)
	}, cfg.LoginsPath); err != nil {
		logger.Log.Warn("login file watch disabled", "error", err)
	}

	startHaystackRefreshLoop(ctx, haystack)

	var auditLog *audit.Log
	if cfg.AuditDBPath != "" {
		auditLog, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer auditLog.Close()
	}

	apiCfg := httpapi.Config{
		Origin:          cfg.Origin,
		Debug:           cfg.Debug,
		RateLimitPerSec: cfg.RateLimitPerSec,
	}
	srv := httpapi.NewServer(apiCfg, runner.get, haystack, auditLog)

	httpSrv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("listening", "addr", cfg.BindAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// startHaystackRefreshLoop runs Haystack refreshes on their own ticker,
// deliberately not sharing a goroutine pool with HTTP request handling, so
// a refresh slow against a stalled ACM can never delay request serving.
func startHaystackRefreshLoop(ctx context.Context, h *angelshark.Haystack) {
	go func() {
		if err := h.Refresh(); err != nil {
			logger.Log.Warn("initial haystack refresh failed", "error", err)
		}
		ticker := time.NewTicker(haystackRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.Refresh(); err != nil {
					logger.Log.Warn("haystack refresh failed", "error", err)
				}
			}
		}
	}()
}

func loadRunner(loginsPath string) (*angelshark.Runner, error) {
	f, err := os.Open(loginsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loginsPath, err)
	}
	defer f.Close()

	acms, skipped, err := angelshark.ParseLogins(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", loginsPath, err)
	}
	for _, s := range skipped {
		logger.Log.Warn("skipped login line", "line", s.Line, "reason", s.Reason)
	}

	runner := angelshark.NewRunner()
	for _, na := range acms {
		runner.RegisterAcm(na.Name, na.Acm)
	}
	return runner, nil
}
