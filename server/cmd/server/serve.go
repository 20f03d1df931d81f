package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/alerts"
	"github.com/kalfix/kalfix/server/internal/api"
	"github.com/kalfix/kalfix/server/internal/auth"
	"github.com/kalfix/kalfix/server/internal/config"
	"github.com/kalfix/kalfix/server/internal/counter"
	"github.com/kalfix/kalfix/server/internal/loss"
	"github.com/kalfix/kalfix/server/internal/metrics"
	"github.com/kalfix/kalfix/server/internal/receiver"
	"github.com/kalfix/kalfix/server/internal/shift"
	"github.com/kalfix/kalfix/server/internal/snapshot"
	"github.com/kalfix/kalfix/server/internal/store"
	"github.com/kalfix/kalfix/server/internal/telemetry"
	"github.com/kalfix/kalfix/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("kalfix-server starting", "config", configPath)

	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	if lvl, err := cfg.Server.Level(); err == nil {
		level.Set(lvl)
	}
	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}
	clock := shift.NewClock(loc)

	slog.Info("config loaded",
		"addr", cfg.Server.Addr(),
		"timezone", loc.String(),
		"database", cfg.Database.Path,
		"auth_mode", cfg.Server.Auth.Mode,
		"ignore_shift_check", cfg.Server.IgnoreShiftCheck,
		"alert_rules", len(cfg.Alerts.Rules),
	)

	st, err := store.Open(cfg.Database.Path, store.WithRetry(retryPolicy(cfg.Database.Retry)))
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "err", err)
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Counter service, loaded with the shift running right now.
	svc := counter.NewService(st, clock)
	svc.SetIgnoreShiftCheck(cfg.Server.IgnoreShiftCheck)
	engine := metrics.NewEngine(st, clock)
	logStartup(ctx, svc, engine)

	// WebSocket hub: pushes status every BroadcastInterval and on Notify.
	// Each push also ticks the shift tracker.
	builder := snapshot.NewBuilder(svc, engine, cfg.Server.HistoryDays)
	hub := ws.New(builder, cfg.Server.BroadcastInterval)

	tel := telemetry.New()
	tel.GaugeFunc("current_count", "Runtime count of the active shift.", func() float64 {
		return float64(svc.Status().Count)
	})
	tel.GaugeFunc("ws_clients", "Connected dashboard clients.", func() float64 {
		return float64(hub.Count())
	})

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		slog.Error("invalid alert rules", "err", err)
		return err
	}

	guard := auth.APIKeyMiddleware(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())

	mux := http.NewServeMux()
	mux.Handle("/update", receiver.New(svc, hub, tel))
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", tel.Handler())
	mux.Handle("/api/", api.New(api.Deps{
		Counter:   svc,
		Metrics:   engine,
		Losses:    loss.NewRecorder(st),
		Goals:     loss.NewSetter(st, clock),
		Snapshot:  builder,
		Hub:       hub,
		DB:        st,
		Alerts:    alertEngine,
		Telemetry: tel,
		Auth:      guard,
	}))

	// Optional: serve the pre-built dashboard from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if uiDir != "" {
		files := http.FileServer(http.Dir(uiDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := filepath.Join(uiDir, filepath.Clean(r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(uiDir, "index.html"))
				return
			}
			files.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", uiDir)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	onReload := func(next *config.Config) {
		svc.SetIgnoreShiftCheck(next.Server.IgnoreShiftCheck)
		if lvl, err := next.Server.Level(); err == nil {
			level.Set(lvl)
		}
		if err := alertEngine.SetRules(next.Alerts.Rules); err != nil {
			slog.Warn("alert rules not reloaded", "err", err)
		}
		slog.Info("config applied",
			"ignore_shift_check", next.Server.IgnoreShiftCheck,
			"log_level", next.Server.LogLevel,
			"alert_rules", len(next.Alerts.Rules),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		alertEngine.Run(gctx, cfg.Server.BroadcastInterval, activeShiftMetrics(svc, engine))
		return nil
	})
	if fromFile {
		g.Go(func() error {
			if err := config.Watch(gctx, configPath, onReload); err != nil {
				slog.Warn("config hot reload disabled", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return listen(srv, cfg.Server.TLS)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("kalfix-server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// listen serves srv over TLS when the certificate pair is available and
// over plain HTTP otherwise.
func listen(srv *http.Server, tls config.TLSConfig) error {
	var err error
	switch {
	case tls.Available():
		slog.Info("HTTPS server listening", "addr", srv.Addr, "cert", tls.CertFile)
		err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	default:
		if tls.Enabled {
			slog.Warn("TLS certificate or key not found, serving plain HTTP",
				"cert", tls.CertFile, "key", tls.KeyFile)
		}
		slog.Info("HTTP server listening", "addr", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// logStartup loads the current shift and logs the shift windows, the
// current state and every shift left unfinished by a previous run.
func logStartup(ctx context.Context, svc *counter.Service, engine *metrics.Engine) {
	slog.Info("shift windows",
		"shift_a", types.ShiftA,
		"shift_b", types.ShiftB,
		"gap", "16:00-22:00",
	)
	if _, err := svc.Tick(ctx); err != nil {
		slog.Warn("initial shift load failed, will retry on next tick", "err", err)
	}
	st := svc.Status()
	if st.Shift != nil {
		slog.Info("active shift", "shift", st.Shift.Key(), "count", st.Count)
	} else {
		slog.Info("no active shift", "now", svc.Now().In(svc.Clock().Location()).Format("15:04"))
	}

	open, err := engine.OpenShifts(ctx)
	if err != nil {
		slog.Warn("could not list unfinished shifts", "err", err)
		return
	}
	for _, m := range open {
		if st.Shift != nil && m.Shift == *st.Shift {
			continue
		}
		slog.Warn("unfinished shift", "shift", m.Shift.Key(), "gross", m.Gross, "loss", m.Loss)
	}
}

// activeShiftMetrics feeds the alert engine with the running shift.
func activeShiftMetrics(svc *counter.Service, engine *metrics.Engine) alerts.Source {
	return func(ctx context.Context) (metrics.ShiftMetrics, bool, error) {
		cur := svc.Status().Shift
		if cur == nil {
			return metrics.ShiftMetrics{}, false, nil
		}
		return engine.ShiftMetrics(ctx, *cur)
	}
}
