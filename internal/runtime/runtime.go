package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-keywords/internal/analysis"
	"github.com/loqalabs/loqa-keywords/internal/bus"
	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/eventstore"
	"github.com/loqalabs/loqa-keywords/internal/keywords"
	"github.com/loqalabs/loqa-keywords/internal/natsserver"
	"github.com/loqalabs/loqa-keywords/internal/stt"
	"github.com/loqalabs/loqa-keywords/internal/tagger"
)

// Runtime owns the daemon's components and its HTTP surface.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	telemetryClose func(context.Context) error
	metrics        http.Handler
	natsServer     *natsserver.EmbeddedServer
	bus            *bus.Client
	store          *eventstore.Store
	stt            *stt.Service
	analysis       *analysis.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, serves HTTP and blocks until ctx is
// cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.setup(ctx); err != nil {
		r.shutdown(context.Background())
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.shutdown(shutdownCtx)
	return nil
}

func (r *Runtime) setup(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry
	r.metrics = metricsHandler

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		r.natsServer = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := bus.Connect(connectCtx, busCfg, r.logger)
	if err != nil {
		return err
	}
	r.bus = client

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	if r.cfg.STT.Enabled {
		recognizer, err := stt.FromConfig(r.cfg.STT)
		if err != nil {
			return fmt.Errorf("init recognizer: %w", err)
		}
		r.stt = stt.NewService(ctx, r.cfg.STT, r.bus, recognizer, r.logger)
		if err := r.stt.Start(); err != nil {
			return fmt.Errorf("start stt: %w", err)
		}
	}

	tg, err := tagger.FromConfig(r.cfg.Tagger)
	if err != nil {
		return fmt.Errorf("init tagger: %w", err)
	}
	r.analysis = analysis.NewService(ctx, r.cfg.Analysis, r.bus, keywords.NewExtractor(tg), r.store, r.logger)
	if err := r.analysis.Start(); err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	r.logger.Info("components started",
		slog.String("tagger", r.cfg.Tagger.Mode),
		slog.Bool("stt", r.cfg.STT.Enabled),
		slog.Bool("analysis", r.cfg.Analysis.Enabled))
	return nil
}

// shutdown stops components in reverse start order. It tolerates a partial
// setup.
func (r *Runtime) shutdown(ctx context.Context) {
	if r.analysis != nil {
		r.analysis.Close()
	}
	if r.stt != nil {
		r.stt.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

// Handler exposes health, readiness, metrics and session snapshots.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}
	mux.HandleFunc("GET /sessions/{id}", r.handleSession)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.analysis.Healthy() && (r.stt == nil || r.stt.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type sessionView struct {
	SessionID  string     `json:"session_id"`
	CycleID    string     `json:"cycle_id"`
	State      string     `json:"state"`
	Transcript string     `json:"transcript"`
	Keywords   []string   `json:"keywords"`
	Summary    string     `json:"summary"`
	Outcome    string     `json:"outcome,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
}

func (r *Runtime) handleSession(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if r.analysis == nil {
		http.Error(w, "analysis unavailable", http.StatusServiceUnavailable)
		return
	}
	snap, ok := r.analysis.Snapshot(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	view := sessionView{
		SessionID:  id,
		CycleID:    snap.CycleID,
		State:      snap.State.String(),
		Transcript: snap.Transcript,
		Keywords:   snap.Keywords,
		Summary:    snap.Summary,
		Outcome:    string(snap.Outcome),
	}
	if view.Keywords == nil {
		view.Keywords = []string{}
	}
	if !snap.StartedAt.IsZero() {
		view.StartedAt = &snap.StartedAt
	}
	if !snap.AnalyzedAt.IsZero() {
		view.AnalyzedAt = &snap.AnalyzedAt
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		r.logger.Warn("failed to encode session", slog.String("error", err.Error()))
	}
}
