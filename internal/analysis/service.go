// Package analysis connects recording sessions to the bus: it follows
// session control and transcript traffic, runs one keyword analysis per
// stopped cycle and publishes the result.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-keywords/internal/bus"
	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/eventstore"
	"github.com/loqalabs/loqa-keywords/internal/keywords"
	"github.com/loqalabs/loqa-keywords/internal/protocol"
	"github.com/loqalabs/loqa-keywords/internal/session"
)

const instrumentationName = "github.com/loqalabs/loqa-keywords/analysis"

type Service struct {
	cfg      config.AnalysisConfig
	bus      *bus.Client
	analyzer session.Analyzer
	store    *eventstore.Store
	logger   *slog.Logger
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	msgs   chan *nats.Msg
	subs   []*nats.Subscription

	work    sync.WaitGroup
	forward sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*tracked
	ready    bool
}

type tracked struct {
	ctrl        *session.Controller
	unsubscribe func()
	// analyzing is closed when the cycle frozen by the last stop has been
	// summarized. Only the loop goroutine reads or replaces it.
	analyzing chan struct{}
}

func NewService(parent context.Context, cfg config.AnalysisConfig, busClient *bus.Client, analyzer session.Analyzer, store *eventstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		store:    store,
		logger:   logger.With(slog.String("component", "analysis")),
		tracer:   otel.Tracer(instrumentationName),
		ctx:      ctx,
		cancel:   cancel,
		msgs:     make(chan *nats.Msg, 256),
		sessions: make(map[string]*tracked),
	}
	inst, err := newInstruments(otel.Meter(instrumentationName))
	if err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
		s.analyzer = analyzer
	} else {
		s.analyzer = instrumentedAnalyzer{next: analyzer, inst: inst}
	}
	return s
}

// Start subscribes to session control and transcript subjects. All three
// feed one channel so a session sees its messages in arrival order. Stop
// freezes the transcript on that goroutine; only the analysis runs
// alongside it, and a start for the same session waits for it.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	conn := s.bus.Conn()
	for _, subject := range []string{
		protocol.SubjectSessionControl,
		protocol.SubjectTranscriptPartial,
		protocol.SubjectTranscriptFinal,
	} {
		sub, err := conn.ChanSubscribe(subject, s.msgs)
		if err != nil {
			s.unsubscribeAll()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := conn.Flush(); err != nil {
		s.unsubscribeAll()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	s.work.Add(1)
	go s.loop()

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribeAll()
	s.work.Wait()

	s.mu.Lock()
	for _, t := range s.sessions {
		t.unsubscribe()
	}
	s.ready = false
	s.mu.Unlock()
	s.forward.Wait()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Snapshot returns the latest state of a known session.
func (s *Service) Snapshot(sessionID string) (session.Snapshot, bool) {
	s.mu.Lock()
	t := s.sessions[sessionID]
	s.mu.Unlock()
	if t == nil {
		return session.Snapshot{}, false
	}
	return t.ctrl.Snapshot(), true
}

func (s *Service) unsubscribeAll() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Service) loop() {
	defer s.work.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgs:
			s.dispatch(msg)
		}
	}
}

func (s *Service) dispatch(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectSessionControl:
		var cmd protocol.SessionCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			s.logger.Warn("failed to decode session command", slogError(err))
			return
		}
		if cmd.SessionID == "" {
			s.logger.Warn("session command without session id", slog.String("action", cmd.Action))
			return
		}
		switch cmd.Action {
		case protocol.ActionStart:
			s.start(cmd.SessionID)
		case protocol.ActionStop:
			s.stop(cmd.SessionID)
		default:
			s.logger.Warn("unknown session action", slog.String("action", cmd.Action))
		}
	case protocol.SubjectTranscriptPartial, protocol.SubjectTranscriptFinal:
		var tr protocol.Transcript
		if err := json.Unmarshal(msg.Data, &tr); err != nil {
			s.logger.Warn("failed to decode transcript", slogError(err))
			return
		}
		s.transcript(tr, msg.Subject == protocol.SubjectTranscriptFinal)
	}
}

func (s *Service) start(sessionID string) {
	t := s.session(sessionID)
	if t.analyzing != nil {
		select {
		case <-t.analyzing:
		case <-s.ctx.Done():
			return
		}
	}
	snap, err := t.ctrl.Start()
	if err != nil {
		s.logger.Info("start ignored",
			slog.String("session_id", sessionID),
			slog.String("state", snap.State.String()),
			slogError(err))
		return
	}
	s.logger.Info("recording started",
		slog.String("session_id", sessionID),
		slog.String("cycle_id", snap.CycleID))

	ctx := context.WithoutCancel(s.ctx)
	if err := s.store.BeginCycle(ctx, sessionID, snap.CycleID); err != nil {
		s.logger.Warn("failed to record cycle", slogError(err))
		return
	}
	payload := map[string]any{"started_at": snap.StartedAt}
	if err := s.store.AppendJSON(ctx, sessionID, snap.CycleID, "", eventstore.KindSessionStarted, payload); err != nil {
		s.logger.Warn("failed to record session start", slogError(err))
	}
}

func (s *Service) transcript(tr protocol.Transcript, final bool) {
	s.mu.Lock()
	t := s.sessions[tr.SessionID]
	s.mu.Unlock()
	if t == nil {
		s.logger.Debug("transcript for unknown session", slog.String("session_id", tr.SessionID))
		return
	}
	if tr.Unavailable {
		s.logger.Warn("transcription unavailable", slog.String("session_id", tr.SessionID))
	}
	if !t.ctrl.UpdateTranscript(tr.Text) {
		s.logger.Debug("transcript ignored outside recording", slog.String("session_id", tr.SessionID))
		return
	}
	if final && s.cfg.StopOnFinal {
		s.stop(tr.SessionID)
	}
}

func (s *Service) stop(sessionID string) {
	s.mu.Lock()
	t := s.sessions[sessionID]
	s.mu.Unlock()
	if t == nil {
		return
	}
	frozen, ok := t.ctrl.Freeze()
	if !ok {
		return
	}
	s.logger.Info("recording stopped",
		slog.String("session_id", sessionID),
		slog.String("cycle_id", frozen.CycleID))

	done := make(chan struct{})
	t.analyzing = done
	s.work.Add(1)
	go func() {
		defer s.work.Done()
		defer close(done)
		ctx, span := s.tracer.Start(context.WithoutCancel(s.ctx), "keywords.analyze",
			trace.WithAttributes(
				attribute.String("session.id", sessionID),
				attribute.String("cycle.id", frozen.CycleID)))
		defer span.End()

		snap, analyzed := t.ctrl.Finish()
		if !analyzed {
			return
		}
		span.SetAttributes(
			attribute.String("outcome", string(snap.Outcome)),
			attribute.Int("keywords", len(snap.Keywords)))

		var traceID string
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		s.record(ctx, sessionID, traceID, snap)
		s.publishSummary(sessionID, traceID, snap)
	}()
}

func (s *Service) record(ctx context.Context, sessionID, traceID string, snap session.Snapshot) {
	frozen := map[string]any{"transcript": snap.Transcript, "stopped_at": snap.StoppedAt}
	if err := s.store.AppendJSON(ctx, sessionID, snap.CycleID, traceID, eventstore.KindTranscriptFrozen, frozen); err != nil {
		s.logger.Warn("failed to record frozen transcript", slogError(err))
	}
	produced := map[string]any{
		"keywords": snap.Keywords,
		"summary":  snap.Summary,
		"outcome":  snap.Outcome,
	}
	if err := s.store.AppendJSON(ctx, sessionID, snap.CycleID, traceID, eventstore.KindSummaryProduced, produced); err != nil {
		s.logger.Warn("failed to record summary", slogError(err))
	}
}

func (s *Service) publishSummary(sessionID, traceID string, snap session.Snapshot) {
	msg := protocol.KeywordSummary{
		SessionID:  sessionID,
		CycleID:    snap.CycleID,
		Transcript: snap.Transcript,
		Keywords:   snap.Keywords,
		Summary:    snap.Summary,
		Outcome:    string(snap.Outcome),
		TraceID:    traceID,
		Timestamp:  time.Now().UTC(),
	}
	if msg.Keywords == nil {
		msg.Keywords = []string{}
	}
	if err := s.bus.PublishJSON(protocol.SubjectKeywordSummary, msg); err != nil {
		s.logger.Warn("failed to publish keyword summary", slogError(err))
		return
	}
	s.logger.Info("keyword summary published",
		slog.String("session_id", sessionID),
		slog.String("cycle_id", snap.CycleID),
		slog.String("outcome", string(snap.Outcome)),
		slog.Int("keywords", len(snap.Keywords)))
}

// session returns the tracked session, creating its controller and state
// forwarder on first use.
func (s *Service) session(sessionID string) *tracked {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.sessions[sessionID]; ok {
		return t
	}
	ctrl := session.New(s.analyzer,
		session.WithDelay(time.Duration(s.cfg.DelayMS)*time.Millisecond),
		session.WithLogger(s.logger.With(slog.String("session_id", sessionID))))
	updates, unsubscribe := ctrl.Subscribe()
	t := &tracked{ctrl: ctrl, unsubscribe: unsubscribe}
	s.sessions[sessionID] = t

	s.forward.Add(1)
	go func() {
		defer s.forward.Done()
		for snap := range updates {
			s.publishState(sessionID, snap)
		}
	}()
	return t
}

func (s *Service) publishState(sessionID string, snap session.Snapshot) {
	msg := protocol.SessionState{
		SessionID:  sessionID,
		CycleID:    snap.CycleID,
		State:      snap.State.String(),
		Transcript: snap.Transcript,
		Summary:    snap.Summary,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectSessionStatePrefix+"."+sessionID, msg); err != nil {
		s.logger.Debug("failed to publish session state", slogError(err))
	}
}

type instruments struct {
	sessions  metric.Int64Counter
	extracted metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	sessions, err := meter.Int64Counter("loqa.keywords.sessions",
		metric.WithDescription("Analyzed recording cycles by outcome"))
	if err != nil {
		return nil, err
	}
	extracted, err := meter.Int64Counter("loqa.keywords.extracted",
		metric.WithDescription("Keywords emitted across all cycles"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("loqa.keywords.analysis.duration",
		metric.WithDescription("Time spent extracting keywords"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &instruments{sessions: sessions, extracted: extracted, duration: duration}, nil
}

type instrumentedAnalyzer struct {
	next session.Analyzer
	inst *instruments
}

func (a instrumentedAnalyzer) Analyze(transcript string) keywords.Result {
	begin := time.Now()
	res := a.next.Analyze(transcript)
	ctx := context.Background()
	a.inst.duration.Record(ctx, time.Since(begin).Seconds())
	a.inst.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	a.inst.extracted.Add(ctx, int64(len(res.Keywords)))
	return res
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
