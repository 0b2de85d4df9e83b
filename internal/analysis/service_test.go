package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-keywords/internal/bus"
	"github.com/loqalabs/loqa-keywords/internal/bus/bustest"
	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/eventstore"
	"github.com/loqalabs/loqa-keywords/internal/keywords"
	"github.com/loqalabs/loqa-keywords/internal/protocol"
	"github.com/loqalabs/loqa-keywords/internal/session"
	"github.com/loqalabs/loqa-keywords/internal/stt"
	"github.com/loqalabs/loqa-keywords/internal/tagger"
)

func startService(t *testing.T, client *bus.Client, cfg config.AnalysisConfig, storeCfg config.EventStoreConfig) (*Service, *eventstore.Store) {
	t.Helper()
	store, err := eventstore.Open(context.Background(), storeCfg, bustest.Logger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	extractor := keywords.NewExtractor(tagger.NewPlainTagger())
	svc := NewService(context.Background(), cfg, client, extractor, store, bustest.Logger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, store
}

func subscribe(t *testing.T, client *bus.Client, subject string) *nats.Subscription {
	t.Helper()
	sub, err := client.Conn().SubscribeSync(subject)
	if err != nil {
		t.Fatalf("subscribe %s: %v", subject, err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return sub
}

func publish(t *testing.T, client *bus.Client, subject string, v any) {
	t.Helper()
	if err := client.PublishJSON(subject, v); err != nil {
		t.Fatalf("publish %s: %v", subject, err)
	}
}

func control(t *testing.T, client *bus.Client, sessionID, action string) {
	t.Helper()
	publish(t, client, protocol.SubjectSessionControl, protocol.SessionCommand{SessionID: sessionID, Action: action})
}

func message(t *testing.T, subject string, v any) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", subject, err)
	}
	return &nats.Msg{Subject: subject, Data: data}
}

func awaitSummary(t *testing.T, sub *nats.Subscription) protocol.KeywordSummary {
	t.Helper()
	msg, err := sub.NextMsg(3 * time.Second)
	if err != nil {
		t.Fatalf("await summary: %v", err)
	}
	var summary protocol.KeywordSummary
	if err := json.Unmarshal(msg.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return summary
}

func TestSessionCycleOverBus(t *testing.T) {
	client := bustest.Start(t)
	svc, _ := startService(t, client, config.AnalysisConfig{Enabled: true}, config.EventStoreConfig{RetentionMode: "ephemeral"})
	summaries := subscribe(t, client, protocol.SubjectKeywordSummary)

	control(t, client, "kitchen", protocol.ActionStart)
	publish(t, client, protocol.SubjectTranscriptPartial, protocol.Transcript{SessionID: "kitchen", Text: "the extraordinary", Partial: true})
	publish(t, client, protocol.SubjectTranscriptPartial, protocol.Transcript{
		SessionID: "kitchen",
		Text:      "the extraordinary circumstances surprised everyone",
		Partial:   true,
	})
	control(t, client, "kitchen", protocol.ActionStop)
	control(t, client, "kitchen", protocol.ActionStop)

	summary := awaitSummary(t, summaries)
	want := []string{"extraordinary", "circumstances", "surprised", "everyone"}
	if diff := cmp.Diff(want, summary.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	wantSummary := "Key terms detected:\n• Extraordinary\n• Circumstances\n• Surprised\n• Everyone"
	if summary.Summary != wantSummary {
		t.Fatalf("unexpected summary %q", summary.Summary)
	}
	if summary.Outcome != string(keywords.OutcomeKeywords) || summary.SessionID != "kitchen" || summary.CycleID == "" {
		t.Fatalf("unexpected summary envelope %+v", summary)
	}

	if _, err := summaries.NextMsg(200 * time.Millisecond); !errors.Is(err, nats.ErrTimeout) {
		t.Fatalf("expected a single summary per cycle, got err=%v", err)
	}

	snap, ok := svc.Snapshot("kitchen")
	if !ok {
		t.Fatal("expected kitchen session to be tracked")
	}
	if snap.State != session.StateDone || snap.CycleID != summary.CycleID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := svc.Snapshot("garage"); ok {
		t.Fatal("unexpected snapshot for unknown session")
	}
}

func TestFinalTranscriptStopsSession(t *testing.T) {
	client := bustest.Start(t)
	startService(t, client, config.AnalysisConfig{Enabled: true, StopOnFinal: true}, config.EventStoreConfig{RetentionMode: "ephemeral"})
	summaries := subscribe(t, client, protocol.SubjectKeywordSummary)

	control(t, client, "hall", protocol.ActionStart)
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "hall", Text: "hi"})

	summary := awaitSummary(t, summaries)
	if summary.Summary != keywords.TooShortMessage || summary.Outcome != string(keywords.OutcomeTooShort) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Keywords) != 0 {
		t.Fatalf("expected no keywords, got %v", summary.Keywords)
	}
}

func TestFinalTranscriptWithoutStopOnFinal(t *testing.T) {
	client := bustest.Start(t)
	svc, _ := startService(t, client, config.AnalysisConfig{Enabled: true}, config.EventStoreConfig{RetentionMode: "ephemeral"})

	control(t, client, "den", protocol.ActionStart)
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "den", Text: "still recording here"})
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, ok := svc.Snapshot("den")
		if ok && snap.Transcript == "still recording here" {
			if snap.State != session.StateRecording {
				t.Fatalf("expected session to keep recording, got %v", snap.State)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for transcript, last snapshot %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionStatePublished(t *testing.T) {
	client := bustest.Start(t)
	startService(t, client, config.AnalysisConfig{Enabled: true}, config.EventStoreConfig{RetentionMode: "ephemeral"})
	states := subscribe(t, client, protocol.SubjectSessionStatePrefix+".office")

	control(t, client, "office", protocol.ActionStart)
	control(t, client, "office", protocol.ActionStop)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := states.NextMsg(time.Until(deadline))
		if err != nil {
			break
		}
		var state protocol.SessionState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if state.State == session.StateDone.String() {
			if state.Summary != keywords.TooShortMessage {
				t.Fatalf("unexpected summary in state %q", state.Summary)
			}
			return
		}
	}
	t.Fatal("did not observe done state")
}

func TestCycleTimelineRecorded(t *testing.T) {
	client := bustest.Start(t)
	storeCfg := config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}
	_, store := startService(t, client, config.AnalysisConfig{Enabled: true}, storeCfg)
	summaries := subscribe(t, client, protocol.SubjectKeywordSummary)

	control(t, client, "study", protocol.ActionStart)
	publish(t, client, protocol.SubjectTranscriptPartial, protocol.Transcript{SessionID: "study", Text: "wonderful afternoon", Partial: true})
	control(t, client, "study", protocol.ActionStop)
	summary := awaitSummary(t, summaries)

	events, err := store.ListCycleEvents(context.Background(), summary.CycleID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var kinds []eventstore.Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		if e.SessionID != "study" {
			t.Fatalf("unexpected session id %q", e.SessionID)
		}
	}
	want := []eventstore.Kind{eventstore.KindSessionStarted, eventstore.KindTranscriptFrozen, eventstore.KindSummaryProduced}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledServiceIsHealthy(t *testing.T) {
	client := bustest.Start(t)
	svc, _ := startService(t, client, config.AnalysisConfig{}, config.EventStoreConfig{RetentionMode: "ephemeral"})
	if !svc.Healthy() {
		t.Fatal("expected disabled service to report healthy")
	}
}

func TestStopFreezesBeforeLaterMessages(t *testing.T) {
	client := bustest.Start(t)
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, bustest.Logger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	cfg := config.AnalysisConfig{Enabled: true, DelayMS: 50}
	svc := NewService(context.Background(), cfg, client, keywords.NewExtractor(tagger.NewPlainTagger()), store, bustest.Logger())
	t.Cleanup(svc.Close)
	summaries := subscribe(t, client, protocol.SubjectKeywordSummary)

	svc.dispatch(message(t, protocol.SubjectSessionControl, protocol.SessionCommand{SessionID: "attic", Action: protocol.ActionStart}))
	svc.dispatch(message(t, protocol.SubjectTranscriptPartial, protocol.Transcript{SessionID: "attic", Text: "captured everything important", Partial: true}))
	svc.dispatch(message(t, protocol.SubjectSessionControl, protocol.SessionCommand{SessionID: "attic", Action: protocol.ActionStop}))
	svc.dispatch(message(t, protocol.SubjectTranscriptPartial, protocol.Transcript{SessionID: "attic", Text: "late partial arrived after stop", Partial: true}))
	svc.dispatch(message(t, protocol.SubjectSessionControl, protocol.SessionCommand{SessionID: "attic", Action: protocol.ActionStart}))

	summary := awaitSummary(t, summaries)
	if summary.Transcript != "captured everything important" {
		t.Fatalf("frozen transcript was overwritten: %q", summary.Transcript)
	}
	want := []string{"everything", "important", "captured"}
	if diff := cmp.Diff(want, summary.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}

	snap, ok := svc.Snapshot("attic")
	if !ok {
		t.Fatal("expected attic session to be tracked")
	}
	if snap.State != session.StateRecording {
		t.Fatalf("expected second cycle to be recording, got %v", snap.State)
	}
	if snap.CycleID == summary.CycleID || snap.Transcript != "" {
		t.Fatalf("expected a fresh cycle, got %+v", snap)
	}
}

func TestUnavailableTranscriptIsAnalyzed(t *testing.T) {
	client := bustest.Start(t)
	startService(t, client, config.AnalysisConfig{Enabled: true, StopOnFinal: true}, config.EventStoreConfig{RetentionMode: "ephemeral"})
	summaries := subscribe(t, client, protocol.SubjectKeywordSummary)

	notice := stt.UnavailableNotice + ": recognizer offline"
	control(t, client, "cellar", protocol.ActionStart)
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "cellar", Text: notice, Unavailable: true})

	summary := awaitSummary(t, summaries)
	if summary.Transcript != notice {
		t.Fatalf("expected notice to replace the transcript, got %q", summary.Transcript)
	}
	want := []string{"transcription", "unavailable", "recognizer", "offline"}
	if diff := cmp.Diff(want, summary.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	wantSummary := "Key terms detected:\n• Transcription\n• Unavailable\n• Recognizer\n• Offline"
	if summary.Summary != wantSummary || summary.Outcome != string(keywords.OutcomeKeywords) {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
