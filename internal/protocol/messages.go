package protocol

import "time"

// AudioFrame represents PCM audio data streamed from edge devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// AudioLevel carries a normalized signal level in [0,1] for UI metering.
type AudioLevel struct {
	SessionID string    `json:"session_id"`
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript represents STT output broadcast on the bus. Unavailable marks a
// notice substituted for speech when transcription failed.
type Transcript struct {
	SessionID   string    `json:"session_id"`
	Text        string    `json:"text"`
	Partial     bool      `json:"partial"`
	Unavailable bool      `json:"unavailable,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence,omitempty"`
}

// SessionCommand starts or stops recording for a session.
type SessionCommand struct {
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState mirrors the controller snapshot for presentation clients.
type SessionState struct {
	SessionID  string    `json:"session_id"`
	CycleID    string    `json:"cycle_id"`
	State      string    `json:"state"`
	Transcript string    `json:"transcript,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// KeywordSummary is published once per analyzed recording cycle.
type KeywordSummary struct {
	SessionID  string    `json:"session_id"`
	CycleID    string    `json:"cycle_id"`
	Transcript string    `json:"transcript"`
	Keywords   []string  `json:"keywords"`
	Summary    string    `json:"summary"`
	Outcome    string    `json:"outcome"`
	TraceID    string    `json:"trace_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

const (
	SubjectAudioFramePrefix   = "audio.frame"
	SubjectAudioLevelPrefix   = "audio.level"
	SubjectTranscriptPartial  = "stt.text.partial"
	SubjectTranscriptFinal    = "stt.text.final"
	SubjectSessionControl     = "session.control"
	SubjectSessionStatePrefix = "session.state"
	SubjectKeywordSummary     = "keywords.summary"
)
