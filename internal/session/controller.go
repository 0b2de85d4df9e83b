// Package session drives one recording cycle through
// Idle → Recording → Analyzing → Done and publishes snapshots of its state
// to observers.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-keywords/internal/keywords"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateAnalyzing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateAnalyzing:
		return "analyzing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	ErrAnalyzing = errors.New("session: analysis in progress")
	ErrRecording = errors.New("session: already recording")
)

// Analyzer produces the summary for a frozen transcript.
type Analyzer interface {
	Analyze(transcript string) keywords.Result
}

// Snapshot is an immutable copy of controller state.
type Snapshot struct {
	CycleID    string
	State      State
	Transcript string
	Keywords   []string
	Summary    string
	Outcome    keywords.Outcome
	StartedAt  time.Time
	StoppedAt  time.Time
	AnalyzedAt time.Time
}

// Controller owns the state of a single session. At most one analysis runs
// at a time.
type Controller struct {
	analyzer Analyzer
	delay    time.Duration
	clock    func() time.Time
	newID    func() string
	log      *slog.Logger

	mu      sync.Mutex
	snap    Snapshot
	frozen  bool
	subs    map[int]chan Snapshot
	nextSub int
}

type Option func(*Controller)

// WithDelay pauses between freezing the transcript and analyzing it.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func New(analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		analyzer: analyzer,
		clock:    time.Now,
		newID:    uuid.NewString,
		log:      slog.New(slog.DiscardHandler),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a new recording cycle, discarding the previous transcript and
// summary.
func (c *Controller) Start() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.snap.State {
	case StateAnalyzing:
		return c.snap.clone(), ErrAnalyzing
	case StateRecording:
		return c.snap.clone(), ErrRecording
	}
	c.snap = Snapshot{
		CycleID:   c.newID(),
		State:     StateRecording,
		StartedAt: c.clock(),
	}
	c.log.Debug("recording started", slog.String("cycle_id", c.snap.CycleID))
	c.notifyLocked()
	return c.snap.clone(), nil
}

// UpdateTranscript replaces the live transcript. It reports false when the
// controller is not recording.
func (c *Controller) UpdateTranscript(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.State != StateRecording {
		return false
	}
	if c.snap.Transcript == text {
		return true
	}
	c.snap.Transcript = text
	c.notifyLocked()
	return true
}

// Stop freezes the live transcript and analyzes it, returning once the
// summary is available. Outside Recording it is a no-op that returns the
// current snapshot and false.
func (c *Controller) Stop() (Snapshot, bool) {
	if snap, ok := c.Freeze(); !ok {
		return snap, false
	}
	return c.Finish()
}

// Freeze ends recording: the live transcript becomes final and the state
// moves to Analyzing. Later updates are rejected. Finish must follow to
// produce the summary. Outside Recording it returns false.
func (c *Controller) Freeze() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.State != StateRecording {
		return c.snap.clone(), false
	}
	c.snap.State = StateAnalyzing
	c.snap.StoppedAt = c.clock()
	c.frozen = true
	c.notifyLocked()
	return c.snap.clone(), true
}

// Finish analyzes the transcript captured by Freeze and moves to Done. Only
// the first call after a Freeze runs the analysis; others return false.
func (c *Controller) Finish() (Snapshot, bool) {
	c.mu.Lock()
	if !c.frozen {
		snap := c.snap.clone()
		c.mu.Unlock()
		return snap, false
	}
	c.frozen = false
	cycleID := c.snap.CycleID
	transcript := c.snap.Transcript
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	res := c.analyzer.Analyze(transcript)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.State = StateDone
	c.snap.Keywords = res.Keywords
	c.snap.Summary = res.Summary
	c.snap.Outcome = res.Outcome
	c.snap.AnalyzedAt = c.clock()
	c.log.Debug("analysis complete",
		slog.String("cycle_id", cycleID),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("keywords", len(res.Keywords)))
	c.notifyLocked()
	return c.snap.clone(), true
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Subscribe returns a channel that always holds the most recent snapshot
// not yet received. Slow readers miss intermediate states but never block
// the controller. The returned func cancels the subscription and closes the
// channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	c.subs[id] = ch
	ch <- c.snap.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Controller) notifyLocked() {
	snap := c.snap.clone()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s Snapshot) clone() Snapshot {
	s.Keywords = append([]string(nil), s.Keywords...)
	return s
}
