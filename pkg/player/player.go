// Package player drives a replay/live viewer through the session lifecycle.
// It owns the status polling timer so callers never leak a background poll
// after the viewer goes away.
package player

import (
	"context"
	"sync"
	"time"
)

// State is a viewer lifecycle state.
type State string

const (
	StateLoading   State = "loading"
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StateEnded     State = "ended"
	StateError     State = "error"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

// rank orders states so transitions are forward-only. A stale poll response
// can never move the viewer backwards.
func rank(s State) int {
	switch s {
	case StateLoading:
		return 0
	case StateScheduled:
		return 1
	case StateLive:
		return 2
	default:
		return 3
	}
}

// Status is the session status payload the watcher consumes.
type Status struct {
	Status            string `json:"status"`
	RecordingStatus   string `json:"recording_status"`
	ParticipantsCount int    `json:"participants_count"`
	RecordingKey      string `json:"recording_key,omitempty"`
	Token             string `json:"token,omitempty"`
	RTCURL            string `json:"rtc_url,omitempty"`
	ReplayToken       string `json:"replay_token,omitempty"`
	Watermark         string `json:"watermark,omitempty"`
}

// StatusClient fetches a session's status.
type StatusClient interface {
	SessionStatus(ctx context.Context, sessionID string) (*Status, error)
}

// DefaultPollInterval is the status poll cadence while waiting for a
// scheduled session to go live.
const DefaultPollInterval = 5 * time.Second

// Watcher polls session status and walks the viewer through
// loading -> scheduled -> live -> ended (or error). Polling runs only in the
// scheduled state; entering any other state releases the timer.
type Watcher struct {
	client       StatusClient
	sessionID    string
	interval     time.Duration
	onTransition func(to State, status *Status)

	mu     sync.Mutex
	state  State
	status *Status
	cancel context.CancelFunc

	startOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a watcher for one session. onTransition may be nil;
// when set it is called from the watcher goroutine on every state change.
func NewWatcher(client StatusClient, sessionID string, interval time.Duration, onTransition func(State, *Status)) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		client:       client,
		sessionID:    sessionID,
		interval:     interval,
		onTransition: onTransition,
		state:        StateLoading,
		done:         make(chan struct{}),
	}
}

// Start begins watching. Only the first call does anything, so a re-render
// that calls Start again cannot trigger a duplicate initial fetch.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		w.mu.Unlock()
		go w.run(ctx)
	})
}

// Stop cancels any in-flight fetch and the poll timer. Safe to call more
// than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the watcher goroutine has exited and the timer is
// released.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns the last status payload seen, or nil.
func (w *Watcher) Status() *Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// MarkEnded signals that the live connection finished (the user left or the
// provider closed the room).
func (w *Watcher) MarkEnded() {
	w.transition(StateEnded, nil)
	w.Stop()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	status, err := w.client.SessionStatus(ctx, w.sessionID)
	if err != nil {
		w.transition(StateError, nil)
		return
	}
	w.apply(status)
	if w.State() != StateScheduled {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := w.client.SessionStatus(ctx, w.sessionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.transition(StateError, nil)
				return
			}
			w.apply(status)
			if w.State() != StateScheduled {
				return
			}
		}
	}
}

// apply maps a status payload onto the state machine. Going live requires a
// join credential in the payload; until one is minted the viewer keeps
// waiting.
func (w *Watcher) apply(status *Status) {
	switch status.Status {
	case "scheduled":
		w.transition(StateScheduled, status)
	case "live":
		if status.Token != "" {
			w.transition(StateLive, status)
		} else {
			w.transition(StateScheduled, status)
		}
	case "ended":
		w.transition(StateEnded, status)
	case "error":
		w.transition(StateError, status)
	}
}

func (w *Watcher) transition(to State, status *Status) {
	w.mu.Lock()
	if status != nil {
		w.status = status
	}
	if to == w.state || rank(to) <= rank(w.state) {
		w.mu.Unlock()
		return
	}
	w.state = to
	cb := w.onTransition
	w.mu.Unlock()

	if cb != nil {
		cb(to, status)
	}
}
