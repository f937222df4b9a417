package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves a scripted sequence of statuses; the last entry repeats.
type fakeClient struct {
	mu       sync.Mutex
	statuses []*Status
	err      error
	calls    int
}

func (f *fakeClient) SessionStatus(_ context.Context, _ string) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.statuses) > 1 {
		next := f.statuses[0]
		f.statuses = f.statuses[1:]
		return next, nil
	}
	return f.statuses[0], nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitDone(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}
}

func TestInitialFetchHappensOnce(t *testing.T) {
	client := &fakeClient{statuses: []*Status{{Status: "live", Token: "tok"}}}
	w := NewWatcher(client, "s1", time.Hour, nil)

	w.Start(context.Background())
	w.Start(context.Background()) // simulated re-render
	waitDone(t, w)

	assert.Equal(t, StateLive, w.State())
	assert.Equal(t, 1, client.callCount(), "duplicate Start must not refetch")
}

func TestPollsUntilLiveThenStops(t *testing.T) {
	client := &fakeClient{statuses: []*Status{
		{Status: "scheduled"},
		{Status: "scheduled"},
		{Status: "live", Token: "tok", RTCURL: "wss://rtc.example.com"},
	}}
	var transitions []State
	var mu sync.Mutex
	w := NewWatcher(client, "s1", 5*time.Millisecond, func(to State, _ *Status) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	w.Start(context.Background())
	waitDone(t, w)

	require.Equal(t, StateLive, w.State())
	require.NotNil(t, w.Status())
	assert.Equal(t, "tok", w.Status().Token)

	calls := client.callCount()
	assert.GreaterOrEqual(t, calls, 3)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, client.callCount(), "ticker must be released after going live")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateScheduled, StateLive}, transitions)
}

func TestLiveWithoutCredentialKeepsWaiting(t *testing.T) {
	client := &fakeClient{statuses: []*Status{
		{Status: "live"}, // no token minted yet
		{Status: "live", Token: "tok"},
	}}
	w := NewWatcher(client, "s1", 5*time.Millisecond, nil)

	w.Start(context.Background())
	waitDone(t, w)

	assert.Equal(t, StateLive, w.State())
	assert.GreaterOrEqual(t, client.callCount(), 2, "must poll again until a credential arrives")
}

func TestStopReleasesTimerWhileScheduled(t *testing.T) {
	client := &fakeClient{statuses: []*Status{{Status: "scheduled"}}}
	w := NewWatcher(client, "s1", 5*time.Millisecond, nil)

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	waitDone(t, w)

	assert.Equal(t, StateScheduled, w.State())
	calls := client.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, client.callCount(), "no polling after Stop")
}

func TestContextCancelReleasesTimer(t *testing.T) {
	client := &fakeClient{statuses: []*Status{{Status: "scheduled"}}}
	w := NewWatcher(client, "s1", 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	waitDone(t, w)
}

func TestFetchFailureIsTerminal(t *testing.T) {
	client := &fakeClient{err: errors.New("network down")}
	w := NewWatcher(client, "s1", 5*time.Millisecond, nil)

	w.Start(context.Background())
	waitDone(t, w)

	assert.Equal(t, StateError, w.State())
	assert.True(t, w.State().Terminal())
}

func TestTransitionsAreForwardOnly(t *testing.T) {
	client := &fakeClient{statuses: []*Status{{Status: "live", Token: "tok"}}}
	w := NewWatcher(client, "s1", time.Hour, nil)

	w.Start(context.Background())
	waitDone(t, w)
	require.Equal(t, StateLive, w.State())

	w.MarkEnded()
	assert.Equal(t, StateEnded, w.State())

	// A stale poll response arriving after the end must not rewind.
	w.apply(&Status{Status: "scheduled"})
	assert.Equal(t, StateEnded, w.State())
	w.apply(&Status{Status: "error"})
	assert.Equal(t, StateEnded, w.State())
}

func TestEndedSessionShortCircuits(t *testing.T) {
	client := &fakeClient{statuses: []*Status{{
		Status:          "ended",
		RecordingStatus: "completed",
		RecordingKey:    "recordings/abc.mp4",
		ReplayToken:     "rt",
	}}}
	w := NewWatcher(client, "s1", 5*time.Millisecond, nil)

	w.Start(context.Background())
	waitDone(t, w)

	assert.Equal(t, StateEnded, w.State())
	assert.Equal(t, "recordings/abc.mp4", w.Status().RecordingKey)
	calls := client.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, client.callCount(), "terminal state must not start the ticker")
}
