package syncedselect

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeStates is an in-memory StateReader.
type fakeStates struct {
	mu     sync.Mutex
	states map[SourceRef]SourceState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[SourceRef]SourceState)}
}

func (f *fakeStates) set(ref SourceRef, options ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if options == nil {
		options = []string{}
	}
	f.states[ref] = SourceState{Available: true, Options: options}
}

func (f *fakeStates) setState(ref SourceRef, state SourceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[ref] = state
}

func (f *fakeStates) SourceState(ref SourceRef) (SourceState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[ref]
	return s, ok
}

// fakeTracker records subscriptions and lets tests fire change events.
type fakeTracker struct {
	mu        sync.Mutex
	calls     int
	cancelled int
	refs      []SourceRef
	handler   func(SourceRef)
}

func (f *fakeTracker) TrackStateChange(refs []SourceRef, handler func(SourceRef)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.refs = refs
	f.handler = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
		f.handler = nil
	}
}

func (f *fakeTracker) fire(ref SourceRef) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ref)
	}
}

func (f *fakeTracker) counts() (calls, cancelled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.cancelled
}

// fakeDispatcher records commands and fails for configured refs.
type fakeDispatcher struct {
	mu       sync.Mutex
	commands []Command
	failFor  map[SourceRef]bool
	block    chan struct{}
}

var errDispatchFailed = errors.New("dispatch failed")

func (f *fakeDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.failFor[cmd.Ref] {
		return errDispatchFailed
	}
	return nil
}

// sorted returns the recorded commands ordered by ref.
func (f *fakeDispatcher) sorted() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref != out[j].Ref {
			return out[i].Ref < out[j].Ref
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// recordingPublisher keeps every published state.
type recordingPublisher struct {
	mu     sync.Mutex
	states []ProxyState
}

func (r *recordingPublisher) Publish(s ProxyState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingPublisher) all() []ProxyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProxyState, len(r.states))
	copy(out, r.states)
	return out
}

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	due     time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, due: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// advance moves the clock forward by d and runs every timer that became due.
func (s *manualScheduler) advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.due <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].due < due[j].due })
	for _, t := range due {
		t.f()
	}
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
