package syncedselect

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Aggregator maintains the options shared by every configured source.
//
// The result is recomputed on Refresh and, once the first refresh has
// completed, whenever any tracked source reports a change. Listeners are
// notified after every recomputation, whether or not the result changed.
//
// All public methods are thread-safe.
type Aggregator struct {
	refs    []SourceRef
	states  StateReader
	tracker ChangeTracker
	logger  Logger

	// refreshMu serialises recomputations so listeners observe results in order.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	options     []string
	refreshed   bool
	unloaded    bool
	cancelTrack func()
	listeners   map[uint64]func([]string)
	nextID      uint64

	// trigger holds at most one pending refresh request.
	trigger chan struct{}
	done    chan struct{}
}

// NewAggregator creates an aggregator over refs.
// The ref list is copied and never modified afterwards.
func NewAggregator(refs []SourceRef, states StateReader, tracker ChangeTracker) *Aggregator {
	owned := make([]SourceRef, len(refs))
	copy(owned, refs)

	return &Aggregator{
		refs:      owned,
		states:    states,
		tracker:   tracker,
		logger:    noopLogger{},
		options:   []string{},
		listeners: make(map[uint64]func([]string)),
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// Refs returns a copy of the configured source refs.
func (a *Aggregator) Refs() []SourceRef {
	out := make([]SourceRef, len(a.refs))
	copy(out, a.refs)
	return out
}

// Options returns the most recently computed shared options.
func (a *Aggregator) Options() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneStrings(a.options)
}

// Refresh recomputes the shared options from the live source states.
//
// Sources that are missing, unavailable or carry no option list contribute
// nothing; they never abort the refresh. The first successful refresh
// subscribes to change notifications for every ref.
func (a *Aggregator) Refresh(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refreshing options: %w", err)
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	if a.isUnloaded() {
		return nil, ErrUnloaded
	}

	options := intersect(a.refs, a.states, a.logger)

	a.mu.Lock()
	if a.unloaded {
		a.mu.Unlock()
		return nil, ErrUnloaded
	}
	a.options = options
	first := !a.refreshed
	a.refreshed = true
	listeners := make([]func([]string), 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	if first {
		a.subscribe()
	}

	a.logger.Debug("options refreshed",
		"sources", len(a.refs),
		"options", options,
	)

	for _, l := range listeners {
		l(cloneStrings(options))
	}

	return cloneStrings(options), nil
}

// RequestRefresh schedules an asynchronous refresh and returns immediately.
// Requests made while one is pending are coalesced.
func (a *Aggregator) RequestRefresh() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Start runs the refresh worker until ctx is cancelled or Unload is called.
func (a *Aggregator) Start(ctx context.Context) {
	go a.run(ctx)
}

func (a *Aggregator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-a.trigger:
			if _, err := a.Refresh(ctx); err != nil && !errors.Is(err, ErrUnloaded) && ctx.Err() == nil {
				a.logger.Warn("scheduled refresh failed", "error", err)
			}
		}
	}
}

// AddListener registers fn to receive every recomputed option list.
// The returned function removes the listener.
func (a *Aggregator) AddListener(fn func([]string)) (remove func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	if a.listeners != nil {
		a.listeners[id] = fn
	}

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Unload detaches the change subscription and stops the worker.
//
// Safe to call when no refresh ever completed, and safe to call twice.
// In-flight refreshes finish but their results are discarded.
func (a *Aggregator) Unload() {
	a.mu.Lock()
	if a.unloaded {
		a.mu.Unlock()
		return
	}
	a.unloaded = true
	cancel := a.cancelTrack
	a.cancelTrack = nil
	a.listeners = nil
	a.mu.Unlock()

	close(a.done)
	if cancel != nil {
		cancel()
	}
}

func (a *Aggregator) isUnloaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unloaded
}

// subscribe registers for change notifications exactly once.
func (a *Aggregator) subscribe() {
	if a.tracker == nil || len(a.refs) == 0 {
		return
	}

	cancel := a.tracker.TrackStateChange(a.Refs(), a.handleStateChange)

	a.mu.Lock()
	if a.unloaded {
		a.mu.Unlock()
		cancel()
		return
	}
	a.cancelTrack = cancel
	a.mu.Unlock()

	a.logger.Debug("tracking source changes", "sources", len(a.refs))
}

func (a *Aggregator) handleStateChange(ref SourceRef) {
	a.logger.Debug("source changed", "source", string(ref))
	a.RequestRefresh()
}

// intersect returns every option offered by all refs, in first-appearance order.
// An empty ref list yields an empty result.
func intersect(refs []SourceRef, states StateReader, logger Logger) []string {
	total := len(refs)
	if total == 0 {
		return []string{}
	}

	counts := make(map[string]int)
	var order []string

	for _, ref := range refs {
		state, ok := states.SourceState(ref)
		switch {
		case !ok:
			logger.Debug("source not found", "source", string(ref))
			continue
		case !state.Available:
			logger.Debug("source unavailable", "source", string(ref))
			continue
		case state.Options == nil:
			logger.Debug("source has no options", "source", string(ref))
			continue
		}

		seen := make(map[string]struct{}, len(state.Options))
		for _, opt := range state.Options {
			if _, dup := seen[opt]; dup {
				continue
			}
			seen[opt] = struct{}{}
			if counts[opt] == 0 {
				order = append(order, opt)
			}
			counts[opt]++
		}
	}

	shared := make([]string, 0, len(order))
	for _, opt := range order {
		if counts[opt] == total {
			shared = append(shared, opt)
		}
	}
	return shared
}
