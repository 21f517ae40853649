package syncedselect

import (
	"context"
	"sync"
	"time"
)

// defaultDispatchTimeout bounds a single fan-out command.
const defaultDispatchTimeout = 10 * time.Second

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	// Refs are the sources every selection is forwarded to.
	Refs []SourceRef

	Dispatcher Dispatcher
	Publisher  Publisher

	// Scheduler defaults to time.AfterFunc.
	Scheduler Scheduler

	// ResetDelay defaults to DefaultResetDelay.
	ResetDelay time.Duration

	// DispatchTimeout defaults to 10 seconds.
	DispatchTimeout time.Duration

	Logger Logger
}

// Proxy is the user-facing select entity.
//
// It displays the aggregated options and forwards a selection to every
// source. The displayed selection is cleared ResetDelay after the most
// recent SelectOption call, so the entity acts as a momentary trigger
// rather than a mirrored state. A newer selection cancels the pending
// reset of an older one.
//
// All public methods are thread-safe.
type Proxy struct {
	refs            []SourceRef
	dispatcher      Dispatcher
	publisher       Publisher
	scheduler       Scheduler
	resetDelay      time.Duration
	dispatchTimeout time.Duration
	logger          Logger

	// pubMu keeps publications in the same order as the state changes.
	pubMu sync.Mutex

	mu         sync.Mutex
	state      ProxyState
	generation uint64
	resetTimer Timer
	closed     bool

	inflight sync.WaitGroup
}

// NewProxy creates a proxy with no options and no selection.
func NewProxy(opts ProxyOptions) *Proxy {
	p := &Proxy{
		refs:            make([]SourceRef, len(opts.Refs)),
		dispatcher:      opts.Dispatcher,
		publisher:       opts.Publisher,
		scheduler:       opts.Scheduler,
		resetDelay:      opts.ResetDelay,
		dispatchTimeout: opts.DispatchTimeout,
		logger:          opts.Logger,
		state:           ProxyState{Options: []string{}},
	}
	copy(p.refs, opts.Refs)

	if p.scheduler == nil {
		p.scheduler = realScheduler{}
	}
	if p.resetDelay <= 0 {
		p.resetDelay = DefaultResetDelay
	}
	if p.dispatchTimeout <= 0 {
		p.dispatchTimeout = defaultDispatchTimeout
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.publisher == nil {
		p.publisher = Publishers(nil)
	}

	return p
}

// State returns a copy of the current proxy state.
func (p *Proxy) State() ProxyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// OnAggregatorUpdate replaces the displayed options.
// The current selection is left untouched.
func (p *Proxy) OnAggregatorUpdate(options []string) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state.Options = cloneStrings(options)
	snapshot := p.state.clone()
	p.mu.Unlock()

	p.publisher.Publish(snapshot)
}

// SelectOption shows value as selected, forwards it to every source and
// schedules the reset.
//
// The value is not checked against the displayed options; callers that
// accept user input validate it first. Dispatches run in the background
// and SelectOption does not wait for them. A failing source never stops
// the others from receiving the command.
func (p *Proxy) SelectOption(value string) error {
	gen, err := p.markSelected(value)
	if err != nil {
		return err
	}

	for _, ref := range p.refs {
		p.dispatch(Command{Ref: ref, Value: value})
	}

	p.scheduleReset(gen)
	return nil
}

// markSelected records the selection, cancels any pending reset and publishes.
func (p *Proxy) markSelected(value string) (uint64, error) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	v := value
	p.state.CurrentOption = &v
	p.generation++
	gen := p.generation
	if p.resetTimer != nil {
		p.resetTimer.Stop()
		p.resetTimer = nil
	}
	snapshot := p.state.clone()
	p.mu.Unlock()

	p.publisher.Publish(snapshot)
	return gen, nil
}

func (p *Proxy) scheduleReset(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A newer selection owns the reset now.
	if p.closed || gen != p.generation {
		return
	}
	p.resetTimer = p.scheduler.AfterFunc(p.resetDelay, func() {
		p.reset(gen)
	})
}

// reset clears the selection made at generation gen, if it is still current.
func (p *Proxy) reset(gen uint64) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if p.closed || gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.state.CurrentOption = nil
	p.resetTimer = nil
	snapshot := p.state.clone()
	p.mu.Unlock()

	p.publisher.Publish(snapshot)
}

func (p *Proxy) dispatch(cmd Command) {
	if p.dispatcher == nil {
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("dispatch panic recovered",
					"source", string(cmd.Ref),
					"panic", r,
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.dispatchTimeout)
		defer cancel()

		if err := p.dispatcher.Dispatch(ctx, cmd); err != nil {
			p.logger.Warn("select option dispatch failed",
				"source", string(cmd.Ref),
				"option", cmd.Value,
				"error", err,
			)
			return
		}
		p.logger.Debug("select option dispatched",
			"source", string(cmd.Ref),
			"option", cmd.Value,
		)
	}()
}

// Wait blocks until every dispatched command has completed.
func (p *Proxy) Wait() {
	p.inflight.Wait()
}

// Close cancels the pending reset. Later calls to SelectOption fail with
// ErrClosed and later updates are ignored. In-flight dispatches still finish.
func (p *Proxy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.resetTimer != nil {
		p.resetTimer.Stop()
		p.resetTimer = nil
	}
}
