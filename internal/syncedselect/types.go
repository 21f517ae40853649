package syncedselect

import (
	"context"
	"time"
)

// DefaultResetDelay is how long a selection stays visible on the proxy.
const DefaultResetDelay = 250 * time.Millisecond

// SourceRef names one externally-owned selectable entity (e.g. "select.tv_mode").
type SourceRef string

// SourceState is a snapshot of one source entity as seen by the aggregator.
type SourceState struct {
	// Available is false when the source reports itself unavailable.
	Available bool

	// Options is the source's current option list.
	// nil means absent or malformed; it contributes nothing.
	Options []string
}

// Command asks one source to select an option.
type Command struct {
	Ref   SourceRef `json:"ref"`
	Value string    `json:"value"`
}

// ProxyState is what the proxy entity currently displays.
type ProxyState struct {
	Options []string `json:"options"`

	// CurrentOption is nil when nothing is selected.
	CurrentOption *string `json:"current_option"`
}

// Selected returns the current option and whether one is set.
func (s ProxyState) Selected() (string, bool) {
	if s.CurrentOption == nil {
		return "", false
	}
	return *s.CurrentOption, true
}

// clone returns a copy that shares no memory with s.
func (s ProxyState) clone() ProxyState {
	out := ProxyState{Options: cloneStrings(s.Options)}
	if s.CurrentOption != nil {
		v := *s.CurrentOption
		out.CurrentOption = &v
	}
	return out
}

// StateReader looks up the live state of a source entity.
// ok is false when the entity is unknown to the host.
type StateReader interface {
	SourceState(ref SourceRef) (state SourceState, ok bool)
}

// ChangeTracker delivers change notifications for a set of sources.
// The returned function cancels the subscription.
type ChangeTracker interface {
	TrackStateChange(refs []SourceRef, handler func(ref SourceRef)) (cancel func())
}

// Dispatcher sends a command to its source entity.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// Publisher receives every ProxyState change so the host can render it.
// Publish must not block for long; it is called from selection and refresh paths.
type Publisher interface {
	Publish(state ProxyState)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(state ProxyState)

// Publish calls f(state).
func (f PublisherFunc) Publish(state ProxyState) { f(state) }

// Publishers fans a state out to several publishers in order.
type Publishers []Publisher

// Publish forwards state to every non-nil publisher.
func (ps Publishers) Publish(state ProxyState) {
	for _, p := range ps {
		if p != nil {
			p.Publish(state.clone())
		}
	}
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs a callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realScheduler schedules with time.AfterFunc.
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
