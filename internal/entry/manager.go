package entry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/synced-select/internal/infrastructure/config"
	"github.com/nerrad567/synced-select/internal/syncedselect"
)

// EntityPublisher makes proxy entities visible to Home Assistant.
type EntityPublisher interface {
	// Announce creates or updates the entity definition with the given options.
	Announce(e *Entry, options []string) error
	// PublishState reports the current selection.
	PublishState(e *Entry, state syncedselect.ProxyState) error
	// Remove deletes the entity definition.
	Remove(e *Entry) error
}

// Recorder stores selection telemetry.
type Recorder interface {
	RecordSelection(entryID, option string, sources int)
	RecordOptions(entryID string, count int)
}

// CandidateLister lists every entity that can act as a source.
type CandidateLister interface {
	SelectEntityIDs() []string
	// EntityIDsWithAttribute finds entities by a string attribute value.
	EntityIDsWithAttribute(key, value string) []string
}

// StateListener is told about every proxy state change.
type StateListener func(entryID string, state syncedselect.ProxyState)

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

// Deps are the collaborators of a Manager. Repo, States, Tracker and
// Dispatcher are required; the rest are optional.
type Deps struct {
	Repo       Repository
	States     syncedselect.StateReader
	Tracker    syncedselect.ChangeTracker
	Dispatcher syncedselect.Dispatcher
	Candidates CandidateLister
	Entities   EntityPublisher
	Recorder   Recorder

	ResetDelay      time.Duration
	DispatchTimeout time.Duration

	// Scheduler overrides the proxy reset timer (tests).
	Scheduler syncedselect.Scheduler

	Logger Logger
}

// Manager owns one running Instance per loaded entry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Manager struct {
	deps   Deps
	logger Logger

	// lifecycleMu serialises Setup, Unload and Delete.
	lifecycleMu sync.Mutex

	// insertMu serialises the entity ID check and insert of new entries.
	insertMu sync.Mutex

	mu        sync.RWMutex
	instances map[string]*Instance
	closed    bool

	listenerMu sync.RWMutex
	listeners  []StateListener

	// ctx scopes every instance's refresh worker.
	ctx    context.Context
	cancel context.CancelFunc
}

// Instance is a loaded entry: its aggregator and proxy.
type Instance struct {
	entry      *Entry
	aggregator *syncedselect.Aggregator
	proxy      *syncedselect.Proxy
	cancel     context.CancelFunc

	// mu guards the options last announced to Home Assistant.
	mu           sync.Mutex
	announced    []string
	hasAnnounced bool
}

// NewManager creates a manager with no loaded entries.
func NewManager(deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		deps:      deps,
		logger:    logger,
		instances: make(map[string]*Instance),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddStateListener registers fn for every proxy state change of every entry.
func (m *Manager) AddStateListener(fn StateListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Setup loads e: it builds the aggregator and proxy, runs the first refresh,
// announces the proxy entity and starts tracking source changes.
// An already loaded entry with the same ID is unloaded first.
func (m *Manager) Setup(ctx context.Context, e *Entry) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return errors.New("entry manager closed")
	}

	m.unload(e.ID)

	e = e.clone()
	refs := e.SourceRefs()

	inst := &Instance{entry: e}

	agg := syncedselect.NewAggregator(refs, m.deps.States, m.deps.Tracker)
	agg.SetLogger(m.logger)

	proxy := syncedselect.NewProxy(syncedselect.ProxyOptions{
		Refs:            refs,
		Dispatcher:      m.deps.Dispatcher,
		Publisher:       syncedselect.PublisherFunc(func(s syncedselect.ProxyState) { m.publish(inst, s) }),
		Scheduler:       m.deps.Scheduler,
		ResetDelay:      m.deps.ResetDelay,
		DispatchTimeout: m.deps.DispatchTimeout,
		Logger:          m.logger,
	})

	inst.aggregator = agg
	inst.proxy = proxy
	agg.AddListener(proxy.OnAggregatorUpdate)

	if _, err := agg.Refresh(ctx); err != nil {
		agg.Unload()
		proxy.Close()
		return fmt.Errorf("first refresh of entry %s: %w", e.ID, err)
	}

	workerCtx, cancel := context.WithCancel(m.ctx)
	inst.cancel = cancel
	agg.Start(workerCtx)

	m.mu.Lock()
	m.instances[e.ID] = inst
	m.mu.Unlock()

	m.logger.Info("entry loaded",
		"entry_id", e.ID,
		"name", e.Name,
		"sources", len(refs),
		"options", len(agg.Options()),
	)
	return nil
}

// publish is the proxy's Publisher. Option changes re-announce the entity.
func (m *Manager) publish(inst *Instance, s syncedselect.ProxyState) {
	e := inst.entry

	inst.mu.Lock()
	optionsChanged := !inst.hasAnnounced || !slices.Equal(inst.announced, s.Options)
	if optionsChanged {
		inst.announced = slices.Clone(s.Options)
		inst.hasAnnounced = true
	}
	inst.mu.Unlock()

	if m.deps.Entities != nil {
		if optionsChanged {
			if err := m.deps.Entities.Announce(e, s.Options); err != nil {
				m.logger.Warn("announcing proxy entity failed", "entry_id", e.ID, "error", err)
			}
		}
		if err := m.deps.Entities.PublishState(e, s); err != nil {
			m.logger.Warn("publishing proxy state failed", "entry_id", e.ID, "error", err)
		}
	}

	if optionsChanged && m.deps.Recorder != nil {
		m.deps.Recorder.RecordOptions(e.ID, len(s.Options))
	}

	m.listenerMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(e.ID, s)
	}
}

// Unload stops the instance of entryID, if loaded. The Home Assistant
// entity is kept so a reload does not lose its customisation.
func (m *Manager) Unload(entryID string) bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.unload(entryID)
}

func (m *Manager) unload(entryID string) bool {
	m.mu.Lock()
	inst, ok := m.instances[entryID]
	delete(m.instances, entryID)
	m.mu.Unlock()

	if !ok {
		return false
	}

	inst.aggregator.Unload()
	inst.proxy.Close()
	if inst.cancel != nil {
		inst.cancel()
	}

	m.logger.Info("entry unloaded", "entry_id", entryID)
	return true
}

// Create validates and stores a new entry, then loads it.
// If loading fails the entry is not kept.
func (m *Manager) Create(ctx context.Context, name string, entities []string) (*Entry, error) {
	e, err := m.insert(ctx, name, entities)
	if err != nil {
		return nil, err
	}

	if err := m.Setup(ctx, e); err != nil {
		if delErr := m.deps.Repo.Delete(ctx, e.ID); delErr != nil {
			m.logger.Warn("removing entry after failed setup", "entry_id", e.ID, "error", delErr)
		}
		return nil, fmt.Errorf("setting up entry: %w", err)
	}
	return e, nil
}

func (m *Manager) insert(ctx context.Context, name string, entities []string) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	e := &Entry{
		ID:   uuid.NewString(),
		Name: strings.TrimSpace(name),
	}
	normalized, err := NormalizeEntities(entities, e.ProxyEntityID())
	if err != nil {
		return nil, err
	}
	e.Entities = normalized

	m.insertMu.Lock()
	defer m.insertMu.Unlock()

	// Names that differ only in case or punctuation share an entity ID.
	existing, err := m.deps.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	for i := range existing {
		if existing[i].ObjectID() == e.ObjectID() {
			return nil, fmt.Errorf("%w: %q maps to the same entity as %q",
				ErrEntryExists, e.Name, existing[i].Name)
		}
	}

	if err := m.deps.Repo.Create(ctx, e); err != nil {
		return nil, err
	}

	m.logger.Info("entry created", "entry_id", e.ID, "name", e.Name, "entities", e.Entities)
	return e, nil
}

// UpdateOptions replaces the source entities of entryID and reloads it.
func (m *Manager) UpdateOptions(ctx context.Context, entryID string, entities []string) (*Entry, error) {
	e, err := m.deps.Repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	normalized, err := NormalizeEntities(entities, m.ownEntityIDs(e)...)
	if err != nil {
		return nil, err
	}

	if err := m.deps.Repo.UpdateOptions(ctx, entryID, normalized); err != nil {
		return nil, err
	}

	updated, err := m.deps.Repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := m.Setup(ctx, updated); err != nil {
		return updated, fmt.Errorf("reloading entry: %w", err)
	}
	return updated, nil
}

// Delete unloads entryID, removes its Home Assistant entity and deletes it.
func (m *Manager) Delete(ctx context.Context, entryID string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	e, err := m.deps.Repo.Get(ctx, entryID)
	if err != nil {
		return err
	}

	m.unload(entryID)

	if m.deps.Entities != nil {
		if err := m.deps.Entities.Remove(e); err != nil {
			m.logger.Warn("removing proxy entity failed", "entry_id", entryID, "error", err)
		}
	}

	if err := m.deps.Repo.Delete(ctx, entryID); err != nil {
		return err
	}
	m.logger.Info("entry deleted", "entry_id", entryID, "name", e.Name)
	return nil
}

func (m *Manager) instance(entryID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[entryID]
	return inst, ok
}

// loadedInstance returns the instance of entryID, or ErrEntryNotFound when
// the entry does not exist and ErrNotLoaded when it exists but is not running.
func (m *Manager) loadedInstance(ctx context.Context, entryID string) (*Instance, error) {
	if inst, ok := m.instance(entryID); ok {
		return inst, nil
	}
	if _, err := m.deps.Repo.Get(ctx, entryID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
}

// Select chooses option on the proxy of entryID.
// The option must be one the proxy currently offers.
func (m *Manager) Select(ctx context.Context, entryID, option string) error {
	inst, err := m.loadedInstance(ctx, entryID)
	if err != nil {
		return err
	}

	if !slices.Contains(inst.proxy.State().Options, option) {
		return fmt.Errorf("%w: %q", ErrOptionNotOffered, option)
	}

	if err := inst.proxy.SelectOption(option); err != nil {
		return err
	}

	sources := len(inst.entry.SourceEntities())
	m.logger.Info("option selected", "entry_id", entryID, "option", option, "sources", sources)
	if m.deps.Recorder != nil {
		m.deps.Recorder.RecordSelection(entryID, option, sources)
	}
	return nil
}

// Refresh recomputes the options of entryID now.
func (m *Manager) Refresh(ctx context.Context, entryID string) ([]string, error) {
	inst, err := m.loadedInstance(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return inst.aggregator.Refresh(ctx)
}

// Get returns an entry with its live state.
func (m *Manager) Get(ctx context.Context, entryID string) (*Status, error) {
	e, err := m.deps.Repo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return m.status(e), nil
}

// List returns every stored entry with its live state.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	entries, err := m.deps.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(entries))
	for i := range entries {
		out = append(out, *m.status(&entries[i]))
	}
	return out, nil
}

func (m *Manager) status(e *Entry) *Status {
	s := &Status{
		Entry:         *e,
		ProxyEntityID: e.ProxyEntityID(),
		State:         syncedselect.ProxyState{Options: []string{}},
	}
	// Prefer the ID Home Assistant actually assigned.
	if own := m.ownEntityIDs(e); len(own) > 1 {
		s.ProxyEntityID = own[1]
	}
	if inst, ok := m.instance(e.ID); ok {
		s.Loaded = true
		s.State = inst.proxy.State()
	}
	return s
}

// Candidates lists entities that may be chosen as sources for entryID.
// The entry's own proxy entity is excluded, under whatever ID Home
// Assistant gave it. An empty entryID excludes nothing.
func (m *Manager) Candidates(ctx context.Context, entryID string) ([]string, error) {
	if m.deps.Candidates == nil {
		return []string{}, nil
	}

	exclude := map[string]struct{}{}
	if entryID != "" {
		e, err := m.deps.Repo.Get(ctx, entryID)
		if err != nil {
			return nil, err
		}
		for _, id := range m.ownEntityIDs(e) {
			exclude[id] = struct{}{}
		}
	}

	all := m.deps.Candidates.SelectEntityIDs()
	out := make([]string, 0, len(all))
	for _, id := range all {
		if _, own := exclude[id]; !own {
			out = append(out, id)
		}
	}
	return out, nil
}

// ownEntityIDs returns the entity IDs Home Assistant shows e's proxy under,
// found by ProxyAttribute, plus the predicted one.
func (m *Manager) ownEntityIDs(e *Entry) []string {
	ids := []string{e.ProxyEntityID()}
	if m.deps.Candidates != nil {
		ids = append(ids, m.deps.Candidates.EntityIDsWithAttribute(ProxyAttribute, e.ID)...)
	}
	return ids
}

// LoadAll sets up every stored entry. Entries that fail are logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	entries, err := m.deps.Repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	loaded := 0
	for i := range entries {
		if err := m.Setup(ctx, &entries[i]); err != nil {
			if ctx.Err() != nil {
				return loaded, ctx.Err()
			}
			m.logger.Error("loading entry failed", "entry_id", entries[i].ID, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Seed stores configured entries whose name is not taken yet.
// Seeded entries are not loaded; call LoadAll afterwards.
func (m *Manager) Seed(ctx context.Context, seeds []config.EntryConfig) (int, error) {
	created := 0
	for _, s := range seeds {
		_, err := m.deps.Repo.GetByName(ctx, s.Name)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, ErrEntryNotFound):
			return created, fmt.Errorf("looking up entry %q: %w", s.Name, err)
		}

		if _, err := m.insert(ctx, s.Name, s.Entities); err != nil {
			if errors.Is(err, ErrEntryExists) {
				m.logger.Warn("skipping seed entry", "name", s.Name, "error", err)
				continue
			}
			return created, fmt.Errorf("seeding entry %q: %w", s.Name, err)
		}
		created++
	}
	return created, nil
}

// Republish announces every loaded entity and its state again, e.g.
// after Home Assistant restarted.
func (m *Manager) Republish() {
	m.mu.RLock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		instances = append(instances, inst)
	}
	m.mu.RUnlock()

	for _, inst := range instances {
		inst.mu.Lock()
		inst.hasAnnounced = false
		inst.mu.Unlock()
		m.publish(inst, inst.proxy.State())
	}
}

// Loaded returns the IDs of every loaded entry.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close unloads every entry. Later calls to Setup fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Unload(id)
	}
	m.cancel()
}
