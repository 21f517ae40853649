// Package entry manages Synced Select config entries.
//
// An entry is a named group of select or input_select entities. Each loaded
// entry runs one Aggregator and one Proxy from package syncedselect; the
// proxy is exposed to Home Assistant through an EntityPublisher.
//
// # Lifecycle
//
//	Create ──► Repository.Create ──► Setup ──► Instance{Aggregator, Proxy}
//	                                   │
//	UpdateOptions ──► Repository ──────┘ (unload + setup again)
//	Unload ──► Aggregator.Unload, Proxy.Close (entity kept)
//	Delete ──► Unload ──► EntityPublisher.Remove ──► Repository.Delete
//
// Source entities come from the reconfigured list when one was saved,
// otherwise from the list given at creation.
//
// # Proxy entity ID
//
// The proxy entity is named after the entry, so its ID is
// select.<slug of name>_synced_select. An entry may never list its own proxy
// entity as a source.
//
// # Usage
//
//	mgr := entry.NewManager(entry.Deps{
//	    Repo:       entry.NewSQLiteRepository(db.DB),
//	    States:     sources,
//	    Tracker:    sources,
//	    Dispatcher: sources,
//	    Candidates: sources,
//	    Entities:   publisher,
//	})
//	defer mgr.Close()
//
//	if _, err := mgr.LoadAll(ctx); err != nil {
//	    return err
//	}
//	e, err := mgr.Create(ctx, "Living Room", []string{"select.tv_input", "select.soundbar_input"})
package entry
