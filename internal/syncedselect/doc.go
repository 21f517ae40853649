// Package syncedselect implements the synced select core: one proxy select
// entity that drives several source select entities at once.
//
// # Architecture
//
//	┌──────────────┐  state changes   ┌──────────────┐  options   ┌───────────┐
//	│ ChangeTracker│─────────────────▶│  Aggregator  │───────────▶│   Proxy   │
//	└──────────────┘                  │ (intersect)  │            │           │
//	┌──────────────┐  SourceState     │              │            │ select ──▶ Dispatcher (per source)
//	│ StateReader  │─────────────────▶└──────────────┘            │ reset  ──▶ Scheduler (250 ms)
//	└──────────────┘                                              └─────┬─────┘
//	                                                                    ▼
//	                                                                Publisher
//
// The Aggregator computes the options offered by every source (set
// intersection, first-appearance order). The Proxy displays those options,
// forwards a selection to every source and clears its own selection shortly
// afterwards so the same option can be chosen again.
//
// The package has no knowledge of Home Assistant, MQTT or storage. Hosts
// provide StateReader, ChangeTracker, Dispatcher and Publisher
// implementations.
//
// # Usage
//
//	agg := syncedselect.NewAggregator(refs, states, tracker)
//	proxy := syncedselect.NewProxy(syncedselect.ProxyOptions{
//	    Refs:       refs,
//	    Dispatcher: dispatcher,
//	    Publisher:  publisher,
//	})
//	agg.AddListener(proxy.OnAggregatorUpdate)
//	agg.Start(ctx)
//	if _, err := agg.Refresh(ctx); err != nil {
//	    return err
//	}
//
//	_ = proxy.SelectOption("HDMI 1")
package syncedselect
