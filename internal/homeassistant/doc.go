// Package homeassistant is a client for the Home Assistant WebSocket API.
//
// It covers the subset Synced Select needs: token authentication, a local
// cache of entity states kept current by state_changed events, per-entity
// change listeners, service calls and a reconnect loop.
//
// # Protocol
//
//	client                                server
//	  │ ◀──────────── {"type":"auth_required"}
//	  │ {"type":"auth","access_token":…} ──▶
//	  │ ◀──────────── {"type":"auth_ok"} | {"type":"auth_invalid"}
//	  │ {"id":1,"type":"subscribe_events","event_type":"state_changed"} ──▶
//	  │ {"id":2,"type":"get_states"} ──▶
//	  │ ◀──────────── {"id":N,"type":"result","success":true,"result":…}
//	  │ ◀──────────── {"id":1,"type":"event","event":{…}}
//
// # Usage
//
//	client, err := homeassistant.New(cfg)
//	if err != nil {
//	    return err
//	}
//	client.SetLogger(log.Component("homeassistant"))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	go client.Run(ctx)
//
//	sources := homeassistant.NewSources(client)
//	agg := syncedselect.NewAggregator(refs, sources, sources)
//
// Sources adapts the client to the interfaces of package syncedselect.
package homeassistant
