// Package influxdb provides optional InfluxDB telemetry for Synced Select.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Measurements
//
//	synced_select_selection  tags: entry_id, option   fields: sources
//	synced_select_options    tags: entry_id           fields: count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // telemetry off
//	case err != nil:
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordSelection(entryID, "HDMI 1", 2)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered to the SetOnError callback.
package influxdb
