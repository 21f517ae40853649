package influxdb

import "time"

// Measurement names.
const (
	MeasurementSelection = "synced_select_selection"
	MeasurementOptions   = "synced_select_options"
)

// WriteSelection records one selection fanned out to sources entities.
func (c *Client) WriteSelection(entryID, option string, sources int, at time.Time) {
	c.write(MeasurementSelection,
		map[string]string{"entry_id": entryID, "option": option},
		map[string]any{"sources": sources},
		at,
	)
}

// WriteOptionCount records the size of a recomputed option list.
// A count of zero means the sources currently share no option.
func (c *Client) WriteOptionCount(entryID string, count int, at time.Time) {
	c.write(MeasurementOptions,
		map[string]string{"entry_id": entryID},
		map[string]any{"count": count},
		at,
	)
}

// RecordSelection implements entry.Recorder.
func (c *Client) RecordSelection(entryID, option string, sources int) {
	c.WriteSelection(entryID, option, sources, time.Now())
}

// RecordOptions implements entry.Recorder.
func (c *Client) RecordOptions(entryID string, count int) {
	c.WriteOptionCount(entryID, count, time.Now())
}
