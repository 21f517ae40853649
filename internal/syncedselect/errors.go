package syncedselect

import "errors"

var (
	// ErrUnloaded is returned when refreshing an aggregator after Unload.
	ErrUnloaded = errors.New("syncedselect: aggregator unloaded")

	// ErrClosed is returned when selecting on a closed proxy.
	ErrClosed = errors.New("syncedselect: proxy closed")
)
