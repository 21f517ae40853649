// Synced Select keeps a group of Home Assistant select entities in step.
//
// It computes the options every source entity offers, publishes them as one
// proxy select entity over MQTT discovery, and fans a selection on the proxy
// out to every source.
//
// Usage:
//
//	syncedselect [serve] [--config path]
//	syncedselect token [--subject name] [--ttl 24h]
//	syncedselect version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
