package engine

import (
	"context"

	"github.com/pyromaniac/pyromaniac/pkg/burner"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// EventSource delivers hotplug events until ctx ends or the source fails
type EventSource interface {
	Run(ctx context.Context, out chan<- types.HotplugEvent) error
}

// Burner provisions one device, reporting every status line
type Burner interface {
	Burn(ctx context.Context, device string, report burner.Reporter) error
}

// Alerter signals the operator
type Alerter interface {
	RemovalAlert()
	BurnComplete(finished, failed int)
}

// Syncer flushes filesystem buffers to the drives
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncFunc adapts a function to Syncer
type SyncFunc func(ctx context.Context) error

// Sync calls f
func (f SyncFunc) Sync(ctx context.Context) error { return f(ctx) }
