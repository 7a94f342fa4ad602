//go:build !linux

package hotplug

import (
	"context"
	"errors"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// ErrUnsupported is returned on platforms without kernel uevents
var ErrUnsupported = errors.New("hotplug monitoring requires linux")

// Monitor is unavailable off linux
type Monitor struct{}

// NewMonitor always fails off linux
func NewMonitor(logger.Logger) (*Monitor, error) {
	return nil, ErrUnsupported
}

// Run always fails off linux
func (m *Monitor) Run(context.Context, chan<- types.HotplugEvent) error {
	return ErrUnsupported
}

// Close is a no-op
func (m *Monitor) Close() error { return nil }
