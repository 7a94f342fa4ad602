package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// eventBuffer absorbs bursts such as a hub full of drives enumerating at once
const eventBuffer = 256

// Station runs an event source, the correlator and the session together
type Station struct {
	registry   *state.Registry
	source     EventSource
	correlator *Correlator
	session    *Session
	logger     logger.Logger
}

// NewStation wires deps around registry
func NewStation(registry *state.Registry, deps Dependencies, config SessionConfig, log logger.Logger) *Station {
	return &Station{
		registry:   registry,
		source:     deps.Source,
		correlator: NewCorrelator(registry, log),
		session:    NewSession(registry, deps.Burner, deps.Alerter, deps.Syncer, config, log),
		logger:     log,
	}
}

// Registry returns the registry the station writes to
func (s *Station) Registry() *state.Registry { return s.registry }

// Snapshot returns a consistent copy of the station state for display
func (s *Station) Snapshot() state.Snapshot { return s.registry.Snapshot() }

// Submit forwards an operator command to the session
func (s *Station) Submit(cmd types.Command) { s.session.Submit(cmd) }

// Run blocks until the operator quits, ctx ends, or the event source fails.
// Running workers are always waited for.
func (s *Station) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan types.HotplugEvent, eventBuffer)
	group := NewSafeGroup(s.logger)

	group.Go(func() error {
		err := s.source.Run(ctx, events)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("Hotplug monitor stopped", logger.WithField("error", err))
			s.registry.SetAlert(fmt.Sprintf("hotplug monitor stopped: %v", err))
			cancel()
			return fmt.Errorf("hotplug monitor: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		s.correlator.Run(ctx, events)
		return nil
	})

	s.logger.Info("Station running")
	sessionErr := s.session.Run(ctx)
	cancel()

	err := group.Wait()
	if closer, ok := s.source.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			s.logger.Warn("Failed to close event source", logger.WithField("error", cerr))
		}
	}
	if err != nil {
		return err
	}
	return sessionErr
}
