package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// Correlator maps hotplug events onto ports. It is the only writer of port
// mounts and applies each event in a single registry transaction.
type Correlator struct {
	registry *state.Registry
	logger   logger.Logger
}

// NewCorrelator creates a correlator writing to registry
func NewCorrelator(registry *state.Registry, log logger.Logger) *Correlator {
	return &Correlator{
		registry: registry,
		logger:   log,
	}
}

// Run applies events until ctx ends or the channel is closed.
// Ambiguities are logged and shown on the alert line; they never stop the loop.
func (c *Correlator) Run(ctx context.Context, events <-chan types.HotplugEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.Handle(ev); err != nil {
				c.report(ev, err)
			}
		}
	}
}

// Handle applies one event. It returns ErrCorrelationAmbiguity, with no port
// changed, when a partition cannot be attributed to exactly one waiting port.
func (c *Correlator) Handle(ev types.HotplugEvent) error {
	var bound, reset string

	err := c.registry.Update(func(tx *state.Tx) error {
		tx.SetLastEvent(ev.String())

		dev := ev.Device
		switch {
		case ev.Action == types.ActionAdd && dev.Kind == types.KindInterface:
			// drives plugged in mid-cycle wait for the next WaitInsert
			if tx.Phase() != types.PhaseWaitInsert {
				return nil
			}
			if _, known := tx.PortName(dev.SysName); !known {
				return nil
			}
			return tx.SetMount(dev.SysName, types.MountPending)

		case ev.Action == types.ActionAdd && dev.Kind == types.KindPartition:
			// the workers' own repartitioning emits partition events while burning
			if tx.Phase() != types.PhaseWaitInsert {
				return nil
			}
			pending := tx.PendingPhys()
			if len(pending) != 1 {
				return fmt.Errorf("%w: %d ports waiting for media when %s appeared",
					ErrCorrelationAmbiguity, len(pending), dev.DevicePath)
			}

			base := BaseDevice(dev.DevicePath)
			name, _ := tx.PortName(pending[0])
			if err := tx.SetMount(pending[0], base); err != nil {
				return err
			}
			bound = name
			return tx.SetStatus(name, types.MediaFoundStatus(base))

		case ev.Action == types.ActionRemove && dev.Kind == types.KindInterface && !dev.DriverBound:
			name, known := tx.PortName(dev.SysName)
			if !known {
				return nil
			}
			if err := tx.SetMount(dev.SysName, types.MountNone); err != nil {
				return err
			}
			tx.DetachWorker(name)
			reset = name
			return tx.SetStatus(name, types.StatusInsert)
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case bound != "":
		c.logger.WithPort(bound).Info("Media found", logger.WithField("device", BaseDevice(ev.Device.DevicePath)))
	case reset != "":
		c.logger.WithPort(reset).Info("Drive removed")
	}
	return nil
}

func (c *Correlator) report(ev types.HotplugEvent, err error) {
	c.logger.Warn("Hotplug event discarded",
		logger.WithField("event", ev.String()),
		logger.WithField("error", err))

	if errors.Is(err, ErrCorrelationAmbiguity) {
		c.registry.SetAlert(err.Error())
	}
}

// BaseDevice strips the partition number from a partition device path
func BaseDevice(devicePath string) string {
	return strings.TrimRight(devicePath, "0123456789")
}
