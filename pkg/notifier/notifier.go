// Package notifier provides the operator alerts: the removal beep and the
// optional desktop notification when a burn cycle ends.
package notifier

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
)

// Backend emits the actual sound and desktop notification
type Backend interface {
	Beep() error
	Notify(title, message string) error
}

type beeepBackend struct{}

func (beeepBackend) Beep() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

func (beeepBackend) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Config represents notification configuration
type Config struct {
	// Enabled turns on desktop notifications. The removal beep is always on.
	Enabled bool
}

// StationNotifier alerts the operator
type StationNotifier struct {
	enabled bool
	backend Backend
	logger  logger.Logger

	// at most one beep in flight; a slow sound device must not pile up goroutines
	beeping sync.Mutex
}

// New creates a notifier backed by the system speaker and notification daemon
func New(config Config, log logger.Logger) *StationNotifier {
	return NewWithBackend(config, beeepBackend{}, log)
}

// NewWithBackend creates a notifier with a custom backend (for testing)
func NewWithBackend(config Config, backend Backend, log logger.Logger) *StationNotifier {
	return &StationNotifier{
		enabled: config.Enabled,
		backend: backend,
		logger:  log,
	}
}

// RemovalAlert sounds the audible alert without blocking the caller
func (n *StationNotifier) RemovalAlert() {
	if !n.beeping.TryLock() {
		return
	}
	go func() {
		defer n.beeping.Unlock()
		if err := n.backend.Beep(); err != nil {
			n.logger.Debug("Failed to play alert", logger.WithField("error", err))
		}
	}()
}

// BurnComplete reports the outcome of a finished cycle
func (n *StationNotifier) BurnComplete(finished, failed int) {
	if !n.enabled {
		return
	}

	title := "🔥 Burn complete"
	message := fmt.Sprintf("%d finished, %d failed. Remove all drives.", finished, failed)
	if failed > 0 {
		title = "❌ Burn finished with errors"
	}

	if err := n.backend.Notify(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}
}
