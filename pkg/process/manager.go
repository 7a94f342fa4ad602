// Package process turns OS signals into an orderly station shutdown
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
)

// Manager handles process lifecycle and signals
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	signals          <-chan os.Signal
	stopSignals      func()
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
	once             sync.Once
}

// NewManager creates a manager listening for SIGINT, SIGTERM and SIGHUP
func NewManager(log logger.Logger) *Manager {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	m := NewManagerWithSignals(log, sigChan)
	m.stopSignals = func() { signal.Stop(sigChan) }
	return m
}

// NewManagerWithSignals creates a manager fed from an arbitrary signal channel (for testing)
func NewManagerWithSignals(log logger.Logger, signals <-chan os.Signal) *Manager {
	return &Manager{
		logger:      log,
		signals:     signals,
		stopSignals: func() {},
	}
}

// RegisterShutdownHandler adds a shutdown handler. Handlers run in reverse
// registration order, at most once.
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start watches for a signal or for ctx to end, whichever comes first
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-ctx.Done():
		case sig := <-m.signals:
			m.logger.Info("Received signal", logger.WithField("signal", sig))
			m.handleShutdown()
		}
	}()
}

// Stop releases the signal subscription and waits for the watcher to exit.
// ctx passed to Start must be done first.
func (m *Manager) Stop() {
	m.wg.Wait()
	m.stopSignals()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// IsRunning checks if the process manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) handleShutdown() {
	m.once.Do(func() {
		m.logger.Info("Initiating graceful shutdown...")

		m.mu.Lock()
		handlers := make([]func(), len(m.shutdownHandlers))
		copy(handlers, m.shutdownHandlers)
		m.mu.Unlock()

		for i := len(handlers) - 1; i >= 0; i-- {
			handlers[i]()
		}
	})
}
