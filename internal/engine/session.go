package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/state"
	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// SessionConfig holds the session timings
type SessionConfig struct {
	// Stagger separates consecutive worker starts
	Stagger time.Duration
	// AlertInterval is the minimum gap between removal alerts
	AlertInterval time.Duration
	// Tick is the control loop cadence
	Tick time.Duration
}

// DefaultSessionConfig returns the station's standard timings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Stagger:       2 * time.Second,
		AlertInterval: 10 * time.Second,
		Tick:          50 * time.Millisecond,
	}
}

// Session is the wait-insert / burning / await-removal state machine.
// Its loop is the only goroutine changing the phase.
type Session struct {
	registry *state.Registry
	burner   Burner
	alerter  Alerter
	syncer   Syncer
	config   SessionConfig
	logger   logger.Logger

	commands chan types.Command
	syncDone chan error
	quit     chan struct{}

	// a quit request bypasses the command queue so it is never dropped
	quitRequested chan struct{}
	requestQuit   sync.Once

	// owned by the Run goroutine
	group     *SafeGroup
	workers   []*Worker
	syncing   bool
	lastAlert time.Time
}

// NewSession creates a session. Zero timings fall back to DefaultSessionConfig.
func NewSession(registry *state.Registry, b Burner, alerter Alerter, syncer Syncer, config SessionConfig, log logger.Logger) *Session {
	defaults := DefaultSessionConfig()
	if config.Stagger < 0 {
		config.Stagger = 0
	}
	if config.AlertInterval <= 0 {
		config.AlertInterval = defaults.AlertInterval
	}
	if config.Tick <= 0 {
		config.Tick = defaults.Tick
	}

	return &Session{
		registry: registry,
		burner:   b,
		alerter:  alerter,
		syncer:   syncer,
		config:   config,
		logger:   log,
		commands: make(chan types.Command, 16),
		syncDone: make(chan error, 1),
		quit:     make(chan struct{}),
		group:    NewSafeGroup(log),

		quitRequested: make(chan struct{}),
	}
}

// Submit queues an operator command. It never blocks. A start command arriving
// while the queue is full is dropped; quit is always delivered.
func (s *Session) Submit(cmd types.Command) {
	if cmd == types.CommandQuit {
		s.requestQuit.Do(func() { close(s.quitRequested) })
		return
	}
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("Command dropped, session busy", logger.WithField("command", cmd))
	}
}

// Run drives the session until a quit command or ctx ends. Workers already
// started are allowed to finish before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	s.logger.Info("Session started",
		logger.WithField("stagger", s.config.Stagger),
		logger.WithField("tick", s.config.Tick))

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case <-s.quitRequested:
			s.logger.Info("Quit requested")
			s.shutdown()
			return nil

		case cmd := <-s.commands:
			if cmd == types.CommandStartBurn {
				s.startBurn(ctx)
			}

		case err := <-s.syncDone:
			s.finishBurn(err)

		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *Session) startBurn(ctx context.Context) {
	var (
		workers []*Worker
		started bool
	)

	err := s.registry.Update(func(tx *state.Tx) error {
		if tx.Phase() != types.PhaseWaitInsert {
			tx.SetPrompt(types.PromptBePatient)
			return nil
		}

		for _, p := range tx.Ports() {
			if p.Mount == types.MountNone {
				if err := tx.SetStatus(p.Name, types.StatusSkipped); err != nil {
					return err
				}
				continue
			}

			w := newWorker(p.Name, p.Mount)
			if err := tx.BindWorker(p.Name, w); err != nil {
				if serr := tx.SetStatus(p.Name, types.ErrorStatus(err.Error())); serr != nil {
					return serr
				}
				continue
			}
			if err := tx.SetStatus(p.Name, types.StatusStarting); err != nil {
				return err
			}
			workers = append(workers, w)
		}

		tx.SetPhase(types.PhaseBurning)
		tx.SetPrompt(types.PromptBurning)
		tx.SetAlert("")
		started = true
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to start burn", logger.WithField("error", err))
		return
	}
	if !started {
		s.logger.Debug("Start ignored outside wait-insert")
		return
	}

	// workers outlive a quit so no drive is left half written
	workCtx := pcontext.WithCycleID(context.WithoutCancel(ctx), pcontext.GenerateCycleID())
	s.workers = workers
	s.logger.Info(fmt.Sprintf("Starting %d workers", len(workers)),
		logger.WithField("cycle_id", pcontext.GetCycleID(workCtx)))

	for i, w := range workers {
		s.spawn(workCtx, w, time.Duration(i)*s.config.Stagger)
	}
}

func (s *Session) spawn(ctx context.Context, w *Worker, delay time.Duration) {
	log := s.logger.WithPort(w.Port())
	report := w.report(s.registry, log)

	s.group.GoRecover(func() error {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-timer.C:
			case <-s.quit:
				w.abandon(report)
				return nil
			}
		}
		log.Info("Worker started", logger.WithField("device", w.Device()))
		return w.run(ctx, s.burner, report, log)
	}, func(r interface{}) {
		report(types.ErrorStatus("worker panic"))
		w.finish()
	})
}

func (s *Session) step(ctx context.Context) {
	switch s.registry.Phase() {
	case types.PhaseBurning:
		s.checkWorkers(ctx)
	case types.PhaseAwaitRemoval:
		s.checkRemoval()
	}
}

func (s *Session) checkWorkers(ctx context.Context) {
	if s.syncing {
		return
	}
	for _, w := range s.workers {
		if !w.Exited() {
			return
		}
	}

	s.syncing = true
	s.registry.SetPrompt(types.PromptSyncing)
	go func() {
		s.syncDone <- s.syncer.Sync(ctx)
	}()
}

func (s *Session) finishBurn(syncErr error) {
	s.syncing = false
	if syncErr != nil {
		s.logger.Warn("Filesystem sync failed", logger.WithField("error", syncErr))
	}

	finished, failed := 0, 0
	for _, w := range s.workers {
		p, ok := s.registry.Get(w.Port())
		switch {
		case !ok:
		case p.Status == types.StatusFinished:
			finished++
		case types.IsErrorStatus(p.Status):
			failed++
		}
	}
	s.workers = nil

	_ = s.registry.Update(func(tx *state.Tx) error {
		tx.SetPhase(types.PhaseAwaitRemoval)
		tx.SetPrompt(types.PromptAwaitRemoval)
		return nil
	})
	s.lastAlert = time.Now()

	s.logger.Success("Burn cycle complete",
		logger.WithField("finished", finished),
		logger.WithField("failed", failed))
	s.alerter.BurnComplete(finished, failed)
}

func (s *Session) checkRemoval() {
	reset := false
	_ = s.registry.Update(func(tx *state.Tx) error {
		ports := tx.Ports()
		for _, p := range ports {
			if p.Status != types.StatusInsert && p.Status != types.StatusSkipped {
				return nil
			}
		}

		for _, p := range ports {
			tx.DetachWorker(p.Name)
			if err := tx.SetStatus(p.Name, types.StatusInsert); err != nil {
				return err
			}
		}
		tx.SetPhase(types.PhaseWaitInsert)
		tx.SetPrompt(types.PromptWaitInsert)
		reset = true
		return nil
	})

	if reset {
		s.logger.Info("All drives removed, ready for the next batch")
		return
	}
	if time.Since(s.lastAlert) > s.config.AlertInterval {
		s.lastAlert = time.Now()
		s.alerter.RemovalAlert()
	}
}

func (s *Session) shutdown() {
	close(s.quit)

	running := 0
	for _, w := range s.workers {
		if !w.Exited() {
			running++
		}
	}
	if running > 0 {
		s.logger.Info(fmt.Sprintf("Waiting for %d workers to finish", running))
		s.registry.SetPrompt(fmt.Sprintf("Quitting: waiting for %d burns to finish...", running))
	}

	if err := s.group.Wait(); err != nil {
		s.logger.Error("Worker group ended with error", logger.WithField("error", err))
	}
}
