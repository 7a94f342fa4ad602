package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/engine"
	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

type sessionHarness struct {
	registry   *state.Registry
	correlator *engine.Correlator
	session    *engine.Session
	burner     *fakeBurner
	alerter    *fakeAlerter
	syncer     *countingSyncer
	done       chan error
}

func startSession(t *testing.T, ports map[string]string, config engine.SessionConfig) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		registry: newTestRegistry(t, ports),
		burner:   newFakeBurner(),
		alerter:  &fakeAlerter{},
		syncer:   &countingSyncer{},
		done:     make(chan error, 1),
	}
	log := logger.NewNopLogger()
	h.correlator = engine.NewCorrelator(h.registry, log)
	h.session = engine.NewSession(h.registry, h.burner, h.alerter, h.syncer, config, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.session.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("session did not stop")
		}
	})
	return h
}

func fastConfig() engine.SessionConfig {
	return engine.SessionConfig{
		Stagger:       time.Millisecond,
		AlertInterval: time.Hour,
		Tick:          5 * time.Millisecond,
	}
}

func (h *sessionHarness) phase() types.Phase { return h.registry.Phase() }

func TestSession_OneBoundOneEmptyPort(t *testing.T) {
	h := startSession(t, map[string]string{
		"USB0": "1-1.1:1.0",
		"USB1": "1-1.2:1.0",
	}, fastConfig())

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	h.session.Submit(types.CommandStartBurn)

	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })

	calls := h.burner.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one worker, got %d", len(calls))
	}
	if calls[0].device != "/dev/sdb" || calls[0].port != "USB0" {
		t.Errorf("unexpected worker %+v", calls[0])
	}
	if got := portStatus(h.registry, "USB1"); got != types.StatusSkipped {
		t.Errorf("expected USB1 skipped, got %q", got)
	}
	if got := portStatus(h.registry, "USB0"); got != types.StatusFinished {
		t.Errorf("expected USB0 finished, got %q", got)
	}
	if h.syncer.Calls() != 1 {
		t.Errorf("expected one sync, got %d", h.syncer.Calls())
	}
	if calls, finished, failed := h.alerter.Summary(); calls != 1 || finished != 1 || failed != 0 {
		t.Errorf("unexpected summary calls=%d finished=%d failed=%d", calls, finished, failed)
	}
	if h.registry.Prompt() != types.PromptAwaitRemoval {
		t.Errorf("unexpected prompt %q", h.registry.Prompt())
	}

	// pulling the drive completes the cycle
	if err := h.correlator.Handle(interfaceRemove("1-1.1:1.0", false)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "wait-insert", func() bool { return h.phase() == types.PhaseWaitInsert })

	for _, p := range h.registry.AllPorts() {
		if p.Status != types.StatusInsert {
			t.Errorf("%s: expected insert status after reset, got %q", p.Name, p.Status)
		}
	}
	if h.registry.Prompt() != types.PromptWaitInsert {
		t.Errorf("unexpected prompt %q", h.registry.Prompt())
	}
}

func TestSession_BurningWaitsForEveryWorker(t *testing.T) {
	h := startSession(t, testPorts, fastConfig())
	h.burner.gate("/dev/sdb")
	h.burner.gate("/dev/sdc")
	h.burner.fails["/dev/sdc"] = errSimulated

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	insert(t, h.correlator, "1-1.2:1.0", "/dev/sdc1")
	h.session.Submit(types.CommandStartBurn)

	waitFor(t, "both workers", func() bool { return len(h.burner.Calls()) == 2 })
	h.burner.release("/dev/sdc")
	waitFor(t, "USB1 error", func() bool { return types.IsErrorStatus(portStatus(h.registry, "USB1")) })

	time.Sleep(30 * time.Millisecond)
	if h.phase() != types.PhaseBurning {
		t.Fatalf("left burning with a worker still running: %s", h.phase())
	}
	if h.syncer.Calls() != 0 {
		t.Fatal("synced before every worker exited")
	}

	h.burner.release("/dev/sdb")
	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })

	if _, finished, failed := h.alerter.Summary(); finished != 1 || failed != 1 {
		t.Errorf("expected 1 finished and 1 failed, got %d and %d", finished, failed)
	}
}

func TestSession_StartOutsideWaitInsertOnlyPrompts(t *testing.T) {
	h := startSession(t, testPorts, fastConfig())
	h.burner.gate("/dev/sdb")

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "worker start", func() bool { return len(h.burner.Calls()) == 1 })

	before := h.registry.AllPorts()
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "patience prompt", func() bool { return h.registry.Prompt() == types.PromptBePatient })

	after := h.registry.AllPorts()
	for i := range before {
		if before[i].Mount != after[i].Mount || before[i].Status != after[i].Status {
			t.Errorf("%s changed by a rejected start: %+v -> %+v", before[i].Name, before[i], after[i])
		}
	}
	if h.phase() != types.PhaseBurning {
		t.Errorf("expected phase to stay burning, got %s", h.phase())
	}

	h.burner.release("/dev/sdb")
	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })
	if n := len(h.burner.Calls()); n != 1 {
		t.Errorf("expected one worker in total, got %d", n)
	}
}

func TestSession_StaggersWorkerStarts(t *testing.T) {
	config := fastConfig()
	config.Stagger = 60 * time.Millisecond
	h := startSession(t, testPorts, config)

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	insert(t, h.correlator, "1-1.2:1.0", "/dev/sdc1")
	insert(t, h.correlator, "1-1.3:1.0", "/dev/sdd1")
	h.session.Submit(types.CommandStartBurn)

	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })

	calls := h.burner.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 workers, got %d", len(calls))
	}
	for i, want := range []string{"/dev/sdb", "/dev/sdc", "/dev/sdd"} {
		if calls[i].device != want {
			t.Errorf("start %d: expected %s, got %s", i, want, calls[i].device)
		}
	}
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].at.Sub(calls[i-1].at); gap < 40*time.Millisecond {
			t.Errorf("workers %d and %d started only %s apart", i-1, i, gap)
		}
	}
}

func TestSession_AlertsUntilDrivesRemoved(t *testing.T) {
	config := fastConfig()
	config.AlertInterval = 20 * time.Millisecond
	h := startSession(t, testPorts, config)

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })

	waitFor(t, "repeated alerts", func() bool { return h.alerter.Alerts() >= 2 })

	if err := h.correlator.Handle(interfaceRemove("1-1.1:1.0", false)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "wait-insert", func() bool { return h.phase() == types.PhaseWaitInsert })

	settled := h.alerter.Alerts()
	time.Sleep(60 * time.Millisecond)
	if h.alerter.Alerts() != settled {
		t.Error("alerts continued after every drive was removed")
	}
}

func TestSession_RemovedDriveKeepsInsertStatus(t *testing.T) {
	h := startSession(t, testPorts, fastConfig())
	h.burner.gate("/dev/sdb")

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "worker start", func() bool { return len(h.burner.Calls()) == 1 })

	if err := h.correlator.Handle(interfaceRemove("1-1.1:1.0", false)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	h.burner.release("/dev/sdb")

	waitFor(t, "wait-insert", func() bool { return h.phase() == types.PhaseWaitInsert })
	if got := portStatus(h.registry, "USB0"); got != types.StatusInsert {
		t.Errorf("abandoned worker overwrote status: %q", got)
	}
}

func TestSession_WorkerPanicIsContained(t *testing.T) {
	h := startSession(t, testPorts, fastConfig())
	h.burner.panics["/dev/sdb"] = true

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	insert(t, h.correlator, "1-1.2:1.0", "/dev/sdc1")
	h.session.Submit(types.CommandStartBurn)

	waitFor(t, "await-removal", func() bool { return h.phase() == types.PhaseAwaitRemoval })

	if got := portStatus(h.registry, "USB0"); got != types.ErrorStatus("worker panic") {
		t.Errorf("unexpected USB0 status %q", got)
	}
	if got := portStatus(h.registry, "USB1"); got != types.StatusFinished {
		t.Errorf("unexpected USB1 status %q", got)
	}
}

func TestSession_QuitWaitsForRunningWorkers(t *testing.T) {
	h := startSession(t, testPorts, fastConfig())
	h.burner.gate("/dev/sdb")

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "worker start", func() bool { return len(h.burner.Calls()) == 1 })

	h.session.Submit(types.CommandQuit)
	select {
	case <-h.done:
		t.Fatal("session returned while a worker was writing")
	case <-time.After(50 * time.Millisecond):
	}

	h.burner.release("/dev/sdb")
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not return after the worker finished")
	}
	if got := portStatus(h.registry, "USB0"); got != types.StatusFinished {
		t.Errorf("expected the burn to complete, got %q", got)
	}
}

func TestSession_QuitSkipsStaggeredStarts(t *testing.T) {
	config := fastConfig()
	config.Stagger = time.Hour
	h := startSession(t, testPorts, config)

	insert(t, h.correlator, "1-1.1:1.0", "/dev/sdb1")
	insert(t, h.correlator, "1-1.2:1.0", "/dev/sdc1")
	h.session.Submit(types.CommandStartBurn)
	waitFor(t, "first worker", func() bool { return portStatus(h.registry, "USB0") == types.StatusFinished })

	h.session.Submit(types.CommandQuit)
	select {
	case err := <-h.done:
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("session waited for a worker that had not started")
	}

	if n := len(h.burner.Calls()); n != 1 {
		t.Errorf("expected only the first worker to run, got %d", n)
	}
	if got := portStatus(h.registry, "USB1"); !types.IsErrorStatus(got) {
		t.Errorf("expected USB1 to report the skipped start, got %q", got)
	}
}

func TestSession_QuitDeliveredWhileQueueFull(t *testing.T) {
	registry := newTestRegistry(t, testPorts)
	session := engine.NewSession(registry, newFakeBurner(), &fakeAlerter{}, &countingSyncer{}, fastConfig(), logger.NewNopLogger())

	// nothing drains the queue yet, so the start commands overflow it
	for i := 0; i < 64; i++ {
		session.Submit(types.CommandStartBurn)
	}
	session.Submit(types.CommandQuit)
	session.Submit(types.CommandQuit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("quit was lost behind a full command queue")
	}
}
