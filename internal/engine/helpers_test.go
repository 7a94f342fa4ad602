package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/engine"
	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/burner"
	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

var testPorts = map[string]string{
	"USB0": "1-1.1:1.0",
	"USB1": "1-1.2:1.0",
	"USB2": "1-1.3:1.0",
}

func newTestRegistry(t *testing.T, ports map[string]string) *state.Registry {
	t.Helper()
	r, err := state.NewRegistry(ports, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func interfaceAdd(sys string) types.HotplugEvent {
	return types.HotplugEvent{
		Action: types.ActionAdd,
		Device: types.Device{Kind: types.KindInterface, SysName: sys},
	}
}

func interfaceRemove(sys string, driverBound bool) types.HotplugEvent {
	return types.HotplugEvent{
		Action: types.ActionRemove,
		Device: types.Device{Kind: types.KindInterface, SysName: sys, DriverBound: driverBound},
	}
}

func partitionAdd(sys, devicePath string) types.HotplugEvent {
	return types.HotplugEvent{
		Action: types.ActionAdd,
		Device: types.Device{Kind: types.KindPartition, SysName: sys, DevicePath: devicePath},
	}
}

// insert plays the events a drive produces when plugged into the port at phys
func insert(t *testing.T, c *engine.Correlator, phys, partition string) {
	t.Helper()
	if err := c.Handle(interfaceAdd(phys)); err != nil {
		t.Fatalf("interface add: %v", err)
	}
	if err := c.Handle(partitionAdd("sdx1", partition)); err != nil {
		t.Fatalf("partition add: %v", err)
	}
}

func setPhase(t *testing.T, r *state.Registry, phase types.Phase) {
	t.Helper()
	if err := r.Update(func(tx *state.Tx) error {
		tx.SetPhase(phase)
		return nil
	}); err != nil {
		t.Fatalf("set phase: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func portStatus(r *state.Registry, name string) string {
	p, _ := r.Get(name)
	return p.Status
}

type burnCall struct {
	device string
	port   string
	at     time.Time
}

// fakeBurner records calls and, for gated devices, blocks until released
type fakeBurner struct {
	mu     sync.Mutex
	calls  []burnCall
	gates  map[string]chan struct{}
	panics map[string]bool
	fails  map[string]error
}

func newFakeBurner() *fakeBurner {
	return &fakeBurner{
		gates:  make(map[string]chan struct{}),
		panics: make(map[string]bool),
		fails:  make(map[string]error),
	}
}

func (b *fakeBurner) gate(device string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gates[device] = make(chan struct{})
}

func (b *fakeBurner) release(device string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.gates[device])
}

func (b *fakeBurner) Burn(ctx context.Context, device string, report burner.Reporter) error {
	b.mu.Lock()
	b.calls = append(b.calls, burnCall{device: device, port: pcontext.GetPort(ctx), at: time.Now()})
	gate := b.gates[device]
	shouldPanic := b.panics[device]
	failure := b.fails[device]
	b.mu.Unlock()

	report("Wiping partition table...")
	if gate != nil {
		<-gate
	}
	if shouldPanic {
		panic("simulated worker crash")
	}
	if failure != nil {
		report(types.ErrorStatus(failure.Error()))
		return failure
	}
	report(types.StatusFinished)
	return nil
}

func (b *fakeBurner) Calls() []burnCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]burnCall, len(b.calls))
	copy(out, b.calls)
	return out
}

type fakeAlerter struct {
	mu       sync.Mutex
	alerts   int
	finished int
	failed   int
	summary  int
}

func (a *fakeAlerter) RemovalAlert() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts++
}

func (a *fakeAlerter) BurnComplete(finished, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary++
	a.finished = finished
	a.failed = failed
}

func (a *fakeAlerter) Alerts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alerts
}

func (a *fakeAlerter) Summary() (calls, finished, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary, a.finished, a.failed
}

type countingSyncer struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSyncer) Sync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *countingSyncer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// chanSource replays events pushed by the test
type chanSource struct {
	events chan types.HotplugEvent
	err    error
}

func (s *chanSource) Run(ctx context.Context, out chan<- types.HotplugEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.events:
			if !ok {
				if s.err != nil {
					return s.err
				}
				<-ctx.Done()
				return nil
			}
			out <- ev
		}
	}
}

var errSimulated = errors.New("simulated failure")
