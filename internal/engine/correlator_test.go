package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/engine"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

func TestCorrelator_BindsSinglePendingPort(t *testing.T) {
	r := newTestRegistry(t, testPorts)
	c := engine.NewCorrelator(r, logger.NewNopLogger())

	if err := c.Handle(interfaceAdd("1-1.2:1.0")); err != nil {
		t.Fatalf("interface add: %v", err)
	}
	p, _ := r.Get("USB1")
	if p.Mount != types.MountPending {
		t.Fatalf("expected USB1 pending, got %q", p.Mount)
	}

	if err := c.Handle(partitionAdd("sdc1", "/dev/sdc1")); err != nil {
		t.Fatalf("partition add: %v", err)
	}

	p, _ = r.Get("USB1")
	if p.Mount != "/dev/sdc" {
		t.Errorf("expected mount /dev/sdc, got %q", p.Mount)
	}
	if p.Status != "Media found at /dev/sdc" {
		t.Errorf("unexpected status %q", p.Status)
	}
	for _, other := range []string{"USB0", "USB2"} {
		if q, _ := r.Get(other); q.Mount != types.MountNone {
			t.Errorf("%s: expected untouched mount, got %q", other, q.Mount)
		}
	}
}

func TestCorrelator_AmbiguityMutatesNothing(t *testing.T) {
	tests := []struct {
		name    string
		pending []string
	}{
		{"no pending port", nil},
		{"two pending ports", []string{"1-1.1:1.0", "1-1.3:1.0"}},
		{"three pending ports", []string{"1-1.1:1.0", "1-1.2:1.0", "1-1.3:1.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t, testPorts)
			c := engine.NewCorrelator(r, logger.NewNopLogger())

			for _, phys := range tt.pending {
				if err := c.Handle(interfaceAdd(phys)); err != nil {
					t.Fatalf("interface add: %v", err)
				}
			}
			before := r.AllPorts()

			err := c.Handle(partitionAdd("sdb1", "/dev/sdb1"))
			if !errors.Is(err, engine.ErrCorrelationAmbiguity) {
				t.Fatalf("expected ErrCorrelationAmbiguity, got %v", err)
			}

			after := r.AllPorts()
			for i := range before {
				if before[i].Mount != after[i].Mount || before[i].Status != after[i].Status {
					t.Errorf("%s changed: %+v -> %+v", before[i].Name, before[i], after[i])
				}
			}
		})
	}
}

func TestCorrelator_IgnoresUnknownInterface(t *testing.T) {
	r := newTestRegistry(t, testPorts)
	c := engine.NewCorrelator(r, logger.NewNopLogger())

	if err := c.Handle(interfaceAdd("9-9:1.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range r.AllPorts() {
		if p.Mount != types.MountNone {
			t.Errorf("%s: expected mount none, got %q", p.Name, p.Mount)
		}
	}
	if r.Snapshot().LastEvent == "" {
		t.Error("expected the event to be recorded")
	}
}

func TestCorrelator_Remove(t *testing.T) {
	tests := []struct {
		name        string
		driverBound bool
		phase       types.Phase
		wantReset   bool
	}{
		{"unbound driver while waiting", false, types.PhaseWaitInsert, true},
		{"unbound driver mid-burn", false, types.PhaseBurning, true},
		{"unbound driver awaiting removal", false, types.PhaseAwaitRemoval, true},
		{"driver still bound", true, types.PhaseWaitInsert, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t, testPorts)
			c := engine.NewCorrelator(r, logger.NewNopLogger())
			insert(t, c, "1-1.1:1.0", "/dev/sdb1")
			setPhase(t, r, tt.phase)

			if err := c.Handle(interfaceRemove("1-1.1:1.0", tt.driverBound)); err != nil {
				t.Fatalf("remove: %v", err)
			}

			p, _ := r.Get("USB0")
			if tt.wantReset {
				if p.Mount != types.MountNone || p.Status != types.StatusInsert {
					t.Errorf("expected reset port, got mount=%q status=%q", p.Mount, p.Status)
				}
			} else if p.Mount != "/dev/sdb" {
				t.Errorf("expected port to stay bound, got %q", p.Mount)
			}
		})
	}
}

func TestCorrelator_AddsIgnoredOutsideWaitInsert(t *testing.T) {
	r := newTestRegistry(t, testPorts)
	c := engine.NewCorrelator(r, logger.NewNopLogger())
	setPhase(t, r, types.PhaseBurning)

	if err := c.Handle(interfaceAdd("1-1.1:1.0")); err != nil {
		t.Fatalf("interface add: %v", err)
	}
	// repartitioning during a burn must not look like fresh media
	if err := c.Handle(partitionAdd("sdb1", "/dev/sdb1")); err != nil {
		t.Fatalf("partition add: %v", err)
	}

	if p, _ := r.Get("USB0"); p.Mount != types.MountNone {
		t.Errorf("expected no change while burning, got %q", p.Mount)
	}
}

func TestCorrelator_RunReportsAmbiguity(t *testing.T) {
	r := newTestRegistry(t, testPorts)
	c := engine.NewCorrelator(r, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan types.HotplugEvent)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, events)
		close(done)
	}()

	events <- interfaceAdd("1-1.1:1.0")
	events <- interfaceAdd("1-1.2:1.0")
	events <- partitionAdd("sdb1", "/dev/sdb1")

	waitFor(t, "alert line", func() bool {
		return strings.Contains(r.Snapshot().Alert, "correlation ambiguity")
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestBaseDevice(t *testing.T) {
	tests := map[string]string{
		"/dev/sdb1":  "/dev/sdb",
		"/dev/sdc12": "/dev/sdc",
		"/dev/sdd":   "/dev/sdd",
	}
	for in, want := range tests {
		if got := engine.BaseDevice(in); got != want {
			t.Errorf("BaseDevice(%q) = %q, want %q", in, got, want)
		}
	}
}
