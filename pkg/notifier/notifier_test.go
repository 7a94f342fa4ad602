package notifier_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/notifier"
)

type recordingBackend struct {
	mu       sync.Mutex
	beeps    int
	titles   []string
	messages []string
	release  chan struct{}
	err      error
}

func (b *recordingBackend) Beep() error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beeps++
	return b.err
}

func (b *recordingBackend) Notify(title, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles = append(b.titles, title)
	b.messages = append(b.messages, message)
	return b.err
}

func (b *recordingBackend) beepCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.beeps
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNotifier_RemovalAlertDoesNotBlock(t *testing.T) {
	backend := &recordingBackend{release: make(chan struct{})}
	n := notifier.NewWithBackend(notifier.Config{}, backend, logger.NewNopLogger())

	done := make(chan struct{})
	go func() {
		n.RemovalAlert()
		// second alert while the first is still sounding is dropped
		n.RemovalAlert()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RemovalAlert blocked on the backend")
	}

	close(backend.release)
	waitFor(t, func() bool { return backend.beepCount() == 1 })

	n.RemovalAlert()
	waitFor(t, func() bool { return backend.beepCount() == 2 })
}

func TestNotifier_BurnComplete(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		finished  int
		failed    int
		wantCalls int
		wantTitle string
	}{
		{"disabled", false, 3, 0, 0, ""},
		{"all finished", true, 3, 0, 1, "Burn complete"},
		{"with failures", true, 2, 1, 1, "errors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &recordingBackend{}
			n := notifier.NewWithBackend(notifier.Config{Enabled: tt.enabled}, backend, logger.NewNopLogger())

			n.BurnComplete(tt.finished, tt.failed)

			if len(backend.titles) != tt.wantCalls {
				t.Fatalf("expected %d notifications, got %d", tt.wantCalls, len(backend.titles))
			}
			if tt.wantCalls == 0 {
				return
			}
			if !strings.Contains(backend.titles[0], tt.wantTitle) {
				t.Errorf("title %q does not contain %q", backend.titles[0], tt.wantTitle)
			}
			if !strings.Contains(backend.messages[0], "Remove all drives") {
				t.Errorf("unexpected message %q", backend.messages[0])
			}
		})
	}
}

func TestNotifier_BackendErrorsAreSwallowed(t *testing.T) {
	backend := &recordingBackend{err: errors.New("no notification daemon")}
	n := notifier.NewWithBackend(notifier.Config{Enabled: true}, backend, logger.NewNopLogger())

	n.BurnComplete(1, 0)
	n.RemovalAlert()
	waitFor(t, func() bool { return backend.beepCount() == 1 })
}
