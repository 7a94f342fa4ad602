package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/burner"
	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// Worker is the handle of one provisioning run, bound to a port for its lifetime
type Worker struct {
	id     string
	port   string
	device string
	done   chan struct{}
	exit   sync.Once
}

func newWorker(port, device string) *Worker {
	return &Worker{
		id:     pcontext.GenerateWorkerID(),
		port:   port,
		device: device,
		done:   make(chan struct{}),
	}
}

// ID returns the worker's unique id
func (w *Worker) ID() string { return w.id }

// Port returns the name of the port the worker was started for
func (w *Worker) Port() string { return w.port }

// Device returns the block device being provisioned
func (w *Worker) Device() string { return w.device }

// Done is closed when the worker has exited
func (w *Worker) Done() <-chan struct{} { return w.done }

// Exited reports whether the worker has returned
func (w *Worker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// report writes a status line through the registry. Once the port has
// dropped the worker, writes are discarded.
func (w *Worker) report(registry *state.Registry, log logger.Logger) burner.Reporter {
	return func(status string) {
		if !registry.ReportStatus(w.port, w.id, status) {
			log.Debug("Status from detached worker dropped",
				logger.WithField("worker_id", w.id),
				logger.WithField("status", status))
		}
	}
}

// run provisions the device. Failures are reported through the port status
// and never returned, so one port cannot affect the others. A panic leaves
// the handle open; the caller reports it and then calls finish.
func (w *Worker) run(ctx context.Context, b Burner, report burner.Reporter, log logger.Logger) error {
	ctx = pcontext.EnrichWorker(ctx, w.port, w.id)
	if err := b.Burn(ctx, w.device, report); err != nil {
		log.Debug("Worker finished with error",
			logger.WithField("worker_id", w.id),
			logger.WithField("error", err))
	}
	w.finish()
	return nil
}

func (w *Worker) finish() {
	w.exit.Do(func() { close(w.done) })
}

// abandon closes the handle without running. Used when the station shuts
// down before a staggered start is reached.
func (w *Worker) abandon(report burner.Reporter) {
	report(types.ErrorStatus(fmt.Sprintf("not started: %v", context.Canceled)))
	w.finish()
}
