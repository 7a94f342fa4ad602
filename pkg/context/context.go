// Package context carries burn-cycle tracing values on a context.Context.
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ctxKey is unexported so no other package can collide with these keys.
// Each key is a distinct value; pointers to zero-size values may share an address.
type ctxKey int

const (
	cycleIDKey ctxKey = iota
	workerIDKey
	portKey
	stepKey
	startTimeKey
)

const (
	unknownCycle  = "unknown-cycle"
	unknownWorker = "unknown-worker"
	unknownPort   = "unknown-port"
	unknownStep   = "unknown-step"
)

// WithCycleID tags the context with the mass-burn cycle it belongs to
func WithCycleID(parent context.Context, cycleID string) context.Context {
	if cycleID == "" {
		cycleID = GenerateCycleID()
	}
	return context.WithValue(parent, cycleIDKey, cycleID)
}

// GetCycleID retrieves the burn cycle ID from context
func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok && id != "" {
		return id
	}
	return unknownCycle
}

// WithWorkerID tags the context with a worker ID
func WithWorkerID(parent context.Context, workerID string) context.Context {
	if workerID == "" {
		workerID = GenerateWorkerID()
	}
	return context.WithValue(parent, workerIDKey, workerID)
}

// GetWorkerID retrieves the worker ID from context
func GetWorkerID(ctx context.Context) string {
	if id, ok := ctx.Value(workerIDKey).(string); ok && id != "" {
		return id
	}
	return unknownWorker
}

// WithPort adds the port name to the context
func WithPort(parent context.Context, port string) context.Context {
	return context.WithValue(parent, portKey, port)
}

// GetPort retrieves the port name from context
func GetPort(ctx context.Context) string {
	if p, ok := ctx.Value(portKey).(string); ok && p != "" {
		return p
	}
	return unknownPort
}

// WithStep records the pipeline step currently running
func WithStep(parent context.Context, step string) context.Context {
	return context.WithValue(parent, stepKey, step)
}

// GetStep retrieves the pipeline step from context
func GetStep(ctx context.Context) string {
	if s, ok := ctx.Value(stepKey).(string); ok && s != "" {
		return s
	}
	return unknownStep
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// GetDuration returns the time elapsed since the start time, or zero if none is set
func GetDuration(ctx context.Context) time.Duration {
	start, ok := GetStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// GenerateCycleID creates a new unique burn cycle ID
func GenerateCycleID() string {
	return "cyc_" + uuid.New().String()
}

// GenerateWorkerID creates a new unique worker ID
func GenerateWorkerID() string {
	return "wrk_" + uuid.New().String()
}

// IsKnown reports whether an ID returned by one of the getters is set
func IsKnown(value string) bool {
	switch value {
	case unknownCycle, unknownWorker, unknownPort, unknownStep:
		return false
	}
	return true
}

// EnrichWorker builds the context a worker runs under
func EnrichWorker(parent context.Context, port, workerID string) context.Context {
	ctx := parent
	if !IsKnown(GetCycleID(ctx)) {
		ctx = WithCycleID(ctx, "")
	}
	ctx = WithWorkerID(ctx, workerID)
	ctx = WithPort(ctx, port)
	return WithStartTime(ctx, time.Now())
}
