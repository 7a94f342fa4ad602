package engine

import (
	"fmt"
	"runtime/debug"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SafeGroup wraps errgroup.Group with panic recovery. The group has no shared
// context: one goroutine failing never cancels the others.
type SafeGroup struct {
	group  errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a new SafeGroup with panic recovery
func NewSafeGroup(log logger.Logger) *SafeGroup {
	return &SafeGroup{logger: log}
}

// Go runs fn in a new goroutine. A panic is logged with its stack trace and
// converted to an error.
func (sg *SafeGroup) Go(fn func() error) {
	sg.GoRecover(fn, nil)
}

// GoRecover is Go with a hook called after a panic has been recovered
func (sg *SafeGroup) GoRecover(fn func() error, onPanic func(recovered interface{})) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))

				if onPanic != nil {
					onPanic(r)
				}
				err = fmt.Errorf("goroutine panic: %v", r)
			}
		}()

		return fn()
	})
}

// Wait blocks until every goroutine has returned and reports the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
