package engine

import "errors"

// ErrCorrelationAmbiguity is returned when a partition appears while zero or
// several ports are waiting for media. The event is discarded.
var ErrCorrelationAmbiguity = errors.New("correlation ambiguity")
