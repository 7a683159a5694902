package bus

import "errors"

// ErrBackpressure is returned by Enqueue when the target partition's
// buffer is full. The Ingress adapter MUST translate this into a
// retryable failure to the caller (SPEC_FULL.md §4.2).
var ErrBackpressure = errors.New("bus: backpressure, partition full")

// ErrDraining is returned by Enqueue once Stop has been called; no new
// events are accepted while in-flight ones run to completion.
var ErrDraining = errors.New("bus: draining, not accepting new events")
