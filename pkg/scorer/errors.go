package scorer

import "errors"

// ErrSchemaMismatch is the permanent failure kind (spec.md §4.3): the
// oracle rejected the request body as structurally invalid. Not retried;
// routes the event to DLQ with status DEAD_LETTERED.
var ErrSchemaMismatch = errors.New("scorer: ml oracle schema mismatch")
