package analysis

import "errors"

// ErrParseFailed marks an oracle response that could not be parsed as a
// JSON object even after the one permitted retry. Never propagated to the
// caller: Analyze degrades and annotates analysis.error instead.
var ErrParseFailed = errors.New("analysis: llm oracle response parse failed")
