package agent

import "errors"

// The closed set of fatal failure kinds the loop can surface. Callers
// distinguish them with errors.Is; everything else the loop absorbs
// (malformed tool arguments, unknown tool names, reconciliation anomalies).
var (
	// ErrTooManyFailures means the per-conversation failure budget was
	// exhausted by provider or tool errors.
	ErrTooManyFailures = errors.New("too many failures")

	// ErrProtocolViolation means the provider's first streamed fragment was
	// neither prose nor the start of a tool invocation.
	ErrProtocolViolation = errors.New("protocol violation in provider stream")

	// ErrToolRuntime wraps an adapter failure during a tool round.
	ErrToolRuntime = errors.New("tool runtime failure")
)
