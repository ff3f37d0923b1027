// Package llm contains the provider clients the agent talks to. Each client
// wraps one vendor's chat API behind a uniform streaming fragment contract so
// the processing loop never sees vendor wire formats.
package llm

import (
	"context"
	"time"

	"ansari/internal/conversation"
)

// EventKind classifies one streamed fragment.
type EventKind string

const (
	// EventText carries a prose delta.
	EventText EventKind = "text"
	// EventToolStart opens a tool invocation; the name arrives exactly once.
	EventToolStart EventKind = "tool_start"
	// EventToolArgs carries a fragment of the invocation's argument JSON.
	EventToolArgs EventKind = "tool_args"
	// EventDone terminates the response and carries the stop reason.
	EventDone EventKind = "done"
)

// Normalized stop reasons.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

// StreamEvent is one fragment of a streaming response.
type StreamEvent struct {
	Kind EventKind

	Text string // EventText

	ToolID   string // EventToolStart
	ToolName string // EventToolStart

	ArgsDelta string // EventToolArgs

	StopReason string // EventDone
}

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a fully accumulated and parsed tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// Request is one streaming chat request. Sampling temperature is fixed at
// zero by every client for reproducible answers.
type Request struct {
	System    string
	Messages  []conversation.Message
	Tools     []ToolDefinition
	MaxTokens int
}

// Client is the uniform provider contract. Stream performs exactly one
// attempt; retry and backoff belong to the caller. The two message builders
// encode the provider's content convention, so the agent appends turns in
// whichever shape the wire requires without branching on the vendor.
type Client interface {
	// Stream opens a streaming request and emits fragments in arrival order.
	// The event channel closes at end of stream; a transport or protocol
	// failure arrives on the error channel instead.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)

	// AssistantToolMessage builds the assistant turn recording tool
	// invocations, including any prose that preceded them.
	AssistantToolMessage(prose string, calls []ToolCall) conversation.Message

	// ToolResultMessage builds the turn carrying one tool's results back to
	// the model, tagged with the originating invocation id.
	ToolResultMessage(call ToolCall, content string, refs []conversation.Document) conversation.Message

	// Model reports the configured model identifier.
	Model() string
}

// ClientConfig holds the settings shared by all provider clients.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}
