package agent

import (
	"strings"

	"ansari/internal/llm"
)

// roundMode classifies one streamed response. The first fragment decides the
// mode and it stays fixed for the rest of the response.
type roundMode int

const (
	modeUnset roundMode = iota
	modeWords
	modeTool
)

// partialToolCall accumulates one invocation's argument JSON across
// fragments. The arguments are not parseable until the stream ends.
type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

// roundState folds a stream of fragments into one closed response: the prose
// buffer, the accumulated tool invocations, and the stop reason.
type roundState struct {
	mode       roundMode
	text       strings.Builder
	calls      []*partialToolCall
	stopReason string
	done       bool
}

// apply consumes one fragment and returns the prose delta to surface to the
// caller, which is empty unless the response is in words mode.
func (st *roundState) apply(evt llm.StreamEvent) (string, error) {
	switch evt.Kind {
	case llm.EventText:
		if st.mode == modeUnset {
			st.mode = modeWords
		}
		st.text.WriteString(evt.Text)
		if st.mode == modeWords {
			return evt.Text, nil
		}
		return "", nil

	case llm.EventToolStart:
		if st.mode == modeUnset {
			st.mode = modeTool
		}
		st.calls = append(st.calls, &partialToolCall{id: evt.ToolID, name: evt.ToolName})
		return "", nil

	case llm.EventToolArgs:
		if len(st.calls) == 0 {
			// Argument fragments can only follow an invocation start.
			return "", ErrProtocolViolation
		}
		st.calls[len(st.calls)-1].args.WriteString(evt.ArgsDelta)
		return "", nil

	case llm.EventDone:
		st.stopReason = evt.StopReason
		st.done = true
		return "", nil
	}
	return "", nil
}
