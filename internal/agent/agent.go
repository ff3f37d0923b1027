// Package agent implements the conversational processing loop: it streams a
// model response, surfaces prose to the caller as it arrives, dispatches tool
// invocations through the registry, folds the results back into the message
// history, and re-queries until the model closes with a prose answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ansari/internal/config"
	"ansari/internal/conversation"
	"ansari/internal/llm"
	"ansari/internal/logging"
	"ansari/internal/tools"
)

// noResults replaces an empty hit list so the model always receives
// non-empty tool output.
const noResults = "No results found"

// MessageLogger receives every message the agent appends to its history, in
// append order. Implementations must swallow their own failures; a logging
// problem never interrupts a conversation.
type MessageLogger interface {
	Log(m conversation.Message)
}

// Agent drives one conversation. Construct a fresh instance per conversation;
// a single instance never processes two inputs concurrently.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	msgLog   MessageLogger
	log      *zap.SugaredLogger

	systemPrompt  string
	maxFailures   int
	maxToolRounds int
	backoff       time.Duration
	maxTokens     int

	mu      sync.Mutex
	history []conversation.Message
}

// New builds an agent from application configuration. msgLog may be nil when
// the conversation is not persisted.
func New(cfg *config.Config, client llm.Client, registry *tools.Registry, systemPrompt string, msgLog MessageLogger) *Agent {
	return &Agent{
		client:        client,
		registry:      registry,
		msgLog:        msgLog,
		log:           logging.Get(logging.CategoryAgent),
		systemPrompt:  systemPrompt,
		maxFailures:   cfg.Agent.MaxFailures,
		maxToolRounds: cfg.Agent.MaxToolRounds,
		backoff:       cfg.GetRetryBackoff(),
		maxTokens:     cfg.LLM.MaxTokens,
	}
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []conversation.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]conversation.Message(nil), a.history...)
}

// ProcessInput appends the user's text to the history and runs the processing
// loop. Prose arrives on the first channel as it streams; the second channel
// delivers at most one fatal error. Both channels close when the turn ends.
func (a *Agent) ProcessInput(ctx context.Context, text string) (<-chan string, <-chan error) {
	a.append(conversation.NewText(conversation.RoleUser, text))
	return a.start(ctx)
}

// Seed installs a previously stored conversation without processing it. The
// seeded messages are not re-logged. A leading system message overrides the
// configured system prompt and is not kept as a history entry.
func (a *Agent) Seed(history []conversation.Message) {
	if len(history) > 0 && history[0].Role == conversation.RoleSystem {
		a.systemPrompt = history[0].PlainText()
		history = history[1:]
	}
	a.mu.Lock()
	a.history = append([]conversation.Message(nil), history...)
	a.mu.Unlock()
}

// ReplaceMessageHistory swaps in a previously stored conversation, whose last
// message must be the user turn awaiting an answer, and runs the processing
// loop.
func (a *Agent) ReplaceMessageHistory(ctx context.Context, history []conversation.Message) (<-chan string, <-chan error) {
	a.Seed(history)
	return a.start(ctx)
}

func (a *Agent) start(ctx context.Context) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go a.run(ctx, out, errc)
	return out, errc
}

// run is the loop proper. A shared failure budget covers provider and tool
// errors across all rounds of the turn; after maxToolRounds rounds used
// tools, further requests go out without tool schemas to force a prose
// answer.
func (a *Agent) run(ctx context.Context, out chan<- string, errc chan<- error) {
	defer close(errc)
	defer close(out)

	failures := 0
	toolRounds := 0
	for {
		usedTools, done, err := a.round(ctx, toolRounds < a.maxToolRounds, out)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				errc <- err
				return
			}
			if errors.Is(err, ErrProtocolViolation) {
				errc <- err
				return
			}
			failures++
			a.log.Warnf("round failed (attempt %d/%d): %v", failures, a.maxFailures, err)
			if failures >= a.maxFailures {
				errc <- fmt.Errorf("%w: %d attempts, last: %w", ErrTooManyFailures, failures, err)
				return
			}
			if !a.wait(ctx) {
				errc <- ctx.Err()
				return
			}
			continue
		}
		if usedTools {
			toolRounds++
		}
		if done {
			return
		}
	}
}

// round performs one request/response cycle. It returns usedTools when the
// response was a tool round, valid or not, and done when the turn closed
// with a prose answer.
func (a *Agent) round(ctx context.Context, toolsEnabled bool, out chan<- string) (usedTools, done bool, err error) {
	st, err := a.streamRound(ctx, a.buildRequest(toolsEnabled), out)
	if err != nil {
		return false, false, err
	}

	if !toolsEnabled && len(st.calls) > 0 {
		// Tool rounds are exhausted; invocations emitted anyway are dropped
		// and whatever prose accumulated closes the turn.
		a.log.Warnf("model attempted tool use after tool rounds were exhausted, closing with prose")
		a.append(conversation.NewText(conversation.RoleAssistant, st.text.String()))
		return false, true, nil
	}

	calls := a.parseCalls(st)
	if len(calls) == 0 {
		if st.mode == modeTool && st.stopReason == llm.StopToolUse {
			// Every invocation was unknown or unparseable. The round still
			// consumes tool budget: a deterministic model that repeats the
			// same bad call must hit the round bound, not loop forever.
			return true, false, nil
		}
		a.append(conversation.NewText(conversation.RoleAssistant, st.text.String()))
		return false, true, nil
	}

	prose := st.text.String()
	for _, call := range calls {
		if err := a.dispatch(ctx, call, prose); err != nil {
			return true, false, err
		}
		prose = ""
	}
	return true, false, nil
}

// streamRound opens one streaming request and folds its fragments, relaying
// prose deltas to out as they arrive.
func (a *Agent) streamRound(ctx context.Context, req llm.Request, out chan<- string) (*roundState, error) {
	events, errs := a.client.Stream(ctx, req)
	st := &roundState{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, err
			}
			errs = nil
		case evt, ok := <-events:
			if !ok {
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						return nil, err
					}
				}
				return st, nil
			}
			delta, err := st.apply(evt)
			if err != nil {
				return nil, err
			}
			if delta != "" {
				select {
				case out <- delta:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
	}
}

func (a *Agent) buildRequest(toolsEnabled bool) llm.Request {
	req := llm.Request{
		System:    a.systemPrompt,
		Messages:  a.History(),
		MaxTokens: a.maxTokens,
	}
	if toolsEnabled {
		req.Tools = a.registry.Definitions()
	}
	return req
}

// parseCalls turns the round's accumulated invocations into runnable calls.
// Malformed argument JSON and unknown tool names are logged and skipped.
func (a *Agent) parseCalls(st *roundState) []llm.ToolCall {
	calls := make([]llm.ToolCall, 0, len(st.calls))
	for _, pc := range st.calls {
		if _, known := a.registry.Get(pc.name); !known {
			a.log.Warnf("model invoked unknown tool %q, skipping", pc.name)
			continue
		}
		input := map[string]any{}
		if raw := pc.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				a.log.Warnf("malformed arguments for tool %q, skipping: %v", pc.name, err)
				continue
			}
		}
		calls = append(calls, llm.ToolCall{ID: pc.id, Name: pc.name, Input: input})
	}
	return calls
}

// dispatch runs one tool call and appends the invocation/result message pair.
// The pair is appended only after the adapter succeeds, so a failed call
// leaves the history exactly as it was before the round.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall, prose string) error {
	adapter, _ := a.registry.Get(call.Name)
	query, _ := call.Input["query"].(string)

	hits, err := adapter.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolRuntime, call.Name, err)
	}

	content := noResults
	var refs []conversation.Document
	if len(hits) > 0 {
		content = strings.Join(adapter.FormatAsList(hits), "\n\n")
		refs = adapter.FormatAsReferenceDocuments(hits)
	}

	a.append(a.client.AssistantToolMessage(prose, []llm.ToolCall{call}))
	a.append(a.client.ToolResultMessage(call, content, refs))
	a.log.Debugf("tool %s returned %d hits for %q", call.Name, len(hits), query)
	return nil
}

func (a *Agent) append(m conversation.Message) {
	a.mu.Lock()
	a.history = append(a.history, m)
	a.mu.Unlock()
	if a.msgLog != nil {
		a.msgLog.Log(m)
	}
}

// wait sleeps for the retry backoff, returning false if ctx ended first.
func (a *Agent) wait(ctx context.Context) bool {
	timer := time.NewTimer(a.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
