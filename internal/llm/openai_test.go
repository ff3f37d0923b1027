package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansari/internal/conversation"
)

func TestOpenAIStreamProse(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Corals are "}}]}`,
		`{"choices":[{"delta":{"content":"mentioned in 55:22."}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	}, nil)
	defer srv.Close()

	c := NewOpenAIClient(ClientConfig{APIKey: "key", BaseURL: srv.URL, Model: "gpt-test", Timeout: 5 * time.Second}, 0)
	events, errs := c.Stream(context.Background(), Request{
		Messages: []conversation.Message{conversation.NewText(conversation.RoleUser, "corals?")},
	})

	collected, err := collectEvents(t, events, errs)
	require.NoError(t, err)
	require.Len(t, collected, 3)
	assert.Equal(t, EventText, collected[0].Kind)
	assert.Equal(t, EventDone, collected[2].Kind)
	assert.Equal(t, StopEndTurn, collected[2].StopReason)
}

func TestOpenAIStreamToolCall(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search_hadith"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"mercy\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	}, nil)
	defer srv.Close()

	c := NewOpenAIClient(ClientConfig{APIKey: "key", BaseURL: srv.URL, Model: "gpt-test", Timeout: 5 * time.Second}, 0)
	events, errs := c.Stream(context.Background(), Request{})

	collected, err := collectEvents(t, events, errs)
	require.NoError(t, err)
	require.Len(t, collected, 4)
	assert.Equal(t, EventToolStart, collected[0].Kind)
	assert.Equal(t, "call_1", collected[0].ToolID)
	assert.Equal(t, "search_hadith", collected[0].ToolName)
	assert.Equal(t, EventToolArgs, collected[1].Kind)
	assert.Equal(t, EventDone, collected[3].Kind)
	assert.Equal(t, StopToolUse, collected[3].StopReason)
}

func TestOpenAIToWireShapes(t *testing.T) {
	c := NewOpenAIClient(ClientConfig{APIKey: "key", Model: "m"}, 0)

	doc := conversation.Document{Title: "Sahih Muslim 2577", Body: "My mercy prevails...", Origin: "hadith"}
	history := []conversation.Message{
		conversation.NewText(conversation.RoleUser, "mercy?"),
		c.AssistantToolMessage("Let me search.", []ToolCall{{ID: "call_1", Name: "search_hadith", Input: map[string]any{"query": "mercy"}}}),
		c.ToolResultMessage(ToolCall{ID: "call_1", Name: "search_hadith"}, "1 hadith found", []conversation.Document{doc}),
	}

	wire := c.toWire("sys", history)
	require.Len(t, wire, 4)
	assert.Equal(t, "system", wire[0].Role)

	assert.Equal(t, "Let me search.", wire[2].Content)
	require.Len(t, wire[2].ToolCalls, 1)
	assert.Equal(t, "call_1", wire[2].ToolCalls[0].ID)
	assert.Equal(t, "function", wire[2].ToolCalls[0].Type)
	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire[2].ToolCalls[0].Function.Arguments), &args))
	assert.Equal(t, "mercy", args["query"])

	assert.Equal(t, "tool", wire[3].Role)
	assert.Equal(t, "call_1", wire[3].ToolCallID)
	assert.Contains(t, wire[3].Content, "1 hadith found")
	assert.Contains(t, wire[3].Content, "Sahih Muslim 2577")
}
