package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansari/internal/config"
	"ansari/internal/conversation"
	"ansari/internal/llm"
	"ansari/internal/store"
	"ansari/internal/tools"
)

// cannedClient answers every stream with the same prose fragments.
type cannedClient struct {
	fragments []string
	requests  []llm.Request
}

func (c *cannedClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, <-chan error) {
	c.requests = append(c.requests, req)
	events := make(chan llm.StreamEvent, len(c.fragments)+1)
	errs := make(chan error, 1)
	for _, f := range c.fragments {
		events <- llm.StreamEvent{Kind: llm.EventText, Text: f}
	}
	events <- llm.StreamEvent{Kind: llm.EventDone, StopReason: llm.StopEndTurn}
	close(events)
	close(errs)
	return events, errs
}

func (c *cannedClient) Model() string { return "canned" }

func (c *cannedClient) AssistantToolMessage(prose string, calls []llm.ToolCall) conversation.Message {
	blocks := conversation.Blocks{{Type: conversation.BlockText, Text: prose}}
	for _, call := range calls {
		blocks = append(blocks, conversation.Block{Type: conversation.BlockToolUse, ID: call.ID, Name: call.Name, Input: call.Input})
	}
	return conversation.Message{Role: conversation.RoleAssistant, Content: conversation.NormalizeBlocks(blocks)}
}

func (c *cannedClient) ToolResultMessage(call llm.ToolCall, content string, refs []conversation.Document) conversation.Message {
	return conversation.Message{
		Role:       conversation.RoleUser,
		Content:    conversation.Blocks{{Type: conversation.BlockToolResult, ToolUseID: call.ID, Content: content}},
		ToolName:   call.Name,
		ToolCallID: call.ID,
		RefList:    refs,
	}
}

type noopAdapter struct{}

func (noopAdapter) Name() string { return "search_quran" }
func (noopAdapter) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: "search_quran", InputSchema: map[string]any{"type": "object"}}
}
func (noopAdapter) Run(ctx context.Context, query string) ([]tools.Hit, error) { return nil, nil }
func (noopAdapter) FormatAsList(hits []tools.Hit) []string                     { return nil }
func (noopAdapter) FormatAsReferenceDocuments(hits []tools.Hit) []conversation.Document {
	return nil
}

func newTestServer(t *testing.T, client llm.Client) (*httptest.Server, *store.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agent.RetryBackoff = "1ms"
	cfg.Server.AllowedOrigins = []string{"https://ansari.chat"}

	st, err := store.Open(filepath.Join(t.TempDir(), "ansari.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry, err := tools.NewRegistry(noopAdapter{})
	require.NoError(t, err)

	srv := httptest.NewServer(New(cfg, st, client, registry, "You are a helpful assistant.").Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func createThread(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := http.Post(srv.URL+"/api/v2/threads", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ThreadID string `json:"thread_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ThreadID)
	return created.ThreadID
}

func TestThreadEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &cannedClient{})
	id := createThread(t, srv, "first")

	resp, err := http.Get(srv.URL + "/api/v2/threads")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listed []struct {
		ThreadID string `json:"thread_id"`
		Name     string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0].ThreadID)
	assert.Equal(t, "first", listed[0].Name)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v2/threads/"+id, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err := http.Get(srv.URL + "/api/v2/threads/" + id)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestSendMessageStreamsAndPersists(t *testing.T) {
	client := &cannedClient{fragments: []string{"Yes, ", "in Surah ar-Rahman."}}
	srv, _ := newTestServer(t, client)
	id := createThread(t, srv, "")

	body, _ := json.Marshal(map[string]string{"content": "Does the Quran mention coral?"})
	resp, err := http.Post(srv.URL+"/api/v2/threads/"+id+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	answer, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Yes, in Surah ar-Rahman.", string(answer))

	// Both turns were persisted and replay through the history endpoint.
	histResp, err := http.Get(srv.URL + "/api/v2/threads/" + id)
	require.NoError(t, err)
	defer histResp.Body.Close()
	var hist struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "user", hist.Messages[0].Role)
	assert.Equal(t, "assistant", hist.Messages[1].Role)
	assert.Equal(t, "Yes, in Surah ar-Rahman.", hist.Messages[1].Content)

	// A follow-up replays the stored history into the next request.
	body, _ = json.Marshal(map[string]string{"content": "Which verse?"})
	resp2, err := http.Post(srv.URL+"/api/v2/threads/"+id+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp2.Body.Close()
	require.Len(t, client.requests, 2)
	assert.Len(t, client.requests[1].Messages, 3)
}

func TestSendMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t, &cannedClient{})

	resp, err := http.Post(srv.URL+"/api/v2/threads/unknown/messages", "application/json",
		strings.NewReader(`{"content": "hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	id := createThread(t, srv, "")
	resp, err = http.Post(srv.URL+"/api/v2/threads/"+id+"/messages", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSAllowList(t *testing.T) {
	srv, _ := newTestServer(t, &cannedClient{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v2/threads", nil)
	req.Header.Set("Origin", "https://ansari.chat")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://ansari.chat", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v2/threads", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/api/v2/threads", nil)
	req.Header.Set("Origin", "https://ansari.chat")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
