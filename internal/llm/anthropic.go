package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ansari/internal/conversation"
	"ansari/internal/logging"
)

// AnthropicClient implements Client for the Anthropic Messages API.
// It uses the block-list content convention: tool invocations are tool_use
// blocks in assistant turns and tool results are tool_result blocks in user
// turns.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-3-5-sonnet-20240620",
		Timeout: 2 * time.Minute,
	}
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg ClientConfig, maxTokens int) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Model returns the configured model identifier.
func (c *AnthropicClient) Model() string { return c.model }

// AssistantToolMessage builds an assistant turn with tool_use blocks.
func (c *AnthropicClient) AssistantToolMessage(prose string, calls []ToolCall) conversation.Message {
	blocks := conversation.Blocks{{Type: conversation.BlockText, Text: prose}}
	for _, call := range calls {
		blocks = append(blocks, conversation.Block{
			Type:  conversation.BlockToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		})
	}
	return conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: conversation.NormalizeBlocks(blocks),
	}
}

// ToolResultMessage builds a user turn with a tool_result block followed by
// the reference documents.
func (c *AnthropicClient) ToolResultMessage(call ToolCall, content string, refs []conversation.Document) conversation.Message {
	blocks := conversation.Blocks{{
		Type:      conversation.BlockToolResult,
		ToolUseID: call.ID,
		Content:   content,
	}}
	for i := range refs {
		blocks = append(blocks, conversation.Block{
			Type:     conversation.BlockDocument,
			Document: &refs[i],
		})
	}
	return conversation.Message{
		Role:       conversation.RoleUser,
		Content:    blocks,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		RefList:    refs,
	}
}

// anthropicMessage is one wire message. Content is a string or a block list.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicWireBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

// toWire converts in-memory history to the Anthropic message shape.
func (c *AnthropicClient) toWire(messages []conversation.Message) []anthropicMessage {
	wire := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		if m.Role == conversation.RoleSystem {
			continue // carried in the top-level system field
		}
		if m.Role == conversation.RoleTool {
			role = "user" // Anthropic has no tool role
		}

		switch content := m.Content.(type) {
		case conversation.Text:
			wire = append(wire, anthropicMessage{Role: role, Content: string(content)})
		case conversation.Blocks:
			blocks := make([]anthropicWireBlock, 0, len(content))
			for _, b := range content {
				switch b.Type {
				case conversation.BlockText:
					blocks = append(blocks, anthropicWireBlock{Type: "text", Text: b.Text})
				case conversation.BlockToolUse:
					input := b.Input
					if input == nil {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropicWireBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
				case conversation.BlockToolResult:
					blocks = append(blocks, anthropicWireBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content})
				case conversation.BlockDocument:
					if b.Document != nil {
						blocks = append(blocks, anthropicWireBlock{Type: "text", Text: renderDocument(*b.Document)})
					}
				}
			}
			wire = append(wire, anthropicMessage{Role: role, Content: blocks})
		}
	}
	return wire
}

func renderDocument(d conversation.Document) string {
	return fmt.Sprintf("[%s] %s\n%s", d.Origin, d.Title, d.Body)
}

// Stream opens one streaming request and emits fragments in arrival order.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 100)
	errs := make(chan error, 1)
	log := logging.Get(logging.CategoryAPI)

	go func() {
		defer close(events)
		defer close(errs)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()
		log.Debugf("[Anthropic] Stream: model=%s messages=%d tools=%d", c.model, len(req.Messages), len(req.Tools))

		if c.apiKey == "" {
			errs <- fmt.Errorf("API key not configured")
			return
		}

		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}
		body := anthropicRequest{
			Model:       c.model,
			MaxTokens:   maxTokens,
			System:      req.System,
			Messages:    c.toWire(req.Messages),
			Temperature: 0,
			Stream:      true,
		}
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}

		jsonData, err := json.Marshal(body)
		if err != nil {
			errs <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			errs <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			errs <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		stopReason := StopEndTurn
		for scanner.Scan() {
			line := scanner.Text()
			if !bytes.HasPrefix([]byte(line), []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace([]byte(line[len("data:"):]))
			if len(data) == 0 {
				continue
			}

			var evt anthropicStreamEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}

			switch evt.Type {
			case "error":
				if evt.Error != nil {
					errs <- fmt.Errorf("API error: %s", evt.Error.Message)
					return
				}
			case "content_block_start":
				if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
					if !send(ctx, events, StreamEvent{Kind: EventToolStart, ToolID: evt.ContentBlock.ID, ToolName: evt.ContentBlock.Name}) {
						return
					}
				}
			case "content_block_delta":
				if evt.Delta == nil {
					continue
				}
				switch evt.Delta.Type {
				case "text_delta":
					if evt.Delta.Text != "" {
						if !send(ctx, events, StreamEvent{Kind: EventText, Text: evt.Delta.Text}) {
							return
						}
					}
				case "input_json_delta":
					if !send(ctx, events, StreamEvent{Kind: EventToolArgs, ArgsDelta: evt.Delta.PartialJSON}) {
						return
					}
				}
			case "message_delta":
				if evt.Delta != nil && evt.Delta.StopReason != "" {
					stopReason = evt.Delta.StopReason
				}
			case "message_stop":
				send(ctx, events, StreamEvent{Kind: EventDone, StopReason: stopReason})
				log.Infof("[Anthropic] Stream: completed in %v stop_reason=%s", time.Since(startTime), stopReason)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream error: %w", err)
			return
		}
		// Stream ended without message_stop; report what we saw.
		send(ctx, events, StreamEvent{Kind: EventDone, StopReason: stopReason})
		log.Warnf("[Anthropic] Stream: ended without message_stop after %v", time.Since(startTime))
	}()

	return events, errs
}

type anthropicStreamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// send delivers an event unless the consumer abandoned the stream.
func send(ctx context.Context, ch chan<- StreamEvent, evt StreamEvent) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
