package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ansari/internal/conversation"
	"ansari/internal/logging"
)

// OpenAIClient implements Client for OpenAI-compatible chat completion APIs.
// It uses the flat-string content convention: tool invocations ride on the
// assistant message's tool_calls field and results come back as role=tool
// messages keyed by tool_call_id.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 2 * time.Minute,
	}
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg ClientConfig, maxTokens int) *OpenAIClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIClient{
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
func (c *OpenAIClient) Model() string { return c.model }

// AssistantToolMessage builds the assistant turn recording tool invocations.
// The in-memory shape is the canonical block list; flattening to the wire's
// tool_calls field happens at request time.
func (c *OpenAIClient) AssistantToolMessage(prose string, calls []ToolCall) conversation.Message {
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

// ToolResultMessage builds a role=tool turn keyed by the invocation id.
func (c *OpenAIClient) ToolResultMessage(call ToolCall, content string, refs []conversation.Document) conversation.Message {
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
		Role:       conversation.RoleTool,
		Content:    blocks,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		RefList:    refs,
	}
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// toWire flattens in-memory history to the chat-completions shape.
func (c *OpenAIClient) toWire(system string, messages []conversation.Message) []openAIMessage {
	wire := make([]openAIMessage, 0, len(messages)+1)
	if system != "" {
		wire = append(wire, openAIMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		if m.Role == conversation.RoleSystem {
			continue
		}

		switch content := m.Content.(type) {
		case conversation.Text:
			wire = append(wire, openAIMessage{Role: string(m.Role), Content: string(content)})
		case conversation.Blocks:
			switch m.Role {
			case conversation.RoleAssistant:
				msg := openAIMessage{Role: "assistant", Content: m.PlainText()}
				for _, b := range content {
					if b.Type != conversation.BlockToolUse {
						continue
					}
					args, err := json.Marshal(b.Input)
					if err != nil {
						args = []byte("{}")
					}
					msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
						ID:       b.ID,
						Type:     "function",
						Function: openAIFunctionCall{Name: b.Name, Arguments: string(args)},
					})
				}
				wire = append(wire, msg)
			default:
				// Tool-result turn: result text plus rendered references.
				var sb strings.Builder
				for _, b := range content {
					switch b.Type {
					case conversation.BlockToolResult:
						sb.WriteString(b.Content)
					case conversation.BlockDocument:
						if b.Document != nil {
							sb.WriteString("\n\n")
							sb.WriteString(renderDocument(*b.Document))
						}
					case conversation.BlockText:
						sb.WriteString(b.Text)
					}
				}
				wire = append(wire, openAIMessage{
					Role:       "tool",
					Content:    sb.String(),
					ToolCallID: m.ToolCallID,
				})
			}
		}
	}
	return wire
}

// Stream opens one streaming request and emits fragments in arrival order.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
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
		log.Debugf("[OpenAI] Stream: model=%s messages=%d tools=%d", c.model, len(req.Messages), len(req.Tools))

		if c.apiKey == "" {
			errs <- fmt.Errorf("API key not configured")
			return
		}

		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = c.maxTokens
		}
		body := openAIRequest{
			Model:       c.model,
			Messages:    c.toWire(req.System, req.Messages),
			MaxTokens:   maxTokens,
			Temperature: 0,
			Stream:      true,
		}
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, openAITool{
				Type:     "function",
				Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
			})
		}

		jsonData, err := json.Marshal(body)
		if err != nil {
			errs <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			errs <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				send(ctx, events, StreamEvent{Kind: EventDone, StopReason: stopReason})
				log.Infof("[OpenAI] Stream: completed in %v stop_reason=%s", time.Since(startTime), stopReason)
				return
			}

			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errs <- fmt.Errorf("API error: %s", chunk.Error.Message)
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			switch choice.FinishReason {
			case "tool_calls":
				stopReason = StopToolUse
			case "stop":
				stopReason = StopEndTurn
			}

			if choice.Delta == nil {
				continue
			}
			if choice.Delta.Content != "" {
				if !send(ctx, events, StreamEvent{Kind: EventText, Text: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.ID != "" || tc.Function.Name != "" {
					if !send(ctx, events, StreamEvent{Kind: EventToolStart, ToolID: tc.ID, ToolName: tc.Function.Name}) {
						return
					}
				}
				if tc.Function.Arguments != "" {
					if !send(ctx, events, StreamEvent{Kind: EventToolArgs, ArgsDelta: tc.Function.Arguments}) {
						return
					}
				}
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream error: %w", err)
			return
		}
		send(ctx, events, StreamEvent{Kind: EventDone, StopReason: stopReason})
		log.Warnf("[OpenAI] Stream: ended without [DONE] after %v", time.Since(startTime))
	}()

	return events, errs
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta *struct {
			Content   string `json:"content,omitempty"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
