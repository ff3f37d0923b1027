// Package conversation defines the in-memory message model shared by the
// agent loop, the LLM provider clients, and the persistence layer, plus the
// reconciler that converts between the in-memory shape and storage rows.
//
// Two content conventions coexist because the supported providers disagree:
// a flat string (OpenAI chat messages) and an ordered block list (Anthropic
// content blocks). Content is a closed union so callers type-switch instead
// of shape-sniffing.
package conversation

import "fmt"

// Role tags one entry in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType identifies one typed fragment of block-list content.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockDocument   BlockType = "document"
)

// Document is a search-result citation attached to a tool-result turn.
type Document struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	Origin          string `json:"origin"`
	CitationEnabled bool   `json:"citation_enabled"`
}

// Block is one typed fragment of a message's block-list content. Which
// fields are meaningful depends on Type, mirroring the Anthropic wire shape.
type Block struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// BlockToolResult
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// BlockDocument
	Document *Document `json:"document,omitempty"`
}

// Content is the closed union of the two content conventions.
type Content interface{ isContent() }

// Text is flat-string content.
type Text string

func (Text) isContent() {}

// Blocks is ordered block-list content.
type Blocks []Block

func (Blocks) isContent() {}

// Message is one role-tagged entry in the conversation history.
type Message struct {
	Role    Role
	Content Content

	// ToolName names the tool on tool-invocation and tool-result turns.
	ToolName string
	// ToolCallID links a flat-convention tool-result turn to its invocation.
	ToolCallID string
	// RefList carries the citations produced by a tool-result turn.
	RefList []Document
}

// NewText builds a flat-string message.
func NewText(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// PlainText returns the prose carried by the message: the flat string, or
// the concatenation of its text blocks.
func (m Message) PlainText() string {
	switch c := m.Content.(type) {
	case Text:
		return string(c)
	case Blocks:
		var out string
		for _, b := range c {
			if b.Type == BlockText {
				out += b.Text
			}
		}
		return out
	default:
		return ""
	}
}

// ToolUses returns the tool-invocation blocks of the message, if any.
func (m Message) ToolUses() []Block {
	blocks, ok := m.Content.(Blocks)
	if !ok {
		return nil
	}
	var uses []Block
	for _, b := range blocks {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// NormalizeBlocks guarantees a structurally valid block list: an assistant
// turn must never be an empty list, so an empty input collapses to a single
// empty text block.
func NormalizeBlocks(blocks Blocks) Blocks {
	if len(blocks) == 0 {
		return Blocks{{Type: BlockText, Text: ""}}
	}
	return blocks
}

// ValidateAlternation checks the role pattern the agent loop must maintain:
// an optional leading system turn, then user -> (assistant|tool)* -> assistant,
// where every tool-result turn immediately follows an assistant turn carrying
// the matching invocation.
func ValidateAlternation(history []Message) error {
	i := 0
	if len(history) > 0 && history[0].Role == RoleSystem {
		i = 1
	}
	for ; i < len(history); i++ {
		m := history[i]
		switch m.Role {
		case RoleSystem:
			return fmt.Errorf("system message at position %d: only one leading system turn allowed", i)
		case RoleUser:
			// A user turn carrying tool results behaves like a tool turn.
			if isToolResultTurn(m) {
				if err := checkToolResultPredecessor(history, i); err != nil {
					return err
				}
				continue
			}
			if i > 0 && history[i-1].Role == RoleUser && !isToolResultTurn(history[i-1]) {
				return fmt.Errorf("consecutive user turns at position %d", i)
			}
		case RoleTool:
			if err := checkToolResultPredecessor(history, i); err != nil {
				return err
			}
		case RoleAssistant:
			if blocks, ok := m.Content.(Blocks); ok && len(blocks) == 0 {
				return fmt.Errorf("assistant turn at position %d has empty block list", i)
			}
		default:
			return fmt.Errorf("unknown role %q at position %d", m.Role, i)
		}
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Role != RoleAssistant && last.Role != RoleSystem && !isToolResultTurn(last) {
			// A trailing user turn is legal mid-processing; a trailing tool
			// result is legal only while another round is pending.
			if last.Role != RoleUser {
				return fmt.Errorf("history ends with role %q", last.Role)
			}
		}
	}
	return nil
}

func isToolResultTurn(m Message) bool {
	if m.Role == RoleTool {
		return true
	}
	blocks, ok := m.Content.(Blocks)
	if !ok {
		return false
	}
	for _, b := range blocks {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

func checkToolResultPredecessor(history []Message, i int) error {
	if i == 0 {
		return fmt.Errorf("tool result at position 0 has no preceding assistant turn")
	}
	prev := history[i-1]
	if prev.Role != RoleAssistant || len(prev.ToolUses()) == 0 {
		return fmt.Errorf("tool result at position %d not preceded by an assistant tool invocation", i)
	}
	return nil
}
