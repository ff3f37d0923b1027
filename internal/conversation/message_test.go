package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBlocksNeverEmpty(t *testing.T) {
	got := NormalizeBlocks(nil)
	assert.Len(t, got, 1)
	assert.Equal(t, BlockText, got[0].Type)
	assert.Equal(t, "", got[0].Text)

	kept := Blocks{{Type: BlockText, Text: "hi"}}
	assert.Equal(t, kept, NormalizeBlocks(kept))
}

func TestPlainTextAcrossConventions(t *testing.T) {
	flat := NewText(RoleAssistant, "answer")
	assert.Equal(t, "answer", flat.PlainText())

	block := Message{Role: RoleAssistant, Content: Blocks{
		{Type: BlockText, Text: "an"},
		{Type: BlockToolUse, ID: "t1", Name: "search_quran"},
		{Type: BlockText, Text: "swer"},
	}}
	assert.Equal(t, "answer", block.PlainText())
}

func TestValidateAlternation(t *testing.T) {
	invocation := Message{Role: RoleAssistant, Content: Blocks{
		{Type: BlockText, Text: ""},
		{Type: BlockToolUse, ID: "t1", Name: "search_quran", Input: map[string]any{"query": "coral"}},
	}}
	result := Message{Role: RoleUser, Content: Blocks{
		{Type: BlockToolResult, ToolUseID: "t1", Content: "2 verses"},
	}, ToolName: "search_quran"}

	tests := []struct {
		name    string
		history []Message
		wantErr bool
	}{
		{
			name: "simple exchange",
			history: []Message{
				NewText(RoleSystem, "sys"),
				NewText(RoleUser, "q"),
				NewText(RoleAssistant, "a"),
			},
		},
		{
			name: "tool round trip",
			history: []Message{
				NewText(RoleSystem, "sys"),
				NewText(RoleUser, "q"),
				invocation,
				result,
				NewText(RoleAssistant, "a"),
			},
		},
		{
			name: "consecutive user turns",
			history: []Message{
				NewText(RoleUser, "q1"),
				NewText(RoleUser, "q2"),
			},
			wantErr: true,
		},
		{
			name: "tool result without invocation",
			history: []Message{
				NewText(RoleUser, "q"),
				result,
			},
			wantErr: true,
		},
		{
			name: "empty assistant block list",
			history: []Message{
				NewText(RoleUser, "q"),
				{Role: RoleAssistant, Content: Blocks{}},
			},
			wantErr: true,
		},
		{
			name: "mid system message",
			history: []Message{
				NewText(RoleUser, "q"),
				NewText(RoleSystem, "sys"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAlternation(tt.history)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
