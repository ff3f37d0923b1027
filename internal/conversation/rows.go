package conversation

import "encoding/json"

// StorageRow is the flattened, persistable form of a Message. Content holds
// plain text or a JSON-encoded block list; the tool metadata and reference
// list are pulled into their own columns so they can be queried and rendered
// without decoding the content blob.
type StorageRow struct {
	Role        string
	Content     string
	ToolName    string
	ToolDetails string // JSON ToolDetails, empty when no tool was involved
	RefList     string // JSON []Document, empty when no references exist
}

// ToolDetails is the serialized linkage between a tool invocation and its
// result row.
type ToolDetails struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// DroppedResultPlaceholder replaces a reconstructed tool-result turn whose
// every block referenced an invocation that no longer exists.
const DroppedResultPlaceholder = "Tool results no longer available."

// ToStorageRow flattens a message for persistence.
func ToStorageRow(m Message) (StorageRow, error) {
	row := StorageRow{Role: string(m.Role), ToolName: m.ToolName}

	if len(m.RefList) > 0 {
		refs, err := json.Marshal(m.RefList)
		if err != nil {
			return StorageRow{}, err
		}
		row.RefList = string(refs)
	}

	switch c := m.Content.(type) {
	case Text:
		row.Content = string(c)
	case Blocks:
		// Documents travel in the RefList column, not the content blob.
		kept := make(Blocks, 0, len(c))
		for _, b := range c {
			if b.Type == BlockDocument {
				continue
			}
			kept = append(kept, b)
		}
		encoded, err := json.Marshal(kept)
		if err != nil {
			return StorageRow{}, err
		}
		row.Content = string(encoded)

		for _, b := range kept {
			switch b.Type {
			case BlockToolUse:
				row.ToolName = b.Name
				details, err := json.Marshal(ToolDetails{ID: b.ID, Name: b.Name, Arguments: b.Input})
				if err != nil {
					return StorageRow{}, err
				}
				row.ToolDetails = string(details)
			case BlockToolResult:
				details, err := json.Marshal(ToolDetails{ID: b.ToolUseID, Name: m.ToolName})
				if err != nil {
					return StorageRow{}, err
				}
				row.ToolDetails = string(details)
			}
		}
	default:
		row.Content = ""
	}

	if m.ToolCallID != "" && row.ToolDetails == "" {
		details, _ := json.Marshal(ToolDetails{ID: m.ToolCallID, Name: m.ToolName})
		row.ToolDetails = string(details)
	}

	return row, nil
}

// FromStorageRows rebuilds provider-ready messages from persisted rows.
// Anomalies degrade instead of failing: malformed JSON becomes opaque text,
// and tool-result blocks whose invocation id was never reconstructed are
// dropped so the provider never sees a dangling reference.
func FromStorageRows(rows []StorageRow) []Message {
	messages := make([]Message, 0, len(rows))
	seenToolUse := make(map[string]bool)

	for _, row := range rows {
		role := Role(row.Role)

		if row.ToolName == "" && row.ToolDetails == "" {
			messages = append(messages, Message{Role: role, Content: Text(row.Content)})
			continue
		}

		var details ToolDetails
		if err := json.Unmarshal([]byte(row.ToolDetails), &details); err != nil {
			// Tool metadata is unreadable; fall back to the raw content.
			messages = append(messages, Message{Role: role, Content: Text(row.Content)})
			continue
		}

		switch role {
		case RoleAssistant:
			name := details.Name
			if name == "" {
				name = row.ToolName
			}
			blocks := Blocks{
				{Type: BlockText, Text: storedText(row.Content)},
				{Type: BlockToolUse, ID: details.ID, Name: name, Input: details.Arguments},
			}
			seenToolUse[details.ID] = true
			messages = append(messages, Message{Role: role, Content: blocks})

		case RoleUser, RoleTool:
			refs := decodeRefs(row.RefList)
			blocks := Blocks{{
				Type:      BlockToolResult,
				ToolUseID: details.ID,
				Content:   storedResultText(row.Content),
			}}
			for i := range refs {
				blocks = append(blocks, Block{Type: BlockDocument, Document: &refs[i]})
			}
			messages = append(messages, Message{
				Role:       role,
				Content:    blocks,
				ToolName:   row.ToolName,
				ToolCallID: details.ID,
				RefList:    refs,
			})

		default:
			messages = append(messages, Message{Role: role, Content: Text(row.Content)})
		}
	}

	return dropDanglingResults(messages, seenToolUse)
}

// dropDanglingResults enforces id referential integrity on reconstructed
// history. A message left without content blocks collapses to a placeholder
// string rather than an empty list.
func dropDanglingResults(messages []Message, seenToolUse map[string]bool) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		blocks, ok := m.Content.(Blocks)
		if !ok {
			out = append(out, m)
			continue
		}
		kept := make(Blocks, 0, len(blocks))
		dropped := false
		for _, b := range blocks {
			if b.Type == BlockToolResult {
				if !seenToolUse[b.ToolUseID] {
					dropped = true
					continue
				}
				// A kept result ends the dropped run; its own documents stay.
				dropped = false
			}
			// Documents belonging to a dropped result go with it.
			if b.Type == BlockDocument && dropped {
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 {
			m.Content = Text(DroppedResultPlaceholder)
			m.RefList = nil
		} else {
			m.Content = kept
		}
		out = append(out, m)
	}
	return out
}

// storedText recovers the prose of an assistant row whose content column may
// hold either a JSON block list or plain text.
func storedText(content string) string {
	var blocks Blocks
	if err := json.Unmarshal([]byte(content), &blocks); err == nil {
		var text string
		for _, b := range blocks {
			if b.Type == BlockText {
				text += b.Text
			}
		}
		return text
	}
	return content
}

// storedResultText recovers the result text of a tool-result row.
func storedResultText(content string) string {
	var blocks Blocks
	if err := json.Unmarshal([]byte(content), &blocks); err == nil {
		for _, b := range blocks {
			if b.Type == BlockToolResult {
				return b.Content
			}
		}
		// A decoded list without a result block carries no usable text.
		var text string
		for _, b := range blocks {
			if b.Type == BlockText {
				text += b.Text
			}
		}
		return text
	}
	return content
}

func decodeRefs(encoded string) []Document {
	if encoded == "" {
		return nil
	}
	var refs []Document
	if err := json.Unmarshal([]byte(encoded), &refs); err != nil {
		return nil
	}
	return refs
}
