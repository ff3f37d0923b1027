package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansari/internal/conversation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ansari.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestThreadLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateThread(ctx, "coral question")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.GetThread(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "coral question", got.Name)

	require.NoError(t, s.RenameThread(ctx, created.ID, "renamed"))
	got, err = s.GetThread(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	require.NoError(t, s.DeleteThread(ctx, created.ID))
	_, err = s.GetThread(ctx, created.ID)
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestUnknownThreadErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetThread(ctx, "nope")
	assert.ErrorIs(t, err, ErrThreadNotFound)
	assert.ErrorIs(t, s.RenameThread(ctx, "nope", "x"), ErrThreadNotFound)
	assert.ErrorIs(t, s.DeleteThread(ctx, "nope"), ErrThreadNotFound)
	_, err = s.MessageRows(ctx, "nope")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestAppendAndReplayHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	thread, err := s.CreateThread(ctx, "")
	require.NoError(t, err)

	history := []conversation.Message{
		conversation.NewText(conversation.RoleUser, "Does the Quran mention coral?"),
		{
			Role: conversation.RoleAssistant,
			Content: conversation.Blocks{
				{Type: conversation.BlockText, Text: ""},
				{Type: conversation.BlockToolUse, ID: "tu_1", Name: "search_quran", Input: map[string]any{"query": "coral"}},
			},
		},
		{
			Role: conversation.RoleUser,
			Content: conversation.Blocks{
				{Type: conversation.BlockToolResult, ToolUseID: "tu_1", Content: "Quran 55:22: pearl and coral"},
			},
			ToolName:   "search_quran",
			ToolCallID: "tu_1",
			RefList: []conversation.Document{
				{Title: "Quran 55:22", Body: "From both of them emerge pearl and coral.", Origin: "quran", CitationEnabled: true},
			},
		},
		conversation.NewText(conversation.RoleAssistant, "Yes, in Surah ar-Rahman."),
	}
	logger := s.Logger(thread.ID)
	for _, m := range history {
		logger.Log(m)
	}

	replayed, err := s.History(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, replayed, 4)

	assert.Equal(t, conversation.RoleUser, replayed[0].Role)
	require.Len(t, replayed[1].ToolUses(), 1)
	assert.Equal(t, "tu_1", replayed[1].ToolUses()[0].ID)
	assert.Equal(t, "search_quran", replayed[2].ToolName)
	require.Len(t, replayed[2].RefList, 1)
	assert.Equal(t, "Quran 55:22", replayed[2].RefList[0].Title)
	assert.Equal(t, "Yes, in Surah ar-Rahman.", replayed[3].PlainText())
	assert.NoError(t, conversation.ValidateAlternation(replayed))
}

func TestLoggerSwallowsFailures(t *testing.T) {
	s := openTestStore(t)

	// Unknown thread violates the foreign key; Log must not panic or abort.
	logger := s.Logger("missing-thread")
	logger.Log(conversation.NewText(conversation.RoleUser, "hello"))

	rows, err := s.MessageRows(context.Background(), "missing-thread")
	assert.Error(t, err)
	assert.Empty(t, rows)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ansari.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	thread, err := s.CreateThread(ctx, "persist")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, thread.ID, conversation.StorageRow{Role: "user", Content: "hi"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rows, err := s2.MessageRows(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0].Content)
}
