package store

import (
	"context"
	"time"

	"ansari/internal/conversation"
	"ansari/internal/logging"
)

// ThreadLogger appends every message the agent produces to one thread. It
// satisfies the agent's message-log contract: persistence failures are logged
// and swallowed so a storage problem never interrupts a conversation.
type ThreadLogger struct {
	store    *Store
	threadID string
}

// Logger returns a message logger bound to the given thread.
func (s *Store) Logger(threadID string) *ThreadLogger {
	return &ThreadLogger{store: s, threadID: threadID}
}

// Log flattens and persists one message.
func (l *ThreadLogger) Log(m conversation.Message) {
	log := logging.Get(logging.CategoryStore)

	row, err := conversation.ToStorageRow(m)
	if err != nil {
		log.Errorf("thread %s: failed to flatten %s message: %v", l.threadID, m.Role, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.AppendMessage(ctx, l.threadID, row); err != nil {
		log.Errorf("thread %s: failed to persist %s message: %v", l.threadID, m.Role, err)
	}
}
