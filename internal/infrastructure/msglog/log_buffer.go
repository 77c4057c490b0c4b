package msglog

import "sync"

// logBuffer is an append-only, thread-safe sequence of messages for one slot.
type logBuffer struct {
	mu      sync.RWMutex
	entries []string
}

// Append adds a message at the end.
//
// Complexity: amortized O(1)
func (b *logBuffer) Append(msg string) {
	b.mu.Lock()
	b.entries = append(b.entries, msg)
	b.mu.Unlock()
}

// Read returns a copy of all messages, oldest → newest.
// Returns a NEW slice (caller owns memory).
func (b *logBuffer) Read() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of messages.
func (b *logBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
