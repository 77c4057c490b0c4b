package msglog

import (
	"sort"
	"sync"
)

// Log holds the received messages of every live slot.
//   - Buffers are created lazily on first Append
//   - Clear drops a slot's buffer entirely
//   - The index lock only covers lookup/insert/delete; appends to
//     different slots do not serialize on each other's buffers
type Log struct {
	mu   sync.RWMutex       // guards bufs map
	bufs map[int]*logBuffer // slot → message buffer
}

// New initializes an empty message log.
func New() *Log {
	return &Log{
		bufs: make(map[int]*logBuffer),
	}
}

// Append adds msg to the end of slot's sequence, creating it if absent.
func (l *Log) Append(slot int, msg string) {
	l.get(slot).Append(msg)
}

// Clear removes the sequence for slot. No-op if absent.
func (l *Log) Clear(slot int) {
	l.mu.Lock()
	delete(l.bufs, slot)
	l.mu.Unlock()
}

// Messages returns a copy of slot's messages in insertion order.
// ok is false when the slot has no sequence.
func (l *Log) Messages(slot int) ([]string, bool) {
	l.mu.RLock()
	buf, ok := l.bufs[slot]
	l.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return buf.Read(), true
}

// Len returns the number of messages logged for slot (0 if absent).
func (l *Log) Len(slot int) int {
	l.mu.RLock()
	buf, ok := l.bufs[slot]
	l.mu.RUnlock()

	if !ok {
		return 0
	}
	return buf.Len()
}

// Slots returns the slots that currently have a sequence, ascending.
func (l *Log) Slots() []int {
	l.mu.RLock()
	out := make([]int, 0, len(l.bufs))
	for slot := range l.bufs {
		out = append(out, slot)
	}
	l.mu.RUnlock()

	sort.Ints(out)
	return out
}

// get returns the buffer for slot, creating it if missing.
func (l *Log) get(slot int) *logBuffer {
	l.mu.RLock()
	buf, ok := l.bufs[slot]
	l.mu.RUnlock()
	if ok {
		return buf
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// another goroutine may have created it in between
	if buf, ok := l.bufs[slot]; ok {
		return buf
	}
	buf = new(logBuffer)
	l.bufs[slot] = buf
	return buf
}
