package voice

import (
	"sync"
	"time"
)

type queued struct {
	text string
	at   time.Time
}

// commandQueue is an unbounded FIFO. Entries leave exactly once; there
// is no re-delivery if a consumer drops one.
type commandQueue struct {
	mu      sync.Mutex
	entries []queued
}

func (q *commandQueue) push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, queued{text: text, at: time.Now()})
}

func (q *commandQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return "", false
	}

	head := q.entries[0]
	q.entries = q.entries[1:]
	return head.text, true
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
