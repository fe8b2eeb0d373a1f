package debugbridge

import "sync"

// Buffer is a fixed-capacity ring of events; the oldest is evicted first.
type Buffer struct {
	mu     sync.RWMutex
	events []Event
	start  int
	size   int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{events: make([]Event, capacity)}
}

func (b *Buffer) Add(events ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		idx := (b.start + b.size) % len(b.events)
		b.events[idx] = e
		if b.size < len(b.events) {
			b.size++
		} else {
			b.start = (b.start + 1) % len(b.events)
		}
	}
}

// List returns the newest limit events matching typ (all when empty),
// oldest first.
func (b *Buffer) List(typ string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0)
	for i := b.size - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := b.events[(b.start+i)%len(b.events)]
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.events {
		b.events[i] = Event{}
	}
	b.start, b.size = 0, 0
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
