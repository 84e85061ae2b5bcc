package request

import "sync"

// DefaultBufferCapacity is the number of undelivered records kept per request.
const DefaultBufferCapacity = 1000

// ResultBuffer is a bounded FIFO of records awaiting a poll. When full, appending evicts the oldest
// record. Safe for concurrent use.
type ResultBuffer struct {
	mu      sync.Mutex
	records []string
	head    int
	size    int
	evicted int
}

func NewResultBuffer(capacity int) *ResultBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &ResultBuffer{records: make([]string, capacity)}
}

// Append adds record, evicting the oldest record if the buffer is at capacity. Never blocks.
func (b *ResultBuffer) Append(record string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := len(b.records)
	if b.size == capacity {
		b.records[b.head] = ""
		b.head = (b.head + 1) % capacity
		b.size--
		b.evicted++
	}
	b.records[(b.head+b.size)%capacity] = record
	b.size++
}

// DrainAll returns the buffered records, oldest first, and empties the buffer.
func (b *ResultBuffer) DrainAll() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := len(b.records)
	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % capacity
		out[i] = b.records[idx]
		b.records[idx] = ""
	}
	b.head = 0
	b.size = 0
	return out
}

// Clear drops every buffered record.
func (b *ResultBuffer) Clear() {
	b.DrainAll()
}

func (b *ResultBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *ResultBuffer) Capacity() int {
	return len(b.records)
}

// Evicted is the number of records dropped to make room since the buffer was created.
func (b *ResultBuffer) Evicted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
