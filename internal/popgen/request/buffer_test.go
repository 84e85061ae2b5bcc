package request

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultBuffer_AppendAndDrain(t *testing.T) {
	b := NewResultBuffer(3)
	b.Append("a")
	b.Append("b")
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []string{"a", "b"}, b.DrainAll())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.DrainAll())
}

func TestResultBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := NewResultBuffer(DefaultBufferCapacity)
	for i := 0; i <= DefaultBufferCapacity; i++ {
		b.Append(fmt.Sprint(i))
	}
	assert.Equal(t, DefaultBufferCapacity, b.Len())
	assert.Equal(t, 1, b.Evicted())

	drained := b.DrainAll()
	assert.Len(t, drained, DefaultBufferCapacity)
	assert.Equal(t, "1", drained[0])
	assert.Equal(t, fmt.Sprint(DefaultBufferCapacity), drained[len(drained)-1])
}

func TestResultBuffer_WrapsAround(t *testing.T) {
	b := NewResultBuffer(2)
	b.Append("a")
	b.Append("b")
	b.Append("c")
	b.Append("d")
	b.Append("e")
	assert.Equal(t, []string{"d", "e"}, b.DrainAll())
	b.Append("f")
	assert.Equal(t, []string{"f"}, b.DrainAll())
}

func TestResultBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBufferCapacity, NewResultBuffer(0).Capacity())
}

func TestResultBuffer_ConcurrentDrainIsExactlyOnce(t *testing.T) {
	const total = 5000
	b := NewResultBuffer(total)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Append(fmt.Sprint(i))
		}
	}()

	seen := map[string]int{}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		for _, r := range b.DrainAll() {
			seen[r]++
		}
	}
	for _, r := range b.DrainAll() {
		seen[r]++
	}
	assert.Len(t, seen, total)
	for r, n := range seen {
		assert.Equal(t, 1, n, r)
	}
}
