package process

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortAllocator_ConcurrentAllocationsDoNotCollide(t *testing.T) {
	a := NewPortAllocator(8188, 50)
	a.isFree = func(int) bool { return true }

	const n = 20
	ports := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := a.Allocate()
			if assert.NoError(t, err) {
				ports <- p
			}
		}()
	}
	wg.Wait()
	close(ports)

	seen := map[int]bool{}
	for p := range ports {
		assert.False(t, seen[p], "port %d allocated twice", p)
		assert.GreaterOrEqual(t, p, 8188)
		seen[p] = true
	}
	assert.Len(t, seen, n)
}

func TestPortAllocator_SkipsBoundPortsAndReuses(t *testing.T) {
	a := NewPortAllocator(8188, 3)
	a.isFree = func(p int) bool { return p != 8188 }

	p, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8189, p)

	p2, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8190, p2)

	_, err = a.Allocate()
	assert.Error(t, err)

	a.Release(p)
	p3, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8189, p3)
}

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer(3)
	assert.Empty(t, r.Lines())

	r.Add("a")
	r.Add("b")
	assert.Equal(t, []string{"a", "b"}, r.Lines())

	r.Add("c")
	r.Add("d")
	r.Add("e")
	assert.Equal(t, []string{"c", "d", "e"}, r.Lines())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "c\nd\ne", r.String())
}
