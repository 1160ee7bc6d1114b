package subscriber

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given an empty registry
	req.Empty(registry.All())

	// When the same chat joins twice
	req.True(registry.Add(100))
	req.False(registry.Add(100))

	// Then it is stored once
	req.Equal([]ID{100}, registry.All())
	req.Equal(1, registry.Len())
	req.True(registry.Contains(100))
}

func TestRegistry_Leave_Absent_Is_Noop(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(100)

	// When a chat that never joined leaves
	req.False(registry.Remove(200))

	// Then the registry is unchanged
	req.Equal([]ID{100}, registry.All())
}

func TestRegistry_Join_Then_Leave_Restores_Set(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(1)
	registry.Add(2)
	before := registry.All()

	req.True(registry.Add(3))
	req.True(registry.Remove(3))

	req.Equal(before, registry.All())
}

func TestRegistry_All_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(5)
	registry.Add(-7)

	snap := registry.All()
	registry.Remove(5)
	registry.Add(9)

	req.Equal([]ID{-7, 5}, snap)
	req.Equal([]ID{-7, 9}, registry.All())
}

// Replaying any join/leave sequence must match plain set semantics.
func TestRegistry_Replay_Matches_Set_Model(t *testing.T) {
	req := require.New(t)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		registry := NewRegistry()
		model := map[ID]bool{}
		for i := 0; i < 200; i++ {
			id := ID(rng.Intn(20))
			if rng.Intn(2) == 0 {
				req.Equal(!model[id], registry.Add(id))
				model[id] = true
			} else {
				req.Equal(model[id], registry.Remove(id))
				delete(model, id)
			}
		}
		req.Len(registry.All(), len(model))
		for _, id := range registry.All() {
			req.True(model[id], "unexpected member %d", id)
		}
	}
}

func TestRegistry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := ID(w*1000 + i)
				registry.Add(id)
				_ = registry.All()
				if i%2 == 1 {
					registry.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()

	req.Equal(8*250, registry.Len())
}
