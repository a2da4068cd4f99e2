package evo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDreamLogNumbersGenerationsInOrder(t *testing.T) {
	log := NewMemoryDreamLog()

	first, err := log.Append("run_start", nil)
	require.NoError(t, err)
	second, err := log.Append("evolution_step", map[string]any{"step": 0})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Generation)
	assert.Equal(t, 1, second.Generation)
	assert.Equal(t, 2, log.Len())

	events := log.Events()
	events[0].Event = "tampered"
	assert.Equal(t, "run_start", log.Events()[0].Event)
}

func TestMemoryDreamLogConcurrentAppends(t *testing.T) {
	log := NewMemoryDreamLog()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = log.Append("evolution_step", nil)
			}
		}()
	}
	wg.Wait()

	events := log.Events()
	require.Len(t, events, 200)
	for i, ev := range events {
		require.Equal(t, i, ev.Generation)
	}
}

func TestSoulVibeLevelAndDepth(t *testing.T) {
	assert.InDelta(t, 0.9, soulVibeLevel(0), 1e-12)
	assert.InDelta(t, 0.3, soulVibeLevel(1), 1e-12)
	assert.InDelta(t, 0.2, soulVibeLevel(5), 0)
	assert.InDelta(t, 1.2, soulDepth(12), 1e-12)
}
