package evo

import (
	"sync"

	"qsoul/internal/model"
)

// DreamSink is the append-only journal a search run reports its soul events
// to. Generation numbers are assigned by the sink in append order.
type DreamSink interface {
	Append(event string, metadata map[string]any) (model.DreamEvent, error)
}

type MemoryDreamLog struct {
	mu     sync.RWMutex
	events []model.DreamEvent
}

func NewMemoryDreamLog() *MemoryDreamLog {
	return &MemoryDreamLog{}
}

func (l *MemoryDreamLog) Append(event string, metadata map[string]any) (model.DreamEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := model.DreamEvent{
		Generation: len(l.events),
		Event:      event,
		Metadata:   metadata,
	}
	l.events = append(l.events, entry)
	return entry, nil
}

func (l *MemoryDreamLog) Events() []model.DreamEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]model.DreamEvent(nil), l.events...)
}

func (l *MemoryDreamLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.events)
}

// soulVibeLevel maps an energy onto the soul's mood, floored at 0.2.
func soulVibeLevel(energy float64) float64 {
	level := 0.3 + 0.6*(1-energy)
	if level < 0.2 {
		return 0.2
	}
	return level
}

// soulDepth is how far the soul has sunk after step steps.
func soulDepth(step int) float64 {
	return float64(step) * 0.1
}
