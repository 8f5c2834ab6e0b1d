package events

import (
	"context"
	"sync"
)

// MemoryFeed keeps versions in process. Used when no Redis URL is configured.
type MemoryFeed struct {
	mu       sync.RWMutex
	versions map[string]int64
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{versions: map[string]int64{}}
}

func (f *MemoryFeed) Publish(_ context.Context, ev Event) error {
	if ev.CreatorID == "" {
		return nil
	}
	f.mu.Lock()
	f.versions[ev.CreatorID]++
	f.mu.Unlock()
	return nil
}

func (f *MemoryFeed) Version(_ context.Context, creatorID string) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.versions[creatorID], nil
}
