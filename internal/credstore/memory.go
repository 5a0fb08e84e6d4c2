package credstore

import "sync"

type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[string]Entry{}}
}

func (b *MemoryBackend) LoadEntries() (map[string]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Entry, len(b.entries))
	for slot, entry := range b.entries {
		out[slot] = entry
	}
	return out, nil
}

func (b *MemoryBackend) SaveEntries(entries map[string]Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot, entry := range entries {
		b.entries[slot] = entry
	}
	return nil
}

func (b *MemoryBackend) DeleteEntry(slot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, slot)
	return nil
}
