package credstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend keeps every slot in a single JSON document.
type FileBackend struct {
	Path string

	mu sync.Mutex
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: strings.TrimSpace(path)}
}

func (b *FileBackend) LoadEntries() (map[string]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

func (b *FileBackend) SaveEntries(updates map[string]Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := b.read()
	if err != nil {
		return err
	}
	for slot, entry := range updates {
		entries[slot] = entry
	}
	return b.write(entries)
}

func (b *FileBackend) DeleteEntry(slot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := entries[slot]; !ok {
		return nil
	}
	delete(entries, slot)
	return b.write(entries)
}

func (b *FileBackend) read() (map[string]Entry, error) {
	entries := map[string]Entry{}
	if b.Path == "" {
		return entries, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *FileBackend) write(entries map[string]Entry) error {
	if b.Path == "" {
		return ErrInvalidInput
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}
