package credstore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

const (
	KeyAccessSecret = "notion_api_key"
	KeyCollectionID = "notion_database_id"

	// DefaultTTL is how long a saved slot stays readable.
	DefaultTTL = 365 * 24 * time.Hour
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Slots lists every credential slot the store accepts.
var Slots = []string{KeyAccessSecret, KeyCollectionID}

// Entry is a persisted slot. Value is stored URL-escaped.
type Entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Backend persists raw entries. Implementations need not understand escaping
// or expiry. SaveEntries writes every given slot or none of them.
type Backend interface {
	LoadEntries() (map[string]Entry, error)
	SaveEntries(entries map[string]Entry) error
	DeleteEntry(slot string) error
}

type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// Store is the two-slot credential key/value store.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

func New(backend Backend, opts Options) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{backend: backend, ttl: ttl, now: now}
}

// Open builds the backend named by dsn and wraps it in a Store. An empty dsn
// yields an in-memory store.
func Open(dsn string, opts Options) (*Store, error) {
	backend, err := BuildBackendFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	return New(backend, opts), nil
}

// Load returns the unexpired slots with their values unescaped.
func (s *Store) Load() (map[string]string, error) {
	entries, err := s.backend.LoadEntries()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	now := s.now()
	out := make(map[string]string, len(entries))
	for slot, entry := range entries {
		if entry.expired(now) {
			continue
		}
		value, err := url.QueryUnescape(entry.Value)
		if err != nil {
			value = entry.Value
		}
		out[slot] = value
	}
	return out, nil
}

func (s *Store) Save(key, value string) error {
	slot, err := normalizeSlot(key)
	if err != nil {
		return err
	}
	if err := s.backend.SaveEntries(map[string]Entry{slot: s.entry(value)}); err != nil {
		return fmt.Errorf("save credential %s: %w", slot, err)
	}
	return nil
}

func (s *Store) entry(value string) Entry {
	now := s.now()
	return Entry{
		Value:     url.QueryEscape(value),
		ExpiresAt: now.Add(s.ttl),
		UpdatedAt: now,
	}
}

func (s *Store) Delete(key string) error {
	slot, err := normalizeSlot(key)
	if err != nil {
		return err
	}
	return s.backend.DeleteEntry(slot)
}

func (s *Store) Clear() error {
	for _, slot := range Slots {
		if err := s.backend.DeleteEntry(slot); err != nil {
			return fmt.Errorf("clear credential %s: %w", slot, err)
		}
	}
	return nil
}

func (s *Store) LoadCredentials() (ideasync.Credentials, error) {
	values, err := s.Load()
	if err != nil {
		return ideasync.Credentials{}, err
	}
	return ideasync.Credentials{
		AccessSecret: values[KeyAccessSecret],
		CollectionID: values[KeyCollectionID],
	}, nil
}

// SaveCredentials persists both slots in one backend write, trimming
// surrounding whitespace.
func (s *Store) SaveCredentials(creds ideasync.Credentials) error {
	entries := map[string]Entry{
		KeyAccessSecret: s.entry(strings.TrimSpace(creds.AccessSecret)),
		KeyCollectionID: s.entry(strings.TrimSpace(creds.CollectionID)),
	}
	if err := s.backend.SaveEntries(entries); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func normalizeSlot(key string) (string, error) {
	slot := strings.ToLower(strings.TrimSpace(key))
	for _, known := range Slots {
		if slot == known {
			return slot, nil
		}
	}
	return "", fmt.Errorf("%w: unknown credential slot %q", ErrInvalidInput, key)
}
