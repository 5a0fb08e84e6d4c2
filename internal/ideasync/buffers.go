package ideasync

import (
	"strings"
	"sync"
)

// Buffers is the per-category input text consumed by a sync run.
type Buffers interface {
	Text(category Category) (string, error)
	// Consume removes text previously returned by Text once its lines have
	// been dispatched. Anything written to the buffer since is kept.
	Consume(category Category, consumed string) error
}

// RunLocker is implemented by buffers that must be held exclusively for the
// duration of a run, e.g. files another process may also be syncing.
type RunLocker interface {
	LockRun() (unlock func() error, err error)
}

// Remaining returns what is left of current once consumed has been taken out.
// The common case is current still starting with consumed; otherwise each
// dispatched line is removed once and the other lines are kept in order.
func Remaining(current, consumed string) string {
	if current == consumed {
		return ""
	}
	if rest, ok := strings.CutPrefix(current, consumed); ok && (strings.HasSuffix(consumed, "\n") || strings.HasPrefix(rest, "\n") || strings.HasPrefix(rest, "\r\n")) {
		return strings.TrimLeft(rest, "\r\n")
	}
	pending := make(map[string]int)
	for _, line := range SplitLines(consumed) {
		pending[line]++
	}
	kept := make([]string, 0)
	for _, line := range SplitLines(current) {
		if pending[line] > 0 {
			pending[line]--
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// MapBuffers is an in-memory Buffers implementation. Set is refused while a
// run holds the buffers.
type MapBuffers struct {
	mu      sync.RWMutex
	texts   map[Category]string
	running bool
}

var (
	_ Buffers   = (*MapBuffers)(nil)
	_ RunLocker = (*MapBuffers)(nil)
)

func NewMapBuffers(initial map[Category]string) *MapBuffers {
	texts := make(map[Category]string, len(Categories))
	for _, category := range Categories {
		texts[category] = initial[category]
	}
	return &MapBuffers{texts: texts}
}

func (b *MapBuffers) Text(category Category) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.texts[category], nil
}

func (b *MapBuffers) Set(category Category, text string) error {
	if !category.Valid() {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrSyncInProgress
	}
	b.texts[category] = text
	return nil
}

func (b *MapBuffers) Consume(category Category, consumed string) error {
	if !category.Valid() {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts[category] = Remaining(b.texts[category], consumed)
	return nil
}

func (b *MapBuffers) LockRun() (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrSyncInProgress
	}
	b.running = true
	return func() error {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return nil
	}, nil
}

// Snapshot returns the current text of every category keyed by Category.Key.
func (b *MapBuffers) Snapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.texts))
	for _, category := range Categories {
		out[category.Key()] = b.texts[category]
	}
	return out
}
