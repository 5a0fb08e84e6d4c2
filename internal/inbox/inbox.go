// Package inbox stores the three category input buffers as plain text files
// in one directory so ideas can be collected with any editor between runs.
package inbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

const lockFileName = ".ideasync.lock"

var ErrLocked = fmt.Errorf("%w: inbox is locked by another process", ideasync.ErrSyncInProgress)

// Dir is a directory holding month.txt, results.txt and product.txt.
// Writes through Set and Append are refused with ErrLocked while a run holds
// the inbox, in this process or another.
type Dir struct {
	root string

	mu      sync.Mutex
	running bool
}

var (
	_ ideasync.Buffers   = (*Dir)(nil)
	_ ideasync.RunLocker = (*Dir)(nil)
)

func Open(root string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: inbox directory is required", ideasync.ErrInvalidInput)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string {
	return d.root
}

func FileName(category ideasync.Category) string {
	return category.Key() + ".txt"
}

func (d *Dir) Path(category ideasync.Category) string {
	return filepath.Join(d.root, FileName(category))
}

// Text returns the buffer contents. A missing file is an empty buffer.
func (d *Dir) Text(category ideasync.Category) (string, error) {
	if !category.Valid() {
		return "", ideasync.ErrInvalidInput
	}
	data, err := os.ReadFile(d.Path(category))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (d *Dir) Set(category ideasync.Category, text string) error {
	if !category.Valid() {
		return ideasync.ErrInvalidInput
	}
	return d.edit(func() error {
		return writeFileAtomic(d.Path(category), []byte(text), 0o644)
	})
}

// Append adds text on a new line after the existing buffer contents.
func (d *Dir) Append(category ideasync.Category, text string) error {
	if !category.Valid() {
		return ideasync.ErrInvalidInput
	}
	return d.edit(func() error {
		current, err := d.Text(category)
		if err != nil {
			return err
		}
		if current != "" && !strings.HasSuffix(current, "\n") {
			current += "\n"
		}
		return writeFileAtomic(d.Path(category), []byte(current+text), 0o644)
	})
}

// Consume rewrites the buffer without the consumed text. Lines saved into the
// file after consumed was read, e.g. by an editor, survive.
func (d *Dir) Consume(category ideasync.Category, consumed string) error {
	if !category.Valid() {
		return ideasync.ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	current, err := d.Text(category)
	if err != nil {
		return err
	}
	remaining := ideasync.Remaining(current, consumed)
	if remaining == current {
		return nil
	}
	return writeFileAtomic(d.Path(category), []byte(remaining), 0o644)
}

// edit runs fn under the in-process mutex and a short-lived inbox lock.
func (d *Dir) edit(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrLocked
	}
	unlock, err := lockFile(d.lockPath())
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()
	return fn()
}

// Snapshot returns every buffer keyed by Category.Key.
func (d *Dir) Snapshot() (map[string]string, error) {
	out := make(map[string]string, len(ideasync.Categories))
	for _, category := range ideasync.Categories {
		text, err := d.Text(category)
		if err != nil {
			return nil, err
		}
		out[category.Key()] = text
	}
	return out, nil
}

// HasContent reports whether any buffer holds a non-blank line.
func (d *Dir) HasContent() (bool, error) {
	for _, category := range ideasync.Categories {
		text, err := d.Text(category)
		if err != nil {
			return false, err
		}
		if len(ideasync.SplitLines(text)) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// LockRun takes an exclusive, non-blocking lock on the inbox for one run.
func (d *Dir) LockRun() (func() error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil, ErrLocked
	}
	unlock, err := lockFile(d.lockPath())
	if err != nil {
		return nil, err
	}
	d.running = true
	return func() error {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return unlock()
	}, nil
}

func (d *Dir) lockPath() string {
	return filepath.Join(d.root, lockFileName)
}

func categoryForFile(name string) (ideasync.Category, bool) {
	base := filepath.Base(name)
	for _, category := range ideasync.Categories {
		if base == FileName(category) {
			return category, true
		}
	}
	return "", false
}
