package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	defaultJitter   = 0.2
)

type WatcherOptions struct {
	// Debounce collapses bursts of file events into a single trigger.
	Debounce time.Duration
	// PollInterval, when positive, also triggers periodically in case file
	// events are missed (network filesystems, editors that swap inodes).
	PollInterval time.Duration
	PollJitter   float64
	Logger       *slog.Logger
	// OnChange runs when the inbox has content after a change. It is never
	// invoked concurrently with itself.
	OnChange func(ctx context.Context)
}

// Watcher triggers a callback whenever a category file changes and holds at
// least one non-blank line.
type Watcher struct {
	dir          *Dir
	debounce     time.Duration
	pollInterval time.Duration
	pollJitter   float64
	logger       *slog.Logger
	onChange     func(ctx context.Context)
	rng          *rand.Rand
}

func NewWatcher(dir *Dir, opts WatcherOptions) (*Watcher, error) {
	if dir == nil {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if opts.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	jitter := opts.PollJitter
	if jitter == 0 {
		jitter = defaultJitter
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:          dir,
		debounce:     debounce,
		pollInterval: opts.PollInterval,
		pollJitter:   clampJitterRatio(jitter),
		logger:       logger,
		onChange:     opts.OnChange,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run blocks until ctx is cancelled. Pending content is processed once at
// start.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir.Root()); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir.Root(), err)
	}
	w.logger.Info("watching inbox", "dir", w.dir.Root(), "debounce", w.debounce.String())

	debounceTimer := time.NewTimer(0)
	defer debounceTimer.Stop()

	var pollC <-chan time.Time
	var pollTimer *time.Timer
	if w.pollInterval > 0 {
		pollTimer = time.NewTimer(w.nextPoll())
		defer pollTimer.Stop()
		pollC = pollTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopping", "reason", ctx.Err())
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("inbox file changed", "file", event.Name, "op", event.Op.String())
			resetTimer(debounceTimer, w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		case <-debounceTimer.C:
			w.trigger(ctx)
		case <-pollC:
			w.trigger(ctx)
			pollTimer.Reset(w.nextPoll())
		}
	}
}

func (w *Watcher) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	hasContent, err := w.dir.HasContent()
	if err != nil {
		w.logger.Warn("read inbox failed", "error", err)
		return
	}
	if !hasContent {
		return
	}
	w.onChange(ctx)
}

func (w *Watcher) nextPoll() time.Duration {
	return jitteredIntervalWithSample(w.pollInterval, w.pollJitter, w.rng.Float64())
}

func relevant(event fsnotify.Event) bool {
	if _, ok := categoryForFile(event.Name); !ok {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
