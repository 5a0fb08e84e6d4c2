package ideasync

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ActivityLog holds one attempt record per dispatched line. Records are kept
// in insertion order and returned newest first.
type ActivityLog struct {
	mu      sync.RWMutex
	records []AttemptRecord
	index   map[string]int
	hub     *EventHub
	newID   func() string
	now     func() time.Time
}

type ActivityLogOptions struct {
	Hub   *EventHub
	NewID func() string
	Now   func() time.Time
}

func NewActivityLog(opts ActivityLogOptions) *ActivityLog {
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ActivityLog{
		index: map[string]int{},
		hub:   opts.Hub,
		newID: newID,
		now:   now,
	}
}

// Begin allocates a fresh id and records the line in the syncing state.
func (l *ActivityLog) Begin(text string, category Category) AttemptRecord {
	ts := l.now()
	record := AttemptRecord{
		Text:      text,
		Category:  category,
		Status:    StatusSyncing,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	l.mu.Lock()
	record.ID = l.newID()
	for {
		if _, taken := l.index[record.ID]; !taken {
			break
		}
		record.ID = l.newID()
	}
	l.index[record.ID] = len(l.records)
	l.records = append(l.records, record)
	l.mu.Unlock()

	l.publish(EventRecordCreated, record)
	return record
}

func (l *ActivityLog) Complete(id string) (AttemptRecord, error) {
	return l.finish(id, StatusSuccess, "", "")
}

func (l *ActivityLog) Fail(id string, kind ErrorKind, message string) (AttemptRecord, error) {
	if kind == "" {
		kind = KindUnknown
	}
	return l.finish(id, StatusError, kind, message)
}

func (l *ActivityLog) finish(id string, status Status, kind ErrorKind, message string) (AttemptRecord, error) {
	l.mu.Lock()
	pos, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return AttemptRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	record := l.records[pos]
	if record.Status.Terminal() {
		l.mu.Unlock()
		return record, fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, record.Status)
	}
	record.Status = status
	record.ErrorKind = kind
	record.Error = strings.TrimSpace(message)
	record.UpdatedAt = l.now()
	l.records[pos] = record
	l.mu.Unlock()

	l.publish(EventRecordUpdated, record)
	return record, nil
}

func (l *ActivityLog) Get(id string) (AttemptRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok {
		return AttemptRecord{}, false
	}
	return l.records[pos], true
}

// Snapshot returns a copy of every record, newest first.
func (l *ActivityLog) Snapshot() []AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AttemptRecord, len(l.records))
	for i, record := range l.records {
		out[len(l.records)-1-i] = record
	}
	return out
}

func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear drops every terminal record. Records still syncing are kept so the
// running dispatch can finish them.
func (l *ActivityLog) Clear() int {
	l.mu.Lock()
	kept := l.records[:0:0]
	for _, record := range l.records {
		if !record.Status.Terminal() {
			kept = append(kept, record)
		}
	}
	removed := len(l.records) - len(kept)
	l.records = kept
	l.index = make(map[string]int, len(kept))
	for i, record := range kept {
		l.index[record.ID] = i
	}
	l.mu.Unlock()

	if removed > 0 && l.hub != nil {
		l.hub.Publish(Event{Type: EventLogCleared, Timestamp: l.now()})
	}
	return removed
}

func (l *ActivityLog) publish(eventType EventType, record AttemptRecord) {
	if l.hub == nil {
		return
	}
	l.hub.Publish(Event{Type: eventType, Record: &record, Timestamp: record.UpdatedAt})
}
