package ideasync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingCredentials = errors.New("notion api key and database id are required")
	ErrEmptyInput         = errors.New("no text found in any section to sync")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrRecordNotFound     = errors.New("attempt record not found")
	ErrInvalidTransition  = errors.New("invalid attempt status transition")
)

// Category is one of the three fixed idea groups. The string value is the
// tag written to the remote database.
type Category string

const (
	CategoryMonth   Category = "MON MOI"
	CategoryResults Category = "MES RÉSULTATS"
	CategoryProduct Category = "MON PRODUIT"
)

// Categories lists every category in processing order.
var Categories = []Category{CategoryMonth, CategoryResults, CategoryProduct}

// Key returns the short stable identifier used in config, file names and APIs.
func (c Category) Key() string {
	switch c {
	case CategoryMonth:
		return "month"
	case CategoryResults:
		return "results"
	case CategoryProduct:
		return "product"
	default:
		return ""
	}
}

func (c Category) Valid() bool {
	return c.Key() != ""
}

// ParseCategory accepts a key ("month"), an enum name ("MONTH") or a display
// value ("MON MOI").
func ParseCategory(raw string) (Category, error) {
	trimmed := strings.TrimSpace(raw)
	for _, category := range Categories {
		if strings.EqualFold(trimmed, category.Key()) || trimmed == string(category) {
			return category, nil
		}
	}
	switch strings.ToUpper(trimmed) {
	case "MONTH":
		return CategoryMonth, nil
	case "RESULTS":
		return CategoryResults, nil
	case "PRODUCT":
		return CategoryProduct, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, raw)
}

type Credentials struct {
	AccessSecret string `json:"accessSecret"`
	CollectionID string `json:"collectionId"`
}

// Complete reports whether both fields are set. Values are not format-checked.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.AccessSecret) != "" && strings.TrimSpace(c.CollectionID) != ""
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type AttemptRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  Category  `json:"category"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary describes one completed sync run.
type Summary struct {
	Categories     []Category `json:"categories"`
	RecordIDs      []string   `json:"recordIds"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	NetworkWarning bool       `json:"networkWarning"`
	ClearErrors    []string   `json:"clearErrors,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
}

func (s Summary) Total() int {
	return s.Succeeded + s.Failed
}

// SplitLines turns a raw buffer into the ordered list of idea lines: every
// line is trimmed and empty lines are dropped.
func SplitLines(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		line := strings.TrimSpace(part)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
