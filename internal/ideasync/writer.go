package ideasync

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindRemoteRejected     ErrorKind = "remote_rejected"
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	KindUnknown            ErrorKind = "unknown"
)

// NetworkUnavailableMessage is attached to every line whose write never
// reached the remote store.
const NetworkUnavailableMessage = "NetworkError: The relay might be blocked or unavailable. Please check your internet connection or try again later."

// RecordWriter performs one remote write for one idea line. Callers must pass
// complete credentials. A non-nil error should be a *WriteError; any other
// error is treated as KindUnknown.
type RecordWriter interface {
	WriteRecord(ctx context.Context, creds Credentials, text string, category Category) error
}

type RecordWriterFunc func(ctx context.Context, creds Credentials, text string, category Category) error

func (f RecordWriterFunc) WriteRecord(ctx context.Context, creds Credentials, text string, category Category) error {
	return f(ctx, creds, text, category)
}

type WriteError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return string(e.Kind)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification of a write failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var writeErr *WriteError
	if errors.As(err, &writeErr) && writeErr.Kind != "" {
		return writeErr.Kind
	}
	return KindUnknown
}
