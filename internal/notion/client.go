package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

const (
	DefaultBaseURL       = "https://api.notion.com"
	DefaultAPIVersion    = "2022-06-28"
	DefaultTitleProperty = "Nom"
	DefaultTagProperty   = "Tags"
)

type ClientOptions struct {
	// BaseURL is the relay URL, or the Notion API itself when no relay is used.
	BaseURL       string
	HTTPClient    *http.Client
	APIVersion    string
	UserAgent     string
	TitleProperty string
	TagProperty   string
	Logger        *slog.Logger
}

// Client creates one Notion page per idea line.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	apiVersion    string
	userAgent     string
	titleProperty string
	tagProperty   string
	logger        *slog.Logger
}

var _ ideasync.RecordWriter = (*Client)(nil)

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	titleProperty := strings.TrimSpace(opts.TitleProperty)
	if titleProperty == "" {
		titleProperty = DefaultTitleProperty
	}
	tagProperty := strings.TrimSpace(opts.TagProperty)
	if tagProperty == "" {
		tagProperty = DefaultTagProperty
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		apiVersion:    apiVersion,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		titleProperty: titleProperty,
		tagProperty:   tagProperty,
		logger:        logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// WriteRecord sends a single create-page request. Every failure is returned
// as an *ideasync.WriteError.
func (c *Client) WriteRecord(ctx context.Context, creds ideasync.Credentials, text string, category ideasync.Category) error {
	body, err := json.Marshal(NewCreatePageRequest(creds.CollectionID, c.titleProperty, text, c.tagProperty, string(category)))
	if err != nil {
		return &ideasync.WriteError{Kind: ideasync.KindUnknown, Message: err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pages", bytes.NewReader(body))
	if err != nil {
		return &ideasync.WriteError{Kind: ideasync.KindUnknown, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(creds.AccessSecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.apiVersion)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if readErr != nil {
			c.logger.Debug("discarding unreadable success body", "error", readErr)
		}
		return nil
	}
	if readErr != nil && len(respBody) == 0 {
		c.logger.Debug("failed to read error body", "status", resp.StatusCode, "error", readErr)
	}
	return rejection(resp.StatusCode, respBody)
}

func rejection(status int, body []byte) *ideasync.WriteError {
	message := fmt.Sprintf("Notion API Error: %d", status)
	var parsed ErrorResponse
	code := ""
	if json.Unmarshal(body, &parsed) == nil {
		code = parsed.Code
		if strings.TrimSpace(parsed.Message) != "" {
			message = parsed.Message
		}
	}
	err := fmt.Errorf("notion write failed: status=%d code=%s", status, code)
	return &ideasync.WriteError{
		Kind:       ideasync.KindRemoteRejected,
		Message:    message,
		StatusCode: status,
		Err:        err,
	}
}

// classifyTransportError decides by error type whether the request failed to
// reach or return from the remote store.
func classifyTransportError(err error) *ideasync.WriteError {
	if isNetworkError(err) {
		return &ideasync.WriteError{
			Kind:    ideasync.KindNetworkUnavailable,
			Message: ideasync.NetworkUnavailableMessage,
			Err:     err,
		}
	}
	return &ideasync.WriteError{Kind: ideasync.KindUnknown, Message: err.Error(), Err: err}
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
