package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

var testCreds = ideasync.Credentials{AccessSecret: "secret_123", CollectionID: "db_456"}

func TestClientWriteRecordSendsExpectedRequest(t *testing.T) {
	var capturedAuth, capturedVersion, capturedType, capturedPath, capturedMethod string
	var capturedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedAuth = r.Header.Get("Authorization")
		capturedVersion = r.Header.Get("Notion-Version")
		capturedType = r.Header.Get("Content-Type")
		capturedPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"object":"page","id":"page_1"}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL + "/", HTTPClient: server.Client()})
	if err := client.WriteRecord(context.Background(), testCreds, "Idea A", ideasync.CategoryResults); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if capturedMethod != http.MethodPost || capturedPath != "/v1/pages" {
		t.Fatalf("expected POST /v1/pages, got %s %s", capturedMethod, capturedPath)
	}
	if capturedAuth != "Bearer secret_123" {
		t.Fatalf("expected bearer auth, got %q", capturedAuth)
	}
	if capturedVersion != DefaultAPIVersion {
		t.Fatalf("expected Notion-Version %s, got %q", DefaultAPIVersion, capturedVersion)
	}
	if capturedType != "application/json" {
		t.Fatalf("expected json content type, got %q", capturedType)
	}

	parent := capturedBody["parent"].(map[string]any)
	if parent["database_id"] != "db_456" {
		t.Fatalf("expected database id in parent, got %+v", parent)
	}
	props := capturedBody["properties"].(map[string]any)
	title := props["Nom"].(map[string]any)["title"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"]
	if title != "Idea A" {
		t.Fatalf("expected title content Idea A, got %v", title)
	}
	tag := props["Tags"].(map[string]any)["multi_select"].([]any)[0].(map[string]any)["name"]
	if tag != "MES RÉSULTATS" {
		t.Fatalf("expected category display value as tag, got %v", tag)
	}
}

func TestClientUsesConfiguredPropertyNames(t *testing.T) {
	var body CreatePageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{
		BaseURL:       server.URL,
		HTTPClient:    server.Client(),
		TitleProperty: "Name",
		TagProperty:   "Labels",
		APIVersion:    "2025-09-03",
	})
	if err := client.WriteRecord(context.Background(), testCreds, "x", ideasync.CategoryMonth); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if len(body.Properties["Name"].Title) != 1 || body.Properties["Labels"].MultiSelect[0].Name != "MON MOI" {
		t.Fatalf("expected custom property names, got %+v", body.Properties)
	}
}

func TestClientRemoteRejectionCarriesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"Tags is not a property that exists."}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: server.Client()})
	err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth)
	var writeErr *ideasync.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %T %v", err, err)
	}
	if writeErr.Kind != ideasync.KindRemoteRejected || writeErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected remote rejection 400, got %+v", writeErr)
	}
	if writeErr.Error() != "Tags is not a property that exists." {
		t.Fatalf("expected remote message, got %q", writeErr.Error())
	}
}

func TestClientRemoteRejectionWithoutJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: server.Client()})
	err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth)
	if ideasync.KindOf(err) != ideasync.KindRemoteRejected {
		t.Fatalf("expected remote rejection, got %v", err)
	}
	if err.Error() != "Notion API Error: 502" {
		t.Fatalf("expected generic status message, got %q", err.Error())
	}
}

func TestClientRejectionKindIgnoresMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"network fetch failed upstream"}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: server.Client()})
	err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth)
	if ideasync.KindOf(err) != ideasync.KindRemoteRejected {
		t.Fatalf("expected HTTP response to classify as remote rejection, got %s", ideasync.KindOf(err))
	}
}

func TestClientDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: server.Client()})
	if err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth); err == nil {
		t.Fatalf("expected error on 429")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", atomic.LoadInt32(&calls))
	}
}

func TestClientUnreachableRelayIsNetworkUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewClient(ClientOptions{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 2 * time.Second}})
	err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth)
	var writeErr *ideasync.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %T %v", err, err)
	}
	if writeErr.Kind != ideasync.KindNetworkUnavailable {
		t.Fatalf("expected network unavailable, got %s (%v)", writeErr.Kind, writeErr.Err)
	}
	if writeErr.Message != ideasync.NetworkUnavailableMessage {
		t.Fatalf("expected fixed guidance message, got %q", writeErr.Message)
	}
}

func TestClientTimeoutIsNetworkUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: &http.Client{Timeout: 50 * time.Millisecond}})
	err := client.WriteRecord(context.Background(), testCreds, "Idea", ideasync.CategoryMonth)
	if ideasync.KindOf(err) != ideasync.KindNetworkUnavailable {
		t.Fatalf("expected timeout to be network unavailable, got %v", err)
	}
}

func TestClientCancelledContextIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(ClientOptions{BaseURL: server.URL, HTTPClient: server.Client()})
	err := client.WriteRecord(ctx, testCreds, "Idea", ideasync.CategoryMonth)
	if ideasync.KindOf(err) != ideasync.KindUnknown {
		t.Fatalf("expected cancellation to be unknown, got %s (%v)", ideasync.KindOf(err), err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientOptions{})
	if client.BaseURL() != DefaultBaseURL {
		t.Fatalf("expected default base url, got %s", client.BaseURL())
	}
	if client.titleProperty != DefaultTitleProperty || client.tagProperty != DefaultTagProperty {
		t.Fatalf("expected default property names, got %s/%s", client.titleProperty, client.tagProperty)
	}
}
