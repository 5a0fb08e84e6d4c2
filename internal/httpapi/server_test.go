package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Diduck/notion-idea-pipeline/internal/credstore"
	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

type recordedWrite struct {
	text     string
	category ideasync.Category
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
	fail   map[string]error
}

func (f *fakeWriter) WriteRecord(_ context.Context, _ ideasync.Credentials, text string, category ideasync.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{text: text, category: category})
	return f.fail[text]
}

func (f *fakeWriter) recorded() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedWrite(nil), f.writes...)
}

type testEnv struct {
	server *Server
	orch   *ideasync.Orchestrator
	inputs *ideasync.MapBuffers
	store  *credstore.Store
}

func newTestEnv(t *testing.T, writer ideasync.RecordWriter, cfg ServerConfig) testEnv {
	t.Helper()
	orch, err := ideasync.NewOrchestrator(ideasync.OrchestratorOptions{Writer: writer})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	inputs := ideasync.NewMapBuffers(nil)
	store := credstore.New(nil, credstore.Options{})
	return testEnv{
		server: NewServer(orch, store, inputs, cfg),
		orch:   orch,
		inputs: inputs,
		store:  store,
	}
}

func saveTestCredentials(t *testing.T, store *credstore.Store) {
	t.Helper()
	if err := store.SaveCredentials(ideasync.Credentials{AccessSecret: "secret_abcdefgh1234", CollectionID: "db_1"}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
}

type request struct {
	method  string
	path    string
	headers map[string]string
	body    any
}

func doRequest(t *testing.T, server http.Handler, r request) *httptest.ResponseRecorder {
	t.Helper()
	var bodyBytes []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyBytes = data
	}
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(bodyBytes))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	decodeBody(t, rec, &payload)
	code, _ := payload["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{APIKey: "local-key"})
	resp := doRequest(t, env.server, request{method: http.MethodGet, path: "/health"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthRequiredWhenAPIKeyConfigured(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{APIKey: "local-key"})

	resp := doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/activity"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	resp = doRequest(t, env.server, request{
		method:  http.MethodGet,
		path:    "/v1/activity",
		headers: map[string]string{"Authorization": "Bearer wrong-key"},
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.Code)
	}
	resp = doRequest(t, env.server, request{
		method:  http.MethodGet,
		path:    "/v1/activity",
		headers: map[string]string{"Authorization": "Bearer local-key"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/activity?token=local-key"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", resp.Code)
	}
}

func TestCredentialsAreMasked(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{})

	resp := doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/credentials",
		body:   map[string]string{"accessSecret": " secret_abcdefgh1234 ", "collectionId": "db_1"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/credentials"})
	var view credentialsView
	decodeBody(t, resp, &view)
	if view.AccessSecret != "****1234" || view.CollectionID != "db_1" || !view.Complete {
		t.Fatalf("unexpected credentials view: %+v", view)
	}

	stored, err := env.store.LoadCredentials()
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if stored.AccessSecret != "secret_abcdefgh1234" {
		t.Fatalf("expected trimmed secret to be stored, got %q", stored.AccessSecret)
	}

	resp = doRequest(t, env.server, request{method: http.MethodDelete, path: "/v1/credentials"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on clear, got %d", resp.Code)
	}
	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/credentials"})
	view = credentialsView{}
	decodeBody(t, resp, &view)
	if view.Complete || view.AccessSecret != "" {
		t.Fatalf("expected empty credentials after clear, got %+v", view)
	}
}

func TestCredentialOverridesWin(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{Overrides: ideasync.Credentials{CollectionID: "db_env"}})
	saveTestCredentials(t, env.store)

	resp := doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/credentials"})
	var view credentialsView
	decodeBody(t, resp, &view)
	if view.CollectionID != "db_env" || !view.Complete {
		t.Fatalf("expected override database id, got %+v", view)
	}
}

func TestSyncRequiresCredentials(t *testing.T) {
	writer := &fakeWriter{}
	env := newTestEnv(t, writer, ServerConfig{})
	_ = env.inputs.Set(ideasync.CategoryMonth, "Idea A")

	resp := doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync", headers: map[string]string{"X-Correlation-Id": "corr_1"}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var payload map[string]any
	decodeBody(t, resp, &payload)
	if payload["code"] != "missing_credentials" || payload["correlationId"] != "corr_1" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
	if len(writer.recorded()) != 0 {
		t.Fatalf("expected no writes, got %d", len(writer.recorded()))
	}
	if text, _ := env.inputs.Text(ideasync.CategoryMonth); text != "Idea A" {
		t.Fatalf("expected input untouched, got %q", text)
	}
}

func TestSyncRejectsEmptyInput(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{})
	saveTestCredentials(t, env.store)
	_ = env.inputs.Set(ideasync.CategoryResults, "  \n \n")

	resp := doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "empty_input" {
		t.Fatalf("expected empty_input, got %q", code)
	}
}

func TestSyncDispatchesInputsInOrder(t *testing.T) {
	writer := &fakeWriter{}
	env := newTestEnv(t, writer, ServerConfig{})
	saveTestCredentials(t, env.store)

	resp := doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/inputs",
		body: map[string]any{"inputs": map[string]string{
			"product": "P1",
			"month":   "Idea A\n\n  Idea B  ",
		}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on inputs, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on sync, got %d (%s)", resp.Code, resp.Body.String())
	}
	var summary ideasync.Summary
	decodeBody(t, resp, &summary)
	if summary.Succeeded != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	want := []recordedWrite{
		{text: "Idea A", category: ideasync.CategoryMonth},
		{text: "Idea B", category: ideasync.CategoryMonth},
		{text: "P1", category: ideasync.CategoryProduct},
	}
	got := writer.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/inputs"})
	var inputs inputsPayload
	decodeBody(t, resp, &inputs)
	for key, text := range inputs.Inputs {
		if text != "" {
			t.Fatalf("expected %s cleared, got %q", key, text)
		}
	}

	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/activity"})
	var activity activityPayload
	decodeBody(t, resp, &activity)
	if activity.Count != 3 || len(activity.Records) != 3 {
		t.Fatalf("expected 3 records, got %+v", activity)
	}
	if activity.Records[0].Text != "P1" {
		t.Fatalf("expected newest first, got %q", activity.Records[0].Text)
	}
	for _, record := range activity.Records {
		if record.Status != ideasync.StatusSuccess {
			t.Fatalf("expected success, got %+v", record)
		}
	}

	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/activity?limit=1"})
	activity = activityPayload{}
	decodeBody(t, resp, &activity)
	if len(activity.Records) != 1 || activity.Count != 3 {
		t.Fatalf("expected limited records with full count, got %+v", activity)
	}
}

func TestNetworkFailureRaisesWarning(t *testing.T) {
	writer := &fakeWriter{fail: map[string]error{
		"Idea A": &ideasync.WriteError{Kind: ideasync.KindNetworkUnavailable, Message: ideasync.NetworkUnavailableMessage},
	}}
	env := newTestEnv(t, writer, ServerConfig{})
	saveTestCredentials(t, env.store)
	_ = env.inputs.Set(ideasync.CategoryMonth, "Idea A")

	resp := doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 even with failed lines, got %d", resp.Code)
	}

	resp = doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/activity"})
	var activity activityPayload
	decodeBody(t, resp, &activity)
	if !activity.NetworkWarning {
		t.Fatalf("expected network warning")
	}
	if activity.Records[0].Error != ideasync.NetworkUnavailableMessage {
		t.Fatalf("unexpected error text %q", activity.Records[0].Error)
	}

	resp = doRequest(t, env.server, request{method: http.MethodDelete, path: "/v1/activity"})
	var cleared map[string]int
	decodeBody(t, resp, &cleared)
	if cleared["removed"] != 1 {
		t.Fatalf("expected 1 record removed, got %+v", cleared)
	}
}

func TestInputsLockedWhileSyncing(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	writer := ideasync.RecordWriterFunc(func(ctx context.Context, _ ideasync.Credentials, _ string, _ ideasync.Category) error {
		started <- struct{}{}
		<-release
		return nil
	})
	env := newTestEnv(t, writer, ServerConfig{})
	saveTestCredentials(t, env.store)
	_ = env.inputs.Set(ideasync.CategoryMonth, "Idea A")

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync"})
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("sync did not start")
	}

	resp := doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/inputs",
		body:   map[string]any{"inputs": map[string]string{"month": "late"}},
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 on inputs while busy, got %d", resp.Code)
	}
	resp = doRequest(t, env.server, request{method: http.MethodPost, path: "/v1/sync"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 on concurrent sync, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "sync_in_progress" {
		t.Fatalf("expected sync_in_progress, got %q", code)
	}

	close(release)
	select {
	case first := <-done:
		if first.Code != http.StatusOK {
			t.Fatalf("expected first sync to finish with 200, got %d", first.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sync did not finish")
	}
}

func TestPutInputsValidation(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{MaxBodyBytes: 64})

	resp := doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/inputs",
		body:   map[string]any{"inputs": map[string]string{"weekly": "x"}},
	})
	if resp.Code != http.StatusBadRequest || errorCode(t, resp) != "invalid_category" {
		t.Fatalf("expected invalid_category, got %d", resp.Code)
	}

	resp = doRequest(t, env.server, request{method: http.MethodPut, path: "/v1/inputs", body: map[string]any{}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty inputs, got %d", resp.Code)
	}

	resp = doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/inputs",
		body:   map[string]any{"inputs": map[string]string{"month": strings.Repeat("x", 128)}},
	})
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/v1/inputs", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{})
	resp := doRequest(t, env.server, request{method: http.MethodGet, path: "/v1/nope"})
	if resp.Code != http.StatusNotFound || errorCode(t, resp) != "not_found" {
		t.Fatalf("expected not_found, got %d", resp.Code)
	}
}

func TestDashboardServed(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{APIKey: "local-key"})
	resp := doRequest(t, env.server, request{method: http.MethodGet, path: "/"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
	if !strings.Contains(resp.Body.String(), "Sync Activity Feed") {
		t.Fatalf("dashboard body missing feed header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	orch, err := ideasync.NewOrchestrator(ideasync.OrchestratorOptions{
		Writer:  &fakeWriter{},
		Metrics: ideasync.NewMetrics(registry),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	store := credstore.New(nil, credstore.Options{})
	saveTestCredentials(t, store)
	inputs := ideasync.NewMapBuffers(map[ideasync.Category]string{ideasync.CategoryMonth: "Idea A"})
	server := NewServer(orch, store, inputs, ServerConfig{Gatherer: registry})

	if resp := doRequest(t, server, request{method: http.MethodPost, path: "/v1/sync"}); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on sync, got %d", resp.Code)
	}
	resp := doRequest(t, server, request{method: http.MethodGet, path: "/metrics"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "ideasync_attempts_total{") || !strings.Contains(body, `status="success"`) {
		t.Fatalf("metrics missing attempt counter:\n%s", body)
	}
}

func TestActivityStream(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{APIKey: "local-key"})
	saveTestCredentials(t, env.store)
	_ = env.inputs.Set(ideasync.CategoryMonth, "Idea A")

	srv := httptest.NewServer(env.server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/activity/stream?token=local-key"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var hello streamHello
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != streamEventConnected || hello.Busy {
		t.Fatalf("unexpected hello: %+v", hello)
	}

	// The subscription is registered before the hello is written.
	if _, err := env.orch.Sync(ctx, ideasync.Credentials{AccessSecret: "s", CollectionID: "db"}, env.inputs); err != nil {
		t.Fatalf("sync: %v", err)
	}

	seen := map[ideasync.EventType]bool{}
	for !seen[ideasync.EventRecordUpdated] {
		var event ideasync.Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			t.Fatalf("read event: %v (seen %v)", err, seen)
		}
		seen[event.Type] = true
		if event.Type == ideasync.EventRecordUpdated && event.Record.Status != ideasync.StatusSuccess {
			t.Fatalf("unexpected record update: %+v", event.Record)
		}
	}
	if !seen[ideasync.EventBusyChanged] || !seen[ideasync.EventRecordCreated] {
		t.Fatalf("expected busy and created events, got %v", seen)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"short":               "****",
		"secret_abcdefgh1234": "****1234",
	}
	for in, want := range cases {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInputsRefusedWhenRunLockHeld(t *testing.T) {
	env := newTestEnv(t, &fakeWriter{}, ServerConfig{})
	// The run lock is taken before the busy flag is observable.
	unlock, err := env.inputs.LockRun()
	if err != nil {
		t.Fatalf("lock inputs: %v", err)
	}
	defer func() { _ = unlock() }()

	resp := doRequest(t, env.server, request{
		method: http.MethodPut,
		path:   "/v1/inputs",
		body:   map[string]any{"inputs": map[string]string{"month": "late"}},
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", resp.Code, resp.Body.String())
	}
	if code := errorCode(t, resp); code != "sync_in_progress" {
		t.Fatalf("unexpected error code %q", code)
	}
	if text, _ := env.inputs.Text(ideasync.CategoryMonth); text != "" {
		t.Fatalf("expected input untouched, got %q", text)
	}
}

func TestSyncOutlivesServerWriteTimeout(t *testing.T) {
	writer := ideasync.RecordWriterFunc(func(ctx context.Context, _ ideasync.Credentials, _ string, _ ideasync.Category) error {
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	env := newTestEnv(t, writer, ServerConfig{})
	saveTestCredentials(t, env.store)
	_ = env.inputs.Set(ideasync.CategoryMonth, "Idea A\nIdea B")

	srv := httptest.NewUnstartedServer(env.server)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("sync request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary ideasync.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Succeeded != 2 {
		t.Fatalf("expected 2 lines synced, got %+v", summary)
	}
}
