package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

// Inputs are the editable per-category buffers a sync run consumes.
type Inputs interface {
	ideasync.Buffers
	Set(category ideasync.Category, text string) error
}

// CredentialStore persists the Notion secret and database id between runs.
type CredentialStore interface {
	LoadCredentials() (ideasync.Credentials, error)
	SaveCredentials(creds ideasync.Credentials) error
	Clear() error
}

type ServerConfig struct {
	// APIKey protects every /v1 route when set.
	APIKey       string
	MaxBodyBytes int64
	// Overrides replace stored credential fields that are non-empty,
	// typically NOTION_API_KEY and NOTION_DATABASE_ID from the environment.
	Overrides       ideasync.Credentials
	StreamHeartbeat time.Duration
	Gatherer        prometheus.Gatherer
	Logger          *slog.Logger
}

type Server struct {
	orchestrator *ideasync.Orchestrator
	credentials  CredentialStore
	inputs       Inputs
	cfg          ServerConfig
	logger       *slog.Logger
	router       chi.Router
}

func NewServer(orchestrator *ideasync.Orchestrator, credentials CredentialStore, inputs Inputs, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.StreamHeartbeat <= 0 {
		cfg.StreamHeartbeat = 30 * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orchestrator: orchestrator,
		credentials:  credentials,
		inputs:       inputs,
		cfg:          cfg,
		logger:       logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleDashboard)
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.logger))
		}
		r.Get("/credentials", s.handleGetCredentials)
		r.Put("/credentials", s.handlePutCredentials)
		r.Delete("/credentials", s.handleDeleteCredentials)
		r.Get("/inputs", s.handleGetInputs)
		r.Put("/inputs", s.handlePutInputs)
		r.Post("/sync", s.handleSync)
		r.Get("/activity", s.handleActivity)
		r.Delete("/activity", s.handleClearActivity)
		r.Get("/activity/stream", s.handleStream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", getCorrelationID(r))
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsView struct {
	AccessSecret string `json:"accessSecret"`
	CollectionID string `json:"collectionId"`
	Complete     bool   `json:"complete"`
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	creds, err := s.effectiveCredentials()
	if err != nil {
		s.logger.Error("load credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load credentials", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, viewCredentials(creds))
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	var req ideasync.Credentials
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	if err := s.credentials.SaveCredentials(req); err != nil {
		s.logger.Error("save credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save credentials", correlationID)
		return
	}
	creds, err := s.effectiveCredentials()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load credentials", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, viewCredentials(creds))
}

func (s *Server) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.credentials.Clear(); err != nil {
		s.logger.Error("clear credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear credentials", getCorrelationID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// effectiveCredentials returns the stored pair with non-empty overrides
// applied field by field.
func (s *Server) effectiveCredentials() (ideasync.Credentials, error) {
	creds, err := s.credentials.LoadCredentials()
	if err != nil {
		return ideasync.Credentials{}, err
	}
	if v := strings.TrimSpace(s.cfg.Overrides.AccessSecret); v != "" {
		creds.AccessSecret = v
	}
	if v := strings.TrimSpace(s.cfg.Overrides.CollectionID); v != "" {
		creds.CollectionID = v
	}
	return creds, nil
}

func viewCredentials(creds ideasync.Credentials) credentialsView {
	return credentialsView{
		AccessSecret: maskSecret(creds.AccessSecret),
		CollectionID: creds.CollectionID,
		Complete:     creds.Complete(),
	}
}

// maskSecret keeps the last four characters of secrets long enough that
// doing so reveals little.
func maskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

type inputsPayload struct {
	Inputs map[string]string `json:"inputs"`
	Busy   bool              `json:"busy"`
}

func (s *Server) handleGetInputs(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.inputSnapshot()
	if err != nil {
		s.logger.Error("read inputs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read inputs", getCorrelationID(r))
		return
	}
	writeJSON(w, http.StatusOK, inputsPayload{Inputs: snapshot, Busy: s.orchestrator.Busy()})
}

func (s *Server) handlePutInputs(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	var req inputsPayload
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "inputs must name at least one category", correlationID)
		return
	}
	updates := make(map[ideasync.Category]string, len(req.Inputs))
	for key, text := range req.Inputs {
		category, err := ideasync.ParseCategory(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_category", err.Error(), correlationID)
			return
		}
		updates[category] = text
	}
	if s.orchestrator.Busy() {
		writeError(w, http.StatusConflict, "sync_in_progress", "inputs are locked while a sync is running", correlationID)
		return
	}
	for _, category := range ideasync.Categories {
		text, ok := updates[category]
		if !ok {
			continue
		}
		if err := s.inputs.Set(category, text); err != nil {
			if errors.Is(err, ideasync.ErrSyncInProgress) {
				writeError(w, http.StatusConflict, "sync_in_progress", "inputs are locked while a sync is running", correlationID)
				return
			}
			s.logger.Error("write input failed", "category", category.Key(), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to write inputs", correlationID)
			return
		}
	}
	snapshot, err := s.inputSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read inputs", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, inputsPayload{Inputs: snapshot, Busy: s.orchestrator.Busy()})
}

func (s *Server) inputSnapshot() (map[string]string, error) {
	out := make(map[string]string, len(ideasync.Categories))
	for _, category := range ideasync.Categories {
		text, err := s.inputs.Text(category)
		if err != nil {
			return nil, err
		}
		out[category.Key()] = text
	}
	return out, nil
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	creds, err := s.effectiveCredentials()
	if err != nil {
		s.logger.Error("load credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load credentials", correlationID)
		return
	}

	// A run takes as long as its lines do, so the server write timeout does
	// not apply to this response.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clear write deadline failed", "error", err)
	}

	// A dropped client must not abandon lines halfway through a run.
	ctx := context.WithoutCancel(r.Context())
	summary, err := s.orchestrator.Sync(ctx, creds, s.inputs)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, ideasync.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "missing_credentials", "Please configure Notion API Key and Database ID.", correlationID)
	case errors.Is(err, ideasync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", err.Error(), correlationID)
	case errors.Is(err, ideasync.ErrEmptyInput):
		writeError(w, http.StatusUnprocessableEntity, "empty_input", "No text found in any section to sync.", correlationID)
	default:
		s.logger.Error("sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

type activityPayload struct {
	Records        []ideasync.AttemptRecord `json:"records"`
	Count          int                      `json:"count"`
	Busy           bool                     `json:"busy"`
	NetworkWarning bool                     `json:"networkWarning"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	records := s.orchestrator.Log().Snapshot()
	limit := parseBoundedInt(r.URL.Query().Get("limit"), len(records), 1, 1000)
	if limit < len(records) {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, activityPayload{
		Records:        records,
		Count:          s.orchestrator.Log().Len(),
		Busy:           s.orchestrator.Busy(),
		NetworkWarning: s.orchestrator.NetworkWarning(),
	})
}

func (s *Server) handleClearActivity(w http.ResponseWriter, _ *http.Request) {
	removed := s.orchestrator.Log().Clear()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// getCorrelationID prefers the caller's header and falls back to the
// request id assigned by the router.
func getCorrelationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-Id"); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func parseBoundedInt(raw string, fallback, min, max int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if parsed < min {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}
