package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	DefaultUpstream   = "https://api.notion.com"
	DefaultAPIVersion = "2022-06-28"

	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, Notion-Version"
	maxAge       = "86400"
)

// Headers that describe a single hop and must not be copied from the upstream
// response.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

type Options struct {
	Upstream     string
	HTTPClient   *http.Client
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Handler forwards every request to the Notion API and marks the response as
// readable from any origin.
type Handler struct {
	upstream     string
	httpClient   *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
	router       chi.Router
}

func NewHandler(opts Options) *Handler {
	upstream := strings.TrimRight(strings.TrimSpace(opts.Upstream), "/")
	if upstream == "" {
		upstream = DefaultUpstream
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		upstream:     upstream,
		httpClient:   httpClient,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.HandleFunc("/*", h.forward)
	// Registered after the catch-all so preflight wins for OPTIONS.
	r.Options("/*", h.preflight)
	h.router = r
	return h
}

func (h *Handler) Upstream() string {
	return h.upstream
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) preflight(w http.ResponseWriter, _ *http.Request) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", allowMethods)
	header.Set("Access-Control-Allow-Headers", allowHeaders)
	header.Set("Access-Control-Max-Age", maxAge)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	target := h.upstream + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
				return
			}
			writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
			return
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid forward request")
		return
	}
	req.Header.Set("Authorization", r.Header.Get("Authorization"))
	req.Header.Set("Content-Type", "application/json")
	version := strings.TrimSpace(r.Header.Get("Notion-Version"))
	if version == "" {
		version = DefaultAPIVersion
	}
	req.Header.Set("Notion-Version", version)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("relay upstream failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "notion api is unreachable from the relay")
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	for _, key := range hopByHopHeaders {
		header.Del(key)
	}
	header.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("relay response copy interrupted", "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
