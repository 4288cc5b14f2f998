/*
Copyright 2025 The CrossGate Authors
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package router exposes the gateway HTTP surface:
// - template invocation with validation, rendering and dispatch
// - stats, recent logs and the template catalog
// - runtime origin registration feeding the CORS allow-list
// - a transparent pass-through proxy to the configured backend
// - a websocket stream of invocation log entries

package router

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/core/domains"
	"github.com/crossgate/crossgate-go/internal/pkg/core/relay"
	"github.com/crossgate/crossgate-go/internal/pkg/core/reqlog"
	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const (
	componentName = "router"

	defaultStatsWindow = time.Hour
	defaultLogLimit    = 50
)

// Options carries the collaborators and policy knobs for a RouterService.
type Options struct {
	Dispatcher     *relay.Dispatcher
	Store          *relay.Store
	DomainRegistry *domains.Registry
	InvokeLog      *reqlog.Log
	AccessLog      *reqlog.Log
	Application    string
	BackendURL     string
	CORS           CORSConfig
	RateLimit      int
	RateWindow     time.Duration
}

// RouterService manages the gateway routes and server lifecycle
type RouterService struct {
	server   *http.Server
	router   *http.ServeMux
	port     string // :8790
	hostname string
	opts     Options
	backend  *http.Client
	logger   *slog.Logger
}

// NewRouterService creates a new router service with the given port and hostname
func NewRouterService(port string, hostname string, opts Options) *RouterService {
	rs := &RouterService{
		router:   http.NewServeMux(),
		hostname: hostname,
		port:     port,
		opts:     opts,
		backend:  &http.Client{Timeout: 30 * time.Second},
	}
	rs.logger = loggerfactory.GetLogger(componentName, rs)
	rs.registerRoutes()
	return rs
}

func (rs *RouterService) UpdateLogger() {
	rs.logger = loggerfactory.GetLogger(componentName, rs)
}

func (rs *RouterService) registerRoutes() {
	rs.router.HandleFunc("POST /api/invoke/{template}", rs.handleInvoke)
	rs.router.HandleFunc("GET /api/stats", rs.handleStats)
	rs.router.HandleFunc("GET /api/logs", rs.handleLogs)
	rs.router.HandleFunc("GET /api/gateway/logs", rs.handleGatewayLogs)
	rs.router.HandleFunc("GET /api/templates", rs.handleTemplates)
	rs.router.HandleFunc("GET /api/domains", rs.handleListDomains)
	rs.router.HandleFunc("POST /api/domains", rs.handleRegisterDomain)
	rs.router.HandleFunc("GET /ws/logs", rs.handleLogStream)
	if rs.opts.BackendURL != "" {
		rs.router.HandleFunc("/proxy/", rs.handleProxy)
	}
	rs.registerLivelinessEndpoint()
}

// Handler assembles the middleware chain: CORS outermost, then rate
// limiting, then access logging around the route mux.
func (rs *RouterService) Handler() http.Handler {
	var handler http.Handler = rs.router
	if rs.opts.AccessLog != nil {
		handler = rs.accessLogMiddleware(handler)
	}
	if rs.opts.RateLimit > 0 {
		handler = RateLimitMiddleware(rs.opts.RateLimit, rs.opts.RateWindow)(handler)
	}
	handler = CORSMiddleware(handler, rs.opts.CORS, rs.opts.DomainRegistry)
	return handler
}

// invokeRequest is the POST /api/invoke/{template} payload.
type invokeRequest struct {
	Context map[string]interface{} `json:"context"`
	Body    json.RawMessage        `json:"body"`
}

// invokeResponse mirrors the invocation result on the wire; duration is
// in milliseconds.
type invokeResponse struct {
	Success  bool              `json:"success"`
	Status   int               `json:"status,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Data     interface{}       `json:"data,omitempty"`
	Duration int64             `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

func (rs *RouterService) handleInvoke(w http.ResponseWriter, r *http.Request) {
	templateName := r.PathValue("template")

	var req invokeRequest
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			http.Error(w, "Error reading request body", http.StatusBadRequest)
			return
		}
		if len(bodyBytes) > 0 {
			if err := json.Unmarshal(bodyBytes, &req); err != nil {
				writeJSON(w, http.StatusBadRequest, invokeResponse{Success: false, Error: "invalid request body: " + err.Error()})
				return
			}
		}
	}

	result := rs.opts.Dispatcher.Invoke(r.Context(), relay.Invocation{
		Template: templateName,
		Context:  req.Context,
		Body:     normalizeBody(req.Body),
		Origin:   r.Header.Get("Origin"),
		APIKey:   r.Header.Get("X-API-Key"),
	})

	response := invokeResponse{
		Success:  result.Success,
		Status:   result.Status,
		Headers:  result.Headers,
		Data:     result.Data,
		Duration: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}
	writeJSON(w, statusForResult(result), response)
}

// statusForResult maps the error taxonomy onto HTTP codes. A delivered
// upstream response of any status is a successful relay and returned 200.
func statusForResult(result relay.InvocationResult) int {
	if result.Err == nil {
		return http.StatusOK
	}
	var notFound *relay.TemplateNotFoundError
	var notDeclared *relay.TemplateNotDeclaredError
	var malformed *relay.TemplateMalformedError
	switch {
	case errors.As(result.Err, &notFound):
		return http.StatusNotFound
	case errors.As(result.Err, &notDeclared):
		return http.StatusForbidden
	case errors.As(result.Err, &malformed):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// normalizeBody turns the optional JSON body field into outbound bytes: a
// JSON string becomes its raw text, everything else is forwarded as JSON.
func normalizeBody(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return []byte(raw)
}

func (rs *RouterService) handleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if windowParam := r.URL.Query().Get("window"); windowParam != "" {
		ms, err := strconv.ParseInt(windowParam, 10, 64)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid window parameter", http.StatusBadRequest)
			return
		}
		window = time.Duration(ms) * time.Millisecond
	}
	writeJSON(w, http.StatusOK, rs.opts.InvokeLog.Stats(window))
}

func (rs *RouterService) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": rs.opts.InvokeLog.Recent(logLimit(r)),
	})
}

func (rs *RouterService) handleGatewayLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": rs.opts.AccessLog.Recent(logLimit(r)),
	})
}

func logLimit(r *http.Request) int {
	limit := defaultLogLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func (rs *RouterService) handleTemplates(w http.ResponseWriter, r *http.Request) {
	// Check for catalog file extension in the query, like ?catalog.yaml
	query := r.URL.Query()
	if _, exists := query["catalog.yaml"]; exists {
		rs.opts.Store.ServeCatalogYAML(w)
		return
	}
	rs.opts.Store.ServeCatalogJSON(w)
}

func (rs *RouterService) handleListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"domains": rs.opts.DomainRegistry.List(),
	})
}

func (rs *RouterService) handleRegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin      string `json:"origin"`
		Application string `json:"application"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	parsed, err := url.Parse(req.Origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		http.Error(w, "origin must be of the form scheme://host[:port]", http.StatusBadRequest)
		return
	}
	application := req.Application
	if application == "" {
		application = rs.opts.Application
	}
	domain := rs.opts.DomainRegistry.Register(req.Origin, application)
	rs.logger.Info("registered domain",
		slog.String("origin", domain.Origin),
		slog.String("application", domain.Application))
	writeJSON(w, http.StatusCreated, domain)
}

// handleProxy is the transparent pass-through: method, path, query,
// headers and body are forwarded to the backend and whatever comes back
// (any status code) is relayed as-is.
func (rs *RouterService) handleProxy(w http.ResponseWriter, r *http.Request) {
	targetURL := strings.TrimSuffix(rs.opts.BackendURL, "/") + strings.TrimPrefix(r.URL.Path, "/proxy")
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		http.Error(w, "Error building proxy request", http.StatusInternalServerError)
		return
	}
	for name, values := range r.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := rs.backend.Do(req)
	if err != nil {
		rs.logger.Warn("backend unreachable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "backend unreachable: " + err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// accessLogMiddleware records every gateway request into the short
// access log, completion order preserved by the log itself.
func (rs *RouterService) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		rs.opts.AccessLog.Record(reqlog.Entry{
			Method:    r.Method,
			Path:      r.URL.Path,
			Origin:    r.Header.Get("Origin"),
			APIKey:    r.Header.Get("X-API-Key"),
			Status:    recorder.status,
			Completed: true,
			Duration:  time.Since(start),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Hijack delegates to the wrapped writer so the websocket upgrade works
// through the access-log middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	return hijacker.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// StartServer starts the HTTP server
func (rs *RouterService) StartServer(ctx context.Context) {
	//eg:- localhost:8790
	addr := rs.hostname + rs.port
	rs.server = &http.Server{
		Addr:    addr,
		Handler: rs.Handler(),
	}

	go func() {
		rs.logger.Info("Starting HTTP server", "address", addr)
		if err := rs.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
		rs.logger.Info("HTTP server stopped serving new connections")
	}()
}

func (rs *RouterService) StopServer() {
	if rs.server != nil {
		rs.logger.Info("Shutting down HTTP server...")
		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownRelease()
		if err := rs.server.Shutdown(shutdownCtx); err != nil {
			rs.logger.Error("Error shutting down HTTP server", "error", err.Error())
		}
	}
}

// registerLivelinessEndpoint registers the liveness probe endpoint
func (rs *RouterService) registerLivelinessEndpoint() {
	rs.router.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "UP",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}
