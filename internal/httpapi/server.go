package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/homepage/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type ServerConfig struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	// AllowedOrigins are host patterns accepted for the websocket change feed
	// in addition to same-origin requests.
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	store       *store.Store
	cfg         ServerConfig
	rateLimiter *rateLimiter
	logger      *zap.Logger
	handler     http.Handler
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(st *store.Store) *Server {
	return NewServerWithConfig(st, ServerConfig{})
}

func NewServerWithConfig(st *store.Store, cfg ServerConfig) *Server {
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	s := &Server{
		store:       st,
		cfg:         cfg,
		rateLimiter: limiter,
		logger:      cfg.Logger,
	}
	s.handler = requestLogger(s.logger, http.HandlerFunc(s.route))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	w.Header().Set("X-Correlation-Id", correlationID)

	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "homepage" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}

	var route string
	switch {
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		route = "events"
	case len(parts) == 2 && parts[1] == store.TestimonialsSection && r.Method == http.MethodGet:
		route = "testimonials_list"
	case len(parts) == 2 && parts[1] == store.TestimonialsSection && r.Method == http.MethodPost:
		route = "testimonial_create"
	case len(parts) == 3 && parts[1] == store.TestimonialsSection && r.Method == http.MethodGet:
		route = "testimonial_read"
	case len(parts) == 3 && parts[1] == store.TestimonialsSection && r.Method == http.MethodPut:
		route = "testimonial_update"
	case len(parts) == 3 && parts[1] == store.TestimonialsSection && r.Method == http.MethodDelete:
		route = "testimonial_delete"
	case len(parts) == 2 && r.Method == http.MethodGet:
		route = "section_read"
	case len(parts) == 2 && r.Method == http.MethodPut:
		route = "section_write"
	case len(parts) == 2 && r.Method == http.MethodPost:
		route = "section_create"
	case isKnownPath(parts):
		w.Header().Set("Allow", allowedMethods(parts))
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", correlationID)
		return
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}

	if r.Method != http.MethodGet && s.rateLimiter != nil {
		if !s.rateLimiter.allow(clientKey(r), time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	switch route {
	case "events":
		s.handleEvents(w, r)
	case "testimonials_list":
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": s.store.ListTestimonials()})
	case "testimonial_create":
		s.handleCreateTestimonial(w, r, correlationID)
	case "testimonial_read":
		s.handleReadTestimonial(w, parts[2], correlationID)
	case "testimonial_update":
		s.handleUpdateTestimonial(w, r, parts[2], correlationID)
	case "testimonial_delete":
		s.handleDeleteTestimonial(w, parts[2], correlationID)
	case "section_read":
		s.handleReadSection(w, parts[1], correlationID)
	case "section_write":
		s.handleWriteSection(w, r, parts[1], false, correlationID)
	case "section_create":
		s.handleWriteSection(w, r, parts[1], true, correlationID)
	}
}

func isKnownPath(parts []string) bool {
	if len(parts) == 2 {
		return true
	}
	return parts[1] == store.TestimonialsSection
}

func allowedMethods(parts []string) string {
	switch {
	case len(parts) == 2 && parts[1] == "events":
		return "GET"
	case len(parts) == 2 && parts[1] == store.TestimonialsSection:
		return "GET, POST"
	case len(parts) == 3:
		return "GET, PUT, DELETE"
	default:
		return "GET, PUT, POST"
	}
}

func (s *Server) handleReadSection(w http.ResponseWriter, name, correlationID string) {
	rec, err := s.store.GetSection(name)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, sectionResponse(rec))
}

func (s *Server) handleWriteSection(w http.ResponseWriter, r *http.Request, name string, create bool, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	content, err := extractContent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		return
	}
	var rec store.SectionRecord
	if create {
		rec, err = s.store.CreateSection(name, content)
	} else {
		rec, err = s.store.PutSection(name, content)
	}
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	writeJSON(w, status, sectionResponse(rec))
}

func (s *Server) handleCreateTestimonial(w http.ResponseWriter, r *http.Request, correlationID string) {
	var item map[string]any
	if !s.decodeJSONBody(w, r, correlationID, &item) {
		return
	}
	stored, err := s.store.CreateTestimonial(item)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "content": stored})
}

func (s *Server) handleReadTestimonial(w http.ResponseWriter, id, correlationID string) {
	item, err := s.store.GetTestimonial(id)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": item})
}

func (s *Server) handleUpdateTestimonial(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	var item map[string]any
	if !s.decodeJSONBody(w, r, correlationID, &item) {
		return
	}
	stored, err := s.store.UpdateTestimonial(id, item)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": stored})
}

func (s *Server) handleDeleteTestimonial(w http.ResponseWriter, id, correlationID string) {
	if err := s.store.DeleteTestimonial(id); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleEvents upgrades to a websocket and streams store change events until
// the client goes away or the store closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	events, cancel := s.store.Subscribe(32)
	defer cancel()
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "store closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				s.logger.Debug("event write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found", correlationID)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "already exists", correlationID)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", "invalid input", correlationID)
	default:
		s.logger.Error("store operation failed", zap.String("correlationId", correlationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error", correlationID)
	}
}

func sectionResponse(rec store.SectionRecord) map[string]any {
	return map[string]any{
		"success":   true,
		"content":   rec.Content,
		"updatedAt": rec.UpdatedAt.Format(time.RFC3339),
	}
}

// extractContent accepts either {"content": <doc>} or the bare document.
func extractContent(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, errors.New("invalid json body")
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if content, ok := envelope["content"]; ok {
			return content, nil
		}
	}
	return json.RawMessage(body), nil
}

func getCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-Id")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
		"success":       false,
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
