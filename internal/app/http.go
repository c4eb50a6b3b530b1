package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pecel/api/internal/auth"
	"pecel/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		_ = s.service.Logout(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logout berhasil"})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		user, err := s.service.CurrentUser(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}

	parts := splitPath(r.URL.Path)

	// Dropdown filters read this without a session.
	if r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "api" && parts[1] == "users" && parts[2] == "by-role" {
		users, err := s.service.ListUsersByRole(r.Context(), parts[3])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "users" {
		s.handleUsers(w, r, parts)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, user, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"user":      user,
		"expiresAt": session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		users, err := s.service.ListUsers(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)

	case r.Method == http.MethodPost && len(parts) == 2:
		var input CreateUserInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.CreateUser(r.Context(), session, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)

	case r.Method == http.MethodPatch && len(parts) == 3:
		var input UpdateUserInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateUser(r.Context(), session, parts[2], input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteUser(r.Context(), session, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, parts []string) {
	// Reads are public; the dashboard queue board renders without a login.
	if r.Method == http.MethodGet && len(parts) == 2 {
		payload, err := s.service.ListDocuments(r.Context(), parseDocumentFilter(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 {
		id, ok := documentID(w, parts[2])
		if !ok {
			return
		}
		doc, err := s.service.GetDocument(r.Context(), id)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodPost && len(parts) == 2:
		var input CreateDocumentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.CreateDocument(r.Context(), session, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)

	case r.Method == http.MethodPatch && len(parts) == 3:
		id, ok := documentID(w, parts[2])
		if !ok {
			return
		}
		var patch store.DocumentPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.UpdateDocument(r.Context(), session, id, patch)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case r.Method == http.MethodDelete && len(parts) == 3:
		id, ok := documentID(w, parts[2])
		if !ok {
			return
		}
		if err := s.service.DeleteDocument(r.Context(), session, id); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func documentID(w http.ResponseWriter, raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "ID dokumen tidak valid", nil)
		return 0, false
	}
	return id, true
}

func parseDocumentFilter(r *http.Request) DocumentFilter {
	q := r.URL.Query()
	filter := DocumentFilter{
		Status:         strings.TrimSpace(q.Get("status")),
		JenisDokumen:   strings.TrimSpace(q.Get("jenisDokumen")),
		Alamat:         strings.TrimSpace(q.Get("alamat")),
		NamaCS:         strings.TrimSpace(q.Get("namaCS")),
		NamaOperator:   strings.TrimSpace(q.Get("namaOperator")),
		TanggalMulai:   strings.TrimSpace(q.Get("tanggalMulai")),
		TanggalSelesai: strings.TrimSpace(q.Get("tanggalSelesai")),
		Search:         strings.TrimSpace(q.Get("search")),
		SortBy:         strings.TrimSpace(q.Get("sortBy")),
		SortOrder:      strings.TrimSpace(q.Get("sortOrder")),
	}

	page, pageErr := strconv.Atoi(q.Get("page"))
	limit, limitErr := strconv.Atoi(q.Get("limit"))
	if pageErr == nil && limitErr == nil {
		filter.Page = page
		filter.Limit = limit
		filter.Paginated = true
	}
	return filter
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Data tidak ditemukan", nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return http.StatusConflict, "DUPLICATE_ENTRY", "Data sudah ada", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Terjadi kesalahan pada server", nil
}
