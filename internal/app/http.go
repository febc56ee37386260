package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scribe/api/internal/ai"
	"scribe/api/internal/auth"
	"scribe/api/internal/authpw"
	"scribe/api/internal/backup"
	"scribe/api/internal/export"
	"scribe/api/internal/filetree"
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
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   "Database unavailable",
			})
			return
		}
		writeData(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	// Auth routes, no identity required
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeErrorMsg(w, http.StatusUnauthorized, "Refresh token invalid")
			return
		}
		writeData(w, http.StatusOK, sessionPayload(sess))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeData(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	username, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/file-tree" {
		forest, err := s.service.FileTree(r.Context(), username)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, forest)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/notes" {
		var body struct {
			FolderID string `json:"folderId"`
			Title    string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(body.FolderID) == "" || strings.TrimSpace(body.Title) == "" {
			writeErrorMsg(w, http.StatusBadRequest, "folderId and title are required")
			return
		}
		note, err := s.service.AddNote(r.Context(), username, body.FolderID, body.Title)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, note)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/folders" {
		var body struct {
			ParentFolderID *string `json:"parentFolderId"`
			Name           string  `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			writeErrorMsg(w, http.StatusBadRequest, "name is required")
			return
		}
		parentID := ""
		if body.ParentFolderID != nil {
			parentID = *body.ParentFolderID
		}
		folder, err := s.service.AddFolder(r.Context(), username, parentID, body.Name)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, folder)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeErrorMsg(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			if parsed > 0 {
				limit = parsed
			}
		}
		writeData(w, http.StatusOK, s.service.Search(r.Context(), username, q, limit))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ai/generate" {
		s.handleGenerate(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/backup" {
		commit, err := s.service.Backup(r.Context(), username)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"backedUp": true, "commit": commit.Hash})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/backup/restore" {
		forest, err := s.service.Restore(r.Context(), username)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, forest)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/backup/history" {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				limit = parsed
			}
		}
		commits, err := s.service.BackupHistory(username, limit)
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"commits": commits})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "backup" && parts[2] == "history" && r.Method == http.MethodGet {
		forest, err := s.service.SnapshotTree(username, parts[3])
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		writeData(w, http.StatusOK, forest)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "notes" {
		noteID := parts[2]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeErrorMsg(w, http.StatusBadRequest, err.Error())
				return
			}
			note, err := s.service.UpdateNoteContent(r.Context(), username, noteID, body.Content)
			if err != nil {
				status, message := mapError(err)
				writeErrorMsg(w, status, message)
				return
			}
			writeData(w, http.StatusOK, note)
			return
		case http.MethodDelete:
			deleted, err := s.service.DeleteNote(r.Context(), username, noteID)
			if err != nil {
				status, message := mapError(err)
				writeErrorMsg(w, status, message)
				return
			}
			if !deleted {
				writeErrorMsg(w, http.StatusNotFound, "Note not found")
				return
			}
			writeData(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "notes" && parts[3] == "export" && r.Method == http.MethodGet {
		s.handleExport(w, r, username, parts[2])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "folders" && r.Method == http.MethodDelete {
		deleted, err := s.service.DeleteFolder(r.Context(), username, parts[2])
		if err != nil {
			status, message := mapError(err)
			writeErrorMsg(w, status, message)
			return
		}
		if !deleted {
			writeErrorMsg(w, http.StatusNotFound, "Folder not found")
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}

	writeErrorMsg(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		writeErrorMsg(w, http.StatusBadRequest, "username and password are required")
		return
	}
	sess, err := s.service.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		status, message := mapError(err)
		writeErrorMsg(w, status, message)
		return
	}
	writeData(w, http.StatusCreated, sessionPayload(sess))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		status, message := mapError(err)
		writeErrorMsg(w, status, message)
		return
	}
	writeData(w, http.StatusOK, sessionPayload(sess))
}

// handleGenerate streams pipeline output as raw chunks. Once the stream
// starts the response status is committed; failures arrive as chunks.
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Configs []ai.AgentConfig `json:"configs"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	s.service.Generate(r.Context(), body.Configs, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, username, noteID string) {
	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatHTML
	}
	switch format {
	case export.FormatHTML, export.FormatPDF, export.FormatDOCX:
	default:
		writeErrorMsg(w, http.StatusBadRequest, "format must be html, pdf, or docx")
		return
	}

	result, err := s.service.Export(r.Context(), username, noteID, format)
	if err != nil {
		status, message := mapError(err)
		writeErrorMsg(w, status, message)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// requireUser resolves the caller's identity: a bearer access token when
// present, otherwise the legacy X-User-Id header the original client sends.
func (s *HTTPServer) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if token := bearerToken(r); token != "" {
		username, err := s.service.UsernameFromToken(token)
		if err != nil {
			writeErrorMsg(w, http.StatusUnauthorized, "Unauthorized")
			return "", false
		}
		return username, true
	}
	if username := strings.TrimSpace(r.Header.Get("X-User-Id")); username != "" {
		return username, true
	}
	writeErrorMsg(w, http.StatusUnauthorized, "Unauthorized")
	return "", false
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

// Flush forwards to the wrapped writer so streaming responses work
// through the middleware.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"user":         map[string]any{"username": sess.Username},
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeErrorMsg(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
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

func mapError(err error) (status int, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	switch {
	case errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusConflict, "Username already exists"
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, filetree.ErrFolderNotFound):
		return http.StatusNotFound, "Folder not found"
	case errors.Is(err, filetree.ErrNoteNotFound), errors.Is(err, export.ErrNoteNotFound):
		return http.StatusNotFound, "Note not found"
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "Export dependency missing"
	case errors.Is(err, backup.ErrNoBackup):
		return http.StatusNotFound, "No backup found on remote"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "Not found"
	}
	return http.StatusInternalServerError, "Server error"
}
