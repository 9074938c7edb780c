package engine

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

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/search"
	"polyglot/api/internal/store"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	engine     *Engine
	db         pinger
	corsOrigin string
}

func NewHTTPServer(engine *Engine, db pinger, corsOrigin string) *HTTPServer {
	return &HTTPServer{engine: engine, db: db, corsOrigin: corsOrigin}
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

		if s.db != nil {
			if err := s.db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "translate":
		if len(parts) == 3 {
			s.handleTranslatePath(w, r, parts[2])
			return
		}
	case "zen":
		if len(parts) == 3 {
			s.handleZenPath(w, r, parts[2])
			return
		}
	case "units":
		if len(parts) == 4 && parts[3] == "comments" && r.Method == http.MethodPost {
			s.handleAddComment(w, r, parts[2])
			return
		}
	case "comments":
		if len(parts) == 3 && r.Method == http.MethodDelete {
			s.handleDeleteComment(w, r, parts[2])
			return
		}
	case "translations":
		if len(parts) == 4 && parts[3] == "autotranslate" && r.Method == http.MethodPost {
			s.handleAutoTranslate(w, r, parts[2])
			return
		}
		if len(parts) == 4 && parts[3] == "units" && r.Method == http.MethodPost {
			s.handleNewUnit(w, r, parts[2])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTranslatePath(w http.ResponseWriter, r *http.Request, rawID string) {
	translationID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid translation id", nil)
		return
	}
	actor := actorFromRequest(r)
	sessionID := s.sessionID(w, r)
	params := search.ParseParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		view, redirect, err := s.engine.Session(r.Context(), SessionInput{
			SessionID:     sessionID,
			Actor:         actor,
			TranslationID: translationID,
			Params:        params,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if redirect != nil {
			writeJSON(w, http.StatusOK, outcomePayload(*redirect))
			return
		}
		writeJSON(w, http.StatusOK, viewPayload(view))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form data", nil)
			return
		}
		req, err := ParseSubmit(r.PostForm)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		// POSTs carry the offset in the form rather than the query string.
		if raw := r.PostForm.Get("offset"); raw != "" {
			if offset, err := strconv.Atoi(raw); err == nil {
				params.Offset = offset
				params.HasOffset = true
			}
		}
		outcome, err := s.engine.Submit(r.Context(), SubmitInput{
			SessionID:     sessionID,
			Actor:         actor,
			TranslationID: translationID,
			Params:        params,
			Request:       req,
			RemoteAddr:    r.RemoteAddr,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, outcomePayload(outcome))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleZenPath(w http.ResponseWriter, r *http.Request, rawID string) {
	translationID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid translation id", nil)
		return
	}
	actor := actorFromRequest(r)
	sessionID := s.sessionID(w, r)

	switch r.Method {
	case http.MethodGet:
		view, err := s.engine.ZenWindow(r.Context(), SessionInput{
			SessionID:     sessionID,
			Actor:         actor,
			TranslationID: translationID,
			Params:        search.ParseParams(r.URL.Query()),
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		units := make([]map[string]any, 0, len(view.Units))
		for _, unit := range view.Units {
			units = append(units, unitPayload(unit))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"units":       units,
			"offset":      view.Offset,
			"total":       view.Total,
			"lastSection": view.LastSection,
		})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form data", nil)
			return
		}
		unitID, err := strconv.ParseInt(r.PostForm.Get("unit"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid unit id", nil)
			return
		}
		req, err := ParseSubmit(r.PostForm)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		status, err := s.engine.SaveZen(r.Context(), ZenSaveInput{
			SessionID:     sessionID,
			Actor:         actor,
			TranslationID: translationID,
			UnitID:        unitID,
			Target:        req.Target,
			State:         req.State,
			Honeypot:      req.Honeypot,
			RemoteAddr:    r.RemoteAddr,
		})
		if err != nil {
			st, code, message, details := mapError(err)
			writeError(w, st, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, status)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, rawID string) {
	unitID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid unit id", nil)
		return
	}
	var body struct {
		Language string `json:"language"`
		Body     string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.engine.AddComment(r.Context(), actorFromRequest(r), unitID, body.Language, body.Body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       comment.ID,
		"unitId":   comment.UnitID,
		"language": comment.Language,
		"author":   comment.Author,
		"body":     comment.Body,
	})
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, rawID string) {
	commentID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid comment id", nil)
		return
	}
	if err := s.engine.DeleteComment(r.Context(), actorFromRequest(r), commentID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAutoTranslate(w http.ResponseWriter, r *http.Request, rawID string) {
	translationID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid translation id", nil)
		return
	}
	var body struct {
		Component string `json:"component"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	count, err := s.engine.AutoTranslate(r.Context(), actorFromRequest(r), translationID, body.Component, body.Overwrite)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": count})
}

func (s *HTTPServer) handleNewUnit(w http.ResponseWriter, r *http.Request, rawID string) {
	translationID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid translation id", nil)
		return
	}
	var body struct {
		Key    string   `json:"key"`
		Source []string `json:"source"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	unit, err := s.engine.NewUnit(r.Context(), actorFromRequest(r), translationID, body.Key, body.Source)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, unitPayload(unit))
}

// sessionID reads the editing-session cookie, minting one when absent. The
// cookie only scopes the search cache; it carries no identity.
func (s *HTTPServer) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie("sid"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := randomRequestID()
	http.SetCookie(w, &http.Cookie{
		Name:     "sid",
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// actorFromRequest trusts the identity headers set by the fronting proxy.
func actorFromRequest(r *http.Request) rbac.Actor {
	return rbac.Actor{
		Name: strings.TrimSpace(r.Header.Get("X-User")),
		Role: rbac.Normalize(r.Header.Get("X-Role")),
	}
}

func outcomePayload(outcome Outcome) map[string]any {
	payload := map[string]any{"redirect": outcome.Redirect}
	if outcome.Messages != nil {
		payload["messages"] = outcome.Messages.Items()
		payload["state"] = outcome.Messages.State()
	}
	return payload
}

func viewPayload(view *View) map[string]any {
	others := make([]map[string]any, 0, len(view.Others))
	for _, related := range view.Others {
		entry := unitPayload(related.Unit)
		entry["label"] = related.Label
		others = append(others, entry)
	}
	suggestions := make([]map[string]any, 0, len(view.Suggestions))
	for _, suggestion := range view.Suggestions {
		suggestions = append(suggestions, map[string]any{
			"id":     suggestion.ID,
			"target": store.SplitPlural(suggestion.Target),
			"author": suggestion.Author,
		})
	}
	return map[string]any{
		"unit":        unitPayload(view.Unit),
		"offset":      view.Offset,
		"total":       view.Total,
		"searchName":  view.Search.Name,
		"searchUrl":   view.Search.URL,
		"first":       view.Links.First,
		"last":        view.Links.Last,
		"prev":        view.Links.Prev,
		"next":        view.Links.Next,
		"others":      others,
		"suggestions": suggestions,
		"checks":      view.Checks,
		"checkNames":  view.CheckNames,
	}
}

func unitPayload(unit store.Unit) map[string]any {
	return map[string]any{
		"id":       unit.ID,
		"checksum": unit.IDHash,
		"source":   store.SplitPlural(unit.Source),
		"target":   unit.TargetForms(),
		"context":  unit.Context,
		"position": unit.Position,
		"state":    int(unit.State),
		"pending":  unit.Pending,
	}
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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User, X-Role")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
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
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
