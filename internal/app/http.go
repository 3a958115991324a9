package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"inkpress/api/internal/auth"
	"inkpress/api/internal/lifecycle"
	"inkpress/api/internal/store"
	"inkpress/api/internal/webhook"
)

const maxWebhookBodyBytes = 5 << 20 // 5MB

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

type proofBody struct {
	Address   string              `json:"address"`
	Salt      string              `json:"salt"`
	Signature string              `json:"signature"`
	Content   string              `json:"content,omitempty"`
	GroupID   string              `json:"groupId,omitempty"`
	Tags      map[string]string   `json:"tags,omitempty"`
	TypedData *apitypes.TypedData `json:"typedData,omitempty"`
}

func (b proofBody) proof() auth.Proof {
	return auth.Proof{
		Message:   b.Salt,
		Signature: b.Signature,
		Address:   b.Address,
	}
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

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/alchemy" {
		s.handleAlchemyWebhook(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/quicknode" {
		s.handleQuickNodeWebhook(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/files" {
		s.handleCreateDraft(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/files/update" {
		s.handleUpdateDraft(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/files/delete" {
		s.handleDeleteDraft(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/files/prepare" {
		s.handlePreparePublish(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/files/pending" {
		s.handlePendingByOwner(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body proofBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var (
		result LoginResult
		err    error
	)
	if body.TypedData != nil {
		result, err = s.service.LoginTyped(r.Context(), auth.TypedProof{
			TypedData: *body.TypedData,
			Signature: body.Signature,
			Address:   body.Address,
		})
	} else {
		result, err = s.service.Login(r.Context(), body.proof())
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var body proofBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Content == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "content is required", nil)
		return
	}
	record, err := s.service.files.CreateDraft(r.Context(), body.proof(), []byte(body.Content), body.GroupID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": record})
}

func (s *HTTPServer) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	contentAddress, ok := requireContentAddress(w, r)
	if !ok {
		return
	}
	var body proofBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Content == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "content is required", nil)
		return
	}
	record, err := s.service.files.UpdateDraft(r.Context(), body.proof(), contentAddress, []byte(body.Content))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": record})
}

func (s *HTTPServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	contentAddress, ok := requireContentAddress(w, r)
	if !ok {
		return
	}
	var body proofBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	record, err := s.service.files.DeleteDraft(r.Context(), body.proof(), contentAddress)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": record})
}

func (s *HTTPServer) handlePreparePublish(w http.ResponseWriter, r *http.Request) {
	contentAddress, ok := requireContentAddress(w, r)
	if !ok {
		return
	}
	var body proofBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	record, err := s.service.files.PreparePublish(r.Context(), body.proof(), contentAddress, body.Tags)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": record})
}

func (s *HTTPServer) handlePendingByOwner(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	address, err := s.service.AddressFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "owner is required", nil)
		return
	}
	if !strings.EqualFold(owner, address) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	records, err := s.service.files.PendingByOwner(r.Context(), owner)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": records})
}

func (s *HTTPServer) handleAlchemyWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readWebhookBody(w, r)
	if !ok {
		return
	}
	result, err := s.service.reconciler.HandleAlchemy(r.Context(), body, r.Header.Get("X-Alchemy-Signature"))
	s.writeWebhookResult(w, result, err)
}

func (s *HTTPServer) handleQuickNodeWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readWebhookBody(w, r)
	if !ok {
		return
	}
	result, err := s.service.reconciler.HandleQuickNode(r.Context(), body,
		r.Header.Get("X-QN-Nonce"),
		r.Header.Get("X-QN-Timestamp"),
		r.Header.Get("X-QN-Signature"),
	)
	s.writeWebhookResult(w, result, err)
}

func (s *HTTPServer) writeWebhookResult(w http.ResponseWriter, result webhook.Result, err error) {
	if err != nil {
		if errors.Is(err, webhook.ErrBadSignature) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		if errors.Is(err, webhook.ErrBadPayload) {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Undecodable payload", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"applied": result.Outcome == lifecycle.TransitionApplied,
	})
}

func readWebhookBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds 5MB limit", nil)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return nil, false
	}
	return body, true
}

func requireContentAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	contentAddress := strings.TrimSpace(r.URL.Query().Get("contentAddress"))
	if contentAddress == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "contentAddress is required", nil)
		return "", false
	}
	return contentAddress, true
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
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func formatTTL(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, lifecycle.ErrUnauthenticated) || errors.Is(err, lifecycle.ErrUnauthorized) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, lifecycle.ErrNotFound) || errors.Is(err, store.ErrRecordNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, lifecycle.ErrConflict) {
		return http.StatusBadRequest, "CONFLICT", "Conflicting record state", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
