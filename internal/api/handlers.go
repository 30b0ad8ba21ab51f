package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"redtape.au/redtape/internal/auth"
	"redtape.au/redtape/internal/core"
	"redtape.au/redtape/internal/store"
)

type ctxKey int

const ctxKeySubject ctxKey = iota

type APIHandler struct {
	abn       *core.ABNService
	chat      *core.ChatService
	flow      *core.FlowService
	jwtSecret string
}

func NewAPIHandler(abn *core.ABNService, chat *core.ChatService, flow *core.FlowService, jwtSecret string) *APIHandler {
	return &APIHandler{abn: abn, chat: chat, flow: flow, jwtSecret: jwtSecret}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto the {"error": ...} envelope. Raw
// upstream detail never leaves the process; it is logged instead.
func writeError(w http.ResponseWriter, err error) {
	var appErr *core.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
		return
	}
	log.Printf("Unclassified handler error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// AuthMiddleware guards session routes. Identity itself is the external
// provider's problem; we only verify its signature and carry the subject.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.jwtSecret == "" {
			writeError(w, core.NewMisconfigured("session authentication is not configured"))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := auth.ValidateToken(tokenString, h.jwtSecret)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFrom(r *http.Request) string {
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	return subject
}

type ABNLookupRequest struct {
	ABN string `json:"abn"`
}

func (h *APIHandler) ABNLookupHandler(w http.ResponseWriter, r *http.Request) {
	var req ABNLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}

	record, err := h.abn.Lookup(r.Context(), req.ABN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type ChatRequest struct {
	Messages  []core.IncomingMessage `json:"messages"`
	Portfolio any                    `json:"portfolio,omitempty"`
}

type ChatResponse struct {
	Message *core.ChatReply `json:"message"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}

	reply, err := h.chat.Respond(r.Context(), req.Messages, req.Portfolio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.flow.CreateSession(subjectFrom(r))
	writeJSON(w, http.StatusCreated, sess)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := h.flow.GetSession(chi.URLParam(r, "sessionID"), subjectFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Teardown(chi.URLParam(r, "sessionID"), subjectFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ResetChatHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := h.flow.ResetChat(chi.URLParam(r, "sessionID"), subjectFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}

	msg, err := h.flow.SendMessage(r.Context(), chi.URLParam(r, "sessionID"), subjectFrom(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *APIHandler) SubmitFormHandler(w http.ResponseWriter, r *http.Request) {
	var sub core.FormSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}

	msg, err := h.flow.SubmitForm(r.Context(), chi.URLParam(r, "sessionID"), subjectFrom(r), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *APIHandler) GetPortfolioHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.flow.GetPortfolio(chi.URLParam(r, "sessionID"), subjectFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) DispatchActionHandler(w http.ResponseWriter, r *http.Request) {
	var action store.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}

	state, err := h.flow.Dispatch(chi.URLParam(r, "sessionID"), subjectFrom(r), action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) AddChecklistItemHandler(w http.ResponseWriter, r *http.Request) {
	var item store.NewChecklistItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, core.NewInvalidInput("invalid request body"))
		return
	}
	if item.Title == "" {
		writeError(w, core.NewInvalidInput("checklist item title is required"))
		return
	}

	state, err := h.flow.Dispatch(chi.URLParam(r, "sessionID"), subjectFrom(r), store.Action{
		Type: store.ActionAddChecklistItem,
		Item: &item,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *APIHandler) ToggleChecklistItemHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.flow.Dispatch(chi.URLParam(r, "sessionID"), subjectFrom(r), store.Action{
		Type:   store.ActionToggleChecklistItem,
		ItemID: chi.URLParam(r, "itemID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) RemoveChecklistItemHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.flow.Dispatch(chi.URLParam(r, "sessionID"), subjectFrom(r), store.Action{
		Type:   store.ActionRemoveChecklistItem,
		ItemID: chi.URLParam(r, "itemID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
