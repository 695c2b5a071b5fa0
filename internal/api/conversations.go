package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/storage"
)

const defaultConversationListLimit = 20

// ConversationRequest creates or clears a conversation. When AssessmentID is
// set the greeting follows that assessment's step and its record seeds the
// context hints.
type ConversationRequest struct {
	AssessmentID string                 `json:"assessmentId,omitempty"`
	Context      assistant.ContextHints `json:"context"`
}

// MessageRequest is the body of POST /conversations/{id}/messages.
type MessageRequest struct {
	Message      string                 `json:"message"`
	AssessmentID string                 `json:"assessmentId,omitempty"`
	Context      assistant.ContextHints `json:"context"`
}

// MessageResponse pairs the structured reply with the updated conversation.
type MessageResponse struct {
	Reply        assistant.Reply        `json:"reply"`
	Conversation assistant.Conversation `json:"conversation"`
}

// assessmentContext returns the step and hints of an assessment, or the
// generic step 0 and no hints when id is empty.
func assessmentContext(deps Deps, id string) (assessment.Step, assistant.ContextHints, error) {
	if id == "" {
		return 0, assistant.ContextHints{}, nil
	}
	acc, err := deps.Assessments.Get(id)
	if err != nil {
		return 0, assistant.ContextHints{}, err
	}
	state := acc.Snapshot()
	return state.CurrentStep, assistant.HintsFromRecord(state.Record), nil
}

func conversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func handleCreateConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConversationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		step, hints, err := assessmentContext(deps, req.AssessmentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading assessment: %v", err)
			return
		}
		conv, err := deps.Chats.Create(step, hints.Merge(req.Context))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating conversation: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultConversationListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}
		convs, err := deps.Chats.List(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing conversations: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := deps.Chats.Get(chi.URLParam(r, "id"))
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Chats.Delete(chi.URLParam(r, "id")); err != nil {
			conversationError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		_, hints, err := assessmentContext(deps, req.AssessmentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading assessment: %v", err)
			return
		}

		conv, reply, err := deps.Chats.Send(r.Context(), chi.URLParam(r, "id"), req.Message, hints.Merge(req.Context))
		if errors.Is(err, assistant.ErrEmptyMessage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Reply: reply, Conversation: conv})
	}
}

func handleClearConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, _, err := assessmentContext(deps, r.URL.Query().Get("assessmentId"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading assessment: %v", err)
			return
		}
		conv, err := deps.Chats.Clear(chi.URLParam(r, "id"), step)
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleConversationSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Chats.Summary(chi.URLParam(r, "id"))
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
