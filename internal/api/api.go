package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/geocoding"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the REST and MCP layers need.
type Deps struct {
	Assessments    *assessment.Registry
	Chats          *Chats
	Geocoder       *geocoding.Service
	Token          string   // bearer token; empty disables auth
	AllowedOrigins []string // CORS origins for the web app
}

// NewHandler returns the REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORS(deps.AllowedOrigins))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/assessments", handleListAssessments(deps))
		r.Route("/assessments/{id}", func(r chi.Router) {
			r.Get("/", handleGetAssessment(deps))
			r.Delete("/", handleDeleteAssessment(deps))
			r.Put("/location", handleSetLocation(deps))
			r.Put("/property", handleSetProperty(deps))
			r.Put("/feasibility", handleSetFeasibility(deps))
			r.Post("/advance", handleAdvance(deps))
			r.Post("/retreat", handleRetreat(deps))
			r.Get("/can-proceed", handleCanProceed(deps))
		})

		r.Get("/conversations", handleListConversations(deps))
		r.Post("/conversations", handleCreateConversation(deps))
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", handleGetConversation(deps))
			r.Delete("/", handleDeleteConversation(deps))
			r.Post("/messages", handleSendMessage(deps))
			r.Delete("/messages", handleClearConversation(deps))
			r.Get("/summary", handleConversationSummary(deps))
		})

		r.Get("/geocode/search", handleGeocodeSearch(deps))
		r.Get("/geocode/reverse", handleGeocodeReverse(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
