// Package httpapi implements the REST transport of the fulfillment service.
//
// All mutating routes expect an x-user-id header forwarded by the Gateway;
// it is recorded as the actor. Authorization happens upstream.
//
// Routes:
//
//	GET  /health                            → liveness
//	POST /search                            → rank providers for a request
//	POST /requests/{id}/transition          → move a service request
//	POST /applications/{id}/transition      → move a job application
//	GET  /requests/{id}/history             → audit trail of a request
//	GET  /applications/{id}/history         → audit trail of an application
//	POST /requests/{id}/convert             → book a provider for a request
//	POST /notify/{template}                 → render and dispatch a notification
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/conversion"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
)

// ─── Dependencies ────────────────────────────────────────────────────────────

// Searcher ranks providers.
type Searcher interface {
	Search(ctx context.Context, c matching.Criteria) (*matching.Result, error)
}

// Lifecycle applies actor transitions and reads audit trails.
type Lifecycle interface {
	Transition(ctx context.Context, entity model.EntityType, entityID, target, actor, comment string) (*lifecycle.Result, error)
	History(ctx context.Context, entity model.EntityType, entityID string) ([]model.StatusTransitionRecord, error)
}

// Converter turns a request into a booking.
type Converter interface {
	Convert(ctx context.Context, requestID, providerID, serviceID, actor string) (*conversion.Result, error)
}

// Notifier dispatches a notification synchronously.
type Notifier interface {
	Notify(ctx context.Context, template string, to notify.Recipient, data map[string]string) (*notify.Result, error)
}

// ─── Request bodies ──────────────────────────────────────────────────────────

// TransitionBody is the body of a transition call.
type TransitionBody struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// ConvertBody is the body of a convert call.
type ConvertBody struct {
	ProviderID string `json:"providerId"`
	ServiceID  string `json:"serviceId"`
}

// NotifyBody is the body of a notify call.
type NotifyBody struct {
	Recipient notify.Recipient  `json:"recipient"`
	Data      map[string]string `json:"data"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	search    Searcher
	lifecycle Lifecycle
	convert   Converter
	notify    Notifier
}

// NewHandler returns a configured Handler.
func NewHandler(s Searcher, lc Lifecycle, c Converter, n Notifier) *Handler {
	return &Handler{search: s, lifecycle: lc, convert: c, notify: n}
}

// RegisterRoutes mounts all fulfillment routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/search", h.handleSearch)
	mux.HandleFunc("/requests/", h.entityAction(model.EntityRequest))
	mux.HandleFunc("/applications/", h.entityAction(model.EntityApplication))
	mux.HandleFunc("/notify/", h.handleNotify)
}

// ─── Route dispatch ──────────────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

// entityAction handles /{requests|applications}/{id}/{action}.
func (h *Handler) entityAction(entity model.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[1] == "" {
			jsonError(w, "invalid path", http.StatusNotFound)
			return
		}
		id, action := parts[1], parts[2]

		switch {
		case action == "history" && r.Method == http.MethodGet:
			h.history(w, r, entity, id)
		case action == "transition" && r.Method == http.MethodPost:
			h.transition(w, r, entity, id)
		case action == "convert" && r.Method == http.MethodPost && entity == model.EntityRequest:
			h.convertRequest(w, r, id)
		case action == "history" || action == "transition" || (action == "convert" && entity == model.EntityRequest):
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		default:
			jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
		}
	}
}

// ─── Individual handlers ─────────────────────────────────────────────────────

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var c matching.Criteria
	if !decode(w, r, &c) {
		return
	}
	res, err := h.search.Search(r.Context(), c)
	if err != nil {
		writeErr(w, "search", err)
		return
	}
	jsonOK(w, res)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, entity model.EntityType, id string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body TransitionBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.lifecycle.Transition(r.Context(), entity, id, body.Status, actor, body.Comment)
	if err != nil {
		writeErr(w, "transition", err)
		return
	}
	jsonOK(w, res)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, entity model.EntityType, id string) {
	records, err := h.lifecycle.History(r.Context(), entity, id)
	if err != nil {
		writeErr(w, "history", err)
		return
	}
	jsonOK(w, records)
}

func (h *Handler) convertRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body ConvertBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.convert.Convert(r.Context(), requestID, body.ProviderID, body.ServiceID, actor)
	if err != nil {
		writeErr(w, "convert", err)
		return
	}
	jsonOK(w, res)
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireActor(w, r); !ok {
		return
	}
	template := strings.TrimPrefix(r.URL.Path, "/notify/")
	if template == "" || strings.Contains(template, "/") {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	var body NotifyBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.notify.Notify(r.Context(), template, body.Recipient, body.Data)
	if err != nil {
		writeErr(w, "notify", err)
		return
	}
	jsonOK(w, res)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindInvalidTransition, apperr.KindConcurrencyConflict:
		return http.StatusConflict
	case apperr.KindProviderUnavailable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	code := StatusFor(kind)
	if code == http.StatusInternalServerError {
		log.Printf("[fulfillment] %s error: %v", op, err)
		jsonError(w, "internal server error", code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.Message(err), "kind": string(kind)})
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
