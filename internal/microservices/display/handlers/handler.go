package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kitchen-display/internal/microservices/display/service"
)

type DisplayHandler struct {
	session *service.ScreenSession
}

func NewDisplayHandler(session *service.ScreenSession) *DisplayHandler {
	return &DisplayHandler{session: session}
}

func (h *DisplayHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/snapshot", h.Snapshot)
	r.Get("/notifications", h.Notifications)
	r.Post("/notifications/test", h.TestNotification)
	r.Post("/orders/{id}/accept", h.orderAction(h.session.AcceptOrder))
	r.Post("/orders/{id}/complete", h.orderAction(h.session.CompleteOrder))
	r.Post("/orders/{id}/cancel", h.orderAction(h.session.CancelOrder))
	r.Post("/sound", h.ToggleSound)
	return r
}

func (h *DisplayHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *DisplayHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.History())
}

func (h *DisplayHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	h.session.TestNotification()
	w.WriteHeader(http.StatusAccepted)
}

func (h *DisplayHandler) orderAction(action func(ctx context.Context, orderID int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || id <= 0 {
			http.Error(w, "Invalid order id", http.StatusBadRequest)
			return
		}
		if err := action(r.Context(), id); err != nil {
			http.Error(w, "Failed to update order: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"order_id": id})
	}
}

type soundRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *DisplayHandler) ToggleSound(w http.ResponseWriter, r *http.Request) {
	var req soundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.session.ToggleSound(r.Context(), req.Enabled))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
