package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kitchen-display/internal/domain"
	"kitchen-display/internal/microservices/dispatcher/service"
)

type DispatcherHandler struct {
	service service.DispatcherServiceInterface
	pingDB  func(ctx context.Context) error
	pingMQ  func() error
}

func NewDispatcherHandler(s service.DispatcherServiceInterface, pingDB func(ctx context.Context) error, pingMQ func() error) *DispatcherHandler {
	return &DispatcherHandler{service: s, pingDB: pingDB, pingMQ: pingMQ}
}

func (h *DispatcherHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Post("/orders", h.SubmitOrder)
	r.Patch("/orders/{id}/status", h.SetOrderStatus)
	r.Patch("/lines/{id}/status", h.SetLineStatus)
	return r
}

// Health reports the state of both backing connections. A dead broker is
// degraded, not down: orders still persist and screens still poll.
func (h *DispatcherHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"database": "ok", "rabbitmq": "ok"}
	code := http.StatusOK
	if err := h.pingDB(r.Context()); err != nil {
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if err := h.pingMQ(); err != nil {
		status["rabbitmq"] = "unavailable"
	}
	writeJSON(w, code, status)
}

func (h *DispatcherHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.SubmitOrder(r.Context(), req)
	if err != nil {
		http.Error(w, "Failed to create order: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *DispatcherHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.service.SetOrderStatus(r.Context(), id, domain.OrderStatus(req.Status)); err != nil {
		http.Error(w, "Failed to update status: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *DispatcherHandler) SetLineStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "Invalid line id", http.StatusBadRequest)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.service.SetLineStatus(r.Context(), id, domain.OrderStatus(req.Status)); err != nil {
		http.Error(w, "Failed to update line status: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
