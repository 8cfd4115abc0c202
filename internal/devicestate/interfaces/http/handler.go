package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	statesapp "plantops-cloud/internal/devicestate/application"
	devicestate "plantops-cloud/internal/devicestate/domain"
)

// Handler serves pump and valve state endpoints. The same handler is
// mounted at /api/v1/pump-states/ and /api/v1/valve-states/ with the
// matching kind.
type Handler struct {
	service *statesapp.Service
	kind    devicestate.Kind
	prefix  string
}

// NewHandler constructs a Handler for one actuator kind.
func NewHandler(service *statesapp.Service, kind devicestate.Kind) (*Handler, error) {
	if service == nil {
		return nil, errors.New("devicestate handler: nil service")
	}
	if !kind.Valid() {
		return nil, devicestate.ErrInvalidKind
	}
	return &Handler{
		service: service,
		kind:    kind,
		prefix:  "/api/v1/" + string(kind) + "-states/",
	}, nil
}

// ServeHTTP routes state requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, h.prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, h.prefix)
	parts := strings.Split(path, "/")
	if len(parts) < 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleList(w, r, deviceID)
		return
	}
	if len(parts) == 2 && parts[1] != "" {
		actuatorID := parts[1]
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, deviceID, actuatorID)
		case http.MethodPatch:
			h.handlePatch(w, r, deviceID, actuatorID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

// statusFor maps service errors onto HTTP statuses: caller mistakes are
// 400, anything else is a store failure and reads as 500.
func statusFor(err error) int {
	if errors.Is(err, statesapp.ErrInvalidInput) || errors.Is(err, devicestate.ErrInvalidKind) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, deviceID string) {
	states, err := h.service.ListByDevice(r.Context(), h.kind, deviceID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": states})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, deviceID, actuatorID string) {
	state, err := h.service.Get(r.Context(), h.kind, deviceID, actuatorID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request, deviceID, actuatorID string) {
	var req struct {
		Status  *bool `json:"status"`
		Pending *bool `json:"pending"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Status == nil && req.Pending == nil {
		http.Error(w, "status or pending required", http.StatusBadRequest)
		return
	}

	// Omitted fields keep their current value.
	current, err := h.service.Get(r.Context(), h.kind, deviceID, actuatorID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	status, pending := current.Status, current.Pending
	if req.Status != nil {
		status = *req.Status
	}
	if req.Pending != nil {
		pending = *req.Pending
	}

	state, err := h.service.Patch(r.Context(), h.kind, deviceID, actuatorID, status, pending)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}
