package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	commandsapp "plantops-cloud/internal/commands/application"
	commands "plantops-cloud/internal/commands/domain"
	devicestate "plantops-cloud/internal/devicestate/domain"
)

// Handler serves POST /api/v1/commands/{deviceID}.
type Handler struct {
	service *commandsapp.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *commandsapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP routes command requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/api/v1/commands/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/commands/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req struct {
		Kind      string `json:"kind"`
		Actuators []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status bool   `json:"status"`
		} `json:"actuators"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind := devicestate.Kind(req.Kind)
	if req.Kind == "" {
		kind = devicestate.KindPump
	}

	cmds := make([]commands.ActuatorCommand, 0, len(req.Actuators))
	for _, a := range req.Actuators {
		cmds = append(cmds, commands.ActuatorCommand{ID: a.ID, Name: a.Name, Status: a.Status})
	}

	result, err := h.service.Issue(r.Context(), kind, deviceID, cmds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}
