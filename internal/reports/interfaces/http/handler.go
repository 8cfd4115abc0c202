package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plantops-cloud/internal/observability/metrics"
	reportsapp "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
)

// Handler serves the report endpoints: consumption summaries, the fuel
// log and equipment status. It is mounted at /api/v1/consumption/,
// /api/v1/fuel and /api/v1/equipment/.
type Handler struct {
	service *reportsapp.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *reportsapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reports handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP routes report requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/v1/consumption/"):
		h.serveConsumption(w, r)
	case r.URL.Path == "/api/v1/fuel":
		h.serveFuel(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/equipment/"):
		h.serveEquipment(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) serveConsumption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/consumption/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID, userName := parts[0], parts[1]

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "from/to required", http.StatusBadRequest)
		return
	}
	summaries, err := h.service.Consumption(r.Context(), deviceID, userName, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(parts) == 3 && parts[2] == "export" {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "csv"
		}
		start := time.Now()
		body, contentType, err := BuildConsumptionExport(format, fmt.Sprintf("Daily Consumption %s", deviceID), summaries)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		metrics.ObserveExport(format, start)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("consumption-%s-%s-%s%s", deviceID, from, to, extensionFor(format))))
		_, _ = w.Write(body)
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": summaries})
}

func (h *Handler) serveFuel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var entry reports.FuelEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		stored, err := h.service.AddFuelEntry(r.Context(), entry)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(stored)
	case http.MethodGet:
		q := r.URL.Query()
		entries, err := h.service.ListFuelEntries(r.Context(), reports.FuelFilter{
			DeviceID:  q.Get("device_id"),
			EntryType: q.Get("entry_type"),
			FuelType:  q.Get("fuel_type"),
			From:      q.Get("from"),
			To:        q.Get("to"),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": entries})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveEquipment(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/equipment/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var status reports.EquipmentStatus
		if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		status.DeviceID = deviceID
		stored, err := h.service.UpsertEquipment(r.Context(), status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stored)
	case http.MethodGet:
		statuses, err := h.service.ListEquipment(r.Context(), deviceID, r.URL.Query().Get("date"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": statuses})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
