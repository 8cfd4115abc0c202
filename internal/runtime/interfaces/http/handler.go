package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plantops-cloud/internal/observability/metrics"
	runtimeapp "plantops-cloud/internal/runtime/application"
)

// Handler serves the runtime query endpoints under /api/v1/runtime/.
type Handler struct {
	accumulator *runtimeapp.Accumulator
}

// NewHandler constructs a Handler.
func NewHandler(accumulator *runtimeapp.Accumulator) (*Handler, error) {
	if accumulator == nil {
		return nil, errors.New("runtime handler: nil accumulator")
	}
	return &Handler{accumulator: accumulator}, nil
}

// ServeHTTP routes runtime requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/api/v1/runtime/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runtime/")
	parts := strings.Split(path, "/")

	if parts[0] == "history" {
		if len(parts) == 1 {
			h.handleHistory(w, r)
			return
		}
		if len(parts) == 2 && parts[1] == "export" {
			h.handleHistoryExport(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 3 && parts[0] != "" && parts[1] != "" {
		deviceID, userName := parts[0], parts[1]
		if parts[2] == "actuators" {
			h.handleActuators(w, r, deviceID, userName)
			return
		}
		h.handleDaily(w, r, deviceID, userName, parts[2])
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

// statusFor maps service errors onto HTTP statuses: caller mistakes are
// 400, anything else is a store failure and reads as 500.
func statusFor(err error) int {
	if errors.Is(err, runtimeapp.ErrInvalidQuery) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request, deviceID, userName, date string) {
	entries, err := h.accumulator.RuntimeForDate(r.Context(), deviceID, userName, date)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": entries})
}

func (h *Handler) handleActuators(w http.ResponseWriter, r *http.Request, deviceID, userName string) {
	actuators, err := h.accumulator.ListActuators(r.Context(), deviceID, userName)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": actuators})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.queryHistory(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": entries})
}

func (h *Handler) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	start := time.Now()

	entries, ok := h.queryHistory(w, r)
	if !ok {
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	title := fmt.Sprintf("Runtime History %s", deviceID)
	filename := fmt.Sprintf("runtime-%s-%s-%s",
		deviceID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))

	body, contentType, err := BuildHistoryExport(format, title, entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	metrics.ObserveExport(format, start)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+extensionFor(format)))
	_, _ = w.Write(body)
}

func (h *Handler) queryHistory(w http.ResponseWriter, r *http.Request) ([]runtimeapp.HistoryEntry, bool) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	userName := q.Get("user_name")
	from := q.Get("from")
	to := q.Get("to")
	if deviceID == "" || userName == "" || from == "" || to == "" {
		http.Error(w, "device_id/user_name/from/to required", http.StatusBadRequest)
		return nil, false
	}
	if to < from {
		http.Error(w, "to must not precede from", http.StatusBadRequest)
		return nil, false
	}
	entries, err := h.accumulator.RuntimeHistory(r.Context(), deviceID, userName, from, to, q.Get("actuator_id"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return nil, false
	}
	return entries, true
}
