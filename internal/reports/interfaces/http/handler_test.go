package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	reportsapp "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
	reportsmem "plantops-cloud/internal/reports/infrastructure/memory"
)

func newTestHandler(t *testing.T) (*Handler, *reportsapp.Service) {
	t.Helper()
	svc, err := reportsapp.NewService(reportsmem.NewReportRepository(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	handler, err := NewHandler(svc)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler, svc
}

func seedSummary(t *testing.T, svc *reportsapp.Service) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := svc.SaveSnapshot(ctx, "plant-01", "op", base.Add(time.Hour), 1000, 900); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := svc.SaveSnapshot(ctx, "plant-01", "op", base.Add(23*time.Hour), 1150, 810); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := svc.RollupDay(ctx, "plant-01", "op", "2026-03-10"); err != nil {
		t.Fatalf("RollupDay: %v", err)
	}
}

func TestHandlerConsumption(t *testing.T) {
	handler, svc := newTestHandler(t)
	seedSummary(t, svc)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET",
		"/api/v1/consumption/plant-01/op?from=2026-03-10&to=2026-03-10", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []reports.DailySummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].EnergyKWh != 150 || resp.Data[0].FuelLitres != 90 {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestHandlerConsumptionExport(t *testing.T) {
	handler, svc := newTestHandler(t)
	seedSummary(t, svc)

	url := "/api/v1/consumption/plant-01/op/export?from=2026-03-10&to=2026-03-10&format="

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", url+"csv", nil))
	if rec.Code != 200 || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv export: status=%d type=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("150.000")) || !bytes.Contains(rec.Body.Bytes(), []byte("90.000")) {
		t.Fatalf("csv missing values: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", url+"pdf", nil))
	if rec.Code != 200 || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf export: status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", url+"xlsx", nil))
	if rec.Code != 200 || rec.Body.Len() == 0 {
		t.Fatalf("xlsx export: status=%d", rec.Code)
	}
}

func TestHandlerConsumptionMissingRange(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/consumption/plant-01/op", nil))
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerFuelLog(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"deviceId": "plant-01", "userName": "op", "entryType": "delivery", "fuelType": "diesel", "litres": 500, "date": "2026-03-10"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/fuel", strings.NewReader(body)))
	if rec.Code != 201 {
		t.Fatalf("post status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/fuel",
		strings.NewReader(`{"deviceId": "plant-01", "entryType": "refill", "fuelType": "diesel", "litres": 1, "date": "2026-03-10"}`)))
	if rec.Code != 400 {
		t.Fatalf("invalid entry status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/fuel?device_id=plant-01&entry_type=delivery", nil))
	if rec.Code != 200 {
		t.Fatalf("list status = %d", rec.Code)
	}
	var resp struct {
		Data []reports.FuelEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Litres != 500 {
		t.Fatalf("list body: %s", rec.Body.String())
	}
}

func TestHandlerEquipment(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"equipmentId": "gen-1", "name": "Generator 1", "condition": "ok", "date": "2026-03-10"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/v1/equipment/plant-01", strings.NewReader(body)))
	if rec.Code != 200 {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/equipment/plant-01?date=2026-03-10", nil))
	var resp struct {
		Data []reports.EquipmentStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].EquipmentID != "gen-1" {
		t.Fatalf("list body: %s", rec.Body.String())
	}
}
