package application_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	application "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
	reportsmem "plantops-cloud/internal/reports/infrastructure/memory"
)

func newTestService(t *testing.T) *application.Service {
	t.Helper()
	svc, err := application.NewService(reportsmem.NewReportRepository(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRollupDatePreservesSigns(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, s := range []struct {
		hour   int
		energy float64
		fuel   float64
	}{
		{1, 1000, 900},
		{12, 1080, 850},
		{23, 1150, 810},
	} {
		if err := svc.SaveSnapshot(ctx, "plant-01", "op", base.Add(time.Duration(s.hour)*time.Hour), s.energy, s.fuel); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	if err := svc.RollupDate(ctx, "2026-03-10"); err != nil {
		t.Fatalf("RollupDate: %v", err)
	}

	summaries, err := svc.Consumption(ctx, "plant-01", "op", "2026-03-10", "2026-03-10")
	if err != nil {
		t.Fatalf("Consumption: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if summaries[0].EnergyKWh != 150 {
		t.Fatalf("energy = %v, want 150 (accumulating meter)", summaries[0].EnergyKWh)
	}
	if summaries[0].FuelLitres != 90 {
		t.Fatalf("fuel = %v, want 90 (depleting tank)", summaries[0].FuelLitres)
	}
}

func TestRollupDayIsRepeatable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_ = svc.SaveSnapshot(ctx, "plant-01", "op", base.Add(time.Hour), 100, 50)
	_ = svc.SaveSnapshot(ctx, "plant-01", "op", base.Add(2*time.Hour), 110, 45)

	for i := 0; i < 2; i++ {
		if _, err := svc.RollupDay(ctx, "plant-01", "op", "2026-03-10"); err != nil {
			t.Fatalf("RollupDay run %d: %v", i, err)
		}
	}
	summaries, err := svc.Consumption(ctx, "plant-01", "op", "2026-03-10", "2026-03-10")
	if err != nil {
		t.Fatalf("Consumption: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("rerun duplicated the summary: %d rows", len(summaries))
	}
}

func TestRollupDateValidatesDate(t *testing.T) {
	svc := newTestService(t)
	if err := svc.RollupDate(context.Background(), "10-03-2026"); err == nil {
		t.Fatal("invalid date accepted")
	}
}

func TestConsumptionEmptyIsNotError(t *testing.T) {
	svc := newTestService(t)
	summaries, err := svc.Consumption(context.Background(), "plant-01", "op", "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("Consumption: %v", err)
	}
	if summaries == nil || len(summaries) != 0 {
		t.Fatalf("want empty slice, got %v", summaries)
	}
}

func TestFuelEntryLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stored, err := svc.AddFuelEntry(ctx, reports.FuelEntry{
		DeviceID:  "plant-01",
		UserName:  "op",
		EntryType: reports.EntryDelivery,
		FuelType:  "diesel",
		Litres:    500,
		Date:      "2026-03-10",
	})
	if err != nil {
		t.Fatalf("AddFuelEntry: %v", err)
	}
	if stored.ID == 0 || stored.CreatedAt.IsZero() {
		t.Fatalf("stored entry missing id or created_at: %+v", stored)
	}

	if _, err := svc.AddFuelEntry(ctx, reports.FuelEntry{DeviceID: "plant-01", EntryType: "refill", FuelType: "diesel", Litres: 1, Date: "2026-03-10"}); err == nil {
		t.Fatal("invalid entry type accepted")
	}

	entries, err := svc.ListFuelEntries(ctx, reports.FuelFilter{DeviceID: "plant-01", EntryType: reports.EntryDelivery})
	if err != nil {
		t.Fatalf("ListFuelEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestEquipmentUpsertReplacesSameDay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, condition := range []string{"degraded", "ok"} {
		if _, err := svc.UpsertEquipment(ctx, reports.EquipmentStatus{
			DeviceID:    "plant-01",
			EquipmentID: "gen-1",
			Name:        "Generator 1",
			Condition:   condition,
			Date:        "2026-03-10",
		}); err != nil {
			t.Fatalf("UpsertEquipment(%s): %v", condition, err)
		}
	}

	statuses, err := svc.ListEquipment(ctx, "plant-01", "2026-03-10")
	if err != nil {
		t.Fatalf("ListEquipment: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Condition != "ok" {
		t.Fatalf("statuses = %+v, want single ok record", statuses)
	}
}
