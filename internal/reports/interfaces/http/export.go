package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reports "plantops-cloud/internal/reports/domain"
)

// BuildConsumptionExport renders daily summaries in the requested
// format and returns the body plus its content type.
func BuildConsumptionExport(format, title string, summaries []reports.DailySummary) ([]byte, string, error) {
	switch format {
	case "csv":
		body, err := buildConsumptionCSV(summaries)
		return body, "text/csv", err
	case "pdf":
		body, err := buildConsumptionPDF(title, summaries)
		return body, "application/pdf", err
	case "xlsx":
		body, err := buildConsumptionXLSX(summaries)
		return body, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

func buildConsumptionCSV(summaries []reports.DailySummary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"date", "energy_kwh", "fuel_litres", "samples"}); err != nil {
		return nil, err
	}
	for _, s := range summaries {
		record := []string{
			s.Date,
			strconv.FormatFloat(s.EnergyKWh, 'f', 3, 64),
			strconv.FormatFloat(s.FuelLitres, 'f', 3, 64),
			strconv.Itoa(s.Samples),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildConsumptionPDF(title string, summaries []reports.DailySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Energy (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Fuel (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Samples", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, s := range summaries {
		pdf.CellFormat(40, 6, s.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", s.EnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", s.FuelLitres), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, strconv.Itoa(s.Samples), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildConsumptionXLSX(summaries []reports.DailySummary) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "consumption"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Date")
	_ = f.SetCellValue(sheet, "B1", "Energy (kWh)")
	_ = f.SetCellValue(sheet, "C1", "Fuel (L)")
	_ = f.SetCellValue(sheet, "D1", "Samples")
	for i, s := range summaries {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), s.Date)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), s.EnergyKWh)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), s.FuelLitres)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), s.Samples)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extensionFor(format string) string {
	switch format {
	case "pdf":
		return ".pdf"
	case "xlsx":
		return ".xlsx"
	default:
		return ".csv"
	}
}
