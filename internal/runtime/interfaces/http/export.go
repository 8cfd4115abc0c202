package http

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	runtimeapp "plantops-cloud/internal/runtime/application"
)

// BuildHistoryExport renders runtime history rows in the requested
// format and returns the body plus its content type.
func BuildHistoryExport(format, title string, entries []runtimeapp.HistoryEntry) ([]byte, string, error) {
	switch format {
	case "csv":
		body, err := buildHistoryCSV(entries)
		return body, "text/csv", err
	case "pdf":
		body, err := buildHistoryPDF(title, entries)
		return body, "application/pdf", err
	case "xlsx":
		body, err := buildHistoryXLSX(entries)
		return body, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

func buildHistoryCSV(entries []runtimeapp.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"date", "actuator_id", "actuator_name", "runtime"}); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := writer.Write([]string{entry.Date, entry.ActuatorID, entry.ActuatorName, entry.Runtime}); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildHistoryPDF(title string, entries []runtimeapp.HistoryEntry) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Actuator ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Actuator Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Runtime", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, entry := range entries {
		pdf.CellFormat(35, 6, entry.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, entry.ActuatorID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, entry.ActuatorName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, entry.Runtime, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildHistoryXLSX(entries []runtimeapp.HistoryEntry) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "history"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Date")
	_ = f.SetCellValue(sheet, "B1", "Actuator ID")
	_ = f.SetCellValue(sheet, "C1", "Actuator Name")
	_ = f.SetCellValue(sheet, "D1", "Runtime")
	for i, entry := range entries {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), entry.Date)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.ActuatorID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), entry.ActuatorName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), entry.Runtime)
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
