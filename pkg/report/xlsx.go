// Package report пишет XLSX отчет о запуске загрузки.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/dwsink/pkg/engine"
)

// headers отчета; порядок колонок фиксирован
var headers = []string{
	"Stream",
	"Received",
	"Inserted",
	"Failed",
	"Batches",
	"Last Sequence",
	"Last Checksum",
	"Duration",
	"Status",
	"Failure Reason",
}

// WriteXLSX сохраняет постатейный отчет по потокам запуска.
//
// Пример:
//
//	err := report.WriteXLSX("report.xlsx", "orders-load", startedAt, stats)
func WriteXLSX(filePath string, runName string, startedAt time.Time, stats []engine.StreamStats) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Load Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// Шапка: имя запуска и время старта
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("Run: %s", runName))
	f.SetCellValue(sheetName, "A2", fmt.Sprintf("Started: %s", startedAt.Format(time.RFC3339)))

	const headerRow = 4
	for col, h := range headers {
		cell := columnName(col+1) + strconv.Itoa(headerRow)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, s := range stats {
		row := headerRow + 1 + i
		status := "success"
		if s.Failed {
			status = "failed"
		}
		values := []any{
			s.Stream,
			s.RecordsReceived,
			s.RecordsInserted,
			s.RecordsFailed,
			s.BatchCount,
			s.LastSequence,
			s.LastChecksum,
			s.Duration.Round(time.Millisecond).String(),
			status,
			s.FailureReason,
		}
		for col, v := range values {
			cell := columnName(col+1) + strconv.Itoa(row)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	// Автоширина по заголовкам
	for col := range headers {
		name := columnName(col + 1)
		f.SetColWidth(sheetName, name, name, 16)
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// columnName конвертирует номер колонки в имя Excel (1 -> A, 27 -> AA)
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}
