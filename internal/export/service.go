package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// Row is one line of the run report.
type Row struct {
	Path        string
	Status      string
	Kind        string
	Cached      bool
	Attempts    int
	Fingerprint string
	OutputPath  string
	Duration    time.Duration
	Error       string
}

// RowFromResult flattens a pipeline result; outputPath is where the CLI wrote it, if anywhere.
func RowFromResult(r pipeline.Result, outputPath string) Row {
	row := Row{
		Path:        r.Path,
		Status:      r.Status(),
		Cached:      r.Cached,
		Attempts:    r.Attempts,
		Fingerprint: r.Fingerprint.String(),
		OutputPath:  outputPath,
		Duration:    r.Duration,
	}
	if r.Err != nil {
		row.Kind = string(r.Kind())
		row.Error = r.Err.Error()
	} else if r.Warning != "" {
		row.Error = r.Warning
	}
	return row
}

// Service produces XLSX run reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// RunReportXLSX returns a workbook (as bytes) with one row per parsed input and a
// summary sheet with counts by outcome.
func (s *Service) RunReportXLSX(ctx context.Context, backendID string, rows []Row, summary pipeline.Summary) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_failed", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(resultsSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Path",
		"Status",
		"Error Kind",
		"Cached",
		"Attempts",
		"Fingerprint",
		"Output Path",
		"Duration (ms)",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, cell, h)
	}

	row := 2
	for _, r := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(resultsSheet, cell, v)
		}
		write(1, r.Path)
		write(2, r.Status)
		write(3, r.Kind)
		write(4, yesNo(r.Cached))
		write(5, r.Attempts)
		write(6, r.Fingerprint)
		write(7, r.OutputPath)
		write(8, r.Duration.Milliseconds())
		write(9, truncate(r.Error, 300))
		row++
	}

	_ = f.SetColWidth(resultsSheet, "A", "A", 60) // path
	_ = f.SetColWidth(resultsSheet, "B", "C", 22)
	_ = f.SetColWidth(resultsSheet, "D", "E", 10)
	_ = f.SetColWidth(resultsSheet, "F", "F", 66) // fingerprint
	_ = f.SetColWidth(resultsSheet, "G", "G", 60)
	_ = f.SetColWidth(resultsSheet, "H", "H", 14)
	_ = f.SetColWidth(resultsSheet, "I", "I", 80)

	counts := [][]any{
		{"Backend", backendID},
		{"Total", summary.Total},
		{"Parsed", summary.Parsed},
		{"Cached", summary.Cached},
		{"Skipped", summary.Skipped},
		{"Failed", summary.Failed},
		{"Cancelled", summary.Cancelled},
	}
	for i, kv := range counts {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &kv); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "B", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"backend", backendID,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
