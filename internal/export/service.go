// Package export renders invoice snapshots and analytics rollups for the
// reporting collaborators: JSON and CSV per invoice, an XLSX workbook for
// the whole ledger, and a PDF analytics summary.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/analytics"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/entity"
)

// Service is a tiny façade over the ledger that produces export bytes.
type Service struct {
	ledger *archive.Ledger
	logger *slog.Logger
}

func NewService(ledger *archive.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger}
}

// InvoiceJSON serializes one archived invoice as an indented JSON object.
// Round-trips field-for-field with the snapshot taken at archive time.
func (s *Service) InvoiceJSON(id uuid.UUID) ([]byte, error) {
	rec, ok := s.ledger.Find(id)
	if !ok {
		return nil, common.NewAppError("EXPORT", id.String(), common.ErrNotFound)
	}
	return json.MarshalIndent(rec, "", "  ")
}

// InvoiceCSV renders one archived invoice as two-column "field","value"
// rows, one row per invoice attribute, every cell quoted.
func (s *Service) InvoiceCSV(id uuid.UUID) ([]byte, error) {
	rec, ok := s.ledger.Find(id)
	if !ok {
		return nil, common.NewAppError("EXPORT", id.String(), common.ErrNotFound)
	}

	var buf bytes.Buffer
	row := func(k, v string) { fmt.Fprintf(&buf, "%q,%q\n", k, v) }

	row("id", rec.ID.String())
	row("file_name", rec.FileName)
	row("status", string(rec.Status))
	row("overall_confidence", strconv.FormatFloat(rec.OverallConfidence, 'f', 1, 64))
	row("created_at", rec.CreatedAt.Format(time.RFC3339))
	if rec.ResolvedAt != nil {
		row("resolved_at", rec.ResolvedAt.Format(time.RFC3339))
	}
	if rec.ResolvedBy != nil {
		row("resolved_by", *rec.ResolvedBy)
	}
	if rec.RejectReason != nil {
		row("reject_reason", *rec.RejectReason)
	}
	row("archived_at", rec.ArchivedAt.Format(time.RFC3339))
	for _, f := range rec.Fields {
		row(f.Name, f.Value)
	}
	return buf.Bytes(), nil
}

// LedgerJSON serializes the archive (optionally one status only) as an array
// of invoice objects.
func (s *Service) LedgerJSON(status constants.InvoiceStatus) ([]byte, error) {
	records := make([]*entity.ArchiveRecord, 0)
	for rec := range s.ledger.Query(nil) {
		if status != "" && rec.Status != status {
			continue
		}
		records = append(records, rec)
	}
	return json.MarshalIndent(records, "", "  ")
}

// LedgerXLSX returns an XLSX workbook (as bytes) listing every archived
// invoice, one row each, with the canonical extracted fields as columns.
func (s *Service) LedgerXLSX() ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := append([]string{
		"File Name",
		"Status",
		"Overall Confidence",
		"Resolved By",
		"Archived At",
	}, constants.StandardFields()...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	count := 0
	for rec := range s.ledger.Query(nil) {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, rec.FileName)
		write(2, string(rec.Status))
		write(3, rec.OverallConfidence)
		if rec.ResolvedBy != nil {
			write(4, *rec.ResolvedBy)
		} else {
			write(4, "auto")
		}
		write(5, rec.ArchivedAt.Format("2006-01-02 15:04"))

		for i, name := range constants.StandardFields() {
			if field, ok := rec.Field(name); ok {
				write(6+i, field.Value)
			}
		}
		row++
		count++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28) // file name
	_ = f.SetColWidth(sheet, "B", "B", 14) // status
	_ = f.SetColWidth(sheet, "C", "C", 18) // confidence
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "F", "K", 20) // extracted fields

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", count,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// AnalyticsPDF renders one analytics snapshot as a single-page PDF report.
func (s *Service) AnalyticsPDF(snap analytics.Snapshot) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 12, "Invoice Processing Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Generated "+snap.GeneratedAt.Format("2006-01-02 15:04 MST"))
	pdf.Ln(12)

	kpi := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(70, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
	}
	kpi("Total Processed", strconv.Itoa(snap.TotalProcessed))
	kpi("Approved", strconv.Itoa(snap.ApprovedCount))
	kpi("Rejected", strconv.Itoa(snap.RejectedCount))
	kpi("Manual Interventions", strconv.Itoa(snap.ManualInterventions))
	kpi("Avg Confidence", fmt.Sprintf("%.1f%%", snap.MeanConfidence))
	kpi("Avg Processing Time", snap.MeanProcessingDuration.Round(time.Millisecond).String())
	kpi("Estimated Savings", fmt.Sprintf("$%.2f", snap.EstimatedSavings))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Accuracy by Field")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(80, 7, "Field", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Mean Confidence", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Samples", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, fa := range snap.FieldAccuracy {
		pdf.CellFormat(80, 7, fa.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%.1f%%", fa.MeanConfidence), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, strconv.Itoa(fa.Samples), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf write: %w", err)
	}
	s.logger.Info("export.pdf.ok", "bytes", buf.Len())
	return buf.Bytes(), nil
}
