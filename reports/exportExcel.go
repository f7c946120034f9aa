package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
	"bitbucket.org/mmdatafocus/lims_backend/workflow"
)

const dateLayout = "2006-01-02 15:04"

var ordersDataHeader = []string{
	"Order ID", "Order Date", "Branch", "Status",
	"Patient ID", "Patient Name", "Age", "Mobile",
	"Tests", "Collected", "Completed",
	"Amount", "Paid", "Discount",
}

var ordersResultsHeader = []string{
	"Order ID", "Patient Name", "Sample ID", "Test",
	"Result", "Unit", "Reference Range", "Status",
	"Completed At", "Authenticated By",
}

func writeHeader(f *excelize.File, sheet string, header []string) error {
	for i, title := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// OrdersDataExport renders one row per order: demographics, lifecycle
// status, test counts and the financial totals.
func OrdersDataExport(results []workflow.SearchResult) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Orders"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, sheet, ordersDataHeader); err != nil {
		return nil, err
	}

	for i, r := range results {
		row := []any{
			r.Order.OrderID,
			r.Order.OrderDate.Format(dateLayout),
			r.Order.BranchCode,
			string(r.Order.Status),
			r.Patient.PatientID,
			r.Patient.FullName(),
			r.Patient.AgeText(),
			r.Patient.Mobile,
			r.Stats.TotalTests,
			r.Stats.CollectedTests,
			r.Stats.CompletedTests,
			r.Order.Amount.InexactFloat64(),
			r.Order.Paid.InexactFloat64(),
			r.Order.Discount.InexactFloat64(),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// OrdersResultsExport renders one row per test with its result and the
// reference range resolved for the patient's demographics.
func OrdersResultsExport(results []workflow.SearchResult, catalog models.TestCatalog) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, sheet, ordersResultsHeader); err != nil {
		return nil, err
	}

	row := 2
	for _, r := range results {
		for _, tst := range r.Order.Tests {
			var refRange string
			if def, ok := catalog[tst.TestID]; ok {
				refRange = def.ResolveReferenceRange(&r.Patient)
			}
			completedAt := ""
			if tst.CompletedTimestamp != nil {
				completedAt = tst.CompletedTimestamp.Format(dateLayout)
			}
			values := []any{
				r.Order.OrderID,
				r.Patient.FullName(),
				tst.SampleID,
				tst.TestName,
				tst.Result,
				tst.Unit,
				refRange,
				string(tst.Status),
				completedAt,
				tst.AuthenticatedBy,
			}
			if err := writeRow(f, sheet, row, values); err != nil {
				return nil, err
			}
			row++
		}
	}
	return f, nil
}

// ExportBytes serializes a workbook for download or archiving.
func ExportBytes(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArchiveExport uploads the export to the configured bucket when one is set.
// Returns the object URL or "" when archiving is disabled.
func ArchiveExport(ctx context.Context, prefix string, data []byte) (string, error) {
	if !utils.GCSExportsEnabled() {
		return "", nil
	}
	objectName := fmt.Sprintf("exports/%s_%s.xlsx", prefix, time.Now().UTC().Format("20060102_150405"))
	return utils.UploadExportToGCS(ctx, objectName, data)
}
