// Package export renders client report rows for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"clientregistry/internal/domain/client"
	"clientregistry/pkg/taxid"
)

var csvHeader = []string{"ID", "Kind", "TaxID", "Name", "Email", "Phone", "PostalCode", "Status"}

// WriteCSV writes a header line followed by one line per row.
func WriteCSV(w io.Writer, rows []client.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(csvRecord(row)); err != nil {
			return fmt.Errorf("write csv row %d: %w", row.ID.Int64(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVGzip is WriteCSV through a gzip stream.
func WriteCSVGzip(w io.Writer, rows []client.ReportRow) error {
	gz := gzip.NewWriter(w)
	if err := WriteCSV(gz, rows); err != nil {
		_ = gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

func csvRecord(row client.ReportRow) []string {
	status := "Inactive"
	if row.Active {
		status = "Active"
	}
	return []string{
		strconv.FormatInt(row.ID.Int64(), 10),
		string(row.Kind),
		taxid.Format(row.TaxID),
		row.DisplayName,
		row.Email,
		row.Phone,
		row.PostalCode,
		status,
	}
}
