package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/xuri/excelize/v2"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// Export formats accepted by ?format=.
const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatXLSX = "xlsx"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// exportHeaders defines the column names written as the first row of CSV and
// XLSX exports.
var exportHeaders = []string{
	"id", "plate", "status", "entry_time", "exit_time", "billed_hours", "hourly_rate", "fare",
}

// ExportStays handles GET /stays/export.
// It returns the full history, oldest entry first.
// Use ?format=csv or ?format=xlsx; default is JSON.
func (s *Server) ExportStays(w http.ResponseWriter, r *http.Request) {
	var format *string
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &format); err != nil {
		writeParamError(w, "format", err)
		return
	}

	f := formatJSON
	if format != nil {
		f = *format
	}

	stays := s.stays.All(r.Context())
	loc := s.stays.Location()

	switch f {
	case formatJSON:
		writeJSON(w, http.StatusOK, staysToResponse(stays))
	case formatCSV:
		s.writeAttachment(w, r, contentTypeCSV, "stays.csv", func() ([]byte, error) {
			return buildCSV(stays, loc)
		})
	case formatXLSX:
		s.writeAttachment(w, r, contentTypeXLSX, "stays.xlsx", func() ([]byte, error) {
			return buildXLSX(stays, loc)
		})
	default:
		writeError(w, http.StatusUnprocessableEntity, codeValidation,
			fmt.Sprintf("format must be one of %s, %s, %s", formatJSON, formatCSV, formatXLSX))
	}
}

// writeAttachment renders a file body and sends it as a download.
func (s *Server) writeAttachment(w http.ResponseWriter, r *http.Request, contentType, filename string, render func() ([]byte, error)) {
	body, err := render()
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("handler.Server.writeAttachment: %s: %w", filename, err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(body)
}

// buildCSV encodes stays as CSV, one stay per line.
func buildCSV(stays []domain.Stay, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	//nolint:errcheck // bytes.Buffer.Write never returns an error.
	w.Write(exportHeaders)
	for _, st := range stays {
		//nolint:errcheck
		w.Write(stayToRecord(st, loc))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildXLSX writes stays to a single-sheet workbook.
func buildXLSX(stays []domain.Stay, loc *time.Location) ([]byte, error) {
	const sheet = "Stays"

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, st := range stays {
		for col, v := range stayToRecord(st, loc) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stayToRecord flattens a stay into exportHeaders order.
// Times are rendered in the facility time zone; open stays leave exit_time,
// billed_hours, hourly_rate and fare empty.
func stayToRecord(st domain.Stay, loc *time.Location) []string {
	rec := []string{
		st.ID.String(),
		st.Plate.String(),
		string(st.Status()),
		st.EntryTime.In(loc).Format(time.RFC3339),
		"",
		"",
		"",
		"",
	}
	if st.ExitTime != nil {
		rec[4] = st.ExitTime.In(loc).Format(time.RFC3339)
		rec[5] = strconv.FormatInt(billedHours(st), 10)
	}
	if st.HourlyRate != nil {
		rec[6] = st.HourlyRate.String()
	}
	if st.Fare != nil {
		rec[7] = st.Fare.String()
	}
	return rec
}
