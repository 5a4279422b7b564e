package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/fare"
)

const contentTypePDF = "application/pdf"

// GetReceipt handles GET /stays/{id}/receipt.
// Only closed stays have a receipt; an open stay is reported as 409 stay_open.
func (s *Server) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := bindStayID(w, r)
	if !ok {
		return
	}

	stay, err := s.stays.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if stay.IsOpen() {
		writeError(w, http.StatusConflict, codeStayOpen, "stay is still open")
		return
	}

	current, currency := s.stays.Rate(r.Context())
	loc := s.stays.Location()
	s.writeAttachment(w, r, contentTypePDF, "receipt-"+stay.ID.String()+".pdf", func() ([]byte, error) {
		return buildReceiptPDF(stay, current, currency, loc)
	})
}

// buildReceiptPDF renders a one-page receipt for a closed stay.
// current is the rate in force now; it is only printed when the stay does not
// carry the rate it was billed at.
func buildReceiptPDF(st domain.Stay, current domain.Money, currency string, loc *time.Location) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, "Parking Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)

	for _, row := range receiptRows(st, current, currency, loc) {
		pdf.CellFormat(35, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(35, 8, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("%s %s", currency, st.Fare.String()), "T", 0, "L", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// receiptRows lists the label/value pairs printed above the total.
func receiptRows(st domain.Stay, current domain.Money, currency string, loc *time.Location) [][2]string {
	rate := [2]string{"Current rate", fmt.Sprintf("%s %s/h", currency, current.String())}
	if st.HourlyRate != nil {
		rate = [2]string{"Rate", fmt.Sprintf("%s %s/h", currency, st.HourlyRate.String())}
	}
	return [][2]string{
		{"Receipt", st.ID.String()},
		{"Plate", st.Plate.String()},
		{"Entry", st.EntryTime.In(loc).Format("2006-01-02 15:04:05 MST")},
		{"Exit", st.ExitTime.In(loc).Format("2006-01-02 15:04:05 MST")},
		{"Duration", domain.FormatElapsed(st.ExitTime.Sub(st.EntryTime))},
		{"Billed hours", fmt.Sprintf("%d", billedHours(st))},
		rate,
	}
}

// billedHours reports how many started hours a closed stay was charged for.
func billedHours(st domain.Stay) int64 {
	if st.ExitTime == nil {
		return 0
	}
	return fare.BilledHours(st.ExitTime.Sub(st.EntryTime))
}
