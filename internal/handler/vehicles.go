package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// EnterRequest is the body of POST /vehicles.
// EntryTime is optional and defaults to the server clock.
type EnterRequest struct {
	Plate     string     `json:"plate"`
	EntryTime *time.Time `json:"entry_time,omitempty"`
}

// EnterVehicle handles POST /vehicles.
func (s *Server) EnterVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "request body is required")
		return
	}

	var req EnterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	stay, err := s.stays.Enter(r.Context(), req.Plate, req.EntryTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/stays/"+stay.ID.String())
	writeJSON(w, http.StatusCreated, stayToResponse(stay))
}

// ExitVehicle handles PATCH /vehicles/{plate}/exit.
// The exit time is always the server clock; the response carries the final fare.
func (s *Server) ExitVehicle(w http.ResponseWriter, r *http.Request) {
	stay, err := s.stays.Exit(r.Context(), chi.URLParam(r, "plate"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StayEnvelope{Stay: stayToResponse(stay)})
}

// ListParked handles GET /vehicles/parked.
// Each entry carries its elapsed time and a running fare estimate.
func (s *Server) ListParked(w http.ResponseWriter, r *http.Request) {
	parked := s.stays.Parked(r.Context())

	data := make([]ParkedStay, len(parked))
	for i, p := range parked {
		data[i] = parkedToResponse(p)
	}
	writeJSON(w, http.StatusOK, ParkedList{Data: data, Count: len(data)})
}

// GetRate handles GET /rate.
func (s *Server) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, currency := s.stays.Rate(r.Context())
	writeJSON(w, http.StatusOK, RateResponse{HourlyRate: rate.String(), Currency: currency})
}
