package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// ListStaysParams holds the query parameters of GET /stays.
type ListStaysParams struct {
	Page  *int
	Limit *int
	// Day keeps only stays that entered on this date in the facility time zone.
	Day *openapi_types.Date
}

// ListStays handles GET /stays.
// Supports ?page= and ?limit= (defaults: page=1, limit=20, max=100) and
// ?day=YYYY-MM-DD.
func (s *Server) ListStays(w http.ResponseWriter, r *http.Request) {
	var params ListStaysParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &params.Page); err != nil {
		writeParamError(w, "page", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &params.Limit); err != nil {
		writeParamError(w, "limit", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "day", q, &params.Day); err != nil {
		writeParamError(w, "day", err)
		return
	}

	p := domain.NewPaginationParams(params.Page, params.Limit)
	var day *time.Time
	if params.Day != nil {
		day = &params.Day.Time
	}

	stays, total, err := s.stays.History(r.Context(), day, p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StayList{
		Data: staysToResponse(stays),
		Pagination: Pagination{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
		},
	})
}

// GetStay handles GET /stays/{id}.
func (s *Server) GetStay(w http.ResponseWriter, r *http.Request) {
	id, ok := bindStayID(w, r)
	if !ok {
		return
	}

	stay, err := s.stays.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stayToResponse(stay))
}

// bindStayID parses the {id} path segment. On failure it writes a 400 and
// returns false.
func bindStayID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeParamError(w, "id", err)
		return uuid.Nil, false
	}
	return id, true
}

func writeParamError(w http.ResponseWriter, name string, err error) {
	writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid format for parameter %s: %s", name, err))
}
