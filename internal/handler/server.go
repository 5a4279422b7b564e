// Package handler implements the HTTP handlers for the parking API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (vehicles.go, stays.go, etc.) but all share the same Server struct so
// they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// StayServicer defines the business operations the parking handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the ledger or the service layer.
type StayServicer interface {
	Enter(ctx context.Context, plate string, entryTime *time.Time) (domain.Stay, error)
	Exit(ctx context.Context, plate string) (domain.Stay, error)
	Parked(ctx context.Context) []domain.ParkedStay
	History(ctx context.Context, day *time.Time, p domain.PaginationParams) ([]domain.Stay, int, error)
	All(ctx context.Context) []domain.Stay
	Get(ctx context.Context, id uuid.UUID) (domain.Stay, error)
	Rate(ctx context.Context) (domain.Money, string)
	Location() *time.Location
}

// EventSource hands out live transition feeds; *events.Hub satisfies it.
type EventSource interface {
	Subscribe(name string, buf int) (<-chan domain.StayEvent, func())
}

// Server serves every API endpoint.
// Wire it in main.go via Server.Routes.
type Server struct {
	stays        StayServicer
	feed         EventSource
	streamBuffer int
	origins      []string
	log          *slog.Logger
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithEventSource enables GET /events.
func WithEventSource(feed EventSource) ServerOption {
	return func(s *Server) { s.feed = feed }
}

// WithStreamBuffer sets the per-client event buffer of GET /events.
func WithStreamBuffer(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.streamBuffer = n
		}
	}
}

// WithAllowedOrigins restricts which browser origins may open the event
// stream. An empty list accepts any origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer constructs the Server with all its dependencies.
func NewServer(stays StayServicer, opts ...ServerOption) *Server {
	s := &Server{stays: stays, streamBuffer: defaultStreamBuffer, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil)
}

// Routes mounts every endpoint on a fresh chi router.
// Static segments (/vehicles/parked, /stays/export) are registered alongside
// their parameterised siblings; chi prefers the static match.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/rate", s.GetRate)

	r.Route("/vehicles", func(r chi.Router) {
		r.Post("/", s.EnterVehicle)
		r.Get("/parked", s.ListParked)
		r.Patch("/{plate}/exit", s.ExitVehicle)
	})

	r.Route("/stays", func(r chi.Router) {
		r.Get("/", s.ListStays)
		r.Get("/export", s.ExportStays)
		r.Get("/{id}", s.GetStay)
		r.Get("/{id}/receipt", s.GetReceipt)
	})

	if s.feed != nil {
		r.Get("/events", s.StreamEvents)
	}
	return r
}

// Handler returns Routes as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.Routes()
}
