package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/metrics"
	"github.com/pkordes/parking-ledger/internal/repo"
)

// defaultDrainTimeout bounds how long Run keeps writing after its context is
// cancelled. It is longer than the HTTP shutdown grace period so transitions
// from requests still in flight at shutdown are archived.
const defaultDrainTimeout = 20 * time.Second

// Archiver copies stay transitions into the Postgres archive and reloads them
// at startup. Writes are applied one at a time in the order received, each
// retried with backoff; a write that still fails is logged and counted, and
// the ledger stays authoritative either way.
type Archiver struct {
	stays        repo.StayRepo
	metrics      *metrics.Metrics
	log          *slog.Logger
	backoff      func() retry.Backoff
	drainTimeout time.Duration
}

// ArchiverOption customizes an Archiver.
type ArchiverOption func(*Archiver)

// WithRetryBackoff replaces the write retry policy. newBackoff is called once
// per write since go-retry backoffs are stateful.
func WithRetryBackoff(newBackoff func() retry.Backoff) ArchiverOption {
	return func(a *Archiver) { a.backoff = newBackoff }
}

// WithDrainTimeout bounds how long Run keeps writing after cancellation.
func WithDrainTimeout(d time.Duration) ArchiverOption {
	return func(a *Archiver) { a.drainTimeout = d }
}

// NewArchiver constructs an Archiver backed by the provided StayRepo.
func NewArchiver(stays repo.StayRepo, m *metrics.Metrics, log *slog.Logger, opts ...ArchiverOption) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	a := &Archiver{
		stays:   stays,
		metrics: m,
		log:     log,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.NewExponential(100*time.Millisecond))
		},
		drainTimeout: defaultDrainTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Load returns every archived stay, for ledger.Restore.
func (a *Archiver) Load(ctx context.Context) ([]domain.Stay, error) {
	stays, err := a.stays.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Archiver.Load: %w", err)
	}
	if stays == nil {
		return []domain.Stay{}, nil
	}
	return stays, nil
}

// Run writes every event received on events until the channel closes. Once
// ctx is cancelled it keeps writing until the channel closes or the drain
// timeout expires, so events published during a graceful shutdown are not
// lost. Writes in progress are not cut short by ctx.
func (a *Archiver) Run(ctx context.Context, events <-chan domain.StayEvent) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.write(wctx, ev)
		case <-ctx.Done():
			a.drain(wctx, events)
			return nil
		}
	}
}

func (a *Archiver) drain(ctx context.Context, events <-chan domain.StayEvent) {
	ctx, cancel := context.WithTimeout(ctx, a.drainTimeout)
	defer cancel()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.write(ctx, ev)
		case <-ctx.Done():
			a.log.Warn("archive drain timed out; remaining events not written",
				"timeout", a.drainTimeout,
			)
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, ev domain.StayEvent) {
	attempt := 0
	err := retry.Do(ctx, a.backoff(), func(ctx context.Context) error {
		attempt++
		if err := a.stays.Upsert(ctx, ev.Stay); err != nil {
			a.log.WarnContext(ctx, "archive write attempt failed",
				"stay_id", ev.Stay.ID,
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		a.metrics.ArchiveWrite(metrics.ResultError)
		a.log.ErrorContext(ctx, "archive write failed",
			"stay_id", ev.Stay.ID,
			"plate", ev.Stay.Plate,
			"event", string(ev.Kind),
			"attempts", attempt,
			"error", err,
		)
		return
	}
	a.metrics.ArchiveWrite(metrics.ResultSuccess)
}
