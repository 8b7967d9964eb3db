package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/config"
	"github.com/fastprodman/transfersaga/internal/repos/sagas"
)

// Reaper recovers sagas whose request or outcome got lost. It re-sends the
// pending request, which the ledger deduplicates, and parks the saga for an
// operator once the budget is spent.
type Reaper struct {
	c   *Coordinator
	cfg config.ReaperConfig
	now func() time.Time
}

func NewReaper(c *Coordinator, cfg config.ReaperConfig) *Reaper {
	return &Reaper{c: c, cfg: cfg, now: time.Now}
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				slog.Error("reaper sweep failed", "error", err)
				continue
			}

			if n > 0 {
				slog.Info("reaper swept stuck sagas", "count", n)
			}
		}
	}
}

// Sweep handles one batch of stuck sagas and returns how many it touched.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	rows, err := r.c.store.ListStuck(ctx, r.now().Add(-r.cfg.StuckAfter), r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stuck sagas: %w", err)
	}

	var (
		touched int
		errs    []error
	)

	for _, row := range rows {
		err = r.reap(ctx, fromRow(row))
		switch {
		case errors.Is(err, sagas.ErrStaleSaga):
			// an outcome landed meanwhile
		case err != nil:
			errs = append(errs, err)
		default:
			touched++
		}
	}

	return touched, errors.Join(errs...)
}

func (r *Reaper) reap(ctx context.Context, s Saga) error {
	req, ok := s.PendingRequest()
	if !ok {
		return nil
	}

	if s.Reemits >= r.cfg.MaxReemits {
		s.Manual = true

		saved, err := r.c.save(ctx, s)
		if err != nil {
			return err
		}

		s = saved

		code := apperr.CodeInvalidState
		if s.Status() == StatusCanceling {
			code = apperr.CodeCompensationFailure
		}

		r.c.raise(ctx, code, s.ID, req.AccountID,
			fmt.Sprintf("no outcome for %s after %d re-sends, saga parked", req.Kind, s.Reemits))

		return nil
	}

	err := r.c.pub.Publish(ctx, req)
	if err != nil {
		return fmt.Errorf("resend %s for %s: %w", req.Kind, s.ID, err)
	}

	s.Reemits++

	_, err = r.c.save(ctx, s)
	if err != nil {
		return err
	}

	slog.Warn("re-sent pending request", "transaction_id", s.ID, "request", req.Kind, "reemits", s.Reemits)

	return nil
}
