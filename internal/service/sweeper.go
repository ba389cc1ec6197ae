package service

import (
	"context"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// CompleteEnded moves every Approved event whose end time has passed to
// Completed on behalf of the system, releasing its equipment.  It returns
// how many events were completed.
func (s *Service) CompleteEnded(ctx context.Context) (int, error) {
	ids, err := s.store.ListApprovedEndedBefore(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		completed := false
		err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
			ev, err := s.lockEvent(ctx, id)
			if err != nil {
				return err
			}
			// Someone may have completed or archived it since the listing.
			if ev.Status != model.StatusApproved || s.clock.Now().Before(ev.EndAt) {
				return nil
			}
			completed = true
			return s.setStatus(ctx, ev, model.StatusCompleted, model.StageFinal, model.SystemActor, model.OutcomeCompleted, "event ended", changes)
		})
		if err != nil {
			s.log.Error().Err(err).Uint64("event_id", id).Msg("auto-complete failed")
			continue
		}
		if completed {
			done++
		}
	}
	return done, nil
}

// Sweeper periodically calls CompleteEnded.  It only runs when
// AUTO_RELEASE_ON_END is enabled.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper returns a sweeper ticking every interval.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.svc.CompleteEnded(ctx)
			if err != nil {
				w.svc.log.Error().Err(err).Msg("auto-complete sweep failed")
				continue
			}
			if n > 0 {
				w.svc.log.Info().Int("completed", n).Msg("auto-complete sweep")
			}
		}
	}
}
