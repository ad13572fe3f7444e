package appointment

import (
	"context"
	"errors"
)

// SweepAutoCancel cancels scheduled appointments that were reminded but are still
// unconfirmed when they are within the auto-cancel window of their start. It returns
// how many were cancelled. A failing item is logged and skipped.
func (s *Service) SweepAutoCancel(ctx context.Context) (int, error) {
	now := s.now()

	candidates, err := s.repo.FindUnconfirmedStartingBetween(ctx, now, now.Add(s.policy.AutoCancelWindow))
	if err != nil {
		return 0, internal("find unconfirmed appointments", err)
	}

	cancelled := 0
	for i := range candidates {
		appt := &candidates[i]
		log := s.logger.With().Str("appointment_id", appt.ID.String()).Logger()

		updated, err := s.repo.UpdateAppointmentStatus(ctx, StatusUpdate{
			ID:           appt.ID,
			From:         StatusScheduled,
			To:           StatusCancelled,
			At:           now,
			CancelReason: AutoCancelReason,
		})
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// confirmed or cancelled since the query ran
				continue
			}
			log.Error().Err(err).Msg("auto-cancel failed")
			continue
		}

		cancelled++
		log.Info().Msg("auto-cancelled unconfirmed appointment")
		s.notify(ctx, "cancellation", updated, s.notifierFunc(Notifier.Cancellation))
	}

	if cancelled > 0 {
		s.logger.Info().Int("count", cancelled).Msg("auto-cancel sweep done")
	}
	return cancelled, nil
}

// SweepNoShow marks active appointments whose start passed more than the grace period
// ago as no-shows and notifies both parties. It returns how many were marked.
func (s *Service) SweepNoShow(ctx context.Context) (int, error) {
	now := s.now()

	candidates, err := s.repo.FindActiveStartedBefore(ctx, now.Add(-s.policy.NoShowGrace))
	if err != nil {
		return 0, internal("find overdue appointments", err)
	}

	marked := 0
	for i := range candidates {
		appt := &candidates[i]
		log := s.logger.With().Str("appointment_id", appt.ID.String()).Logger()

		updated, err := s.repo.UpdateAppointmentStatus(ctx, StatusUpdate{
			ID:   appt.ID,
			From: appt.Status,
			To:   StatusNoShow,
			At:   now,
		})
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			log.Error().Err(err).Msg("mark no-show failed")
			continue
		}

		marked++
		log.Info().Msg("marked no-show")
		s.notify(ctx, "no_show", updated, s.notifierFunc(Notifier.NoShow))
	}

	if marked > 0 {
		s.logger.Info().Int("count", marked).Msg("no-show sweep done")
	}
	return marked, nil
}
