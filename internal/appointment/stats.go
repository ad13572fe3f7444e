package appointment

import (
	"context"

	"github.com/google/uuid"
)

const DefaultStatsLimit = 10

// GetDoctorStats aggregates the doctor's appointments by calendar period in UTC,
// newest period first.
func (s *Service) GetDoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy GroupBy, limit int) (*DoctorStats, error) {
	if groupBy != GroupByMonth && groupBy != GroupByDay {
		return nil, ErrInvalidGroupBy
	}
	if limit <= 0 {
		limit = DefaultStatsLimit
	}

	if _, err := s.loadDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	periods, err := s.repo.AggregateDoctorStats(ctx, doctorID, groupBy, limit)
	if err != nil {
		return nil, internal("aggregate doctor stats", err)
	}

	total, err := s.repo.CountByDoctor(ctx, doctorID)
	if err != nil {
		return nil, internal("count doctor appointments", err)
	}

	if periods == nil {
		periods = []PeriodStats{}
	}

	return &DoctorStats{
		DoctorID:          doctorID,
		TotalAppointments: total,
		Periods:           periods,
	}, nil
}
