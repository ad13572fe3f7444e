package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/availability"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// GetAppointment loads one appointment. Visibility is decided by the caller.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, internal("get appointment", err)
	}
	return appt, nil
}

// ListAppointments returns the caller's appointments, newest first. month, when set,
// is "YYYY-MM" and restricts the result to starts inside that UTC month.
func (s *Service) ListAppointments(ctx context.Context, caller Identity, limit int, month string) ([]Appointment, error) {
	filter := ListFilter{Limit: clampLimit(limit)}

	if month != "" {
		first, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, ErrInvalidMonth
		}
		filter.From = first
		filter.To = first.AddDate(0, 1, 0)
	}

	list, err := s.repo.ListForUser(ctx, caller.Role, caller.UserID, filter)
	if err != nil {
		return nil, internal("list appointments", err)
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// DoctorSlots lists the doctor's upcoming slots on date ("YYYY-MM-DD", UTC) and marks
// those held by an active appointment.
func (s *Service) DoctorSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]DaySlot, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, ErrInvalidDate
	}

	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.ListActiveForDoctor(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, internal("list booked slots", err)
	}
	held := make(map[int64]uuid.UUID, len(booked))
	for _, a := range booked {
		held[a.Start.UnixMilli()] = a.ID
	}

	slots := availability.FilterPastSlots(availability.GenerateSlotsForDay(day, doctor.SchedulingProfile()), s.now())

	result := []DaySlot{}
	for slot := range slots {
		ds := DaySlot{Slot: slot, Available: true}
		if id, ok := held[slot.Start.UnixMilli()]; ok {
			ds.Available = false
			ds.AppointmentID = &id
		}
		result = append(result, ds)
	}
	return result, nil
}
