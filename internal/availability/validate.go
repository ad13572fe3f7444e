package availability

import (
	"fmt"
	"time"
)

// ValidationReason enumerates why a requested start was refused.
type ValidationReason int

const (
	ReasonInPast ValidationReason = iota + 1
	ReasonMisaligned
	ReasonOutsideHours
)

func (r ValidationReason) String() string {
	switch r {
	case ReasonInPast:
		return "in_past"
	case ReasonMisaligned:
		return "misaligned"
	case ReasonOutsideHours:
		return "outside_hours"
	default:
		return "unknown"
	}
}

// ValidationError carries the reason a slot was refused. Its message is shown to end users
// verbatim and contains "past", "align" or "outside" respectively.
type ValidationError struct {
	Reason          ValidationReason
	SlotDurationMin int
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonInPast:
		return "Cannot book appointments in the past"
	case ReasonMisaligned:
		return fmt.Sprintf("Appointment must align to %d-minute boundaries", e.SlotDurationMin)
	case ReasonOutsideHours:
		return "Appointment time is outside doctor's available hours"
	default:
		return "invalid appointment slot"
	}
}

// ValidateSlot checks a requested start against the profile. Checks short-circuit in order:
// future, alignment, then weekly schedule or explicit slot membership.
func ValidateSlot(start time.Time, p Profile, now time.Time) error {
	start = start.UTC()
	dur := p.durationMin()

	if !start.After(now) {
		return &ValidationError{Reason: ReasonInPast, SlotDurationMin: dur}
	}
	if !IsAligned(start, dur) {
		return &ValidationError{Reason: ReasonMisaligned, SlotDurationMin: dur}
	}
	if !withinWeeklySchedule(start, p.WeeklySchedule) && !matchesExplicitSlot(start, p.ExplicitSlots) {
		return &ValidationError{Reason: ReasonOutsideHours, SlotDurationMin: dur}
	}
	return nil
}

// IsAligned reports whether t sits on a slot boundary within its hour.
func IsAligned(t time.Time, slotDurationMin int) bool {
	if slotDurationMin <= 0 {
		slotDurationMin = DefaultSlotDurationMin
	}
	return t.Minute()%slotDurationMin == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func withinWeeklySchedule(t time.Time, schedule []WeeklyInterval) bool {
	weekday := Weekday(t)
	for _, iv := range schedule {
		if iv.Weekday != weekday {
			continue
		}
		start, end, ok := iv.bounds(t)
		if !ok {
			continue
		}
		if !t.Before(start) && t.Before(end) {
			return true
		}
	}
	return false
}

func matchesExplicitSlot(t time.Time, slots []time.Time) bool {
	for _, s := range slots {
		d := s.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < ExplicitSlotTolerance {
			return true
		}
	}
	return false
}
