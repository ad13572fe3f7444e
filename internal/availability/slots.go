package availability

import (
	"iter"
	"time"
)

// Slot is a candidate appointment interval of exactly one slot duration.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GenerateSlotsForDay yields the slots a profile offers on the UTC calendar day of date.
//
// Every weekly interval matching the weekday is walked from its start in slot-duration
// steps; a trailing partial slot is dropped. A start produced by overlapping intervals is
// yielded once. Explicit slots are never listed here; ValidateSlot accepts them on request.
func GenerateSlotsForDay(date time.Time, p Profile) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		day := startOfDay(date)
		weekday := Weekday(day)
		step := p.SlotDuration()
		seen := make(map[int64]struct{})

		emit := func(s Slot) bool {
			key := s.Start.UnixNano()
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			return yield(s)
		}

		for _, iv := range p.WeeklySchedule {
			if iv.Weekday != weekday {
				continue
			}
			start, end, ok := iv.bounds(day)
			if !ok {
				continue
			}
			for cur := start; cur.Before(end); cur = cur.Add(step) {
				next := cur.Add(step)
				if next.After(end) {
					break
				}
				if !emit(Slot{Start: cur, End: next}) {
					return
				}
			}
		}
	}
}

// FilterPastSlots keeps slots starting strictly after now.
func FilterPastSlots(slots iter.Seq[Slot], now time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for s := range slots {
			if !s.Start.After(now) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}
