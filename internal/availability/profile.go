package availability

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultSlotDurationMin applies when a doctor profile carries no slot duration.
const DefaultSlotDurationMin = 30

// ExplicitSlotTolerance is how close a requested start must be to an explicit slot to match it.
const ExplicitSlotTolerance = 60 * time.Second

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// WeeklyInterval is one recurring availability window. Weekday is 0=Monday..6=Sunday,
// Start and End are zero-padded 24h "HH:MM" strings.
type WeeklyInterval struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Profile is the scheduling part of a doctor's profile.
type Profile struct {
	SlotDurationMin int              `json:"slotDurationMin,omitempty"`
	WeeklySchedule  []WeeklyInterval `json:"weeklySchedule"`
	ExplicitSlots   []time.Time      `json:"explicitSlots,omitempty"`
}

// SlotDuration returns the configured slot length, falling back to the default.
func (p Profile) SlotDuration() time.Duration {
	return time.Duration(p.durationMin()) * time.Minute
}

func (p Profile) durationMin() int {
	if p.SlotDurationMin <= 0 {
		return DefaultSlotDurationMin
	}
	return p.SlotDurationMin
}

// Validate reports malformed intervals. The scheduling engine itself skips them silently.
func (p Profile) Validate() error {
	var errs []error
	for i, iv := range p.WeeklySchedule {
		if iv.Weekday < 0 || iv.Weekday > 6 {
			errs = append(errs, fmt.Errorf("interval %d: weekday %d out of range", i, iv.Weekday))
		}
		if _, _, err := ParseClock(iv.Start); err != nil {
			errs = append(errs, fmt.Errorf("interval %d: %w", i, err))
		}
		if _, _, err := ParseClock(iv.End); err != nil {
			errs = append(errs, fmt.Errorf("interval %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseClock parses a "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// Weekday converts Go's Sunday-first weekday to the Monday-first encoding used by schedules.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// bounds resolves the interval onto the given UTC day.
func (iv WeeklyInterval) bounds(day time.Time) (start, end time.Time, ok bool) {
	sh, sm, err := ParseClock(iv.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	eh, em, err := ParseClock(iv.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	y, mo, d := day.Date()
	start = time.Date(y, mo, d, sh, sm, 0, 0, time.UTC)
	end = time.Date(y, mo, d, eh, em, 0, 0, time.UTC)
	return start, end, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
