package availability

import (
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
)

// SlotStep is the spacing between candidate slot starts.
const SlotStep = 30 * time.Minute

const (
	displayTimeLayout = "15:04"
	displayDateLayout = "Mon, 02 Jan"
)

// Slot is a bookable interval. Start and End serialize as RFC3339 in the
// clinic zone.
type Slot struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DisplayStart string    `json:"displayStart"`
	DisplayDate  string    `json:"displayDate"`
}

// GenerateSlots walks [openAt, closeAt) in SlotStep increments and keeps every
// candidate that fits before closeAt, starts after now and does not overlap a
// busy interval.
func GenerateSlots(openAt, closeAt time.Time, duration time.Duration, busy []calendar.Interval, now time.Time, loc *time.Location) []Slot {
	if duration <= 0 || !openAt.Before(closeAt) {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var slots []Slot
	for start := openAt; !start.Add(duration).After(closeAt); start = start.Add(SlotStep) {
		end := start.Add(duration)
		if !start.After(now) {
			continue
		}
		if overlapsAny(busy, start, end) {
			continue
		}
		local := start.In(loc)
		slots = append(slots, Slot{
			Start:        local,
			End:          end.In(loc),
			DisplayStart: local.Format(displayTimeLayout),
			DisplayDate:  local.Format(displayDateLayout),
		})
	}
	return slots
}

func overlapsAny(busy []calendar.Interval, start, end time.Time) bool {
	for _, iv := range busy {
		if iv.Overlaps(start, end) {
			return true
		}
	}
	return false
}
