package domain

import (
	"fmt"
	"time"
)

// ScheduleDateLayout is the wire format for handshake dates.
const ScheduleDateLayout = "2006-01-02"

// SlotWindow defines the operating window for meeting slots. Slots are
// hourly, from OpenHour inclusive to CloseHour exclusive.
type SlotWindow struct {
	OpenHour  int
	CloseHour int
}

// DefaultSlotWindow matches campus opening hours.
var DefaultSlotWindow = SlotWindow{OpenHour: 9, CloseHour: 21}

// Valid reports whether the window describes at least one slot within a day.
func (w SlotWindow) Valid() bool {
	return w.OpenHour >= 0 && w.CloseHour <= 24 && w.OpenHour < w.CloseHour
}

// Catalog returns the full fixed list of hourly slots in the window,
// formatted "HH:00".
func (w SlotWindow) Catalog() []string {
	slots := make([]string, 0, w.CloseHour-w.OpenHour)
	for h := w.OpenHour; h < w.CloseHour; h++ {
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots
}

// Contains reports whether slot is exactly one of the catalog strings.
// Anything else, including a valid slot with trailing text, is rejected so
// only canonical "HH:00" values are ever stored.
func (w SlotWindow) Contains(slot string) bool {
	for h := w.OpenHour; h < w.CloseHour; h++ {
		if slot == fmt.Sprintf("%02d:00", h) {
			return true
		}
	}
	return false
}

// ParseScheduleDate parses a handshake date in the given location.
func ParseScheduleDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(ScheduleDateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: bad date %q: %w", date, ErrInvalidInput)
	}
	return d, nil
}

// AvailableSlots returns the catalog slots still selectable for the given
// date as observed at now. Dates before today yield nothing; for today,
// slots whose hour has already started are excluded. The filter is evaluated
// against the wall clock on every call and must never be cached.
func (w SlotWindow) AvailableSlots(date string, now time.Time) ([]string, error) {
	d, err := ParseScheduleDate(date, now.Location())
	if err != nil {
		return nil, err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case d.Before(today):
		return nil, nil
	case d.After(today):
		return w.Catalog(), nil
	}

	var slots []string
	for h := w.OpenHour; h < w.CloseHour; h++ {
		if h <= now.Hour() {
			continue
		}
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots, nil
}
