package service

import (
	"strings"
	"time"

	"github.com/noah-isme/edu-makeup-api/internal/models"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// plannedLayouts are tried in order when splitting an upstream planned datetime.
// Zone-less layouts are read in the configured make-up zone.
var plannedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// TimeOfDayBucket maps an "HH:mm" clock to the suggestion bucket. Invalid or empty input yields "".
func TimeOfDayBucket(clock string) models.TimeOfDay {
	t, ok := parseClock(clock)
	if !ok {
		return ""
	}
	switch hour := t.Hour(); {
	case hour < 12:
		return models.TimeOfDayMorning
	case hour < 18:
		return models.TimeOfDayAfternoon
	default:
		return models.TimeOfDayEvening
	}
}

// SplitPlannedDatetime returns the local date and clock of an upstream datetime.
func SplitPlannedDatetime(raw string, loc *time.Location) (string, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range plannedLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		t = t.In(loc)
		return t.Format(dateLayout), t.Format(clockLayout), true
	}
	return "", "", false
}

// DayRange returns the first and last second of date in loc.
func DayRange(date string, loc *time.Location) (time.Time, time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end := start.Add(24*time.Hour - time.Second)
	return start, end, true
}

func validDate(raw string) bool {
	_, err := time.Parse(dateLayout, raw)
	return err == nil
}

func parseClock(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(clockLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(clockLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func validClock(raw string) bool {
	_, ok := parseClock(raw)
	return ok
}
