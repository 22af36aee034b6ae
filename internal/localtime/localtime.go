package localtime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"simrig-booking-backend/internal/apperr"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	MinutesPerDay = 24 * 60
)

// ErrInvalidTimeFormat is wrapped by every parse failure in this package.
var ErrInvalidTimeFormat = errors.New("invalid time format")

// HH:mm, optionally followed by ":00" as returned by TIME columns.
var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)(?::00)?$`)

func invalid(format string, args ...any) error {
	return apperr.Wrap(apperr.KindInvalidInput, ErrInvalidTimeFormat, fmt.Sprintf(format, args...))
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC and
// only its year, month and day are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("date %q is not YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock parses an HH:mm wall-clock time into minutes after midnight.
func ParseClock(s string) (int, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, invalid("time %q is not HH:mm", s)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return h*60 + mi, nil
}

// ParseBound is ParseClock that also accepts "24:00" as the end of the day.
func ParseBound(s string) (int, error) {
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	return ParseClock(s)
}

// FormatClock renders minutes after midnight as HH:mm. 1440 renders as "24:00".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// LoadZone resolves an IANA zone name. An empty name is rejected.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, fmt.Sprintf("unknown timezone %q", name))
	}
	return loc, nil
}

// AtMinutes returns the instant that is the given number of minutes after the
// local midnight of date. Minutes past 1440 roll into the next day.
func AtMinutes(date string, minutes int, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, minutes, 0, 0, loc).UTC(), nil
}

// ToInstant converts a local date and wall-clock time in loc to a UTC instant.
func ToInstant(localDate, localTime string, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(localTime)
	if err != nil {
		return time.Time{}, err
	}
	return AtMinutes(localDate, minutes, loc)
}

// EndInstant adds a duration to start and reports whether the end falls on a
// later local calendar date than the start.
func EndInstant(start time.Time, durationMinutes int, loc *time.Location) (time.Time, bool) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute).UTC()
	startDate, _ := LocalParts(start, loc)
	endDate, _ := LocalParts(end, loc)
	return end, startDate != endDate
}

// LocalParts renders an instant as a local date and HH:mm in loc.
func LocalParts(t time.Time, loc *time.Location) (string, string) {
	lt := t.In(loc)
	return lt.Format(DateLayout), lt.Format(ClockLayout)
}

// DayBounds returns the half-open instant range [start, end) of the local
// calendar day.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := AtMinutes(date, 0, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, _ := AtMinutes(date, MinutesPerDay, loc)
	return start, end, nil
}

// AddDays shifts a YYYY-MM-DD date by n calendar days.
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}

// BusinessDate is the local calendar date of now in loc.
func BusinessDate(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// SystemClock returns the wall-clock time in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
