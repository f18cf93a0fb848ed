package mission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, with second precision.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// NewTimeOfDay validates and builds a TimeOfDay.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %02d:%02d:%02d out of range: %w", hour, minute, second, ErrInvalidSchedule)
	}
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}, nil
}

// MustTimeOfDay is NewTimeOfDay for constants; it panics on invalid input.
func MustTimeOfDay(hour, minute, second int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute, second)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	var err error
	switch strings.Count(s, ":") {
	case 1:
		_, err = fmt.Sscanf(s, "%d:%d", &h, &m)
	case 2:
		_, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	default:
		err = fmt.Errorf("expected HH:MM[:SS]")
	}
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %v: %w", s, err, ErrInvalidSchedule)
	}
	return NewTimeOfDay(h, m, sec)
}

// String renders "HH:MM:SS", the persisted key format.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Before reports whether t is earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool { return t.seconds() < o.seconds() }

func (t TimeOfDay) seconds() int { return t.Hour*3600 + t.Minute*60 + t.Second }

// On returns the instant t occurs on day's calendar date in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}

// DayOfWeek is a time.Weekday that reads and writes its English name.
type DayOfWeek time.Weekday

// MarshalText implements encoding.TextMarshaler.
func (d DayOfWeek) MarshalText() ([]byte, error) { return []byte(time.Weekday(d).String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DayOfWeek) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), s) {
			*d = DayOfWeek(wd)
			return nil
		}
	}
	return fmt.Errorf("unknown day of week %q: %w", s, ErrInvalidSchedule)
}

// TimeAndDay is one weekly occurrence.
type TimeAndDay struct {
	DayOfWeek DayOfWeek `json:"day_of_week" yaml:"day_of_week"`
	TimeOfDay TimeOfDay `json:"time_of_day" yaml:"time_of_day"`
}

// ScheduledTime is one firing computed for today.
type ScheduledTime struct {
	Delay     time.Duration
	TimeOfDay TimeOfDay
	At        time.Time
}

// AutoScheduleFrequency is a definition's weekly recurrence plus the
// bookkeeping of jobs already enqueued for today.
type AutoScheduleFrequency struct {
	TimesAndDays []TimeAndDay

	// ScheduledJobs maps a time of day to the delayed-job handle enqueued
	// for it. It is serialized to JSON only when persisted.
	ScheduledJobs map[TimeOfDay]string
}

// NewAutoScheduleFrequency validates the occurrences.
func NewAutoScheduleFrequency(timesAndDays []TimeAndDay) (*AutoScheduleFrequency, error) {
	f := &AutoScheduleFrequency{TimesAndDays: timesAndDays}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that at least one occurrence is configured and that
// every occurrence is a real weekday and time.
func (f *AutoScheduleFrequency) Validate() error {
	if len(f.TimesAndDays) == 0 {
		return fmt.Errorf("no times configured: %w", ErrInvalidSchedule)
	}
	for _, td := range f.TimesAndDays {
		if td.DayOfWeek < DayOfWeek(time.Sunday) || td.DayOfWeek > DayOfWeek(time.Saturday) {
			return fmt.Errorf("day of week %d: %w", td.DayOfWeek, ErrInvalidSchedule)
		}
		if _, err := NewTimeOfDay(td.TimeOfDay.Hour, td.TimeOfDay.Minute, td.TimeOfDay.Second); err != nil {
			return err
		}
	}
	return nil
}

// SchedulingTimesUntilMidnight returns every configured occurrence on now's
// weekday whose time of day is strictly after now, sorted, with duplicate
// times collapsed. It returns nil when there are none. The weekday and
// midnight are taken in now's location, so callers pass now already
// converted to the installation's time zone.
func (f *AutoScheduleFrequency) SchedulingTimesUntilMidnight(now time.Time) []ScheduledTime {
	today := DayOfWeek(now.Weekday())
	seen := make(map[TimeOfDay]struct{})

	var out []ScheduledTime
	for _, td := range f.TimesAndDays {
		if td.DayOfWeek != today {
			continue
		}
		if _, dup := seen[td.TimeOfDay]; dup {
			continue
		}
		at := td.TimeOfDay.On(now)
		if !at.After(now) {
			continue
		}
		seen[td.TimeOfDay] = struct{}{}
		out = append(out, ScheduledTime{Delay: at.Sub(now), TimeOfDay: td.TimeOfDay, At: at})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimeOfDay.Before(out[j].TimeOfDay) })
	return out
}

// HasSchedulingTimesUntilMidnight reports whether anything is left to
// schedule today.
func (f *AutoScheduleFrequency) HasSchedulingTimesUntilMidnight(now time.Time) bool {
	return len(f.SchedulingTimesUntilMidnight(now)) > 0
}

// ScheduledJob returns the job handle recorded for tod.
func (f *AutoScheduleFrequency) ScheduledJob(tod TimeOfDay) (string, bool) {
	id, ok := f.ScheduledJobs[tod]
	return id, ok
}

// RecordScheduledJob stores the job handle enqueued for tod.
func (f *AutoScheduleFrequency) RecordScheduledJob(tod TimeOfDay, jobID string) {
	if f.ScheduledJobs == nil {
		f.ScheduledJobs = make(map[TimeOfDay]string)
	}
	f.ScheduledJobs[tod] = jobID
}

// ResetScheduledJobs clears the bookkeeping and returns the handles it held.
func (f *AutoScheduleFrequency) ResetScheduledJobs() []string {
	ids := make([]string, 0, len(f.ScheduledJobs))
	for _, id := range f.ScheduledJobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	f.ScheduledJobs = nil
	return ids
}

// MarshalScheduledJobs serializes the jobs map as a JSON object keyed by
// "HH:MM:SS". An empty map serializes to nil.
func (f *AutoScheduleFrequency) MarshalScheduledJobs() ([]byte, error) {
	if len(f.ScheduledJobs) == 0 {
		return nil, nil
	}
	return json.Marshal(f.ScheduledJobs)
}

// UnmarshalScheduledJobs restores the jobs map. Malformed data yields an
// empty map and an error wrapping ErrInvalidData; the caller decides
// whether to keep going.
func (f *AutoScheduleFrequency) UnmarshalScheduledJobs(data []byte) error {
	f.ScheduledJobs = nil
	if len(data) == 0 {
		return nil
	}
	jobs := make(map[TimeOfDay]string)
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("decode scheduled jobs: %v: %w", err, ErrInvalidData)
	}
	if len(jobs) > 0 {
		f.ScheduledJobs = jobs
	}
	return nil
}
