package models

import (
	"fmt"
	"time"
)

// TargetHour identifies the UTC hour measured by a run.
type TargetHour struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int
}

// TargetHourOf truncates t to its UTC hour.
func TargetHourOf(t time.Time) TargetHour {
	t = t.UTC()
	return TargetHour{
		Year:  t.Year(),
		Month: t.Month(),
		Day:   t.Day(),
		Hour:  t.Hour(),
	}
}

// Time returns the start of the hour in UTC.
func (th TargetHour) Time() time.Time {
	return time.Date(th.Year, th.Month, th.Day, th.Hour, 0, 0, 0, time.UTC)
}

// StartsMonth reports whether this is the first hour of a month.
func (th TargetHour) StartsMonth() bool {
	return th.Day == 1 && th.Hour == 0
}

// String formats the hour as "2006-01-02T15Z".
func (th TargetHour) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02dZ", th.Year, int(th.Month), th.Day, th.Hour)
}

// AggregateState is the unit of persistence: both rolling histograms and the
// target hour of the last successful run.
type AggregateState struct {
	LastUpdate *time.Time     `json:"last_update,omitempty"`
	Hourly     HourHistogram  `json:"hourly"`
	Monthly    MonthHistogram `json:"monthly"`
}

// NewAggregateState returns the all-zero default state.
func NewAggregateState() AggregateState {
	return AggregateState{}
}

// LastTargetHour returns the target hour of the last successful run, if any.
func (s AggregateState) LastTargetHour() (TargetHour, bool) {
	if s.LastUpdate == nil {
		return TargetHour{}, false
	}
	return TargetHourOf(*s.LastUpdate), true
}

// Equal reports whether both states hold identical histograms and last update.
func (s AggregateState) Equal(other AggregateState) bool {
	if s.Hourly != other.Hourly || s.Monthly != other.Monthly {
		return false
	}
	if s.LastUpdate == nil || other.LastUpdate == nil {
		return s.LastUpdate == nil && other.LastUpdate == nil
	}
	return s.LastUpdate.Equal(*other.LastUpdate)
}
