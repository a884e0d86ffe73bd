// Package models defines data structures and domain types.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// HoursPerDay is the fixed cardinality of an HourHistogram.
	HoursPerDay = 24
	// MonthsPerYear is the fixed cardinality of a MonthHistogram.
	MonthsPerYear = 12
)

// HourHistogram maps hour-of-day (0-23) to a count. Every slot always exists.
type HourHistogram [HoursPerDay]int64

// Get returns the count stored for an hour.
func (h *HourHistogram) Get(hour int) int64 {
	if hour < 0 || hour >= HoursPerDay {
		return 0
	}
	return h[hour]
}

// Set overwrites the count for an hour.
func (h *HourHistogram) Set(hour int, count int64) error {
	if hour < 0 || hour >= HoursPerDay {
		return fmt.Errorf("hour %d out of range 0-23", hour)
	}
	if count < 0 {
		return fmt.Errorf("negative count %d for hour %d", count, hour)
	}
	h[hour] = count
	return nil
}

// Total returns the sum of all slots.
func (h *HourHistogram) Total() int64 {
	var sum int64
	for _, v := range h {
		sum += v
	}
	return sum
}

// MarshalJSON writes all 24 slots as a string-keyed object.
func (h HourHistogram) MarshalJSON() ([]byte, error) {
	out := make(map[string]int64, HoursPerDay)
	for hour, v := range h {
		out[strconv.Itoa(hour)] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a string-keyed object. Missing slots default to zero;
// keys outside 0-23, non-canonical keys such as "01" and negative values are
// rejected.
func (h *HourHistogram) UnmarshalJSON(data []byte) error {
	raw, err := decodeSlots(data)
	if err != nil {
		return err
	}

	var hist HourHistogram
	for key, v := range raw {
		hour, err := parseSlotKey(key)
		if err != nil {
			return fmt.Errorf("invalid hourly key %q", key)
		}
		if err := hist.Set(hour, v); err != nil {
			return err
		}
	}
	*h = hist
	return nil
}

// MonthHistogram maps month-of-year (1-12) to a count. Every slot always exists.
type MonthHistogram [MonthsPerYear]int64

// Get returns the count stored for a month (1-12).
func (m *MonthHistogram) Get(month int) int64 {
	if month < 1 || month > MonthsPerYear {
		return 0
	}
	return m[month-1]
}

// Set overwrites the count for a month (1-12).
func (m *MonthHistogram) Set(month int, count int64) error {
	if month < 1 || month > MonthsPerYear {
		return fmt.Errorf("month %d out of range 1-12", month)
	}
	if count < 0 {
		return fmt.Errorf("negative count %d for month %d", count, month)
	}
	m[month-1] = count
	return nil
}

// Total returns the sum of all slots.
func (m *MonthHistogram) Total() int64 {
	var sum int64
	for _, v := range m {
		sum += v
	}
	return sum
}

// MarshalJSON writes all 12 slots as a string-keyed object.
func (m MonthHistogram) MarshalJSON() ([]byte, error) {
	out := make(map[string]int64, MonthsPerYear)
	for i, v := range m {
		out[strconv.Itoa(i+1)] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a string-keyed object. Missing slots default to zero;
// keys outside 1-12, non-canonical keys and negative values are rejected.
func (m *MonthHistogram) UnmarshalJSON(data []byte) error {
	raw, err := decodeSlots(data)
	if err != nil {
		return err
	}

	var hist MonthHistogram
	for key, v := range raw {
		month, err := parseSlotKey(key)
		if err != nil {
			return fmt.Errorf("invalid monthly key %q", key)
		}
		if err := hist.Set(month, v); err != nil {
			return err
		}
	}
	*m = hist
	return nil
}

func decodeSlots(data []byte) (map[string]int64, error) {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode histogram: %w", err)
	}
	return raw, nil
}

// parseSlotKey accepts only the canonical decimal form, so no two keys can
// name the same slot.
func parseSlotKey(key string) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, err
	}
	if strconv.Itoa(n) != key {
		return 0, fmt.Errorf("non-canonical key %q", key)
	}
	return n, nil
}
