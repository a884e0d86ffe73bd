// Package window decides whether search results fall inside the measured hour.
package window

import (
	"fmt"
	"time"

	"github.com/j-veylop/polar-stats/internal/models"
)

// CreatedAtLayout is the feed's created_at format,
// e.g. "Mon, 02 Jan 2023 15:04:05 +0000".
const CreatedAtLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// ParseError reports a created_at value that does not match CreatedAtLayout.
type ParseError struct {
	Err   error
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid created_at %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TargetHourAt returns the completed UTC hour preceding now.
func TargetHourAt(now time.Time) models.TargetHour {
	return models.TargetHourOf(now.UTC().Add(-time.Hour))
}

// ParseCreatedAt parses a created_at value and normalizes it to UTC.
func ParseCreatedAt(value string) (time.Time, error) {
	t, err := time.Parse(CreatedAtLayout, value)
	if err != nil {
		return time.Time{}, &ParseError{Value: value, Err: err}
	}
	return t.UTC(), nil
}

// Matches reports whether the item was created within the target hour.
// Minutes and seconds are ignored.
func Matches(item models.ResultItem, target models.TargetHour) (bool, error) {
	created, err := ParseCreatedAt(item.CreatedAt)
	if err != nil {
		return false, err
	}
	return models.TargetHourOf(created) == target, nil
}

// CountMatches counts the items of a batch that fall within the target hour.
// The first unparseable timestamp fails the whole batch.
func CountMatches(items []models.ResultItem, target models.TargetHour) (int64, error) {
	var n int64
	for i := range items {
		ok, err := Matches(items[i], target)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
