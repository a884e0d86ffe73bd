// Package aggregate folds an hour's match count into the rolling histograms.
package aggregate

import (
	"github.com/j-veylop/polar-stats/internal/models"
)

// Advance applies one run's match count to state and returns the new state.
//
// The monthly slot is a running total for the current month and is zeroed on
// the first hour of a month before accumulating. The hourly slot holds the
// latest observed count for that hour-of-day and is overwritten.
func Advance(state models.AggregateState, target models.TargetHour, matchCount int64) models.AggregateState {
	if matchCount < 0 {
		matchCount = 0
	}

	next := state
	month := int(target.Month)

	if target.StartsMonth() {
		_ = next.Monthly.Set(month, 0)
	}
	_ = next.Monthly.Set(month, next.Monthly.Get(month)+matchCount)
	_ = next.Hourly.Set(target.Hour, matchCount)

	updated := target.Time()
	next.LastUpdate = &updated

	return next
}
