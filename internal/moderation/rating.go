package moderation

import (
	"context"
	"errors"
	"fmt"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
)

// RunningMean folds newRating into prevAvg, the mean of n-1 earlier ratings.
// With n == 1 the result is newRating whatever prevAvg holds.
func RunningMean(prevAvg float64, n, newRating int) float64 {
	if n <= 0 {
		return 0
	}
	prevN := float64(n - 1)
	return (prevAvg*prevN + float64(newRating)) / float64(n)
}

// RetractMean removes rating from prevAvg, the mean of n+1 ratings, leaving
// the mean of the remaining n. With n == 0 the result is 0.
func RetractMean(prevAvg float64, n, rating int) float64 {
	if n <= 0 {
		return 0
	}
	return (prevAvg*float64(n+1) - float64(rating)) / float64(n)
}

// UpdateAverage folds newRating into the location's avg_rating. It must run in
// the transaction that already persisted the triggering approval, so the
// approved count includes it. A missing location is a no-op (ok == false).
func UpdateAverage(ctx context.Context, locs locations.Store, cms comments.Store, locationID int64, newRating int) (avg float64, n int, ok bool, err error) {
	loc, err := locs.GetForUpdate(ctx, locationID)
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("lock location %d: %w", locationID, err)
	}

	n, err = cms.CountApproved(ctx, locationID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("count approved for location %d: %w", locationID, err)
	}

	prevAvg := 0.0
	if loc.AvgRating != nil {
		prevAvg = *loc.AvgRating
	}
	avg = RunningMean(prevAvg, n, newRating)

	if err := locs.SetAvgRating(ctx, locationID, avg); err != nil {
		return 0, 0, false, fmt.Errorf("set avg rating for location %d: %w", locationID, err)
	}
	return avg, n, true, nil
}

// Retract removes an approved rating from the location's avg_rating. It must
// run after the comment row was deleted in the same transaction.
func Retract(ctx context.Context, locs locations.Store, cms comments.Store, locationID int64, rating int) (avg float64, n int, ok bool, err error) {
	loc, err := locs.GetForUpdate(ctx, locationID)
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("lock location %d: %w", locationID, err)
	}

	n, err = cms.CountApproved(ctx, locationID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("count approved for location %d: %w", locationID, err)
	}

	prevAvg := 0.0
	if loc.AvgRating != nil {
		prevAvg = *loc.AvgRating
	}
	avg = RetractMean(prevAvg, n, rating)

	if err := locs.SetAvgRating(ctx, locationID, avg); err != nil {
		return 0, 0, false, fmt.Errorf("set avg rating for location %d: %w", locationID, err)
	}
	return avg, n, true, nil
}
