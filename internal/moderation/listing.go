package moderation

import (
	"context"
	"errors"
	"fmt"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/params"
)

const (
	DefaultPendingLimit  = 10
	MaxPendingLimit      = 50
	DefaultLocationLimit = 10
	MaxLocationLimit     = 10
	DefaultRecentLimit   = 3
	MaxRecentLimit       = 20
)

func (s *Service) GetComment(ctx context.Context, commentID int64) (*CommentView, error) {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, comments.ErrNotFound) {
			return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		s.obs.StoreFailure("comment.get", err)
		return nil, ErrGeneric
	}
	view, err := s.hydrateOne(ctx, c)
	if err != nil {
		s.obs.StoreFailure("comment.get", err)
		return nil, ErrGeneric
	}
	return view, nil
}

// GetPending lists pending comments, newest first.
func (s *Service) GetPending(ctx context.Context, skip, limit int) ([]CommentView, error) {
	cs, err := s.comments.ListByStatus(ctx, comments.StatusPending,
		params.ClampSkip(skip), params.ClampLimit(limit, DefaultPendingLimit, MaxPendingLimit))
	if err != nil {
		s.obs.StoreFailure("comment.list_pending", err)
		return nil, ErrGeneric
	}
	return s.hydrateList(ctx, "comment.list_pending", cs)
}

// GetByLocation lists the approved comments of a location, newest first.
func (s *Service) GetByLocation(ctx context.Context, locationID int64, skip, limit int) ([]CommentView, error) {
	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		s.obs.StoreFailure("comment.list_by_location", err)
		return nil, ErrGeneric
	}
	if !exists {
		return nil, fmt.Errorf("%w: location %d", ErrNotFound, locationID)
	}

	cs, err := s.comments.ListByLocation(ctx, locationID, comments.StatusApproved,
		params.ClampSkip(skip), params.ClampLimit(limit, DefaultLocationLimit, MaxLocationLimit))
	if err != nil {
		s.obs.StoreFailure("comment.list_by_location", err)
		return nil, ErrGeneric
	}
	return s.hydrateList(ctx, "comment.list_by_location", cs)
}

// GetRecentApproved lists the latest approved comments with a summary of
// the location each one belongs to.
func (s *Service) GetRecentApproved(ctx context.Context, limit int) ([]CommentView, error) {
	cs, err := s.comments.ListByStatus(ctx, comments.StatusApproved, 0,
		params.ClampLimit(limit, DefaultRecentLimit, MaxRecentLimit))
	if err != nil {
		s.obs.StoreFailure("comment.list_recent", err)
		return nil, ErrGeneric
	}
	views, err := s.hydrateList(ctx, "comment.list_recent", cs)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.LocationID)
	}
	summaries, err := s.locations.Summaries(ctx, dedupe(ids))
	if err != nil {
		s.obs.StoreFailure("comment.list_recent", err)
		return nil, ErrGeneric
	}
	for i := range views {
		if sum, ok := summaries[views[i].LocationID]; ok {
			if sum.AvgRating == nil {
				zero := 0.0
				sum.AvgRating = &zero
			}
			views[i].Location = &sum
		}
	}
	return views, nil
}

func (s *Service) hydrateList(ctx context.Context, op string, cs []comments.Comment) ([]CommentView, error) {
	views, err := s.hydrate(ctx, cs)
	if err != nil {
		s.obs.StoreFailure(op, err)
		return nil, ErrGeneric
	}
	return views, nil
}
