package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/domain/storage"
	"acessolivre/internal/objectstore"
)

type CreateInput struct {
	LocationID int64
	UserName   string
	Rating     int
	Comment    string
	Images     []objectstore.File
	IconIDs    []int64
}

// TransitionResult carries the approved comment, or Deleted for a rejection.
type TransitionResult struct {
	Comment *CommentView `json:"comment,omitempty"`
	Deleted bool         `json:"deleted"`
}

// Create stores a new pending comment. Images are uploaded before the insert
// and removed again if the comment cannot be persisted.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CommentView, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	in.UserName = strings.TrimSpace(in.UserName)
	if in.UserName == "" || utf8.RuneCountInString(in.UserName) > comments.MaxUserNameLen {
		return nil, fmt.Errorf("%w: user_name must have 1 to %d characters", ErrInvalidInput, comments.MaxUserNameLen)
	}
	if utf8.RuneCountInString(in.Comment) > comments.MaxBodyLen {
		return nil, fmt.Errorf("%w: comment must have at most %d characters", ErrInvalidInput, comments.MaxBodyLen)
	}

	exists, err := s.locations.Exists(ctx, in.LocationID)
	if err != nil {
		s.obs.StoreFailure("comment.create.location", err)
		return nil, ErrCreate
	}
	if !exists {
		return nil, fmt.Errorf("%w: location %d", ErrNotFound, in.LocationID)
	}

	iconIDs := dedupe(in.IconIDs)
	if len(iconIDs) > 0 {
		icons, err := s.comments.IconsByIDs(ctx, iconIDs)
		if err != nil {
			s.obs.StoreFailure("comment.create.icons", err)
			return nil, ErrCreate
		}
		if len(icons) != len(iconIDs) {
			return nil, fmt.Errorf("%w: comment icon", ErrNotFound)
		}
	}

	for _, f := range in.Images {
		if !objectstore.Allowed(f.ContentType) {
			return nil, fmt.Errorf("%w: got %q", ErrInvalidImage, f.ContentType)
		}
	}

	var paths []string
	for _, f := range in.Images {
		p, err := s.files.Upload(ctx, f)
		if err != nil {
			s.obs.StoreFailure("comment.create.upload", err)
			s.cleanup(ctx, "comment.create", paths)
			return nil, ErrCreate
		}
		paths = append(paths, p)
	}

	c := &comments.Comment{
		UserName:   in.UserName,
		Rating:     in.Rating,
		Body:       in.Comment,
		LocationID: in.LocationID,
		Status:     comments.StatusPending,
		Images:     paths,
		IconIDs:    iconIDs,
	}
	err = s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Comments.Create(ctx, c)
	})
	if err != nil {
		s.obs.StoreFailure("comment.create", err)
		s.cleanup(ctx, "comment.create", paths)
		return nil, ErrCreate
	}

	s.obs.CommentCreated(c.ID, c.LocationID, len(paths))
	return s.hydrateOne(ctx, c)
}

// Transition moves a pending comment to approved or rejected. The status check
// and every write happen in one transaction holding the comment row lock.
func (s *Service) Transition(ctx context.Context, commentID int64, target string) (*TransitionResult, error) {
	if target != comments.StatusApproved && target != comments.StatusRejected {
		return nil, ErrInvalidStatus
	}

	var (
		c      *comments.Comment
		rating *ratingChange
	)
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		c, err = s.lockPending(ctx, tx, commentID)
		if err != nil {
			return err
		}

		if target == comments.StatusRejected {
			return tx.Comments.Delete(ctx, c.ID)
		}

		if err := tx.Comments.UpdateStatus(ctx, c.ID, comments.StatusApproved); err != nil {
			return err
		}
		c.Status = comments.StatusApproved

		avg, n, ok, err := UpdateAverage(ctx, tx.Locations, tx.Comments, c.LocationID, c.Rating)
		if err != nil {
			return err
		}
		if ok {
			rating = &ratingChange{locationID: c.LocationID, avg: avg, n: n}
		}

		return mergeLocationImages(ctx, tx.Locations, c.LocationID, c.Images)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotPending) {
			return nil, err
		}
		if target == comments.StatusRejected {
			s.obs.StoreFailure("comment.reject", err)
			return nil, ErrDelete
		}
		s.obs.StoreFailure("comment.approve", err)
		return nil, ErrUpdate
	}

	s.obs.CommentTransitioned(c.ID, target)

	if target == comments.StatusRejected {
		s.cleanup(ctx, "comment.reject", c.Images)
		return &TransitionResult{Deleted: true}, nil
	}

	if rating != nil {
		s.obs.RatingUpdated(rating.locationID, rating.avg, rating.n)
	}
	// The approval is committed; an icon lookup failure only costs the icons.
	view, err := s.hydrateOne(ctx, c)
	if err != nil {
		s.obs.StoreFailure("comment.approve.hydrate", err)
		bare := *c
		bare.IconIDs = nil
		if view, err = s.hydrateOne(ctx, &bare); err != nil {
			return nil, ErrGeneric
		}
	}
	return &TransitionResult{Comment: view}, nil
}

type ratingChange struct {
	locationID int64
	avg        float64
	n          int
}

func (s *Service) lockPending(ctx context.Context, tx *storage.Tx, commentID int64) (*comments.Comment, error) {
	c, err := tx.Comments.GetForUpdate(ctx, commentID)
	if err != nil {
		if errors.Is(err, comments.ErrNotFound) {
			return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		return nil, err
	}
	if c.Status != comments.StatusPending {
		return nil, fmt.Errorf("%w: comment %d is %s", ErrNotPending, commentID, c.Status)
	}
	return c, nil
}

// Delete removes a comment of any status. The permission gate runs before the
// store is touched, so an unauthorized caller learns nothing about commentID.
func (s *Service) Delete(ctx context.Context, commentID int64, callerIsAuthorized bool) (bool, error) {
	if !callerIsAuthorized {
		return false, ErrPermissionDenied
	}

	var c *comments.Comment
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		c, err = tx.Comments.GetForUpdate(ctx, commentID)
		if err != nil {
			if errors.Is(err, comments.ErrNotFound) {
				return fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
			}
			return err
		}

		if len(c.Images) > 0 {
			if err := removeLocationImages(ctx, tx.Locations, c.LocationID, c.Images...); err != nil {
				return err
			}
		}
		if err := tx.Comments.Delete(ctx, c.ID); err != nil {
			return err
		}
		if c.Status == comments.StatusApproved {
			if _, _, _, err := Retract(ctx, tx.Locations, tx.Comments, c.LocationID, c.Rating); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		s.obs.StoreFailure("comment.delete", err)
		return false, ErrDelete
	}

	s.obs.CommentDeleted(c.ID)
	s.cleanup(ctx, "comment.delete", c.Images)
	return true, nil
}

// DeleteImage removes one image, addressed by its public id, from its comment
// and from the location gallery. Both lists change in one transaction; the
// stored file is removed afterwards on a best-effort basis.
func (s *Service) DeleteImage(ctx context.Context, imageID string) (bool, error) {
	var ref *comments.ImageRef
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ref, err = tx.Comments.FindImage(ctx, imageID)
		if err != nil {
			if errors.Is(err, comments.ErrImageNotFound) {
				return fmt.Errorf("%w: image %s", ErrNotFound, imageID)
			}
			return err
		}

		c, err := tx.Comments.GetForUpdate(ctx, ref.CommentID)
		if err != nil {
			if errors.Is(err, comments.ErrNotFound) {
				return fmt.Errorf("%w: image %s", ErrNotFound, imageID)
			}
			return err
		}

		// A concurrent deletion may have committed while we waited on the lock.
		if !slices.Contains(c.Images, ref.Path) {
			return fmt.Errorf("%w: image %s", ErrNotFound, imageID)
		}

		remaining := slices.DeleteFunc(slices.Clone(c.Images), func(p string) bool { return p == ref.Path })
		if err := tx.Comments.SetImages(ctx, c.ID, remaining); err != nil {
			return err
		}
		if err := removeLocationImages(ctx, tx.Locations, c.LocationID, ref.Path); err != nil {
			return err
		}
		if err := tx.Comments.DeleteImageRef(ctx, imageID); err != nil {
			if errors.Is(err, comments.ErrImageNotFound) {
				return fmt.Errorf("%w: image %s", ErrNotFound, imageID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		s.obs.StoreFailure("comment.delete_image", err)
		return false, ErrDelete
	}

	s.obs.ImageDeleted(imageID, ref.CommentID)
	if !s.files.Delete(context.WithoutCancel(ctx), ref.Path) {
		s.obs.StorageCleanupFailed("comment.delete_image", []string{ref.Path})
	}
	return true, nil
}

// cleanup deletes files after the store reached its final state. Failures are
// reported and otherwise ignored.
func (s *Service) cleanup(ctx context.Context, op string, paths []string) {
	if len(paths) == 0 {
		return
	}
	if !s.files.DeleteMany(context.WithoutCancel(ctx), paths) {
		s.obs.StorageCleanupFailed(op, paths)
	}
}

// mergeLocationImages appends paths missing from the location gallery.
func mergeLocationImages(ctx context.Context, locs locations.Store, locationID int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	loc, err := locs.GetForUpdate(ctx, locationID)
	if err != nil {
		return err
	}

	merged := slices.Clone(loc.Images)
	changed := false
	for _, p := range paths {
		if !slices.Contains(merged, p) {
			merged = append(merged, p)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return locs.SetImages(ctx, locationID, merged)
}

// removeLocationImages drops paths from the location gallery when present.
func removeLocationImages(ctx context.Context, locs locations.Store, locationID int64, paths ...string) error {
	loc, err := locs.GetForUpdate(ctx, locationID)
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			return nil
		}
		return err
	}

	kept := slices.DeleteFunc(slices.Clone(loc.Images), func(p string) bool {
		return slices.Contains(paths, p)
	})
	if len(kept) == len(loc.Images) {
		return nil
	}
	return locs.SetImages(ctx, locationID, kept)
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
