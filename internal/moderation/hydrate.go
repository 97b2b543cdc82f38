package moderation

import (
	"context"
	"time"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/objectstore"
)

// ImageView is a stored image presented to clients. ID is the public image
// identifier accepted by DeleteImage.
type ImageView struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type IconView struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
}

type CommentView struct {
	ID         int64              `json:"id"`
	UserName   string             `json:"user_name"`
	Rating     int                `json:"rating"`
	Comment    string             `json:"comment"`
	LocationID int64              `json:"location_id"`
	Status     string             `json:"status"`
	Images     []ImageView        `json:"images"`
	Icons      []IconView         `json:"comment_icons"`
	CreatedAt  time.Time          `json:"created_at"`
	Location   *locations.Summary `json:"location,omitempty"`
}

// ImageViews resolves stored paths to signed urls in one batch. Nil input
// yields an empty slice; paths whose url could not be resolved are dropped.
func ImageViews(ctx context.Context, urls URLResolver, paths []string, expiry time.Duration) []ImageView {
	out := make([]ImageView, 0, len(paths))
	if len(paths) == 0 {
		return out
	}
	resolved := urls.GetMany(ctx, paths, expiry)
	for i, p := range paths {
		if resolved[i] == "" {
			continue
		}
		out = append(out, ImageView{ID: objectstore.ImageID(p), URL: resolved[i]})
	}
	return out
}

func (s *Service) iconViews(ctx context.Context, icons []comments.Icon) []IconView {
	paths := make([]string, len(icons))
	for i, ic := range icons {
		paths[i] = ic.IconPath
	}
	resolved := s.urls.GetMany(ctx, paths, s.expiry)

	out := make([]IconView, len(icons))
	for i, ic := range icons {
		out[i] = IconView{ID: ic.ID, Name: ic.Name, IconURL: resolved[i]}
	}
	return out
}

// hydrate turns comments into views with one url batch for all images and one
// icon lookup for all icon references.
func (s *Service) hydrate(ctx context.Context, cs []comments.Comment) ([]CommentView, error) {
	var (
		allPaths []string
		iconIDs  []int64
		seenIcon = map[int64]bool{}
	)
	for _, c := range cs {
		allPaths = append(allPaths, c.Images...)
		for _, id := range c.IconIDs {
			if !seenIcon[id] {
				seenIcon[id] = true
				iconIDs = append(iconIDs, id)
			}
		}
	}

	resolved := s.urls.GetMany(ctx, allPaths, s.expiry)

	iconsByID := map[int64]IconView{}
	if len(iconIDs) > 0 {
		icons, err := s.comments.IconsByIDs(ctx, iconIDs)
		if err != nil {
			return nil, err
		}
		for _, v := range s.iconViews(ctx, icons) {
			iconsByID[v.ID] = v
		}
	}

	out := make([]CommentView, len(cs))
	offset := 0
	for i, c := range cs {
		images := make([]ImageView, 0, len(c.Images))
		for j, p := range c.Images {
			if url := resolved[offset+j]; url != "" {
				images = append(images, ImageView{ID: objectstore.ImageID(p), URL: url})
			}
		}
		offset += len(c.Images)

		icons := make([]IconView, 0, len(c.IconIDs))
		for _, id := range c.IconIDs {
			if v, ok := iconsByID[id]; ok {
				icons = append(icons, v)
			}
		}

		out[i] = CommentView{
			ID:         c.ID,
			UserName:   c.UserName,
			Rating:     c.Rating,
			Comment:    c.Body,
			LocationID: c.LocationID,
			Status:     c.Status,
			Images:     images,
			Icons:      icons,
			CreatedAt:  c.CreatedAt,
		}
	}
	return out, nil
}

func (s *Service) hydrateOne(ctx context.Context, c *comments.Comment) (*CommentView, error) {
	views, err := s.hydrate(ctx, []comments.Comment{*c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
