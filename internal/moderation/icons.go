package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/objectstore"
)

type IconPatch struct {
	Name  *string
	Image *objectstore.File
}

func (s *Service) CreateIcon(ctx context.Context, name string, image objectstore.File) (*IconView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !objectstore.Allowed(image.ContentType) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidImage, image.ContentType)
	}

	p, err := s.files.Upload(ctx, image)
	if err != nil {
		s.obs.StoreFailure("icon.create.upload", err)
		return nil, ErrCreate
	}

	ic := &comments.Icon{Name: name, IconPath: p}
	if err := s.comments.CreateIcon(ctx, ic); err != nil {
		s.obs.StoreFailure("icon.create", err)
		s.cleanup(ctx, "icon.create", []string{p})
		return nil, ErrCreate
	}

	v := s.iconViews(ctx, []comments.Icon{*ic})[0]
	return &v, nil
}

func (s *Service) ListIcons(ctx context.Context) ([]IconView, error) {
	icons, err := s.comments.ListIcons(ctx)
	if err != nil {
		s.obs.StoreFailure("icon.list", err)
		return nil, ErrGeneric
	}
	return s.iconViews(ctx, icons), nil
}

func (s *Service) GetIcon(ctx context.Context, id int64) (*IconView, error) {
	ic, err := s.getIcon(ctx, "icon.get", id)
	if err != nil {
		return nil, err
	}
	v := s.iconViews(ctx, []comments.Icon{*ic})[0]
	return &v, nil
}

func (s *Service) getIcon(ctx context.Context, op string, id int64) (*comments.Icon, error) {
	ic, err := s.comments.GetIcon(ctx, id)
	if err != nil {
		if errors.Is(err, comments.ErrIconNotFound) {
			return nil, fmt.Errorf("%w: comment icon %d", ErrNotFound, id)
		}
		s.obs.StoreFailure(op, err)
		return nil, ErrGeneric
	}
	return ic, nil
}

// UpdateIcon renames an icon and/or replaces its image. A replaced image file
// is deleted once the new path is stored.
func (s *Service) UpdateIcon(ctx context.Context, id int64, p IconPatch) (*IconView, error) {
	ic, err := s.getIcon(ctx, "icon.update", id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		ic.Name = name
	}

	var oldPath string
	if p.Image != nil {
		if !objectstore.Allowed(p.Image.ContentType) {
			return nil, fmt.Errorf("%w: got %q", ErrInvalidImage, p.Image.ContentType)
		}
		newPath, err := s.files.Upload(ctx, *p.Image)
		if err != nil {
			s.obs.StoreFailure("icon.update.upload", err)
			return nil, ErrUpdate
		}
		oldPath, ic.IconPath = ic.IconPath, newPath
	}

	if err := s.comments.UpdateIcon(ctx, ic); err != nil {
		if p.Image != nil {
			s.cleanup(ctx, "icon.update", []string{ic.IconPath})
		}
		if errors.Is(err, comments.ErrIconNotFound) {
			return nil, fmt.Errorf("%w: comment icon %d", ErrNotFound, id)
		}
		s.obs.StoreFailure("icon.update", err)
		return nil, ErrUpdate
	}

	if oldPath != "" && oldPath != ic.IconPath {
		s.cleanup(ctx, "icon.update", []string{oldPath})
	}

	v := s.iconViews(ctx, []comments.Icon{*ic})[0]
	return &v, nil
}

// DeleteIcon removes an icon and its links. Comments that used it are kept.
func (s *Service) DeleteIcon(ctx context.Context, id int64) (bool, error) {
	ic, err := s.getIcon(ctx, "icon.delete", id)
	if err != nil {
		return false, err
	}
	if err := s.comments.DeleteIcon(ctx, id); err != nil {
		if errors.Is(err, comments.ErrIconNotFound) {
			return false, fmt.Errorf("%w: comment icon %d", ErrNotFound, id)
		}
		s.obs.StoreFailure("icon.delete", err)
		return false, ErrDelete
	}
	s.cleanup(ctx, "icon.delete", []string{ic.IconPath})
	return true, nil
}
