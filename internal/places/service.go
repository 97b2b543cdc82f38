package places

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"acessolivre/internal/domain/locations"
	"acessolivre/internal/domain/storage"
	"acessolivre/internal/moderation"
	"acessolivre/internal/objectstore"
	"acessolivre/internal/params"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxNameLen       = 200
)

type Deps struct {
	Tx        moderation.UnitOfWork
	Locations locations.Store
	Files     moderation.FileStore
	URLs      moderation.URLResolver
	Observer  moderation.Observer
	URLExpiry time.Duration
}

// Service manages locations, their galleries and accessibility items. Errors
// use the moderation sentinels so callers map them in one place.
type Service struct {
	tx        moderation.UnitOfWork
	locations locations.Store
	files     moderation.FileStore
	urls      moderation.URLResolver
	obs       moderation.Observer
	expiry    time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:        d.Tx,
		locations: d.Locations,
		files:     d.Files,
		urls:      d.URLs,
		obs:       d.Observer,
		expiry:    d.URLExpiry,
	}
	if s.obs == nil {
		s.obs = moderation.NopObserver()
	}
	if s.expiry <= 0 {
		s.expiry = time.Hour
	}
	return s
}

type ItemView struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
}

type LocationView struct {
	ID                 int64                  `json:"id"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description"`
	Top                float64                `json:"top"`
	Left               float64                `json:"left"`
	Images             []moderation.ImageView `json:"images"`
	AvgRating          float64                `json:"avg_rating"`
	AccessibilityItems []ItemView             `json:"accessibility_items"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

type CreateInput struct {
	Name        string
	Description string
	Top         float64
	Left        float64
	ItemIDs     []int64
}

func (s *Service) CreateLocation(ctx context.Context, in CreateInput) (*LocationView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > MaxNameLen {
		return nil, fmt.Errorf("%w: name must have 1 to %d characters", moderation.ErrInvalidInput, MaxNameLen)
	}
	if err := s.checkItems(ctx, in.ItemIDs); err != nil {
		return nil, err
	}

	l := &locations.Location{
		Name:        in.Name,
		Description: in.Description,
		Top:         in.Top,
		Left:        in.Left,
		ItemIDs:     in.ItemIDs,
	}
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Locations.Create(ctx, l)
	})
	if err != nil {
		s.obs.StoreFailure("location.create", err)
		return nil, moderation.ErrCreate
	}
	return s.view(ctx, l)
}

// ListLocations returns a page of locations ordered by id.
func (s *Service) ListLocations(ctx context.Context, skip, limit int) ([]LocationView, error) {
	ls, err := s.locations.List(ctx, params.ClampSkip(skip), params.ClampLimit(limit, DefaultListLimit, MaxListLimit))
	if err != nil {
		s.obs.StoreFailure("location.list", err)
		return nil, moderation.ErrGeneric
	}

	out := make([]LocationView, 0, len(ls))
	for i := range ls {
		v, err := s.view(ctx, &ls[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *Service) GetLocation(ctx context.Context, id int64) (*LocationView, error) {
	l, err := s.locations.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupErr("location.get", id, err)
	}
	return s.view(ctx, l)
}

func (s *Service) UpdateLocation(ctx context.Context, id int64, p locations.Patch) (*LocationView, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || len(name) > MaxNameLen {
			return nil, fmt.Errorf("%w: name must have 1 to %d characters", moderation.ErrInvalidInput, MaxNameLen)
		}
		p.Name = &name
	}
	if p.ItemIDs != nil {
		if err := s.checkItems(ctx, *p.ItemIDs); err != nil {
			return nil, err
		}
	}

	var l *locations.Location
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		l, err = tx.Locations.Update(ctx, id, p)
		return err
	})
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			return nil, fmt.Errorf("%w: location %d", moderation.ErrNotFound, id)
		}
		s.obs.StoreFailure("location.update", err)
		return nil, moderation.ErrUpdate
	}
	return s.view(ctx, l)
}

// DeleteLocation removes a location with its comments. Gallery and comment
// files are deleted after the commit on a best-effort basis.
func (s *Service) DeleteLocation(ctx context.Context, id int64) (bool, error) {
	var paths []string
	err := s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		// Comment rows are locked before the location row, the same order
		// moderation takes them in.
		cs, err := tx.Comments.LockByLocation(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range cs {
			paths = append(paths, c.Images...)
		}
		images, err := tx.Locations.Delete(ctx, id)
		if err != nil {
			return err
		}
		paths = append(paths, images...)
		return nil
	})
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			return false, fmt.Errorf("%w: location %d", moderation.ErrNotFound, id)
		}
		s.obs.StoreFailure("location.delete", err)
		return false, moderation.ErrDelete
	}

	slices.Sort(paths)
	paths = slices.Compact(paths)
	if len(paths) > 0 && !s.files.DeleteMany(context.WithoutCancel(ctx), paths) {
		s.obs.StorageCleanupFailed("location.delete", paths)
	}
	return true, nil
}

// AddImages uploads files and appends them to the location gallery.
func (s *Service) AddImages(ctx context.Context, id int64, files []objectstore.File) (*LocationView, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", moderation.ErrInvalidInput)
	}
	for _, f := range files {
		if !objectstore.Allowed(f.ContentType) {
			return nil, fmt.Errorf("%w: got %q", moderation.ErrInvalidImage, f.ContentType)
		}
	}
	exists, err := s.locations.Exists(ctx, id)
	if err != nil {
		s.obs.StoreFailure("location.add_images", err)
		return nil, moderation.ErrUpdate
	}
	if !exists {
		return nil, fmt.Errorf("%w: location %d", moderation.ErrNotFound, id)
	}

	var uploaded []string
	for _, f := range files {
		p, err := s.files.Upload(ctx, f)
		if err != nil {
			s.obs.StoreFailure("location.add_images.upload", err)
			s.discard(ctx, uploaded)
			return nil, moderation.ErrUpdate
		}
		uploaded = append(uploaded, p)
	}

	var l *locations.Location
	err = s.tx.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		l, err = tx.Locations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		l.Images = append(l.Images, uploaded...)
		return tx.Locations.SetImages(ctx, id, l.Images)
	})
	if err != nil {
		s.discard(ctx, uploaded)
		if errors.Is(err, locations.ErrNotFound) {
			return nil, fmt.Errorf("%w: location %d", moderation.ErrNotFound, id)
		}
		s.obs.StoreFailure("location.add_images", err)
		return nil, moderation.ErrUpdate
	}
	if l.ItemIDs == nil {
		if full, err := s.locations.GetByID(ctx, id); err == nil {
			l.ItemIDs = full.ItemIDs
		}
	}
	return s.view(ctx, l)
}

func (s *Service) CreateItem(ctx context.Context, name string, icon objectstore.File) (*ItemView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", moderation.ErrInvalidInput)
	}
	if !objectstore.Allowed(icon.ContentType) {
		return nil, fmt.Errorf("%w: got %q", moderation.ErrInvalidImage, icon.ContentType)
	}
	p, err := s.files.Upload(ctx, icon)
	if err != nil {
		s.obs.StoreFailure("item.create.upload", err)
		return nil, moderation.ErrCreate
	}

	it := &locations.Item{Name: name, IconPath: p}
	if err := s.locations.CreateItem(ctx, it); err != nil {
		s.obs.StoreFailure("item.create", err)
		s.discard(ctx, []string{p})
		return nil, moderation.ErrCreate
	}
	v := s.itemViews(ctx, []locations.Item{*it})[0]
	return &v, nil
}

func (s *Service) ListItems(ctx context.Context) ([]ItemView, error) {
	items, err := s.locations.ListItems(ctx)
	if err != nil {
		s.obs.StoreFailure("item.list", err)
		return nil, moderation.ErrGeneric
	}
	return s.itemViews(ctx, items), nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (*ItemView, error) {
	it, err := s.locations.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, locations.ErrItemNotFound) {
			return nil, fmt.Errorf("%w: accessibility item %d", moderation.ErrNotFound, id)
		}
		s.obs.StoreFailure("item.get", err)
		return nil, moderation.ErrGeneric
	}
	v := s.itemViews(ctx, []locations.Item{*it})[0]
	return &v, nil
}

func (s *Service) checkItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	items, err := s.locations.ItemsByIDs(ctx, unique)
	if err != nil {
		s.obs.StoreFailure("item.lookup", err)
		return moderation.ErrGeneric
	}
	if len(items) != len(unique) {
		return fmt.Errorf("%w: accessibility item", moderation.ErrNotFound)
	}
	return nil
}

func (s *Service) lookupErr(op string, id int64, err error) error {
	if errors.Is(err, locations.ErrNotFound) {
		return fmt.Errorf("%w: location %d", moderation.ErrNotFound, id)
	}
	s.obs.StoreFailure(op, err)
	return moderation.ErrGeneric
}

func (s *Service) discard(ctx context.Context, paths []string) {
	if len(paths) > 0 && !s.files.DeleteMany(context.WithoutCancel(ctx), paths) {
		s.obs.StorageCleanupFailed("location.discard", paths)
	}
}

func (s *Service) itemViews(ctx context.Context, items []locations.Item) []ItemView {
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.IconPath
	}
	urls := s.urls.GetMany(ctx, paths, s.expiry)

	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = ItemView{ID: it.ID, Name: it.Name, IconURL: urls[i]}
	}
	return out
}

// view hydrates a location: images become signed urls (never null), a missing
// average reads as 0 and item ids become full items.
func (s *Service) view(ctx context.Context, l *locations.Location) (*LocationView, error) {
	avg := 0.0
	if l.AvgRating != nil {
		avg = *l.AvgRating
	}

	items := []ItemView{}
	if len(l.ItemIDs) > 0 {
		its, err := s.locations.ItemsByIDs(ctx, l.ItemIDs)
		if err != nil {
			s.obs.StoreFailure("location.items", err)
			return nil, moderation.ErrGeneric
		}
		items = s.itemViews(ctx, its)
	}

	return &LocationView{
		ID:                 l.ID,
		Name:               l.Name,
		Description:        l.Description,
		Top:                l.Top,
		Left:               l.Left,
		Images:             moderation.ImageViews(ctx, s.urls, l.Images, s.expiry),
		AvgRating:          avg,
		AccessibilityItems: items,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}, nil
}
