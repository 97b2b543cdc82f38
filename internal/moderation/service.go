package moderation

import (
	"context"
	"time"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/domain/storage"
	"acessolivre/internal/objectstore"
)

// UnitOfWork runs fn inside one store transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error
}

// FileStore is the storage gateway surface used by the service.
type FileStore interface {
	Upload(ctx context.Context, f objectstore.File) (string, error)
	Delete(ctx context.Context, path string) bool
	DeleteMany(ctx context.Context, paths []string) bool
}

// URLResolver turns stored paths into signed urls.
type URLResolver interface {
	Get(ctx context.Context, path string, expiry time.Duration) (string, error)
	GetMany(ctx context.Context, paths []string, expiry time.Duration) []string
}

type Deps struct {
	Tx        UnitOfWork
	Locations locations.Store
	Comments  comments.Store
	Files     FileStore
	URLs      URLResolver
	Observer  Observer
	URLExpiry time.Duration
}

// Service implements comment moderation, comment icons and the comment read paths.
type Service struct {
	tx        UnitOfWork
	locations locations.Store
	comments  comments.Store
	files     FileStore
	urls      URLResolver
	obs       Observer
	expiry    time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:        d.Tx,
		locations: d.Locations,
		comments:  d.Comments,
		files:     d.Files,
		urls:      d.URLs,
		obs:       d.Observer,
		expiry:    d.URLExpiry,
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.expiry <= 0 {
		s.expiry = time.Hour
	}
	return s
}
