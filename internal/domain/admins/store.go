package admins

import (
	"context"
	"errors"

	"acessolivre/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Store interface {
	Create(ctx context.Context, a *Admin) error
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	GetByID(ctx context.Context, id int64) (*Admin, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

func (r *Repository) Create(ctx context.Context, a *Admin) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO admins (email, password_hash) VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, a.Email, string(a.Password.hash)).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.get(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM admins WHERE email = $1`, email)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Admin, error) {
	return r.get(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM admins WHERE id = $1`, id)
}

func (r *Repository) get(ctx context.Context, query string, arg any) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var (
		a    Admin
		hash string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&a.ID, &a.Email, &hash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Password.hash = []byte(hash)
	return &a, nil
}
