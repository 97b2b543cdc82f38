package storage

import (
	"context"
	"fmt"

	"acessolivre/internal/domain/admins"
	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Container struct {
	pool      *pgxpool.Pool // IMPORTANT: set the pool so WithTx works
	Locations locations.Store
	Comments  comments.Store
	Admins    admins.Store
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:      db,
		Locations: locations.NewRepository(db),
		Comments:  comments.NewRepository(db),
		Admins:    admins.NewRepository(db),
	}
}

// Tx is a temporary, tx-scoped set of repos for atomic units of work.
type Tx struct {
	Locations locations.Store
	Comments  comments.Store
}

// WithTx runs fn in one transaction; it commits only when fn returns nil.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	s := &Tx{
		Locations: locations.NewRepository(tx),
		Comments:  comments.NewRepository(tx),
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
