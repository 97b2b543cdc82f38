package locations

import (
	"context"
	"errors"

	"acessolivre/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Create(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id int64) (*Location, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Location, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, skip, limit int) ([]Location, error)
	Update(ctx context.Context, id int64, p Patch) (*Location, error)
	// Delete removes the location and returns the image paths it held.
	Delete(ctx context.Context, id int64) ([]string, error)
	SetAvgRating(ctx context.Context, id int64, avg float64) error
	SetImages(ctx context.Context, id int64, images []string) error
	Summaries(ctx context.Context, ids []int64) (map[int64]Summary, error)

	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, id int64) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	ItemsByIDs(ctx context.Context, ids []int64) ([]Item, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

const locationColumns = `id, name, description, top, "left", images, avg_rating, created_at, updated_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Description,
		&l.Top,
		&l.Left,
		&l.Images,
		&l.AvgRating,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) Create(ctx context.Context, l *Location) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO locations (name, description, top, "left", images, avg_rating)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING id, avg_rating, created_at, updated_at
	`, l.Name, l.Description, l.Top, l.Left, l.Images).Scan(&l.ID, &l.AvgRating, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return err
	}
	return r.linkItems(ctx, l.ID, l.ItemIDs)
}

func (r *Repository) linkItems(ctx context.Context, locationID int64, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO location_accessibility (location_id, item_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, locationID, itemIDs)
	return err
}

func (r *Repository) itemIDs(ctx context.Context, locationID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT item_id FROM location_accessibility
		WHERE location_id = $1
		ORDER BY item_id
	`, locationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if l.ItemIDs, err = r.itemIDs(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*Location, error) {
	return scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) List(ctx context.Context, skip, limit int) ([]Location, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+locationColumns+`
		FROM locations
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, id int64, p Patch) (*Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, `
		UPDATE locations
		SET name        = COALESCE($2, name),
		    description = COALESCE($3, description),
		    top         = COALESCE($4, top),
		    "left"      = COALESCE($5, "left"),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING `+locationColumns, id, p.Name, p.Description, p.Top, p.Left))
	if err != nil {
		return nil, err
	}

	if p.ItemIDs != nil {
		if _, err := r.db.Exec(ctx, `DELETE FROM location_accessibility WHERE location_id = $1`, id); err != nil {
			return nil, err
		}
		if err := r.linkItems(ctx, id, *p.ItemIDs); err != nil {
			return nil, err
		}
	}
	if l.ItemIDs, err = r.itemIDs(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) ([]string, error) {
	var images []string
	err := r.db.QueryRow(ctx, `DELETE FROM locations WHERE id = $1 RETURNING images`, id).Scan(&images)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return images, nil
}

func (r *Repository) SetAvgRating(ctx context.Context, id int64, avg float64) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET avg_rating = $2, updated_at = NOW() WHERE id = $1`, id, avg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetImages(ctx context.Context, id int64, images []string) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET images = $2, updated_at = NOW() WHERE id = $1`, id, images)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Summaries(ctx context.Context, ids []int64) (map[int64]Summary, error) {
	out := make(map[int64]Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, name, avg_rating, description
		FROM locations
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.AvgRating, &s.Description); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (r *Repository) CreateItem(ctx context.Context, it *Item) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO accessibility_items (name, icon_path)
		VALUES ($1, $2)
		RETURNING id
	`, it.Name, it.IconPath).Scan(&it.ID)
}

func (r *Repository) GetItem(ctx context.Context, id int64) (*Item, error) {
	var it Item
	err := r.db.QueryRow(ctx, `SELECT id, name, icon_path FROM accessibility_items WHERE id = $1`, id).
		Scan(&it.ID, &it.Name, &it.IconPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, icon_path FROM accessibility_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Item])
}

func (r *Repository) ItemsByIDs(ctx context.Context, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, name, icon_path FROM accessibility_items
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Item])
}
