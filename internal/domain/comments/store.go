package comments

import (
	"context"
	"errors"
	"path"
	"strings"

	"acessolivre/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	// Create inserts the comment with its icon links and image index rows.
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id int64) (*Comment, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Comment, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	SetImages(ctx context.Context, id int64, images []string) error
	Delete(ctx context.Context, id int64) error
	CountApproved(ctx context.Context, locationID int64) (int, error)
	ListByStatus(ctx context.Context, status string, skip, limit int) ([]Comment, error)
	ListByLocation(ctx context.Context, locationID int64, status string, skip, limit int) ([]Comment, error)
	// LockByLocation locks every comment of a location in id order.
	LockByLocation(ctx context.Context, locationID int64) ([]Comment, error)

	FindImage(ctx context.Context, imageID string) (*ImageRef, error)
	DeleteImageRef(ctx context.Context, imageID string) error

	CreateIcon(ctx context.Context, ic *Icon) error
	GetIcon(ctx context.Context, id int64) (*Icon, error)
	ListIcons(ctx context.Context) ([]Icon, error)
	IconsByIDs(ctx context.Context, ids []int64) ([]Icon, error)
	UpdateIcon(ctx context.Context, ic *Icon) error
	DeleteIcon(ctx context.Context, id int64) error
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

// imageID mirrors objectstore.ImageID; the domain layer does not depend on storage.
func imageID(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

const commentColumns = `id, user_name, rating, comment, location_id, status, images, created_at`

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	err := row.Scan(
		&c.ID,
		&c.UserName,
		&c.Rating,
		&c.Body,
		&c.LocationID,
		&c.Status,
		&c.Images,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, c *Comment) error {
	if c.Status == "" {
		c.Status = StatusPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO comments (user_name, rating, comment, location_id, status, images)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, c.UserName, c.Rating, c.Body, c.LocationID, c.Status, c.Images).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return err
	}

	if len(c.IconIDs) > 0 {
		_, err = r.db.Exec(ctx, `
			INSERT INTO comment_comment_icons (comment_id, icon_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
		`, c.ID, c.IconIDs)
		if err != nil {
			return err
		}
	}

	for _, p := range c.Images {
		_, err = r.db.Exec(ctx, `
			INSERT INTO comment_images (image_id, comment_id, path)
			VALUES ($1, $2, $3)
		`, imageID(p), c.ID, p)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachIcons(ctx, []*Comment{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachIcons(ctx, []*Comment{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE comments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetImages(ctx context.Context, id int64, images []string) error {
	tag, err := r.db.Exec(ctx, `UPDATE comments SET images = $2 WHERE id = $1`, id, images)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CountApproved(ctx context.Context, locationID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM comments
		WHERE location_id = $1 AND status = 'approved'
	`, locationID).Scan(&n)
	return n, err
}

func (r *Repository) ListByStatus(ctx context.Context, status string, skip, limit int) ([]Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, status, skip, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *Repository) ListByLocation(ctx context.Context, locationID int64, status string, skip, limit int) ([]Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE location_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4
	`, locationID, status, skip, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *Repository) LockByLocation(ctx context.Context, locationID int64) ([]Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE location_id = $1
		ORDER BY id
		FOR UPDATE
	`, locationID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *Repository) collect(ctx context.Context, rows pgx.Rows) ([]Comment, error) {
	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*Comment, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.attachIcons(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// attachIcons loads the icon links of every comment in one query.
func (r *Repository) attachIcons(ctx context.Context, cs []*Comment) error {
	if len(cs) == 0 {
		return nil
	}
	ids := make([]int64, len(cs))
	byID := make(map[int64]*Comment, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	rows, err := r.db.Query(ctx, `
		SELECT comment_id, icon_id
		FROM comment_comment_icons
		WHERE comment_id = ANY($1)
		ORDER BY comment_id, icon_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var commentID, iconID int64
		if err := rows.Scan(&commentID, &iconID); err != nil {
			return err
		}
		if c, ok := byID[commentID]; ok {
			c.IconIDs = append(c.IconIDs, iconID)
		}
	}
	return rows.Err()
}

func (r *Repository) FindImage(ctx context.Context, id string) (*ImageRef, error) {
	var ref ImageRef
	err := r.db.QueryRow(ctx, `
		SELECT image_id, comment_id, path FROM comment_images WHERE image_id = $1
	`, id).Scan(&ref.ImageID, &ref.CommentID, &ref.Path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (r *Repository) DeleteImageRef(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comment_images WHERE image_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (r *Repository) CreateIcon(ctx context.Context, ic *Icon) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO comment_icons (name, icon_path)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, ic.Name, ic.IconPath).Scan(&ic.ID, &ic.CreatedAt, &ic.UpdatedAt)
}

func (r *Repository) GetIcon(ctx context.Context, id int64) (*Icon, error) {
	var ic Icon
	err := r.db.QueryRow(ctx, `
		SELECT id, name, icon_path, created_at, updated_at FROM comment_icons WHERE id = $1
	`, id).Scan(&ic.ID, &ic.Name, &ic.IconPath, &ic.CreatedAt, &ic.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIconNotFound
		}
		return nil, err
	}
	return &ic, nil
}

func (r *Repository) ListIcons(ctx context.Context) ([]Icon, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, icon_path, created_at, updated_at FROM comment_icons ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Icon])
}

func (r *Repository) IconsByIDs(ctx context.Context, ids []int64) ([]Icon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, name, icon_path, created_at, updated_at FROM comment_icons
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Icon])
}

func (r *Repository) UpdateIcon(ctx context.Context, ic *Icon) error {
	err := r.db.QueryRow(ctx, `
		UPDATE comment_icons
		SET name = $2, icon_path = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, ic.ID, ic.Name, ic.IconPath).Scan(&ic.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrIconNotFound
	}
	return err
}

func (r *Repository) DeleteIcon(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comment_icons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIconNotFound
	}
	return nil
}
