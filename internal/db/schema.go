package db

import (
	"context"
	"fmt"

	"acessolivre/internal/infra/dbx"
)

// Migrate creates all tables needed by the API.
// Safe to call multiple times - uses IF NOT EXISTS.
func Migrate(ctx context.Context, q dbx.Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS admins (
    id            BIGSERIAL PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS locations (
    id          BIGSERIAL PRIMARY KEY,
    name        VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    top         DOUBLE PRECISION NOT NULL DEFAULT 0,
    "left"      DOUBLE PRECISION NOT NULL DEFAULT 0,
    images      TEXT[],
    avg_rating  DOUBLE PRECISION DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accessibility_items (
    id        BIGSERIAL PRIMARY KEY,
    name      TEXT NOT NULL,
    icon_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS location_accessibility (
    location_id BIGINT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
    item_id     BIGINT NOT NULL REFERENCES accessibility_items(id) ON DELETE CASCADE,
    PRIMARY KEY (location_id, item_id)
);

CREATE TABLE IF NOT EXISTS comments (
    id          BIGSERIAL PRIMARY KEY,
    user_name   VARCHAR(30) NOT NULL,
    rating      INTEGER NOT NULL CONSTRAINT rating_range CHECK (rating >= 1 AND rating <= 5),
    comment     VARCHAR(500) NOT NULL,
    location_id BIGINT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
    status      VARCHAR(50) NOT NULL DEFAULT 'pending'
                CONSTRAINT status_values CHECK (status IN ('pending', 'approved', 'rejected')),
    images      TEXT[],
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comments_status_created ON comments(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_comments_location_status ON comments(location_id, status);

CREATE TABLE IF NOT EXISTS comment_icons (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    icon_path  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS comment_comment_icons (
    comment_id BIGINT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
    icon_id    BIGINT NOT NULL REFERENCES comment_icons(id) ON DELETE CASCADE,
    PRIMARY KEY (comment_id, icon_id)
);

-- image id (file name without extension) -> owning comment
CREATE TABLE IF NOT EXISTS comment_images (
    image_id   TEXT PRIMARY KEY,
    comment_id BIGINT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
    path       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comment_images_comment ON comment_images(comment_id);
`
