package comments

import (
	"errors"
	"time"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"

	MaxUserNameLen = 30
	MaxBodyLen     = 500
)

var (
	ErrNotFound      = errors.New("comment not found")
	ErrIconNotFound  = errors.New("comment icon not found")
	ErrImageNotFound = errors.New("comment image not found")
)

type Comment struct {
	ID         int64     `json:"id"`
	UserName   string    `json:"user_name"`
	Rating     int       `json:"rating"` // 1-5
	Body       string    `json:"comment"`
	LocationID int64     `json:"location_id"`
	Status     string    `json:"status"`
	Images     []string  `json:"images"` // stored paths, may be nil
	IconIDs    []int64   `json:"comment_icon_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Icon is an admin managed tag that users may attach to a comment.
type Icon struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IconPath  string    `json:"icon_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImageRef is an entry of the image index: the public image id (file name
// without extension) and the comment holding it.
type ImageRef struct {
	ImageID   string
	CommentID int64
	Path      string
}
