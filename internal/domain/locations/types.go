package locations

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("location not found")
	ErrItemNotFound = errors.New("accessibility item not found")
)

type Location struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Top         float64   `json:"top"`
	Left        float64   `json:"left"`
	Images      []string  `json:"images"`     // stored paths, may be nil
	AvgRating   *float64  `json:"avg_rating"` // nil until the first approval on old rows
	ItemIDs     []int64   `json:"accessibility_item_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the slice of a location embedded in comment listings.
type Summary struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	AvgRating   *float64 `json:"avg_rating"`
	Description string   `json:"description"`
}

// Patch holds optional updates; nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Top         *float64
	Left        *float64
	ItemIDs     *[]int64
}

// Item is an accessibility tag such as "ramp" or "tactile floor".
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IconPath string `json:"icon_path"`
}
