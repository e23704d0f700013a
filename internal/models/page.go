package models

import (
	"time"
)

// PageQuery windows a listing. A Limit of zero or less means no limit.
// Since and SinceID keep only rows strictly newer than the cursor. A non-zero
// ViewerID hides crabs and molts on either side of a block with the viewer.
type PageQuery struct {
	Limit    int
	Offset   int
	Since    *time.Time
	SinceID  uint
	ViewerID uint
}

// Page is one window of a listing.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Count  int   `json:"count"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// NewPage builds a page from a window of items and the unwindowed total.
func NewPage[T any](items []T, total int64, q PageQuery) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:  items,
		Total:  total,
		Count:  len(items),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

// Ranked pairs an entity with the aggregate it was ranked by.
type Ranked[T any] struct {
	Item  T     `json:"item"`
	Count int64 `json:"count"`
}
