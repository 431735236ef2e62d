package store

import "time"

// Section is the persisted content record of one page section.
type Section struct {
	ID        string         `json:"id"`
	Content   map[string]any `json:"content"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Reference names a payload key that points at an item of another
// collection, e.g. a post's "category".
type Reference struct {
	Field      string
	Collection string
}

// DefaultReferences are resolved on every collection fetch.
var DefaultReferences = []Reference{
	{Field: "category", Collection: "categories"},
}
