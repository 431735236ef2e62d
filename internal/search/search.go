// Package search indexes saved section content and queries it, preferring
// Meilisearch and falling back to Postgres full-text search.
package search

import (
	"sort"
	"strings"
	"time"
)

// Result is a single search hit returned to the caller.
type Result struct {
	SectionID string `json:"sectionId"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// SectionRecord is the data we index for a section.
type SectionRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Visible   bool   `json:"visible"`
	UpdatedAt int64  `json:"updatedAt"`
}

var titleFields = []string{"headline", "title", "heading"}

// RecordFromContent flattens section content into an indexable record. Every
// string value, including one level of nesting, contributes to Body.
func RecordFromContent(sectionID string, content map[string]any, updatedAt time.Time) SectionRecord {
	rec := SectionRecord{
		ID:        sectionID,
		Title:     sectionID,
		Visible:   true,
		UpdatedAt: updatedAt.Unix(),
	}
	for _, field := range titleFields {
		if v, ok := content[field].(string); ok && strings.TrimSpace(v) != "" {
			rec.Title = v
			break
		}
	}
	if v, ok := content["visible"].(bool); ok {
		rec.Visible = v
	}
	rec.Body = strings.Join(collectText(content), " ")
	return rec
}

func collectText(content map[string]any) []string {
	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []string
	for _, key := range keys {
		switch v := content[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		case map[string]any:
			out = append(out, collectText(v)...)
		}
	}
	return out
}
