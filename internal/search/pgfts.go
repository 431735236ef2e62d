package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const sectionVector = "to_tsvector('simple', content::text)"

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()
	tsQuery := "plainto_tsquery('simple', $1)"

	var total int
	countSQL := fmt.Sprintf(`SELECT count(*) FROM section_content WHERE %s @@ %s`, sectionVector, tsQuery)
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT section_id,
			COALESCE(content->>'headline', content->>'title', content->>'heading', section_id) AS title,
			ts_headline('simple', content::text, %[2]s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM section_content
		WHERE %[1]s @@ %[2]s
		ORDER BY ts_rank(%[1]s, %[2]s) DESC, section_id
		LIMIT %[3]d OFFSET %[4]d`, sectionVector, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SectionID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every saved section for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SectionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT section_id, content, updated_at FROM section_content`)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()

	records := make([]SectionRecord, 0)
	for rows.Next() {
		var (
			id        string
			raw       []byte
			updatedAt time.Time
			content   map[string]any
		)
		if err := rows.Scan(&id, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, fmt.Errorf("decode section %s: %w", id, err)
		}
		records = append(records, RecordFromContent(id, content, updatedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return records, nil
}
