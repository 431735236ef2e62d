package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitecms/api/internal/order"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrOrderMismatch = errors.New("ordering does not match stored collection")
)

type PostgresStore struct {
	db         *sql.DB
	references []Reference
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, references: DefaultReferences}
}

// WithReferences replaces the reference fields resolved on fetch.
func (s *PostgresStore) WithReferences(refs []Reference) *PostgresStore {
	s.references = refs
	return s
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FetchOrderedCollection returns the items of collectionType by ascending
// position. References to items that no longer exist read as uncategorized.
func (s *PostgresStore) FetchOrderedCollection(ctx context.Context, collectionType string) ([]order.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload
		FROM collection_items
		WHERE collection_type=$1
		ORDER BY position ASC
	`, collectionType)
	if err != nil {
		return nil, fmt.Errorf("fetch collection %s: %w", collectionType, err)
	}
	defer rows.Close()

	items := make([]order.Item, 0)
	for rows.Next() {
		var item order.Item
		var payload []byte
		if err := rows.Scan(&item.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan collection item: %w", err)
		}
		if err := json.Unmarshal(payload, &item.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection items: %w", err)
	}

	if err := s.resolveReferences(ctx, collectionType, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) resolveReferences(ctx context.Context, collectionType string, items []order.Item) error {
	for _, ref := range s.references {
		if ref.Collection == collectionType {
			continue
		}
		var known map[string]struct{}
		for i := range items {
			raw, ok := items[i].Payload[ref.Field]
			if !ok {
				continue
			}
			if known == nil {
				ids, err := s.collectionIDs(ctx, ref.Collection)
				if err != nil {
					return err
				}
				known = make(map[string]struct{}, len(ids))
				for _, id := range ids {
					known[id] = struct{}{}
				}
			}
			value, _ := raw.(string)
			items[i].Payload[ref.Field] = order.ResolveReference(value, known)
		}
	}
	return nil
}

func (s *PostgresStore) collectionIDs(ctx context.Context, collectionType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM collection_items WHERE collection_type=$1 ORDER BY position ASC
	`, collectionType)
	if err != nil {
		return nil, fmt.Errorf("list ids of %s: %w", collectionType, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PersistOrder rewrites every position of collectionType in one transaction.
// positions must name exactly the stored items. Writing the same payload
// twice leaves the same state.
func (s *PostgresStore) PersistOrder(ctx context.Context, collectionType string, positions []order.Position) error {
	if err := order.ValidatePositions(positions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM collection_items WHERE collection_type=$1 FOR UPDATE
	`, collectionType)
	if err != nil {
		return fmt.Errorf("lock collection %s: %w", collectionType, err)
	}
	stored := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan id: %w", err)
		}
		stored[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ids: %w", err)
	}

	if !sameIDSet(stored, positions) {
		return fmt.Errorf("%w: %s", ErrOrderMismatch, collectionType)
	}

	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, `
			UPDATE collection_items
			SET position=$3, updated_at=NOW()
			WHERE collection_type=$1 AND id=$2 AND position<>$3
		`, collectionType, p.ID, p.Position); err != nil {
			return fmt.Errorf("update position of %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist order: %w", err)
	}
	return nil
}

func sameIDSet(stored map[string]struct{}, positions []order.Position) bool {
	if len(stored) != len(positions) {
		return false
	}
	for _, p := range positions {
		if _, ok := stored[p.ID]; !ok {
			return false
		}
	}
	return true
}

// InsertItem appends an item at the end of collectionType.
func (s *PostgresStore) InsertItem(ctx context.Context, collectionType string, item order.Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("item id is required")
	}
	payload := item.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collection_items (collection_type, id, position, payload)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM collection_items WHERE collection_type=$1),
			$3)
	`, collectionType, item.ID, raw)
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItem removes one item and closes the gap it leaves. Other
// collections are untouched.
func (s *PostgresStore) DeleteItem(ctx context.Context, collectionType, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int
	err = tx.QueryRowContext(ctx, `
		DELETE FROM collection_items
		WHERE collection_type=$1 AND id=$2
		RETURNING position
	`, collectionType, id).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE collection_items
		SET position=position-1, updated_at=NOW()
		WHERE collection_type=$1 AND position>$2
	`, collectionType, position); err != nil {
		return fmt.Errorf("compact %s: %w", collectionType, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete item: %w", err)
	}
	return nil
}

// FetchSectionContent returns ErrNotFound for a section never saved.
func (s *PostgresStore) FetchSectionContent(ctx context.Context, sectionID string) (Section, error) {
	section := Section{ID: sectionID}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content, updated_at FROM section_content WHERE section_id=$1
	`, sectionID).Scan(&raw, &section.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, ErrNotFound
	}
	if err != nil {
		return Section{}, fmt.Errorf("fetch section %s: %w", sectionID, err)
	}
	if err := json.Unmarshal(raw, &section.Content); err != nil {
		return Section{}, fmt.Errorf("decode section %s: %w", sectionID, err)
	}
	return section, nil
}

// SaveSectionContent replaces the stored content and returns the
// database-assigned modification time.
func (s *PostgresStore) SaveSectionContent(ctx context.Context, sectionID string, content map[string]any) (time.Time, error) {
	if content == nil {
		content = map[string]any{}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal section %s: %w", sectionID, err)
	}

	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO section_content (section_id, content, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (section_id) DO UPDATE
		SET content=EXCLUDED.content, updated_at=NOW()
		RETURNING updated_at
	`, sectionID, raw).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("save section %s: %w", sectionID, err)
	}
	return updatedAt, nil
}

func (s *PostgresStore) ListSections(ctx context.Context) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, content, updated_at FROM section_content ORDER BY section_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	sections := make([]Section, 0)
	for rows.Next() {
		var section Section
		var raw []byte
		if err := rows.Scan(&section.ID, &raw, &section.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		if err := json.Unmarshal(raw, &section.Content); err != nil {
			return nil, fmt.Errorf("decode section %s: %w", section.ID, err)
		}
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return sections, nil
}
