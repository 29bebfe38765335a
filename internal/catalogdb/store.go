// Package catalogdb stores catalog templates in SQLite.
package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/atelier/pkg/catalog"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY,
	typology   TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 0,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_templates_typology ON templates (typology);
`

// Store implements template storage with SQLite. Each row holds the
// JSON-encoded descriptor plus the columns used for lookups.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory catalog.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put validates and upserts a template. A re-put keeps the template's
// registration position.
func (s *Store) Put(ctx context.Context, t *catalog.TemplateDescriptor) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to serialize template: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, typology, priority, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET typology = excluded.typology, priority = excluded.priority,
		 body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Typology, t.Priority, string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to write template %s: %w", t.ID, err)
	}
	return nil
}

// Get retrieves a template by ID. A missing template wraps catalog.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*catalog.TemplateDescriptor, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM templates WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return decode(id, body)
}

// Fetch has the shape of a loader fetch function.
func (s *Store) Fetch(ctx context.Context, id string) (*catalog.TemplateDescriptor, error) {
	return s.Get(ctx, id)
}

// TemplateIDs returns the ids registered under typology in registration order.
func (s *Store) TemplateIDs(ctx context.Context, typology string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM templates WHERE typology = ? ORDER BY rowid`, typology)
	if err != nil {
		return nil, fmt.Errorf("failed to read typology index: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan template id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Record is a stored template with its bookkeeping timestamps.
type Record struct {
	Template  *catalog.TemplateDescriptor
	CreatedAt time.Time
	UpdatedAt time.Time
}

// List returns every stored template sorted by ID.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, created_at, updated_at FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id, body string
			rec      Record
		)
		if err := rows.Scan(&id, &body, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if rec.Template, err = decode(id, body); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListTemplates returns every stored descriptor sorted by ID.
func (s *Store) ListTemplates(ctx context.Context) ([]*catalog.TemplateDescriptor, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	templates := make([]*catalog.TemplateDescriptor, len(records))
	for i, r := range records {
		templates[i] = r.Template
	}
	return templates, nil
}

// Delete removes a template. Deleting a missing template is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func decode(id, body string) (*catalog.TemplateDescriptor, error) {
	var t catalog.TemplateDescriptor
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("failed to deserialize template %s: %w", id, err)
	}
	return &t, nil
}
