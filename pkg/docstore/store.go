package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harun/daisy/internal/observability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// Document is one stored record.
type Document struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Config holds store configuration.
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store is a SQLite-backed document store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (and if needed creates) the database at cfg.DBPath.
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if cfg.DBPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
		now:    time.Now,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("Document store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			fields TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind, updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new document of the given kind.
func (s *Store) Create(ctx context.Context, kind string, fields map[string]any) (Document, error) {
	if kind == "" {
		return Document{}, errors.New("document kind is required")
	}
	if fields == nil {
		fields = map[string]any{}
	}

	now := s.now().UTC()
	doc := Document{
		ID:        uuid.New().String(),
		Kind:      kind,
		Fields:    fields,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, kind, fields, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Kind, string(data), doc.Version, now.UnixNano(), now.UnixNano(),
	)
	observability.RecordDocumentWrite("create", err == nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to insert document: %w", err)
	}

	s.logger.Debug().Str("document_id", doc.ID).Str("kind", kind).Msg("Document created")
	return doc, nil
}

// Update merges partial into the stored fields of document id.
func (s *Store) Update(ctx context.Context, id string, partial map[string]any) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT id, kind, fields, version, created_at, updated_at FROM documents WHERE id = ?`, id))
	if err != nil {
		observability.RecordDocumentWrite("update", false)
		return Document{}, err
	}

	for k, v := range partial {
		doc.Fields[k] = v
	}
	doc.Version++
	doc.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode fields: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET fields = ?, version = ?, updated_at = ? WHERE id = ?`,
		string(data), doc.Version, doc.UpdatedAt.UnixNano(), id,
	); err != nil {
		observability.RecordDocumentWrite("update", false)
		return Document{}, fmt.Errorf("failed to update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		observability.RecordDocumentWrite("update", false)
		return Document{}, fmt.Errorf("failed to commit update: %w", err)
	}

	observability.RecordDocumentWrite("update", true)
	s.logger.Debug().Str("document_id", id).Int("version", doc.Version).Msg("Document updated")
	return doc, nil
}

// Get loads document id.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, kind, fields, version, created_at, updated_at FROM documents WHERE id = ?`, id))
}

// List returns the most recently updated documents of kind, newest first.
func (s *Store) List(ctx context.Context, kind string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, fields, version, created_at, updated_at FROM documents
		 WHERE kind = ? ORDER BY updated_at DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc       Document
		fields    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&doc.ID, &doc.Kind, &fields, &doc.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &doc.Fields); err != nil {
		return Document{}, fmt.Errorf("failed to decode fields: %w", err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return doc, nil
}
