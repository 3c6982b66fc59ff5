// Package records stores source documents (card exports and other JSON
// datasets) grouped by collection.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Record is one JSON document from a source collection.
type Record struct {
	ID     string
	Fields map[string]any
}

// IDOf returns the stable identifier of a document: its "id" field, or
// "_id" when "id" is absent.
func IDOf(doc map[string]any) string {
	for _, key := range []string{"id", "_id"} {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case map[string]any:
			if oid, ok := t["$oid"].(string); ok {
				return oid
			}
		}
		return fmt.Sprint(v)
	}
	return ""
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Page returns up to size records of a collection whose id sorts after
// afterID. An empty afterID starts from the beginning.
func (s *PostgresStore) Page(ctx context.Context, collection, afterID string, size int) ([]Record, error) {
	query := `SELECT id, doc FROM records WHERE collection = $1 AND id > $2 ORDER BY id LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, collection, afterID, size)
	if err != nil {
		return nil, fmt.Errorf("query records page: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		rec := Record{ID: id}
		if err := json.Unmarshal(doc, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	var doc []byte
	query := `SELECT doc FROM records WHERE collection = $1 AND id = $2`
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &Record{ID: id}
	if err := json.Unmarshal(doc, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

// Properties lists the distinct top-level field names of a collection,
// sorted.
func (s *PostgresStore) Properties(ctx context.Context, collection string) ([]string, error) {
	query := `SELECT DISTINCT jsonb_object_keys(doc) AS key FROM records WHERE collection = $1 ORDER BY key`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		props = append(props, key)
	}
	return props, rows.Err()
}

// BulkUpsert replaces records keyed by (collection, id) in one transaction.
func (s *PostgresStore) BulkUpsert(ctx context.Context, collection string, recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (collection, id, doc) VALUES ($1, $2, $3)
ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range recs {
		doc, err := json.Marshal(rec.Fields)
		if err != nil {
			return 0, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, rec.ID, doc); err != nil {
			return 0, fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = $1`, collection).Scan(&n)
	return n, err
}
