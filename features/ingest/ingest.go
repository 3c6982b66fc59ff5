package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/timrodz/cards-oracle/internal/records"
)

var ErrNotAList = errors.New("expected a JSON list of objects")

type Upserter interface {
	BulkUpsert(ctx context.Context, collection string, recs []records.Record) (int, error)
}

// Result counts what an ingestion did. Documents without an id are skipped.
type Result struct {
	Read     int `json:"read"`
	Skipped  int `json:"skipped"`
	Upserted int `json:"upserted"`
}

type Service struct {
	store     Upserter
	batchSize int
}

func NewService(store Upserter, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{store: store, batchSize: batchSize}
}

// IngestJSON streams a JSON array of objects into collection, replacing
// documents by id. A positive limit caps the number of documents read.
func (s *Service) IngestJSON(ctx context.Context, r io.Reader, collection string, limit int) (Result, error) {
	var res Result
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrNotAList, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return res, ErrNotAList
	}

	batch := make([]records.Record, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.store.BulkUpsert(ctx, collection, batch)
		if err != nil {
			return err
		}
		res.Upserted += n
		slog.InfoContext(ctx, "upserted records", "collection", collection, "count", n)
		batch = batch[:0]
		return nil
	}

	for dec.More() {
		if limit > 0 && res.Read >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			return res, fmt.Errorf("%w: record %d: %v", ErrNotAList, res.Read, err)
		}
		res.Read++

		id := records.IDOf(doc)
		if id == "" {
			res.Skipped++
			continue
		}
		batch = append(batch, records.Record{ID: id, Fields: doc})
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "dataset ingested", "collection", collection, "read", res.Read, "skipped", res.Skipped, "upserted", res.Upserted)
	return res, nil
}
