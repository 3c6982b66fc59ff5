package pipeline

import (
	"context"

	"github.com/timrodz/cards-oracle/internal/records"
)

const DefaultBatchSize = 500

// RecordSource pages through a collection in id order.
type RecordSource interface {
	Page(ctx context.Context, collection, afterID string, size int) ([]records.Record, error)
}

// Batcher yields a collection in fixed-size batches. Each call to Each
// starts from the beginning of the collection.
type Batcher struct {
	source RecordSource
	size   int
}

func NewBatcher(source RecordSource, size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{source: source, size: size}
}

// Each calls fn for every batch. limit <= 0 reads the whole collection;
// otherwise at most limit records are yielded. The final batch may be
// shorter than the batch size. An error from fn stops iteration.
func (b *Batcher) Each(ctx context.Context, collection string, limit int, fn func([]records.Record) error) error {
	after := ""
	seen := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := b.size
		if limit > 0 && limit-seen < size {
			size = limit - seen
		}
		if size <= 0 {
			return nil
		}

		batch, err := b.source.Page(ctx, collection, after, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		seen += len(batch)
		after = batch[len(batch)-1].ID
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
	}
}
