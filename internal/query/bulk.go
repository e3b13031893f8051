package query

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/time/rate"
)

// DefaultChunkSize is the number of statements per Bulk transaction.
const DefaultChunkSize = 200

type bulkOptions struct {
	chunkSize int
	limiter   *rate.Limiter
}

// BulkOption configures Bulk.
type BulkOption func(*bulkOptions)

// WithChunkSize sets the number of statements per transaction.
func WithChunkSize(n int) BulkOption {
	return func(o *bulkOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithChunkRate limits Bulk to perSecond chunks per second. Zero disables it.
func WithChunkRate(perSecond float64) BulkOption {
	return func(o *bulkOptions) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

type statement struct {
	sql    string
	params []any
}

// Bulk executes queries in chunks, each chunk in its own transaction. A
// failing chunk is rolled back and logged, and the remaining chunks still
// run. It returns false and the joined chunk errors if any chunk failed.
func Bulk(ctx context.Context, tx Transactor, queries []*Builder, opts ...BulkOption) (bool, error) {
	o := bulkOptions{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}

	stmts := make([]statement, 0, len(queries))
	for _, q := range queries {
		if q == nil {
			continue
		}
		sql, err := q.Get()
		if err != nil {
			return false, fmt.Errorf("failed to render bulk query on %q: %w", q.table, err)
		}
		stmts = append(stmts, statement{sql: sql, params: q.Params()})
	}

	var errs []error
	chunks := (len(stmts) + o.chunkSize - 1) / o.chunkSize
	for i := 0; i < chunks; i++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				return false, errors.Join(errs...)
			}
		}
		end := min((i+1)*o.chunkSize, len(stmts))
		chunk := stmts[i*o.chunkSize : end]
		err := tx.RunInTx(ctx, func(ctx context.Context) error {
			for _, s := range chunk {
				if _, err := tx.Execute(ctx, s.sql, s.params); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("[QUERY] bulk chunk %d/%d rolled back: %v", i+1, chunks, err)
			errs = append(errs, fmt.Errorf("chunk %d: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return true, nil
}
