package embed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/apperr"
)

// DefaultBatchSize is the number of texts sent per model call.
const DefaultBatchSize = 32

// batchWorkers bounds concurrent model calls.
const batchWorkers = 4

// Batch embeds texts concurrently in fixed-size batches. The result is
// aligned with the input: out[i] is the vector for texts[i], or nil when
// embedding that item failed after retry. A failed batch call is retried
// once per item before items are recorded as failed, so one poisoned text
// cannot sink its whole batch.
//
// The only error returned is a fatal configuration fault (dimension
// mismatch or cancellation); everything else degrades per item.
func Batch(ctx context.Context, e Embedder, texts []string, batchSize int, logger *slog.Logger) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		start, end := start, end

		g.Go(func() error {
			batch := texts[start:end]
			vecs, err := e.EmbedTexts(gCtx, batch)
			if err == nil {
				mu.Lock()
				copy(out[start:end], vecs)
				mu.Unlock()
				return nil
			}
			if isFatal(err) {
				return err
			}

			logger.Warn("embed: batch failed, retrying per item",
				slog.Int("from", start), slog.Int("to", end), slog.String("error", err.Error()))

			for i, text := range batch {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				vecs, err := e.EmbedTexts(gCtx, []string{text})
				if err != nil {
					if isFatal(err) {
						return err
					}
					logger.Warn("embed: item failed, chunk will have no embedding",
						slog.Int("index", start+i), slog.String("error", err.Error()))
					continue
				}
				mu.Lock()
				out[start+i] = vecs[0]
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isFatal(err error) bool {
	return errors.Is(err, apperr.ErrDimensionMismatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
