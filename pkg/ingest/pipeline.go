package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/chunker"
)

// ErrAlreadyIngested is returned when a source file was ingested before and
// replacement was not requested.
var ErrAlreadyIngested = errors.New("source already ingested")

// Pipeline chunks a document, embeds its chunks in parallel and stores the
// result in one transaction.
type Pipeline struct {
	chunker    *chunker.Chunker
	embedder   types.Embedder
	store      types.DocumentStore
	pool       *ants.Pool
	batchSize  int
	onProgress func(done, total int)
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent embedding requests.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunk texts go into one embedding request.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive", types.ErrInvalidInput)
		}
		p.batchSize = size
		return nil
	}
}

// WithProgress registers a callback invoked after each embedded batch.
// Calls are serialized and done never decreases.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) error {
		p.onProgress = fn
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

func NewPipeline(c *chunker.Chunker, embedder types.Embedder, store types.DocumentStore, opts ...Option) (*Pipeline, error) {
	if c == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: pipeline needs a chunker, an embedder and a store", types.ErrInvalidInput)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunker:   c,
		embedder:  embedder,
		store:     store,
		pool:      pool,
		batchSize: 16,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingest")
	return p, nil
}

// Release stops the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// IngestOptions controls how an already ingested source is handled.
type IngestOptions struct {
	Replace bool
}

type Result struct {
	ParentID int64
	Chunks   int
	Replaced int // chunks of the previous version that were deleted
}

// Ingest stores doc as a new parent. When doc.SourceFile was ingested before,
// the old parent is swapped for the new one in a single store call if
// opts.Replace is set, otherwise ErrAlreadyIngested is returned.
func (p *Pipeline) Ingest(ctx context.Context, doc models.Document, opts IngestOptions) (Result, error) {
	if doc.Org == "" {
		return Result{}, fmt.Errorf("%w: document needs an org", types.ErrInvalidInput)
	}
	if doc.CallDate.IsZero() {
		return Result{}, fmt.Errorf("%w: document needs a date", types.ErrInvalidInput)
	}

	var previous *models.Parent
	if doc.SourceFile != "" {
		found, err := p.store.FindBySourceFile(ctx, doc.SourceFile)
		switch {
		case err == nil:
			if !opts.Replace {
				return Result{}, fmt.Errorf("%w: %s (call %d)", ErrAlreadyIngested, doc.SourceFile, found.ID)
			}
			previous = found
		case errors.Is(err, types.ErrNotFound):
		default:
			return Result{}, fmt.Errorf("look up %s: %w", doc.SourceFile, err)
		}
	}

	textChunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return Result{}, err
	}
	if len(textChunks) == 0 {
		return Result{}, fmt.Errorf("%w: %q produced no chunks", types.ErrInvalidInput, doc.Title)
	}

	texts := make([]string, len(textChunks))
	for i, tc := range textChunks {
		texts[i] = tc.Text
	}

	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	processed := models.ProcessedDocument{Parent: doc.Parent, Chunks: make([]models.Chunk, len(textChunks))}
	for i, tc := range textChunks {
		processed.Chunks[i] = models.Chunk{
			Index:     tc.Index,
			Text:      tc.Text,
			Speaker:   tc.Speaker,
			Embedding: vectors[i],
		}
	}

	var (
		result   Result
		parentID int64
	)
	if previous != nil {
		parentID, result.Replaced, err = p.store.ReplaceDocument(ctx, previous.ID, processed)
		if err != nil {
			return Result{}, fmt.Errorf("replace call %d: %w", previous.ID, err)
		}
		p.logger.Info("replaced previous ingestion", "source", doc.SourceFile, "call_id", previous.ID, "chunks", result.Replaced)
	} else {
		parentID, err = p.store.SaveDocument(ctx, processed)
		if err != nil {
			return Result{}, fmt.Errorf("save document: %w", err)
		}
	}

	result.ParentID = parentID
	result.Chunks = len(processed.Chunks)
	p.logger.Info("document ingested", "call_id", parentID, "org", doc.Org, "type", doc.SourceType, "chunks", result.Chunks)
	return result, nil
}

// embed runs batches on the pool and writes each result back at its
// position. The first failure cancels the remaining batches.
func (p *Pipeline) embed(parent context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		mu       sync.Mutex
		done     int
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += p.batchSize {
		start, end := start, min(start+p.batchSize, len(texts))

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			out, err := p.embedder.EmbedMany(ctx, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err))
				return
			}
			if len(out) != end-start {
				fail(fmt.Errorf("%w: expected %d embeddings, received %d", types.ErrUnparseableOutput, end-start, len(out)))
				return
			}
			copy(vectors[start:end], out)

			if p.onProgress != nil {
				mu.Lock()
				done += end - start
				p.onProgress(done, len(texts))
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
