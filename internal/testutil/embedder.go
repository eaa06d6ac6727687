package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/xhad/recall/internal/types"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each token is hashed
// into one of Dims buckets and the result is L2-normalized, so texts sharing
// words are close in cosine distance.
type HashEmbedder struct {
	Dims int

	// Vectors overrides the hashed embedding for exact texts.
	Vectors map[string][]float32

	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls int
}

var _ types.Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{Dims: dims, Vectors: map[string][]float32{}}
}

// Calls reports how many texts have been embedded.
func (h *HashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	if v, ok := h.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}

	v := make([]float32, h.Dims)
	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		v[int(f.Sum32())%h.Dims]++
	}
	return normalize(v), nil
}

func (h *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
