// Package testutil provides in-memory stand-ins for the chunk store and the
// embedder.
package testutil

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// MemoryStore implements types.SearchStore, types.ClusterStore and
// types.DocumentStore in memory. Lexical ranking is a term-frequency
// approximation of ts_rank_cd without stemming.
type MemoryStore struct {
	mu sync.RWMutex

	// Err, when set, is returned by every method.
	Err error

	// Dims, when set, rejects documents whose embeddings have another
	// length, like the vector column does.
	Dims int

	parents     map[int64]models.Parent
	chunks      []models.Chunk
	assignments map[string]map[int64]int
	runs        map[string][]models.ClusterRun
	nextParent  int64
	nextChunk   int64
}

var (
	_ types.SearchStore   = (*MemoryStore)(nil)
	_ types.ClusterStore  = (*MemoryStore)(nil)
	_ types.DocumentStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parents:     map[int64]models.Parent{},
		assignments: map[string]map[int64]int{},
		runs:        map[string][]models.ClusterRun{},
	}
}

// AddParent stores a parent with pre-built chunks and returns the chunk IDs
// in order. It panics on error and is meant for test setup.
func (m *MemoryStore) AddParent(parent models.Parent, chunks ...models.Chunk) (int64, []int64) {
	id, err := m.SaveDocument(context.Background(), models.ProcessedDocument{Parent: parent, Chunks: chunks})
	if err != nil {
		panic(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, c := range m.chunks {
		if c.ParentID == id {
			ids = append(ids, c.ID)
		}
	}
	return id, ids
}

// Chunks returns a copy of every stored chunk.
func (m *MemoryStore) Chunks() []models.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Chunk(nil), m.chunks...)
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc models.ProcessedDocument) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	if err := m.checkDims(doc); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(doc), nil
}

// ReplaceDocument deletes previousID and saves doc under one lock. Nothing
// changes when either step fails.
func (m *MemoryStore) ReplaceDocument(_ context.Context, previousID int64, doc models.ProcessedDocument) (int64, int, error) {
	if m.Err != nil {
		return 0, 0, m.Err
	}
	if err := m.checkDims(doc); err != nil {
		return 0, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, err := m.delete(previousID)
	if err != nil {
		return 0, 0, err
	}
	return m.save(doc), deleted, nil
}

func (m *MemoryStore) checkDims(doc models.ProcessedDocument) error {
	if m.Dims == 0 {
		return nil
	}
	for _, c := range doc.Chunks {
		if n := len(c.Embedding); n > 0 && n != m.Dims {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", types.ErrInvalidInput, c.Index, n, m.Dims)
		}
	}
	return nil
}

func (m *MemoryStore) save(doc models.ProcessedDocument) int64 {
	m.nextParent++
	parent := doc.Parent
	parent.ID = m.nextParent
	if parent.SourceType == "" {
		parent.SourceType = models.SourceTranscript
	}
	m.parents[parent.ID] = parent

	for _, c := range doc.Chunks {
		m.nextChunk++
		c.ID = m.nextChunk
		c.ParentID = parent.ID
		m.chunks = append(m.chunks, c)
	}
	return parent.ID
}

func (m *MemoryStore) FindBySourceFile(_ context.Context, sourceFile string) (*models.Parent, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Parent
	for _, p := range m.parents {
		if p.SourceFile == sourceFile && (found == nil || p.ID > found.ID) {
			p := p
			found = &p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no parent for %s", types.ErrNotFound, sourceFile)
	}
	return found, nil
}

func (m *MemoryStore) DeleteParent(_ context.Context, parentID int64) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delete(parentID)
}

func (m *MemoryStore) delete(parentID int64) (int, error) {
	if _, ok := m.parents[parentID]; !ok {
		return 0, fmt.Errorf("%w: call %d", types.ErrNotFound, parentID)
	}
	delete(m.parents, parentID)

	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if c.ParentID == parentID {
			deleted++
			for _, scope := range m.assignments {
				delete(scope, c.ID)
			}
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return deleted, nil
}

func (m *MemoryStore) matches(p models.Parent, filter models.Filter) bool {
	if filter.Org != "" && p.Org != filter.Org {
		return false
	}
	if filter.Project != "" && p.Project != filter.Project {
		return false
	}
	if filter.Since != nil && p.CallDate.Before(*filter.Since) {
		return false
	}
	return true
}

func (m *MemoryStore) candidate(c models.Chunk) models.Candidate {
	p := m.parents[c.ParentID]
	return models.Candidate{
		ChunkID:  c.ID,
		ParentID: c.ParentID,
		Index:    c.Index,
		Text:     c.Text,
		Speaker:  c.Speaker,
		Org:      p.Org,
		Project:  p.Project,
		Title:    p.Title,
		Summary:  p.Summary,
		CallDate: p.CallDate,
	}
}

func (m *MemoryStore) SemanticCandidates(_ context.Context, embedding []float32, filter models.Filter, maxDistance float64, limit int) ([]models.Candidate, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Candidate{}
	for _, c := range m.chunks {
		if len(c.Embedding) == 0 || !m.matches(m.parents[c.ParentID], filter) {
			continue
		}
		d := CosineDistance(embedding, c.Embedding)
		if maxDistance > 0 && d >= maxDistance {
			continue
		}
		cand := m.candidate(c)
		cand.Distance = d
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LexicalCandidates(_ context.Context, query string, filter models.Filter, limit int) ([]models.Candidate, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return []models.Candidate{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Candidate{}
	for _, c := range m.chunks {
		if !m.matches(m.parents[c.ParentID], filter) {
			continue
		}
		counts := map[string]int{}
		for _, tok := range Tokenize(c.Text) {
			counts[tok]++
		}
		hits := 0
		matchedAll := true
		for _, term := range terms {
			if counts[term] == 0 {
				matchedAll = false
				break
			}
			hits += counts[term]
		}
		if !matchedAll {
			continue
		}
		cand := m.candidate(c)
		cand.LexicalRank = float64(hits) / 10
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LexicalRank != out[j].LexicalRank {
			return out[i].LexicalRank > out[j].LexicalRank
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ChunkEmbeddings(_ context.Context, scope models.Scope) ([]models.ChunkEmbedding, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.ChunkEmbedding{}
	for _, c := range m.chunks {
		if len(c.Embedding) == 0 || (!scope.IsGlobal() && c.ParentID != scope.CallID) {
			continue
		}
		out = append(out, models.ChunkEmbedding{ID: c.ID, ParentID: c.ParentID, Index: c.Index, Embedding: c.Embedding})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *MemoryStore) ReplaceAssignments(_ context.Context, run models.ClusterRun, assignments []models.Assignment) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.Scope.Key()
	scope := make(map[int64]int, len(assignments))
	for _, a := range assignments {
		scope[a.ChunkID] = a.ClusterID
	}
	m.assignments[key] = scope
	m.runs[key] = append(m.runs[key], run)
	return nil
}

func (m *MemoryStore) LatestRun(_ context.Context, scope models.Scope) (*models.ClusterRun, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.runs[scope.Key()]
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no cluster run for %s", types.ErrNotFound, scope)
	}
	run := runs[len(runs)-1]
	return &run, nil
}

func (m *MemoryStore) ClusterSizes(_ context.Context, scope models.Scope, minSize int) ([]models.ClusterSize, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[int]int{}
	for _, clusterID := range m.assignments[scope.Key()] {
		counts[clusterID]++
	}
	out := []models.ClusterSize{}
	for id, n := range counts {
		if n >= minSize {
			out = append(out, models.ClusterSize{ClusterID: id, Size: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].ClusterID < out[j].ClusterID
	})
	return out, nil
}

func (m *MemoryStore) member(c models.Chunk, clusterID int) models.ClusterMember {
	p := m.parents[c.ParentID]
	return models.ClusterMember{
		ClusterID: clusterID,
		ChunkID:   c.ID,
		ParentID:  c.ParentID,
		Index:     c.Index,
		Text:      c.Text,
		Speaker:   c.Speaker,
		Org:       p.Org,
		Project:   p.Project,
		Title:     p.Title,
		Summary:   p.Summary,
		CallDate:  p.CallDate,
	}
}

func (m *MemoryStore) ClusterMembers(_ context.Context, scope models.Scope, clusterID int) ([]models.ClusterMember, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	assigned := m.assignments[scope.Key()]
	out := []models.ClusterMember{}
	for _, c := range m.chunks {
		if id, ok := assigned[c.ID]; ok && id == clusterID {
			out = append(out, m.member(c, id))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CallDate.Equal(out[j].CallDate) {
			return out[i].CallDate.Before(out[j].CallDate)
		}
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *MemoryStore) ClusterIDsFor(_ context.Context, scope models.Scope, chunkIDs []int64) ([]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	assigned := m.assignments[scope.Key()]
	seen := map[int]bool{}
	out := []int{}
	for _, id := range chunkIDs {
		if clusterID, ok := assigned[id]; ok && !seen[clusterID] {
			seen[clusterID] = true
			out = append(out, clusterID)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (m *MemoryStore) ChunksInClusters(_ context.Context, scope models.Scope, clusterIDs []int, exclude []int64) ([]models.ClusterMember, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := map[int]bool{}
	for _, id := range clusterIDs {
		wanted[id] = true
	}
	skip := map[int64]bool{}
	for _, id := range exclude {
		skip[id] = true
	}

	assigned := m.assignments[scope.Key()]
	out := []models.ClusterMember{}
	for _, c := range m.chunks {
		clusterID, ok := assigned[c.ID]
		if !ok || !wanted[clusterID] || skip[c.ID] {
			continue
		}
		out = append(out, m.member(c, clusterID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CallDate.Equal(out[j].CallDate) {
			return out[i].CallDate.After(out[j].CallDate)
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}

// CosineDistance returns 1 minus the cosine similarity of a and b.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Tokenize lowercases s and splits it into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
