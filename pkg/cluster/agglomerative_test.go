package cluster_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/recall/pkg/cluster"
)

func TestAgglomerate_Trivial(t *testing.T) {
	assert.Equal(t, []int{}, cluster.Agglomerate(nil, 0.3))
	assert.Equal(t, []int{0}, cluster.Agglomerate([][]float32{{1, 0}}, 0.3))
}

func TestAgglomerate_TwoGroups(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 0, 1, 0},
		{0.99, 0.1, 0, 0},
		{0, 0, 0.95, 0.2},
		{0.98, 0.05, 0.1, 0},
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, cluster.Agglomerate(vectors, 0.3))
}

func TestAgglomerate_NonFiniteVectorStaysAlone(t *testing.T) {
	nan := float32(math.NaN())
	vectors := [][]float32{
		{nan, 1},
		{1, 0},
		{0.99, 0.05},
		{float32(math.Inf(1)), 0},
	}
	assert.NotPanics(t, func() {
		assert.Equal(t, []int{0, 1, 1, 2}, cluster.Agglomerate(vectors, 0.3))
	})
}

func TestAgglomerate_ThresholdIsExclusive(t *testing.T) {
	// Orthogonal vectors sit at distance exactly 1.
	vectors := [][]float32{{1, 0}, {0, 1}}
	assert.Equal(t, []int{0, 1}, cluster.Agglomerate(vectors, 1))
}

func TestAgglomerate_AverageLinkageDoesNotChain(t *testing.T) {
	// d(a,b) = 0.2, d(b,c) = 0.25, d(a,c) ~ 0.8. Single linkage would join
	// all three at 0.3; the average distance from {a,b} to c is ~0.52.
	vectors := [][]float32{
		{1, 0},
		{0.8, 0.6},
		{0.20314, 0.97915},
	}
	assert.Equal(t, []int{0, 0, 1}, cluster.Agglomerate(vectors, 0.3))
	assert.Equal(t, []int{0, 0, 0}, cluster.Agglomerate(vectors, 0.6))
}

func TestAgglomerate_Idempotent(t *testing.T) {
	vectors := randomVectors(rand.New(rand.NewSource(42)), 60, 8)

	first := cluster.Agglomerate(vectors, 0.8)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, cluster.Agglomerate(vectors, 0.8))
	}
}

func TestAgglomerate_MatchesNaiveAverageLinkage(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, threshold := range []float64{0.4, 0.7, 0.9, 1.0} {
		vectors := randomVectors(rng, 40, 6)
		assert.Equal(t, naiveAverageLinkage(vectors, threshold), cluster.Agglomerate(vectors, threshold),
			"threshold %v", threshold)
	}
}

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

// naiveAverageLinkage repeatedly merges the closest pair of clusters by mean
// pairwise distance until none is closer than threshold.
func naiveAverageLinkage(vectors [][]float32, threshold float64) []int {
	n := len(vectors)
	dist := func(i, j int) float64 {
		var dot, ni, nj float64
		for k := range vectors[i] {
			a, b := float64(vectors[i][k]), float64(vectors[j][k])
			dot += a * b
			ni += a * a
			nj += b * b
		}
		return 1 - dot/(math.Sqrt(ni)*math.Sqrt(nj))
	}

	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}
	for len(groups) > 1 {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := range groups {
			for j := i + 1; j < len(groups); j++ {
				var sum float64
				for _, a := range groups[i] {
					for _, b := range groups[j] {
						sum += dist(a, b)
					}
				}
				if avg := sum / float64(len(groups[i])*len(groups[j])); avg < best {
					bi, bj, best = i, j, avg
				}
			}
		}
		if best >= threshold {
			break
		}
		groups[bi] = append(groups[bi], groups[bj]...)
		groups = append(groups[:bj], groups[bj+1:]...)
	}

	owner := make([]int, n)
	for g, members := range groups {
		for _, m := range members {
			owner[m] = g
		}
	}
	labels := make([]int, n)
	ids := map[int]int{}
	for i := 0; i < n; i++ {
		id, ok := ids[owner[i]]
		if !ok {
			id = len(ids)
			ids[owner[i]] = id
		}
		labels[i] = id
	}
	return labels
}
