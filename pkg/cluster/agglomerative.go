package cluster

import "math"

// Agglomerate clusters vectors bottom-up under average linkage and cosine
// distance. Two clusters are joined only while their average pairwise
// distance is strictly below threshold. The returned labels are 0..k-1,
// numbered in order of each cluster's first member.
//
// Merges are found with the nearest-neighbour chain algorithm over a
// condensed distance matrix, updated with the Lance-Williams formula. Ties
// resolve to the lowest index, so identical input always yields identical
// labels. Average linkage has no inversions, so cutting the merge list at
// threshold gives the same partition as cutting the full dendrogram.
func Agglomerate(vectors [][]float32, threshold float64) []int {
	n := len(vectors)
	switch n {
	case 0:
		return []int{}
	case 1:
		return []int{0}
	}

	dist := newCondensed(vectors)
	size := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		active[i] = true
	}

	uf := newUnionFind(n)
	chain := make([]int, 0, n)
	remaining := n

	for remaining > 1 {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if active[i] {
					chain = append(chain, i)
					break
				}
			}
		}

		a := chain[len(chain)-1]
		b, bd := -1, math.Inf(1)
		if len(chain) > 1 {
			// Prefer the previous link on ties so the chain terminates.
			b = chain[len(chain)-2]
			bd = dist.at(a, b)
		}
		for k := 0; k < n; k++ {
			if !active[k] || k == a {
				continue
			}
			if d := dist.at(a, k); d < bd {
				b, bd = k, d
			}
		}

		if len(chain) > 1 && b == chain[len(chain)-2] {
			chain = chain[:len(chain)-2]

			if bd < threshold {
				uf.union(a, b)
			}

			// The merged cluster keeps the lower index.
			keep, drop := a, b
			if drop < keep {
				keep, drop = drop, keep
			}
			sk, sd := float64(size[keep]), float64(size[drop])
			for k := 0; k < n; k++ {
				if !active[k] || k == keep || k == drop {
					continue
				}
				dist.set(keep, k, (sk*dist.at(keep, k)+sd*dist.at(drop, k))/(sk+sd))
			}
			size[keep] += size[drop]
			active[drop] = false
			remaining--
			continue
		}

		chain = append(chain, b)
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels
}

// condensed stores the upper triangle of a symmetric distance matrix.
type condensed struct {
	n int
	d []float64
}

func newCondensed(vectors [][]float32) *condensed {
	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norms[i] = math.Sqrt(sum)
	}

	c := &condensed{n: n, d: make([]float64, n*(n-1)/2)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c.set(i, j, cosineDistance(vectors[i], vectors[j], norms[i], norms[j]))
		}
	}
	return c
}

func (c *condensed) index(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return c.n*i - i*(i+1)/2 + (j - i - 1)
}

func (c *condensed) at(i, j int) float64 {
	return c.d[c.index(i, j)]
}

func (c *condensed) set(i, j int, v float64) {
	c.d[c.index(i, j)] = v
}

func cosineDistance(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
	}
	d := 1 - dot/(na*nb)
	if math.IsNaN(d) {
		// non-finite components; treat as unrelated
		return 1
	}
	if d < 0 {
		// rounding on near-identical vectors
		return 0
	}
	return d
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
