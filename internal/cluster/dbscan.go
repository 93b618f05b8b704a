// Package cluster groups face embeddings by cosine similarity. Clustering
// is a full recompute every run; labels are not stable across runs.
package cluster

import (
	"math"

	"github.com/google/uuid"
)

const noise = -1

// DistanceMatrix returns the dense pairwise cosine-distance matrix for the
// vectors, clipped to [0, 2] to absorb floating-point overshoot.
func DistanceMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	normed := make([][]float64, n)
	for i, v := range vectors {
		normed[i] = normalize(v)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1 - dot(normed[i], normed[j])
			if d < 0 {
				d = 0
			}
			if d > 2 {
				d = 2
			}
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// DBSCAN runs density-based clustering over a precomputed distance matrix.
// The result has one label per input row; noise points get -1.
func DBSCAN(dist [][]float64, eps float64, minSamples int) []int {
	n := len(dist)
	labels := make([]int, n)
	visited := make([]bool, n)
	for i := range labels {
		labels[i] = noise
	}

	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(dist, i, eps)
		if len(neighbors) < minSamples {
			continue
		}

		labels[i] = next
		// Expand the cluster; the seed list grows as new core points join.
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if !visited[j] {
				visited[j] = true
				jn := regionQuery(dist, j, eps)
				if len(jn) >= minSamples {
					neighbors = append(neighbors, jn...)
				}
			}
			if labels[j] == noise {
				labels[j] = next
			}
		}
		next++
	}
	return labels
}

// regionQuery returns every point within eps of i, including i itself.
func regionQuery(dist [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j := range dist[i] {
		if dist[i][j] <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// Assign clusters the vectors and maps each non-noise cluster to a fresh
// string identifier. Noise rows get nil.
func Assign(vectors [][]float32, eps float64, minSamples int) []*string {
	labels := DBSCAN(DistanceMatrix(vectors), eps, minSamples)

	names := make(map[int]string)
	result := make([]*string, len(labels))
	for i, l := range labels {
		if l == noise {
			continue
		}
		name, ok := names[l]
		if !ok {
			name = uuid.NewString()
			names[l] = name
		}
		n := name
		result[i] = &n
	}
	return result
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
