// Package clustering groups assets by the similarity of their return series
// and recommends a low-volatility addition to the universe.
package clustering

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aristath/frontier/internal/modules/returns"
)

// Defaults for KMeans fields left at zero.
const (
	DefaultRestarts      = 10
	DefaultMaxIterations = 300
)

// KMeans partitions points into K clusters with k-means++ seeding followed by
// Lloyd iterations. The best of Restarts runs (lowest inertia) is kept.
// All randomness comes from a PCG source seeded with Seed, so equal inputs and
// seeds give identical labels.
type KMeans struct {
	K             int
	Seed          uint64
	Restarts      int
	MaxIterations int
}

// Fit is the outcome of a k-means run.
type Fit struct {
	// Labels[i] is point i's cluster. Ids are numbered in order of first
	// appearance, so point 0 is always in cluster 0.
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// Fit clusters points. Every point must have the same dimension.
func (km KMeans) Fit(points [][]float64) (*Fit, error) {
	if km.K < 1 {
		return nil, returns.InsufficientDataError{Reason: fmt.Sprintf("cluster count must be at least 1, got %d", km.K)}
	}
	if len(points) < km.K {
		return nil, returns.InsufficientDataError{
			Reason: fmt.Sprintf("%d assets cannot form %d clusters", len(points), km.K),
		}
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("point %d has dimension %d, expected %d", i, len(p), dim)
		}
	}

	restarts := km.Restarts
	if restarts <= 0 {
		restarts = DefaultRestarts
	}
	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0xda942042e4dd58b5))

	var best *Fit
	for r := 0; r < restarts; r++ {
		centroids := seedCentroids(points, km.K, rng)
		fit := lloyd(points, centroids, maxIter)
		if best == nil || fit.Inertia < best.Inertia {
			best = fit
		}
	}

	relabel(best)
	return best, nil
}

// seedCentroids picks k initial centroids with the k-means++ rule: the first
// uniformly, each next one with probability proportional to its squared
// distance from the nearest centroid chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(n)]))

	dist := make([]float64, n)
	for i, p := range points {
		dist[i] = squaredDistance(p, centroids[0])
	}

	for len(centroids) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}

		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			dist[i] = math.Min(dist[i], squaredDistance(p, c))
		}
	}
	return centroids
}

// lloyd alternates assignment and centroid updates until the labels stop
// changing or maxIter is reached.
func lloyd(points, centroids [][]float64, maxIter int) *Fit {
	n := len(points)
	k := len(centroids)
	dim := len(points[0])

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for ; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			l := nearest(p, centroids)
			if l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			counts[labels[i]]++
			for d, v := range p {
				sums[labels[i]][d] += v
			}
		}

		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster: move it onto the point worst served by its centroid.
				far := farthestPoint(points, labels, centroids)
				centroids[c] = clone(points[far])
				labels[far] = c
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}

	return &Fit{
		Labels:     labels,
		Centroids:  centroids,
		Inertia:    inertia,
		Iterations: iter,
	}
}

// nearest returns the index of the closest centroid, lowest index on ties.
func nearest(p []float64, centroids [][]float64) int {
	best := 0
	bestD := math.Inf(1)
	for c, centroid := range centroids {
		d := squaredDistance(p, centroid)
		if d < bestD {
			best = c
			bestD = d
		}
	}
	return best
}

func farthestPoint(points [][]float64, labels []int, centroids [][]float64) int {
	far := 0
	farD := -1.0
	for i, p := range points {
		d := squaredDistance(p, centroids[labels[i]])
		if d > farD {
			far = i
			farD = d
		}
	}
	return far
}

// relabel renumbers clusters in order of first appearance.
func relabel(fit *Fit) {
	mapping := make(map[int]int, len(fit.Centroids))
	centroids := make([][]float64, 0, len(fit.Centroids))
	for i, l := range fit.Labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
			centroids = append(centroids, fit.Centroids[l])
		}
		fit.Labels[i] = id
	}
	// Clusters that ended up empty keep their centroids at the end.
	for c, centroid := range fit.Centroids {
		if _, ok := mapping[c]; !ok {
			mapping[c] = len(mapping)
			centroids = append(centroids, centroid)
		}
	}
	fit.Centroids = centroids
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
