package cluster

import (
	"context"
	"sort"

	"github.com/kozaktomas/face-organizer/internal/face"
)

type linkageMode int

const (
	linkageAverage linkageMode = iota
	linkageMedian
)

// hierarchical runs agglomerative clustering: every face starts as its own
// cluster, and the globally closest pair of clusters is merged while that
// minimum inter-cluster distance stays within the threshold. The scan order
// is fixed, so identical input always yields identical output.
//
// Faces whose primary embedding cannot be decoded are emitted as singleton
// groups: they can be compared with nothing.
func hierarchical(ctx context.Context, faces []*face.DetectedFace, metric *face.Metric, threshold float64, mode linkageMode) ([]face.FaceGroup, error) {
	comparable, singletons := splitComparable(faces, metric)

	n := len(comparable)
	// Pairwise face distances, computed once. dist[i][j] for i < j.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := i + 1; j < n; j++ {
			d, ok := metric.Distance(comparable[i], comparable[j])
			if !ok {
				// splitComparable already proved both decode; unreachable,
				// but treat as unmergeable if it happens.
				d = threshold * 2
			}
			dist[i][j] = d
		}
	}
	pairDist := func(i, j int) float64 {
		if i > j {
			i, j = j, i
		}
		return dist[i][j]
	}

	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	linkage := func(a, b []int) float64 {
		cross := make([]float64, 0, len(a)*len(b))
		for _, i := range a {
			for _, j := range b {
				cross = append(cross, pairDist(i, j))
			}
		}
		if mode == linkageMedian {
			return median(cross)
		}
		var sum float64
		for _, d := range cross {
			sum += d
		}
		return sum / float64(len(cross))
	}

	for len(clusters) > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bestA, bestB := -1, -1
		bestDist := 0.0
		for a := 0; a < len(clusters); a++ {
			for b := a + 1; b < len(clusters); b++ {
				d := linkage(clusters[a], clusters[b])
				if bestA == -1 || d < bestDist {
					bestA, bestB, bestDist = a, b, d
				}
			}
		}
		if bestDist > threshold {
			break
		}
		clusters[bestA] = append(clusters[bestA], clusters[bestB]...)
		clusters = append(clusters[:bestB], clusters[bestB+1:]...)
	}

	groups := make([]face.FaceGroup, 0, len(clusters)+len(singletons))
	for _, c := range clusters {
		members := make([]*face.DetectedFace, len(c))
		for i, idx := range c {
			members[i] = comparable[idx]
		}
		groups = append(groups, buildGroup(members))
	}
	for _, f := range singletons {
		groups = append(groups, buildGroup([]*face.DetectedFace{f}))
	}
	sortGroupsBySize(groups)
	return groups, nil
}

// splitComparable separates faces with a decodable primary embedding from
// the rest. The metric's cache absorbs the decode work for later reuse.
func splitComparable(faces []*face.DetectedFace, metric *face.Metric) (comparable, broken []*face.DetectedFace) {
	for _, f := range faces {
		if _, ok := metric.Cache().Get(f.ID, f.Embedding); ok {
			comparable = append(comparable, f)
		} else {
			broken = append(broken, f)
		}
	}
	return comparable, broken
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
