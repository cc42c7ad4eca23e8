package cluster

import (
	"context"
	"math/rand"
	"time"

	"github.com/kozaktomas/face-organizer/internal/face"
)

type whisperEdge struct {
	to     int
	weight float64
}

// chineseWhispers clusters faces by label propagation over an undirected
// weighted graph. An edge exists only between faces closer than the
// threshold; its weight is 1 - distance/threshold, optionally blended with
// the pair's mean quality so high-quality faces exert more pull. Each face
// starts with a unique label and repeatedly adopts the label with the
// highest total incident edge weight among its neighbors. Faces with no
// qualifying edge stay singleton.
//
// The visiting order is randomized to reduce order bias; pass a fixed seed
// in Options to pin the outcome.
func chineseWhispers(ctx context.Context, faces []*face.DetectedFace, metric *face.Metric, opts Options) ([]face.FaceGroup, error) {
	comparable, broken := splitComparable(faces, metric)
	n := len(comparable)

	adj := make([][]whisperEdge, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, ok := metric.Distance(comparable[i], comparable[j])
			if !ok || d >= opts.Threshold {
				continue
			}
			w := 1 - d/opts.Threshold
			if opts.QualityMix > 0 {
				q := (comparable[i].Quality + comparable[j].Quality) / 2
				w = (1-opts.QualityMix)*w + opts.QualityMix*q
			}
			adj[i] = append(adj[i], whisperEdge{to: j, weight: w})
			adj[j] = append(adj[j], whisperEdge{to: i, weight: w})
		}
	}

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	for iter := 0; iter < opts.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for _, i := range rng.Perm(n) {
			if len(adj[i]) == 0 {
				continue
			}
			weights := make(map[int]float64, len(adj[i]))
			for _, e := range adj[i] {
				weights[labels[e.to]] += e.weight
			}
			best := labels[i]
			bestWeight := 0.0
			for label, w := range weights {
				// Lower label wins ties so a pass over an already-stable
				// graph does not oscillate.
				if w > bestWeight || (w == bestWeight && label < best) {
					best, bestWeight = label, w
				}
			}
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	byLabel := make(map[int][]*face.DetectedFace)
	order := make([]int, 0)
	for i, label := range labels {
		if _, seen := byLabel[label]; !seen {
			order = append(order, label)
		}
		byLabel[label] = append(byLabel[label], comparable[i])
	}

	groups := make([]face.FaceGroup, 0, len(order)+len(broken))
	for _, label := range order {
		groups = append(groups, buildGroup(byLabel[label]))
	}
	for _, f := range broken {
		groups = append(groups, buildGroup([]*face.DetectedFace{f}))
	}
	sortGroupsBySize(groups)
	return groups, nil
}
