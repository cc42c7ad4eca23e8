package cluster

import (
	"context"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// AssignToGroups folds each new face into the closest existing group when
// its linkage distance to the group's full membership stays within the
// threshold, and returns the faces no group could absorb. A rescan of a
// folder with freshly added files therefore extends the existing grouping
// instead of re-clustering the entire history.
//
// The linkage follows the active strategy: median for hierarchical-median,
// average otherwise. The shared cache keeps embeddings decoded across the
// subsequent clustering pass.
func AssignToGroups(ctx context.Context, data *face.FolderFaceData, newFaces []*face.DetectedFace, opts Options, cache *face.Cache) ([]*face.DetectedFace, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	metric := opts.metric(cache)

	mode := linkageAverage
	if opts.Strategy == StrategyHierarchicalMedian {
		mode = linkageMedian
	}

	var leftover []*face.DetectedFace
	for _, f := range newFaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var best *face.FaceGroup
		bestDist := 0.0
		for i := range data.Groups {
			g := &data.Groups[i]
			d, ok := groupDistance(f, data.GroupFaces(g), metric, mode)
			if !ok {
				continue
			}
			if best == nil || d < bestDist {
				best, bestDist = g, d
			}
		}

		if best != nil && bestDist <= opts.Threshold {
			best.FaceIDs = append(best.FaceIDs, f.ID)
			f.GroupID = best.ID
			RecomputeRepresentative(data, best)
		} else {
			leftover = append(leftover, f)
		}
	}
	return leftover, nil
}

// groupDistance computes the linkage distance between one face and a
// group's membership. Members with undecodable embeddings are skipped; a
// group with no comparable member yields no distance.
func groupDistance(f *face.DetectedFace, members []*face.DetectedFace, metric *face.Metric, mode linkageMode) (float64, bool) {
	dists := make([]float64, 0, len(members))
	for _, m := range members {
		d, ok := metric.Distance(f, m)
		if !ok {
			continue
		}
		dists = append(dists, d)
	}
	if len(dists) == 0 {
		return 0, false
	}
	if mode == linkageMedian {
		return median(dists), true
	}
	var sum float64
	for _, d := range dists {
		sum += d
	}
	return sum / float64(len(dists)), true
}
