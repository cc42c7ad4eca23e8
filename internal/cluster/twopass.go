package cluster

import (
	"context"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// twoPass first clusters only the faces at or above the quality gate with
// Chinese Whispers, then attaches each low-quality face to the closest
// resulting group by representative distance. Low-quality faces are
// unreliable anchors for forming new clusters but can still be safely
// appended to an already-confident one; those matching no group become
// singletons.
func twoPass(ctx context.Context, faces []*face.DetectedFace, metric *face.Metric, opts Options) ([]face.FaceGroup, error) {
	var high, low []*face.DetectedFace
	for _, f := range faces {
		if f.Quality >= opts.QualityGate {
			high = append(high, f)
		} else {
			low = append(low, f)
		}
	}

	groups, err := chineseWhispers(ctx, high, metric, opts)
	if err != nil {
		return nil, err
	}

	reps := make([]*face.DetectedFace, len(groups))
	for i := range groups {
		reps[i] = findFace(high, groups[i].RepresentativeID)
	}

	for _, f := range low {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := -1
		bestDist := 0.0
		for i, rep := range reps {
			if rep == nil {
				continue
			}
			d, ok := metric.Distance(f, rep)
			if !ok {
				continue
			}
			if best == -1 || d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 && bestDist <= opts.Threshold {
			groups[best].FaceIDs = append(groups[best].FaceIDs, f.ID)
			f.GroupID = groups[best].ID
		} else {
			groups = append(groups, buildGroup([]*face.DetectedFace{f}))
		}
	}

	sortGroupsBySize(groups)
	return groups, nil
}

func findFace(faces []*face.DetectedFace, id string) *face.DetectedFace {
	for _, f := range faces {
		if f.ID == id {
			return f
		}
	}
	return nil
}
