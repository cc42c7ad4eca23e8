// Package cluster groups detected faces into same-person clusters. It
// implements hierarchical average/median linkage, Chinese Whispers label
// propagation, a quality-gated two-pass strategy, incremental assignment of
// new faces into existing groups and near-miss merge suggestion scoring.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// Strategy selects the clustering algorithm. The set is closed; selection
// happens through Run.
type Strategy string

const (
	StrategyHierarchicalAverage Strategy = "hierarchical_average"
	StrategyHierarchicalMedian  Strategy = "hierarchical_median"
	StrategyChineseWhispers     Strategy = "chinese_whispers"
	StrategyTwoPass             Strategy = "two_pass"
)

// ErrUnknownStrategy is returned by Run for a strategy outside the closed set.
var ErrUnknownStrategy = errors.New("unknown clustering strategy")

// Options carries caller-supplied clustering configuration.
type Options struct {
	Strategy Strategy

	// Threshold is the maximum dissimilarity at which two faces or clusters
	// are still considered the same person.
	Threshold float64

	// QualityGate partitions faces for the two-pass strategy; faces below it
	// never anchor new clusters.
	QualityGate float64

	// Iterations bounds Chinese Whispers label propagation.
	Iterations int

	// QualityMix blends face quality into Chinese Whispers edge weights:
	// 0 = pure distance weight, 1 = pure quality weight.
	QualityMix float64

	// PrimaryWeight and ContextWeight combine the face and context embedding
	// distances. ContextWeight 0 disables dual-embedding mode.
	PrimaryWeight float64
	ContextWeight float64

	// Margin widens the merge-suggestion band above the threshold.
	Margin float64

	// Seed pins the Chinese Whispers visiting order for reproducible runs.
	// Nil seeds from the clock.
	Seed *int64
}

// DefaultOptions returns the baseline configuration for face-only mode.
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyHierarchicalAverage,
		Threshold:     0.5,
		QualityGate:   0.45,
		Iterations:    10,
		QualityMix:    0.3,
		PrimaryWeight: 1,
		ContextWeight: 0,
		Margin:        0.15,
	}
}

// Validate fails fast on caller misuse. Data problems (corrupt embeddings)
// are handled per face and are never configuration errors.
func (o *Options) Validate() error {
	switch o.Strategy {
	case StrategyHierarchicalAverage, StrategyHierarchicalMedian,
		StrategyChineseWhispers, StrategyTwoPass:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, o.Strategy)
	}
	if o.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", o.Threshold)
	}
	if o.QualityGate < 0 || o.QualityGate > 1 {
		return fmt.Errorf("quality gate must be in [0,1], got %v", o.QualityGate)
	}
	if o.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", o.Iterations)
	}
	if o.QualityMix < 0 || o.QualityMix > 1 {
		return fmt.Errorf("quality mix must be in [0,1], got %v", o.QualityMix)
	}
	if o.PrimaryWeight < 0 || o.ContextWeight < 0 {
		return fmt.Errorf("embedding weights must not be negative, got %v/%v",
			o.PrimaryWeight, o.ContextWeight)
	}
	if o.Margin < 0 {
		return fmt.Errorf("margin must not be negative, got %v", o.Margin)
	}
	return nil
}

func (o *Options) metric(cache *face.Cache) *face.Metric {
	if cache == nil {
		cache = face.NewCache()
	}
	if o.ContextWeight > 0 {
		return face.NewDualMetric(cache, o.PrimaryWeight, o.ContextWeight)
	}
	return face.NewMetric(cache)
}

// Run clusters the given unclustered faces with the configured strategy and
// returns the resulting groups. Each face's GroupID is set to its group.
// Passing a nil cache gives the invocation a private one.
func Run(ctx context.Context, faces []*face.DetectedFace, opts Options, cache *face.Cache) ([]face.FaceGroup, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}

	metric := opts.metric(cache)

	switch opts.Strategy {
	case StrategyHierarchicalAverage:
		return hierarchical(ctx, faces, metric, opts.Threshold, linkageAverage)
	case StrategyHierarchicalMedian:
		return hierarchical(ctx, faces, metric, opts.Threshold, linkageMedian)
	case StrategyChineseWhispers:
		return chineseWhispers(ctx, faces, metric, opts)
	case StrategyTwoPass:
		return twoPass(ctx, faces, metric, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
}

// buildGroup forms a FaceGroup from members, picks the highest-quality face
// as representative and stamps every member's GroupID.
func buildGroup(members []*face.DetectedFace) face.FaceGroup {
	g := face.FaceGroup{
		ID:      uuid.NewString(),
		FaceIDs: make([]string, len(members)),
	}
	best := members[0]
	for i, f := range members {
		g.FaceIDs[i] = f.ID
		if f.Quality > best.Quality {
			best = f
		}
	}
	g.RepresentativeID = best.ID
	for _, f := range members {
		f.GroupID = g.ID
	}
	return g
}

// RecomputeRepresentative re-picks a group's representative after its
// membership changed. Groups whose members cannot be resolved are left
// untouched.
func RecomputeRepresentative(data *face.FolderFaceData, g *face.FaceGroup) {
	members := data.GroupFaces(g)
	if len(members) == 0 {
		return
	}
	best := members[0]
	for _, f := range members[1:] {
		if f.Quality > best.Quality {
			best = f
		}
	}
	g.RepresentativeID = best.ID
}

// sortGroupsBySize orders groups largest first, for stable presentation.
func sortGroupsBySize(groups []face.FaceGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].FaceIDs) > len(groups[j].FaceIDs)
	})
}
