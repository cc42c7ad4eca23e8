package cluster

import (
	"sort"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// Suggestions scores every pair of existing groups by average-linkage
// distance over their full memberships and reports the pairs that landed
// strictly between the threshold and threshold*(1+margin): probably the
// same person, but not confidently enough to merge without a human looking.
// Results are sorted by descending similarity.
func Suggestions(data *face.FolderFaceData, opts Options, cache *face.Cache) ([]face.MergeSuggestion, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	metric := opts.metric(cache)
	upper := opts.Threshold * (1 + opts.Margin)

	var out []face.MergeSuggestion
	for a := 0; a < len(data.Groups); a++ {
		facesA := data.GroupFaces(&data.Groups[a])
		for b := a + 1; b < len(data.Groups); b++ {
			d, ok := groupsDistance(facesA, data.GroupFaces(&data.Groups[b]), metric)
			if !ok {
				continue
			}
			if d > opts.Threshold && d < upper {
				out = append(out, face.MergeSuggestion{
					GroupA:     data.Groups[a].ID,
					GroupB:     data.Groups[b].ID,
					Similarity: face.Confidence(d),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out, nil
}

// groupsDistance is the average-linkage distance between two memberships,
// skipping undecodable pairs.
func groupsDistance(a, b []*face.DetectedFace, metric *face.Metric) (float64, bool) {
	var sum float64
	var count int
	for _, fa := range a {
		for _, fb := range b {
			d, ok := metric.Distance(fa, fb)
			if !ok {
				continue
			}
			sum += d
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// MergeGroups folds group src into dst: membership moves over, src's faces
// are restamped and dst's representative is re-picked. The src group is
// removed from the folder data. Unknown ids are a no-op.
func MergeGroups(data *face.FolderFaceData, dstID, srcID string) bool {
	if dstID == srcID {
		return false
	}
	dst := data.GroupByID(dstID)
	src := data.GroupByID(srcID)
	if dst == nil || src == nil {
		return false
	}

	for _, id := range src.FaceIDs {
		if dst.Contains(id) {
			continue
		}
		dst.FaceIDs = append(dst.FaceIDs, id)
		if f := data.FaceByID(id); f != nil {
			f.GroupID = dst.ID
		}
	}
	RecomputeRepresentative(data, dst)

	for i := range data.Groups {
		if data.Groups[i].ID == srcID {
			data.Groups = append(data.Groups[:i], data.Groups[i+1:]...)
			break
		}
	}
	return true
}

// RenameGroup sets the user-visible name of a group. Unknown ids are a no-op.
func RenameGroup(data *face.FolderFaceData, groupID, name string) bool {
	g := data.GroupByID(groupID)
	if g == nil {
		return false
	}
	g.Name = name
	return true
}
