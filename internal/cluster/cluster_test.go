package cluster

import (
	"context"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/kozaktomas/face-organizer/internal/face"
)

func mkFace(id string, vec face.Vector, quality float64) *face.DetectedFace {
	return &face.DetectedFace{
		ID:        id,
		Embedding: face.EncodeEmbedding(vec),
		Quality:   quality,
	}
}

// vecAt returns a 2D unit vector at the given cosine distance from (1, 0).
func vecAt(distance float64) face.Vector {
	c := 1 - distance
	return face.Vector{float32(c), float32(math.Sqrt(1 - c*c))}
}

// partition maps each face id to the sorted member list of its group.
func partition(faces []*face.DetectedFace, groups []face.FaceGroup) map[string][]string {
	out := make(map[string][]string)
	for _, g := range groups {
		members := append([]string(nil), g.FaceIDs...)
		sort.Strings(members)
		for _, id := range g.FaceIDs {
			out[id] = members
		}
	}
	return out
}

// scenarioFaces builds three faces with pairwise distances
// A-B 0.29, B-C 0.3, A-C 0.9. The A-B edge is slightly tighter than B-C so
// the first merge is unambiguous even under float32 rounding.
func scenarioFaces(t *testing.T) []*face.DetectedFace {
	t.Helper()
	s := math.Sqrt(1 - 0.71*0.71)
	x := (0.1 - 0.71*0.7) / s
	y := math.Sqrt(1 - 0.49 - x*x)

	b := face.Vector{1, 0, 0}
	a := face.Vector{0.71, float32(s), 0}
	c := face.Vector{0.7, float32(x), float32(y)}
	return []*face.DetectedFace{
		mkFace("A", a, 0.9),
		mkFace("B", b, 0.8),
		mkFace("C", c, 0.7),
	}
}

func TestHierarchicalAverageScenario(t *testing.T) {
	// A-B merge first. C's average distance to {A,B} is
	// (0.3+0.9)/2 = 0.6 > 0.5, so C stays apart.
	faces := scenarioFaces(t)
	opts := DefaultOptions()
	opts.Threshold = 0.5

	groups, err := Run(context.Background(), faces, opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	p := partition(faces, groups)
	if !reflect.DeepEqual(p["A"], []string{"A", "B"}) {
		t.Errorf("A's group = %v, want [A B]", p["A"])
	}
	if !reflect.DeepEqual(p["C"], []string{"C"}) {
		t.Errorf("C's group = %v, want [C]", p["C"])
	}
	// Representative is the highest-quality member.
	for _, g := range groups {
		if len(g.FaceIDs) == 2 && g.RepresentativeID != "A" {
			t.Errorf("representative = %s, want A", g.RepresentativeID)
		}
	}
}

func TestHierarchicalDeterminism(t *testing.T) {
	opts := DefaultOptions()
	opts.Threshold = 0.5

	for _, strategy := range []Strategy{StrategyHierarchicalAverage, StrategyHierarchicalMedian} {
		opts.Strategy = strategy

		facesA := scenarioFaces(t)
		groupsA, err := Run(context.Background(), facesA, opts, nil)
		if err != nil {
			t.Fatalf("%s: first run failed: %v", strategy, err)
		}
		facesB := scenarioFaces(t)
		groupsB, err := Run(context.Background(), facesB, opts, nil)
		if err != nil {
			t.Fatalf("%s: second run failed: %v", strategy, err)
		}

		pa, pb := partition(facesA, groupsA), partition(facesB, groupsB)
		if !reflect.DeepEqual(pa, pb) {
			t.Errorf("%s: partitions differ: %v vs %v", strategy, pa, pb)
		}
		repsA := representativesByMembers(groupsA)
		repsB := representativesByMembers(groupsB)
		if !reflect.DeepEqual(repsA, repsB) {
			t.Errorf("%s: representatives differ: %v vs %v", strategy, repsA, repsB)
		}
	}
}

func representativesByMembers(groups []face.FaceGroup) map[string]string {
	out := make(map[string]string)
	for _, g := range groups {
		members := append([]string(nil), g.FaceIDs...)
		sort.Strings(members)
		out[members[0]] = g.RepresentativeID
	}
	return out
}

func TestThresholdMonotonicity(t *testing.T) {
	// Increasing the threshold never increases the number of groups.
	vectors := []face.Vector{
		vecAt(0), vecAt(0.1), vecAt(0.25), vecAt(0.4),
		vecAt(0.6), vecAt(0.8), vecAt(0.95),
	}

	prev := -1
	for _, threshold := range []float64{0.05, 0.15, 0.3, 0.5, 0.7, 0.9} {
		faces := make([]*face.DetectedFace, len(vectors))
		for i, v := range vectors {
			faces[i] = mkFace(string(rune('a'+i)), v, 0.5)
		}
		opts := DefaultOptions()
		opts.Threshold = threshold

		groups, err := Run(context.Background(), faces, opts, nil)
		if err != nil {
			t.Fatalf("Run(threshold=%v) failed: %v", threshold, err)
		}
		if prev >= 0 && len(groups) > prev {
			t.Errorf("threshold %v produced %d groups, previous threshold produced %d",
				threshold, len(groups), prev)
		}
		prev = len(groups)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"single", []float64{0.4}, 0.4},
		{"odd", []float64{0.9, 0.1, 0.3}, 0.3},
		{"even", []float64{0.4, 0.1, 0.2, 0.3}, 0.25},
		{"outlier resistant", []float64{0.2, 0.2, 0.2, 1.9}, 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := median(tc.values); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("median(%v) = %v, want %v", tc.values, got, tc.want)
			}
		})
	}
}

func TestChineseWhispersClumpsAndOutlier(t *testing.T) {
	seed := int64(42)
	opts := DefaultOptions()
	opts.Strategy = StrategyChineseWhispers
	opts.Threshold = 0.4
	opts.Seed = &seed

	build := func() []*face.DetectedFace {
		return []*face.DetectedFace{
			mkFace("a1", face.Vector{1, 0, 0}, 0.9),
			mkFace("a2", face.Vector{0.99, 0.05, 0}, 0.8),
			mkFace("a3", face.Vector{0.98, 0, 0.05}, 0.7),
			mkFace("b1", face.Vector{0, 1, 0}, 0.9),
			mkFace("b2", face.Vector{0.05, 0.99, 0}, 0.8),
			mkFace("loner", face.Vector{0, 0, -1}, 0.9),
		}
	}

	faces := build()
	groups, err := Run(context.Background(), faces, opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3: %+v", len(groups), groups)
	}
	p := partition(faces, groups)
	if !reflect.DeepEqual(p["a1"], []string{"a1", "a2", "a3"}) {
		t.Errorf("clump A = %v", p["a1"])
	}
	if !reflect.DeepEqual(p["b1"], []string{"b1", "b2"}) {
		t.Errorf("clump B = %v", p["b1"])
	}
	if !reflect.DeepEqual(p["loner"], []string{"loner"}) {
		t.Errorf("outlier group = %v, want singleton", p["loner"])
	}

	// Same seed, same outcome.
	faces2 := build()
	groups2, err := Run(context.Background(), faces2, opts, nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !reflect.DeepEqual(partition(faces2, groups2), p) {
		t.Error("pinned seed produced a different partition")
	}
}

func TestTwoPassQualityGate(t *testing.T) {
	seed := int64(7)
	opts := DefaultOptions()
	opts.Strategy = StrategyTwoPass
	opts.Threshold = 0.4
	opts.QualityGate = 0.5
	opts.Seed = &seed

	faces := []*face.DetectedFace{
		mkFace("h1", face.Vector{1, 0, 0}, 0.9),
		mkFace("h2", face.Vector{0.99, 0.05, 0}, 0.8),
		// Low quality, close to the h clump: should attach.
		mkFace("l1", face.Vector{0.98, 0.02, 0.02}, 0.2),
		// Two low-quality faces close to each other but far from any group:
		// both stay singleton, they must not anchor a new cluster together.
		mkFace("l2", face.Vector{0, 1, 0}, 0.2),
		mkFace("l3", face.Vector{0.01, 0.99, 0}, 0.3),
	}

	groups, err := Run(context.Background(), faces, opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3: %+v", len(groups), groups)
	}
	p := partition(faces, groups)
	if !reflect.DeepEqual(p["h1"], []string{"h1", "h2", "l1"}) {
		t.Errorf("high-quality group = %v, want [h1 h2 l1]", p["h1"])
	}
	if !reflect.DeepEqual(p["l2"], []string{"l2"}) || !reflect.DeepEqual(p["l3"], []string{"l3"}) {
		t.Errorf("low-quality leftovers should be singletons: %v / %v", p["l2"], p["l3"])
	}
}

func TestCorruptEmbeddingBecomesSingleton(t *testing.T) {
	faces := []*face.DetectedFace{
		mkFace("a", face.Vector{1, 0}, 0.9),
		mkFace("b", face.Vector{0.99, 0.01}, 0.8),
		{ID: "bad", Embedding: []byte{1, 2, 3}, Quality: 0.9},
	}
	opts := DefaultOptions()
	opts.Threshold = 0.5

	groups, err := Run(context.Background(), faces, opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	p := partition(faces, groups)
	if !reflect.DeepEqual(p["bad"], []string{"bad"}) {
		t.Errorf("corrupt face group = %v, want singleton", p["bad"])
	}
}

func TestRunEmptyAndValidation(t *testing.T) {
	opts := DefaultOptions()
	groups, err := Run(context.Background(), nil, opts, nil)
	if err != nil || groups != nil {
		t.Errorf("empty input: got (%v, %v), want (nil, nil)", groups, err)
	}

	bad := []Options{
		{Strategy: "kmeans", Threshold: 0.5, Iterations: 1},
		{Strategy: StrategyHierarchicalAverage, Threshold: -1, Iterations: 1},
		{Strategy: StrategyChineseWhispers, Threshold: 0.5, Iterations: 0},
		{Strategy: StrategyChineseWhispers, Threshold: 0.5, Iterations: 5, QualityMix: 1.5},
	}
	for _, o := range bad {
		if _, err := Run(context.Background(), scenarioFaces(t), o, nil); err == nil {
			t.Errorf("expected validation error for %+v", o)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := DefaultOptions()
	if _, err := Run(ctx, scenarioFaces(t), opts, nil); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestAssignToGroups(t *testing.T) {
	data := &face.FolderFaceData{
		Faces: []face.DetectedFace{
			*mkFace("g1a", face.Vector{1, 0, 0}, 0.9),
			*mkFace("g1b", face.Vector{0.99, 0.05, 0}, 0.5),
		},
		Groups: []face.FaceGroup{
			{ID: "g1", RepresentativeID: "g1a", FaceIDs: []string{"g1a", "g1b"}},
		},
	}
	data.Faces[0].GroupID = "g1"
	data.Faces[1].GroupID = "g1"

	// New faces join the folder data before assignment, like a rescan does.
	data.Faces = append(data.Faces,
		*mkFace("near", face.Vector{0.98, 0.03, 0.01}, 1.0),
		*mkFace("far", face.Vector{0, 0, 1}, 0.9),
	)
	near := &data.Faces[2]
	far := &data.Faces[3]

	opts := DefaultOptions()
	opts.Threshold = 0.3

	leftover, err := AssignToGroups(context.Background(), data, []*face.DetectedFace{near, far}, opts, nil)
	if err != nil {
		t.Fatalf("AssignToGroups failed: %v", err)
	}
	if near.GroupID != "g1" {
		t.Errorf("near.GroupID = %q, want g1", near.GroupID)
	}
	if !data.Groups[0].Contains("near") {
		t.Error("group g1 should contain near")
	}
	// Highest quality member becomes representative after the append.
	if data.Groups[0].RepresentativeID != "near" {
		t.Errorf("representative = %s, want near", data.Groups[0].RepresentativeID)
	}
	if len(leftover) != 1 || leftover[0].ID != "far" {
		t.Errorf("leftover = %v, want [far]", leftover)
	}
}

func TestSuggestionsBand(t *testing.T) {
	opts := DefaultOptions()
	opts.Threshold = 0.5
	opts.Margin = 0.15

	tests := []struct {
		name     string
		distance float64
		want     int
	}{
		{"at threshold, not strictly above", 0.5, 0},
		{"inside band at 1.10x", 0.55, 1},
		{"outside band at 1.20x", 0.60, 0},
		{"well under threshold", 0.2, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := mkFace("a", face.Vector{1, 0}, 0.9)
			b := mkFace("b", vecAt(tc.distance), 0.9)
			data := &face.FolderFaceData{
				Faces: []face.DetectedFace{*a, *b},
				Groups: []face.FaceGroup{
					{ID: "ga", RepresentativeID: "a", FaceIDs: []string{"a"}},
					{ID: "gb", RepresentativeID: "b", FaceIDs: []string{"b"}},
				},
			}
			got, err := Suggestions(data, opts, nil)
			if err != nil {
				t.Fatalf("Suggestions failed: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d suggestions, want %d", len(got), tc.want)
			}
			if tc.want == 1 {
				wantSim := 1 - tc.distance
				if math.Abs(got[0].Similarity-wantSim) > 1e-6 {
					t.Errorf("similarity = %v, want %v", got[0].Similarity, wantSim)
				}
			}
		})
	}
}

func TestSuggestionsSorted(t *testing.T) {
	opts := DefaultOptions()
	opts.Threshold = 0.5
	opts.Margin = 0.2

	data := &face.FolderFaceData{
		Faces: []face.DetectedFace{
			*mkFace("a", face.Vector{1, 0}, 0.9),
			*mkFace("b", vecAt(0.58), 0.9),
			*mkFace("c", face.Vector{-1, 0}, 0.9),
			*mkFace("d", vecAt(0.52), 0.9),
		},
		Groups: []face.FaceGroup{
			{ID: "ga", RepresentativeID: "a", FaceIDs: []string{"a"}},
			{ID: "gb", RepresentativeID: "b", FaceIDs: []string{"b"}},
			{ID: "gd", RepresentativeID: "d", FaceIDs: []string{"d"}},
		},
	}
	got, err := Suggestions(data, opts, nil)
	if err != nil {
		t.Fatalf("Suggestions failed: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Errorf("suggestions not sorted descending: %v", got)
		}
	}
	if len(got) == 0 || got[0].GroupB != "gd" && got[0].GroupA != "gd" {
		t.Errorf("closest pair should rank first: %+v", got)
	}
}

func TestMergeGroups(t *testing.T) {
	data := &face.FolderFaceData{
		Faces: []face.DetectedFace{
			{ID: "f1", Quality: 0.5, GroupID: "g1"},
			{ID: "f2", Quality: 0.9, GroupID: "g2"},
		},
		Groups: []face.FaceGroup{
			{ID: "g1", RepresentativeID: "f1", FaceIDs: []string{"f1"}},
			{ID: "g2", RepresentativeID: "f2", FaceIDs: []string{"f2"}},
		},
	}

	if !MergeGroups(data, "g1", "g2") {
		t.Fatal("MergeGroups returned false")
	}
	if len(data.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(data.Groups))
	}
	g := data.GroupByID("g1")
	if g == nil || len(g.FaceIDs) != 2 {
		t.Fatalf("merged group = %+v", g)
	}
	if g.RepresentativeID != "f2" {
		t.Errorf("representative = %s, want f2 (higher quality)", g.RepresentativeID)
	}
	if data.FaceByID("f2").GroupID != "g1" {
		t.Error("f2 not restamped to g1")
	}

	// Unknown ids are a no-op.
	if MergeGroups(data, "g1", "nope") {
		t.Error("merge with unknown source should return false")
	}
}
