// Package face defines the core data model for faces detected in a folder
// of images: embeddings, detected faces, groups and the per-folder scan state.
package face

import "time"

// RecognitionMode identifies which embedding configuration was active when
// a face was captured.
type RecognitionMode string

const (
	// ModeFaceOnly uses only the face crop embedding.
	ModeFaceOnly RecognitionMode = "face"
	// ModeFaceContext additionally captures a context (clothing/body region)
	// embedding used to assist within-folder clustering.
	ModeFaceContext RecognitionMode = "face_context"
)

// BoundingBox is a normalized [0,1] rectangle in display coordinates.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DetectedFace is a single face found by the perception service in one image.
// All fields except GroupID are set once at detection time; GroupID is the
// only field mutated afterwards, by the clustering components.
type DetectedFace struct {
	ID        string      `json:"id"`
	ImagePath string      `json:"image_path"`
	BBox      BoundingBox `json:"bbox"`

	// Embedding is the primary (face-only) embedding blob. Always present,
	// though it may fail to decode.
	Embedding []byte `json:"embedding"`

	// ContextEmbedding is the optional supplementary embedding blob and its
	// region. Only used for within-folder clustering, never for known-person
	// matching.
	ContextEmbedding []byte       `json:"context_embedding,omitempty"`
	ContextBBox      *BoundingBox `json:"context_bbox,omitempty"`

	Confidence float64 `json:"confidence"` // detection confidence, 0-1
	PixelSize  int     `json:"pixel_size"` // face crop size in pixels (shorter side)
	Sharpness  float64 `json:"sharpness"`  // 0-1, higher = sharper
	Quality    float64 `json:"quality"`    // composite score, see ComputeQuality

	Mode    RecognitionMode `json:"mode"`
	GroupID string          `json:"group_id,omitempty"` // empty = unclustered
}

// FaceGroup is a set of faces believed to be the same person within a folder.
// Invariant: RepresentativeID is always a member of FaceIDs.
type FaceGroup struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"` // user-assigned or auto-matched
	RepresentativeID string   `json:"representative_id"`
	FaceIDs          []string `json:"face_ids"`
}

// Contains reports whether the group holds the given face id.
func (g *FaceGroup) Contains(faceID string) bool {
	for _, id := range g.FaceIDs {
		if id == faceID {
			return true
		}
	}
	return false
}

// MergeSuggestion flags two groups that narrowly missed the merge threshold
// for human review. Transient, recomputed on demand.
type MergeSuggestion struct {
	GroupA     string  `json:"group_a"`
	GroupB     string  `json:"group_b"`
	Similarity float64 `json:"similarity"` // 0-1, higher = more alike
}

// ScannedFile records that a file was already processed, so incremental
// rescans skip it.
type ScannedFile struct {
	Path      string    `json:"path"`
	FaceCount int       `json:"face_count"`
	ScannedAt time.Time `json:"scanned_at"`
}

// FolderFaceData is everything the engine knows about one folder: faces,
// groups and scan bookkeeping. It is loaded and persisted as a unit.
type FolderFaceData struct {
	Folder       string         `json:"folder"`
	Faces        []DetectedFace `json:"faces"`
	Groups       []FaceGroup    `json:"groups"`
	ScannedFiles []ScannedFile  `json:"scanned_files"`
}

// FaceByID returns the face with the given id, or nil.
func (d *FolderFaceData) FaceByID(id string) *DetectedFace {
	for i := range d.Faces {
		if d.Faces[i].ID == id {
			return &d.Faces[i]
		}
	}
	return nil
}

// GroupByID returns the group with the given id, or nil.
func (d *FolderFaceData) GroupByID(id string) *FaceGroup {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i]
		}
	}
	return nil
}

// Unclustered returns the faces without a group assignment.
func (d *FolderFaceData) Unclustered() []*DetectedFace {
	var out []*DetectedFace
	for i := range d.Faces {
		if d.Faces[i].GroupID == "" {
			out = append(out, &d.Faces[i])
		}
	}
	return out
}

// IsScanned reports whether the file was already processed.
func (d *FolderFaceData) IsScanned(path string) bool {
	for _, f := range d.ScannedFiles {
		if f.Path == path {
			return true
		}
	}
	return false
}

// GroupFaces resolves a group's member ids to faces, skipping dangling ids.
func (d *FolderFaceData) GroupFaces(g *FaceGroup) []*DetectedFace {
	faces := make([]*DetectedFace, 0, len(g.FaceIDs))
	for _, id := range g.FaceIDs {
		if f := d.FaceByID(id); f != nil {
			faces = append(faces, f)
		}
	}
	return faces
}

// Weights for the composite quality score. Detection confidence dominates;
// size and sharpness break ties between detections of the same person.
const (
	qualityConfidenceWeight = 0.5
	qualitySizeWeight       = 0.25
	qualitySharpnessWeight  = 0.25

	// Face crops at or above this size (pixels, shorter side) score full
	// marks on the size component.
	qualityFullSizePixels = 160
)

// ComputeQuality combines detection confidence, pixel size and sharpness
// into a single 0-1 score used to pick cluster representatives and to gate
// two-pass clustering.
func ComputeQuality(confidence float64, pixelSize int, sharpness float64) float64 {
	sizeScore := float64(pixelSize) / qualityFullSizePixels
	if sizeScore > 1 {
		sizeScore = 1
	}
	if sizeScore < 0 {
		sizeScore = 0
	}
	q := qualityConfidenceWeight*clamp01(confidence) +
		qualitySizeWeight*sizeScore +
		qualitySharpnessWeight*clamp01(sharpness)
	return clamp01(q)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
