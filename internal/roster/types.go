// Package roster maintains the persistent database of known people and
// matches face embeddings against it. The in-memory database is a
// copy-on-write snapshot: readers always see a consistent state, mutations
// are serialized and replace the snapshot wholesale.
package roster

import (
	"time"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// PersonEmbedding is one reference embedding for a known person. The stored
// blob is always face-only regardless of the recognition mode active at
// capture time; the mode is metadata.
type PersonEmbedding struct {
	ID         string               `json:"id"`
	Embedding  []byte               `json:"embedding"`
	Source     string               `json:"source,omitempty"` // free text, e.g. "wedding shoot 2024"
	CapturedAt time.Time            `json:"captured_at"`
	Mode       face.RecognitionMode `json:"mode"`
}

// KnownPerson is one named entry of the roster.
type KnownPerson struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Role       string            `json:"role,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Embeddings []PersonEmbedding `json:"embeddings"`

	// RepresentativeID points at the embedding used for thumbnails and
	// candidate indexing. Empty means the first embedding.
	RepresentativeID string `json:"representative_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Representative returns the representative embedding, falling back to the
// first one. Nil when the person has no embeddings.
func (p *KnownPerson) Representative() *PersonEmbedding {
	for i := range p.Embeddings {
		if p.Embeddings[i].ID == p.RepresentativeID {
			return &p.Embeddings[i]
		}
	}
	if len(p.Embeddings) > 0 {
		return &p.Embeddings[0]
	}
	return nil
}

// Match is one known-person match for a query embedding.
type Match struct {
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// DuplicateKind classifies the outcome of duplicate detection on person
// creation.
type DuplicateKind int

const (
	DuplicateNone DuplicateKind = iota
	DuplicateName               // same name, face unknown or different
	DuplicateFace               // face matched, different name
	DuplicateBoth               // same person by both signals
)

func (k DuplicateKind) String() string {
	switch k {
	case DuplicateName:
		return "name"
	case DuplicateFace:
		return "face"
	case DuplicateBoth:
		return "both"
	default:
		return "none"
	}
}

// DuplicateCheck reports which existing people a new person collides with.
type DuplicateCheck struct {
	Kind DuplicateKind

	// NamePersonID is the person with the matching (normalized) name.
	NamePersonID string
	// FacePersonID is the person with the best face match under threshold.
	FacePersonID string
}

// AutoMatchPolicy gates automatic naming. A match is accepted only when its
// confidence clears MinConfidence and it beats the runner-up by at least
// MinGap, so two nearly equally plausible people never auto-name.
type AutoMatchPolicy struct {
	Threshold     float64
	MinConfidence float64
	MinGap        float64
}

// DefaultAutoMatchPolicy mirrors the interactive matching defaults.
func DefaultAutoMatchPolicy() AutoMatchPolicy {
	return AutoMatchPolicy{
		Threshold:     0.5,
		MinConfidence: 0.6,
		MinGap:        0.05,
	}
}
