// Package store defines durable storage for folder face data and the
// known-person roster. The engine receives fully loaded structures and hands
// back fully formed ones; backends replace a folder or the roster wholesale
// on save, matching the engine's copy-on-write snapshot model.
package store

import (
	"context"

	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/roster"
)

// Store is the persistence surface used by the CLI and the web server.
type Store interface {
	// LoadFolder returns the folder's face data, or an empty FolderFaceData
	// when the folder was never scanned.
	LoadFolder(ctx context.Context, folder string) (*face.FolderFaceData, error)

	// SaveFolder replaces all stored data for data.Folder.
	SaveFolder(ctx context.Context, data *face.FolderFaceData) error

	// LoadPeople returns the whole known-person roster.
	LoadPeople(ctx context.Context) ([]roster.KnownPerson, error)

	// SavePeople replaces the whole known-person roster.
	SavePeople(ctx context.Context, people []roster.KnownPerson) error

	Close() error
}

// SimilarFace is one result of a similarity search, nearest first.
type SimilarFace struct {
	FaceID    string  `json:"face_id"`
	ImagePath string  `json:"image_path"`
	GroupID   string  `json:"group_id"`
	Distance  float64 `json:"distance"`
}

// SimilaritySearcher is implemented by backends that can search stored faces
// by embedding distance. Callers must check for it; the mariadb backend
// stores raw blobs only and does not implement it.
type SimilaritySearcher interface {
	// FindSimilarFaces returns at most limit faces of the folder ordered by
	// distance to the query vector. Faces whose stored blob never decoded
	// are not searchable and do not appear.
	FindSimilarFaces(ctx context.Context, folder string, query face.Vector, limit int) ([]SimilarFace, error)
}
