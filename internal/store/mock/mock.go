// Package mock provides an in-memory implementation of store.Store for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/roster"
	"github.com/kozaktomas/face-organizer/internal/store"
)

// Store keeps folder data and the roster in memory. All returned values are
// copies, so tests can mutate them without affecting the stored state.
type Store struct {
	mu      sync.RWMutex
	folders map[string]*face.FolderFaceData
	people  []roster.KnownPerson

	// Track calls
	SaveFolderCalls []string
	SavePeopleCalls int

	// Error injection
	LoadFolderError  error
	SaveFolderError  error
	LoadPeopleError  error
	SavePeopleError  error
	FindSimilarError error
	CloseError       error
}

// New creates an empty mock store.
func New() *Store {
	return &Store{
		folders: make(map[string]*face.FolderFaceData),
	}
}

// SetFolder seeds folder data directly, bypassing SaveFolder bookkeeping.
func (m *Store) SetFolder(data *face.FolderFaceData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[data.Folder] = cloneFolder(data)
}

// SetPeople seeds the roster directly.
func (m *Store) SetPeople(people []roster.KnownPerson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = clonePeople(people)
}

// LoadFolder returns the stored folder data, or an empty structure when the
// folder has never been saved.
func (m *Store) LoadFolder(ctx context.Context, folder string) (*face.FolderFaceData, error) {
	if m.LoadFolderError != nil {
		return nil, m.LoadFolderError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.folders[folder]; ok {
		return cloneFolder(data), nil
	}
	return &face.FolderFaceData{Folder: folder}, nil
}

// SaveFolder replaces the stored folder data.
func (m *Store) SaveFolder(ctx context.Context, data *face.FolderFaceData) error {
	if m.SaveFolderError != nil {
		return m.SaveFolderError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveFolderCalls = append(m.SaveFolderCalls, data.Folder)
	m.folders[data.Folder] = cloneFolder(data)
	return nil
}

// LoadPeople returns the stored roster.
func (m *Store) LoadPeople(ctx context.Context) ([]roster.KnownPerson, error) {
	if m.LoadPeopleError != nil {
		return nil, m.LoadPeopleError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clonePeople(m.people), nil
}

// SavePeople replaces the stored roster.
func (m *Store) SavePeople(ctx context.Context, people []roster.KnownPerson) error {
	if m.SavePeopleError != nil {
		return m.SavePeopleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavePeopleCalls++
	m.people = clonePeople(people)
	return nil
}

// FindSimilarFaces scans the folder's faces linearly, mirroring the
// postgres vector search: undecodable blobs are skipped, results come back
// nearest first.
func (m *Store) FindSimilarFaces(ctx context.Context, folder string, query face.Vector, limit int) ([]store.SimilarFace, error) {
	if m.FindSimilarError != nil {
		return nil, m.FindSimilarError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.folders[folder]
	if !ok {
		return nil, nil
	}
	var out []store.SimilarFace
	for i := range data.Faces {
		f := &data.Faces[i]
		vec, err := face.DecodeEmbedding(f.Embedding)
		if err != nil {
			continue
		}
		out = append(out, store.SimilarFace{
			FaceID:    f.ID,
			ImagePath: f.ImagePath,
			GroupID:   f.GroupID,
			Distance:  face.CosineDistance(query, vec),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op unless CloseError is set.
func (m *Store) Close() error {
	return m.CloseError
}

func cloneFolder(data *face.FolderFaceData) *face.FolderFaceData {
	out := &face.FolderFaceData{Folder: data.Folder}
	out.Faces = append([]face.DetectedFace(nil), data.Faces...)
	out.ScannedFiles = append([]face.ScannedFile(nil), data.ScannedFiles...)
	for _, g := range data.Groups {
		g.FaceIDs = append([]string(nil), g.FaceIDs...)
		out.Groups = append(out.Groups, g)
	}
	return out
}

func clonePeople(people []roster.KnownPerson) []roster.KnownPerson {
	out := make([]roster.KnownPerson, 0, len(people))
	for _, p := range people {
		p.Embeddings = append([]roster.PersonEmbedding(nil), p.Embeddings...)
		out = append(out, p)
	}
	return out
}

// Verify interface compliance
var _ store.Store = (*Store)(nil)
var _ store.SimilaritySearcher = (*Store)(nil)
