package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-organizer/internal/cluster"
	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/roster"
	"github.com/kozaktomas/face-organizer/internal/store"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// healthCheck handles the health check endpoint.
func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// loadFolder reads the folder query parameter and fetches its face data.
// Writes the error response itself and returns nil when the request is bad.
func (s *Server) loadFolder(w http.ResponseWriter, r *http.Request) *face.FolderFaceData {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		respondError(w, http.StatusBadRequest, "missing folder parameter")
		return nil
	}
	data, err := s.store.LoadFolder(r.Context(), folder)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load folder")
		return nil
	}
	return data
}

// folderOptions picks clustering options for the folder's recognition mode.
// All faces of a folder share one mode; an empty folder falls back to the
// configured mode.
func (s *Server) folderOptions(data *face.FolderFaceData) cluster.Options {
	mode := face.RecognitionMode(s.config.Perception.Mode)
	if len(data.Faces) > 0 && data.Faces[0].Mode != "" {
		mode = data.Faces[0].Mode
	}
	return s.config.ClusterOptions(mode)
}

type groupResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	RepresentativeID string `json:"representative_id"`
	Size             int    `json:"size"`
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	data := s.loadFolder(w, r)
	if data == nil {
		return
	}

	groups := make([]groupResponse, 0, len(data.Groups))
	for _, g := range data.Groups {
		groups = append(groups, groupResponse{
			ID:               g.ID,
			Name:             g.Name,
			RepresentativeID: g.RepresentativeID,
			Size:             len(g.FaceIDs),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"folder":      data.Folder,
		"groups":      groups,
		"unclustered": len(data.Unclustered()),
	})
}

func (s *Server) listSuggestions(w http.ResponseWriter, r *http.Request) {
	data := s.loadFolder(w, r)
	if data == nil {
		return
	}

	suggestions, err := cluster.Suggestions(data, s.folderOptions(data), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to score suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []face.MergeSuggestion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"folder":      data.Folder,
		"suggestions": suggestions,
	})
}

type mergeGroupsRequest struct {
	Folder string `json:"folder"`
	Dst    string `json:"dst"`
	Src    string `json:"src"`
}

func (s *Server) mergeGroups(w http.ResponseWriter, r *http.Request) {
	var req mergeGroupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Folder == "" || req.Dst == "" || req.Src == "" {
		respondError(w, http.StatusBadRequest, "folder, dst and src are required")
		return
	}

	data, err := s.store.LoadFolder(r.Context(), req.Folder)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load folder")
		return
	}
	if !cluster.MergeGroups(data, req.Dst, req.Src) {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	if err := s.store.SaveFolder(r.Context(), data); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save folder")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"merged_into": req.Dst})
}

type renameGroupRequest struct {
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

func (s *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")

	var req renameGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Folder == "" {
		respondError(w, http.StatusBadRequest, "folder is required")
		return
	}

	data, err := s.store.LoadFolder(r.Context(), req.Folder)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load folder")
		return
	}
	if !cluster.RenameGroup(data, groupID, req.Name) {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	if err := s.store.SaveFolder(r.Context(), data); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save folder")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": groupID, "name": req.Name})
}

type personResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Embeddings int    `json:"embeddings"`
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	people := s.roster.People()
	out := make([]personResponse, 0, len(people))
	for _, p := range people {
		out = append(out, personResponse{
			ID:         p.ID,
			Name:       p.Name,
			Role:       p.Role,
			Notes:      p.Notes,
			Embeddings: len(p.Embeddings),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": out})
}

type createPersonRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	var req createPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	policy := s.config.AutoMatchPolicy()
	if dup := s.roster.CheckDuplicate(req.Name, nil, policy.Threshold); dup.Kind != roster.DuplicateNone {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":     "duplicate person",
			"kind":      dup.Kind.String(),
			"person_id": dup.NamePersonID,
		})
		return
	}

	p := s.roster.AddPerson(req.Name, req.Role, nil)
	if err := s.store.SavePeople(r.Context(), s.roster.People()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save roster")
		return
	}
	respondJSON(w, http.StatusCreated, personResponse{ID: p.ID, Name: p.Name, Role: p.Role})
}

type mergePeopleRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (s *Server) mergePeople(w http.ResponseWriter, r *http.Request) {
	var req mergePeopleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	moved, ok := s.roster.MergePeople(req.Src, req.Dst)
	if !ok {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	if err := s.store.SavePeople(r.Context(), s.roster.People()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save roster")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"merged_into": req.Dst, "moved_embeddings": moved})
}

func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.roster.RemovePerson(id) {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	if err := s.store.SavePeople(r.Context(), s.roster.People()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save roster")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type matchFaceRequest struct {
	Folder     string `json:"folder"`
	FaceID     string `json:"face_id"`
	MaxResults int    `json:"max_results"`
}

func (s *Server) matchFace(w http.ResponseWriter, r *http.Request) {
	var req matchFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Folder == "" || req.FaceID == "" {
		respondError(w, http.StatusBadRequest, "folder and face_id are required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 5
	}

	data, err := s.store.LoadFolder(r.Context(), req.Folder)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load folder")
		return
	}
	f := data.FaceByID(req.FaceID)
	if f == nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}

	policy := s.config.AutoMatchPolicy()
	matches := s.roster.MatchFace(f.Embedding, policy.Threshold, req.MaxResults)
	if matches == nil {
		matches = []roster.Match{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id": req.FaceID,
		"matches": matches,
	})
}

type similarFacesRequest struct {
	Folder string `json:"folder"`
	FaceID string `json:"face_id"`
	Limit  int    `json:"limit"`
}

func (s *Server) similarFaces(w http.ResponseWriter, r *http.Request) {
	searcher, ok := s.store.(store.SimilaritySearcher)
	if !ok {
		respondError(w, http.StatusNotImplemented, "similarity search is not supported by the configured store")
		return
	}

	var req similarFacesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Folder == "" || req.FaceID == "" {
		respondError(w, http.StatusBadRequest, "folder and face_id are required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	data, err := s.store.LoadFolder(r.Context(), req.Folder)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load folder")
		return
	}
	f := data.FaceByID(req.FaceID)
	if f == nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	query, err := face.DecodeEmbedding(f.Embedding)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "face has no usable embedding")
		return
	}

	results, err := searcher.FindSimilarFaces(r.Context(), req.Folder, query, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}
	if results == nil {
		results = []store.SimilarFace{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id": req.FaceID,
		"similar": results,
	})
}
