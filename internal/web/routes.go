package web

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/api/v1/health", healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Folder groups
		r.Get("/groups", s.listGroups)
		r.Get("/suggestions", s.listSuggestions)
		r.Post("/groups/merge", s.mergeGroups)
		r.Put("/groups/{id}/name", s.renameGroup)

		// Known people
		r.Get("/people", s.listPeople)
		r.Post("/people", s.createPerson)
		r.Post("/people/merge", s.mergePeople)
		r.Delete("/people/{id}", s.deletePerson)

		// Matching
		r.Post("/faces/match", s.matchFace)
		r.Post("/faces/similar", s.similarFaces)
	})
}
