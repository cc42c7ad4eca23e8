package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-organizer/internal/roster"
)

// LoadPeople returns the whole known-person roster.
func (s *Store) LoadPeople(ctx context.Context) ([]roster.KnownPerson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, notes, representative_id, created_at, updated_at
		FROM people
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []roster.KnownPerson
	index := make(map[string]int)
	for rows.Next() {
		var p roster.KnownPerson
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Notes,
			&p.RepresentativeID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		index[p.ID] = len(people)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}

	embRows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, embedding, source, captured_at, mode
		FROM person_embeddings
		ORDER BY person_id, position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query person embeddings: %w", err)
	}
	defer embRows.Close()

	for embRows.Next() {
		var (
			e        roster.PersonEmbedding
			personID string
		)
		if err := embRows.Scan(&e.ID, &personID, &e.Embedding, &e.Source,
			&e.CapturedAt, &e.Mode); err != nil {
			return nil, fmt.Errorf("scan person embedding: %w", err)
		}
		if i, ok := index[personID]; ok {
			people[i].Embeddings = append(people[i].Embeddings, e)
		}
	}
	return people, embRows.Err()
}

// SavePeople replaces the whole roster in one transaction.
func (s *Store) SavePeople(ctx context.Context, people []roster.KnownPerson) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// person_embeddings rows go with their people via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, "DELETE FROM people"); err != nil {
		return fmt.Errorf("clear people: %w", err)
	}

	for _, p := range people {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO people (id, name, role, notes, representative_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, p.Name, p.Role, p.Notes, p.RepresentativeID, p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
		for i, e := range p.Embeddings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO person_embeddings (id, person_id, embedding, source, captured_at, mode, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, e.ID, p.ID, e.Embedding, e.Source, e.CapturedAt, e.Mode, i); err != nil {
				return fmt.Errorf("insert person embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster save: %w", err)
	}
	return nil
}
