package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/store"
)

var _ store.SimilaritySearcher = (*Store)(nil)

// LoadFolder returns the folder's face data; never nil, an unscanned folder
// yields an empty structure.
func (s *Store) LoadFolder(ctx context.Context, folder string) (*face.FolderFaceData, error) {
	data := &face.FolderFaceData{Folder: folder}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_path, bbox, embedding, ctx_embedding, ctx_bbox,
		       confidence, pixel_size, sharpness, quality, mode, group_id
		FROM faces
		WHERE folder = $1
		ORDER BY image_path, id
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f           face.DetectedFace
			bboxJSON    []byte
			ctxBboxJSON []byte
		)
		if err := rows.Scan(&f.ID, &f.ImagePath, &bboxJSON, &f.Embedding,
			&f.ContextEmbedding, &ctxBboxJSON, &f.Confidence, &f.PixelSize,
			&f.Sharpness, &f.Quality, &f.Mode, &f.GroupID); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if err := json.Unmarshal(bboxJSON, &f.BBox); err != nil {
			return nil, fmt.Errorf("decode face bbox: %w", err)
		}
		if len(ctxBboxJSON) > 0 {
			f.ContextBBox = &face.BoundingBox{}
			if err := json.Unmarshal(ctxBboxJSON, f.ContextBBox); err != nil {
				return nil, fmt.Errorf("decode context bbox: %w", err)
			}
		}
		data.Faces = append(data.Faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}

	if err := s.loadGroups(ctx, data); err != nil {
		return nil, err
	}
	if err := s.loadScannedFiles(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) loadGroups(ctx context.Context, data *face.FolderFaceData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, representative_id, face_ids
		FROM face_groups
		WHERE folder = $1
		ORDER BY position, id
	`, data.Folder)
	if err != nil {
		return fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			g           face.FaceGroup
			faceIDsJSON []byte
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.RepresentativeID, &faceIDsJSON); err != nil {
			return fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal(faceIDsJSON, &g.FaceIDs); err != nil {
			return fmt.Errorf("decode group members: %w", err)
		}
		data.Groups = append(data.Groups, g)
	}
	return rows.Err()
}

func (s *Store) loadScannedFiles(ctx context.Context, data *face.FolderFaceData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, face_count, scanned_at
		FROM scanned_files
		WHERE folder = $1
		ORDER BY path
	`, data.Folder)
	if err != nil {
		return fmt.Errorf("query scanned files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sf face.ScannedFile
		if err := rows.Scan(&sf.Path, &sf.FaceCount, &sf.ScannedAt); err != nil {
			return fmt.Errorf("scan scanned file: %w", err)
		}
		data.ScannedFiles = append(data.ScannedFiles, sf)
	}
	return rows.Err()
}

// SaveFolder replaces all stored rows of the folder in one transaction.
func (s *Store) SaveFolder(ctx context.Context, data *face.FolderFaceData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"faces", "face_groups", "scanned_files"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE folder = $1", table), data.Folder); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i := range data.Faces {
		if err := insertFace(ctx, tx, data.Folder, &data.Faces[i]); err != nil {
			return err
		}
	}
	for i, g := range data.Groups {
		faceIDs, err := json.Marshal(g.FaceIDs)
		if err != nil {
			return fmt.Errorf("encode group members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_groups (id, folder, name, representative_id, face_ids, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, g.ID, data.Folder, g.Name, g.RepresentativeID, faceIDs, i); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
	}
	for _, sf := range data.ScannedFiles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scanned_files (folder, path, face_count, scanned_at)
			VALUES ($1, $2, $3, $4)
		`, data.Folder, sf.Path, sf.FaceCount, sf.ScannedAt); err != nil {
			return fmt.Errorf("insert scanned file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit folder save: %w", err)
	}
	return nil
}

func insertFace(ctx context.Context, tx *sql.Tx, folder string, f *face.DetectedFace) error {
	bbox, err := json.Marshal(f.BBox)
	if err != nil {
		return fmt.Errorf("encode face bbox: %w", err)
	}
	var ctxBbox []byte
	if f.ContextBBox != nil {
		if ctxBbox, err = json.Marshal(f.ContextBBox); err != nil {
			return fmt.Errorf("encode context bbox: %w", err)
		}
	}

	// The vector column is best effort: it exists for similarity queries
	// and stays NULL for blobs that do not decode.
	var vec any
	if decoded, err := face.DecodeEmbedding(f.Embedding); err == nil {
		vec = pgvector.NewVector(decoded)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO faces (id, folder, image_path, bbox, embedding, embedding_vec,
		                   ctx_embedding, ctx_bbox, confidence, pixel_size,
		                   sharpness, quality, mode, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, f.ID, folder, f.ImagePath, bbox, f.Embedding, vec, f.ContextEmbedding,
		ctxBbox, f.Confidence, f.PixelSize, f.Sharpness, f.Quality, f.Mode, f.GroupID)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

// FindSimilarFaces runs a pgvector cosine search over all stored faces of a
// folder, nearest first. Faces whose blob never decoded are not indexed and
// do not appear.
func (s *Store) FindSimilarFaces(ctx context.Context, folder string, query face.Vector, limit int) ([]store.SimilarFace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_path, group_id, embedding_vec <=> $2 AS distance
		FROM faces
		WHERE folder = $1 AND embedding_vec IS NOT NULL
		ORDER BY distance
		LIMIT $3
	`, folder, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var out []store.SimilarFace
	for rows.Next() {
		var sf store.SimilarFace
		if err := rows.Scan(&sf.FaceID, &sf.ImagePath, &sf.GroupID, &sf.Distance); err != nil {
			return nil, fmt.Errorf("scan similar face: %w", err)
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}
