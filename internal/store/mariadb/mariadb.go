// Package mariadb implements store.Store on MariaDB/MySQL for
// installations that already run one. Embedding blobs are stored verbatim;
// there is no vector search support, so similarity work happens in memory.
package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/roster"
)

// Store is a MariaDB-backed store.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and applies migrations. The DSN must enable
// parseTime so timestamp columns scan into time.Time.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mariadb: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mariadb: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS faces (
		id            VARCHAR(64) PRIMARY KEY,
		folder        VARCHAR(512) NOT NULL,
		image_path    VARCHAR(1024) NOT NULL,
		bbox          TEXT NOT NULL,
		embedding     MEDIUMBLOB NOT NULL,
		ctx_embedding MEDIUMBLOB,
		ctx_bbox      TEXT,
		confidence    DOUBLE NOT NULL DEFAULT 0,
		pixel_size    INT NOT NULL DEFAULT 0,
		sharpness     DOUBLE NOT NULL DEFAULT 0,
		quality       DOUBLE NOT NULL DEFAULT 0,
		mode          VARCHAR(32) NOT NULL DEFAULT 'face',
		group_id      VARCHAR(64) NOT NULL DEFAULT '',
		INDEX idx_faces_folder (folder(255))
	)`,
	`CREATE TABLE IF NOT EXISTS face_groups (
		id                VARCHAR(64) PRIMARY KEY,
		folder            VARCHAR(512) NOT NULL,
		name              VARCHAR(255) NOT NULL DEFAULT '',
		representative_id VARCHAR(64) NOT NULL,
		face_ids          MEDIUMTEXT NOT NULL,
		position          INT NOT NULL DEFAULT 0,
		INDEX idx_face_groups_folder (folder(255))
	)`,
	`CREATE TABLE IF NOT EXISTS scanned_files (
		folder     VARCHAR(255) NOT NULL,
		path       VARCHAR(512) NOT NULL,
		face_count INT NOT NULL DEFAULT 0,
		scanned_at DATETIME NOT NULL,
		PRIMARY KEY (folder, path)
	)`,
	`CREATE TABLE IF NOT EXISTS people (
		id                VARCHAR(64) PRIMARY KEY,
		name              VARCHAR(255) NOT NULL,
		role              VARCHAR(255) NOT NULL DEFAULT '',
		notes             TEXT,
		representative_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_embeddings (
		id          VARCHAR(64) PRIMARY KEY,
		person_id   VARCHAR(64) NOT NULL,
		embedding   MEDIUMBLOB NOT NULL,
		source      VARCHAR(512) NOT NULL DEFAULT '',
		captured_at DATETIME NOT NULL,
		mode        VARCHAR(32) NOT NULL DEFAULT 'face',
		position    INT NOT NULL DEFAULT 0,
		INDEX idx_person_embeddings_person (person_id)
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// LoadFolder returns the folder's face data; an unscanned folder yields an
// empty structure.
func (s *Store) LoadFolder(ctx context.Context, folder string) (*face.FolderFaceData, error) {
	data := &face.FolderFaceData{Folder: folder}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_path, bbox, embedding, ctx_embedding, ctx_bbox,
		       confidence, pixel_size, sharpness, quality, mode, group_id
		FROM faces
		WHERE folder = ?
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

	groupRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, representative_id, face_ids
		FROM face_groups
		WHERE folder = ?
		ORDER BY position, id
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer groupRows.Close()

	for groupRows.Next() {
		var (
			g           face.FaceGroup
			faceIDsJSON []byte
		)
		if err := groupRows.Scan(&g.ID, &g.Name, &g.RepresentativeID, &faceIDsJSON); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal(faceIDsJSON, &g.FaceIDs); err != nil {
			return nil, fmt.Errorf("decode group members: %w", err)
		}
		data.Groups = append(data.Groups, g)
	}
	if err := groupRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	fileRows, err := s.db.QueryContext(ctx, `
		SELECT path, face_count, scanned_at
		FROM scanned_files
		WHERE folder = ?
		ORDER BY path
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("query scanned files: %w", err)
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var sf face.ScannedFile
		if err := fileRows.Scan(&sf.Path, &sf.FaceCount, &sf.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan scanned file: %w", err)
		}
		data.ScannedFiles = append(data.ScannedFiles, sf)
	}
	return data, fileRows.Err()
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
			fmt.Sprintf("DELETE FROM %s WHERE folder = ?", table), data.Folder); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, f := range data.Faces {
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
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO faces (id, folder, image_path, bbox, embedding, ctx_embedding,
			                   ctx_bbox, confidence, pixel_size, sharpness, quality, mode, group_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, data.Folder, f.ImagePath, bbox, f.Embedding, f.ContextEmbedding,
			ctxBbox, f.Confidence, f.PixelSize, f.Sharpness, f.Quality, f.Mode, f.GroupID); err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	for i, g := range data.Groups {
		faceIDs, err := json.Marshal(g.FaceIDs)
		if err != nil {
			return fmt.Errorf("encode group members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_groups (id, folder, name, representative_id, face_ids, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, g.ID, data.Folder, g.Name, g.RepresentativeID, faceIDs, i); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
	}

	for _, sf := range data.ScannedFiles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scanned_files (folder, path, face_count, scanned_at)
			VALUES (?, ?, ?, ?)
		`, data.Folder, sf.Path, sf.FaceCount, sf.ScannedAt); err != nil {
			return fmt.Errorf("insert scanned file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit folder save: %w", err)
	}
	return nil
}

// LoadPeople returns the whole known-person roster.
func (s *Store) LoadPeople(ctx context.Context) ([]roster.KnownPerson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, COALESCE(notes, ''), representative_id, created_at, updated_at
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

	if _, err := tx.ExecContext(ctx, "DELETE FROM person_embeddings"); err != nil {
		return fmt.Errorf("clear person embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM people"); err != nil {
		return fmt.Errorf("clear people: %w", err)
	}

	for _, p := range people {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO people (id, name, role, notes, representative_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Role, p.Notes, p.RepresentativeID, p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
		for i, e := range p.Embeddings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO person_embeddings (id, person_id, embedding, source, captured_at, mode, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
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
