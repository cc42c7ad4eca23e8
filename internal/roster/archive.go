package roster

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Archive layout: manifest.json at the root, one JSON record per person
// under people/, thumbnails under thumbs/.
const (
	archiveVersion      = 1
	archiveManifestName = "manifest.json"
	archivePeopleDir    = "people"
	archiveThumbsDir    = "thumbs"
)

// Manifest describes an exported roster archive.
type Manifest struct {
	Version        int       `json:"version"`
	PeopleCount    int       `json:"people_count"`
	EmbeddingCount int       `json:"embedding_count"`
	ExportedAt     time.Time `json:"exported_at"`
}

// ThumbnailReader supplies thumbnail bytes by person id for export.
type ThumbnailReader interface {
	Read(id string) ([]byte, error)
}

// ThumbnailWriter stores thumbnail bytes by person id on import.
type ThumbnailWriter interface {
	Write(id string, data []byte) error
}

// Export writes the whole roster as a zip archive. Thumbnails are included
// when thumbs is non-nil; a person without a thumbnail is not an error.
func (d *Database) Export(w io.Writer, thumbs ThumbnailReader) error {
	people := d.People()

	zw := zip.NewWriter(w)

	manifest := Manifest{
		Version:     archiveVersion,
		PeopleCount: len(people),
		ExportedAt:  time.Now().UTC(),
	}
	for _, p := range people {
		manifest.EmbeddingCount += len(p.Embeddings)
	}
	if err := writeArchiveJSON(zw, archiveManifestName, manifest); err != nil {
		return err
	}

	for _, p := range people {
		name := path.Join(archivePeopleDir, p.ID+".json")
		if err := writeArchiveJSON(zw, name, p); err != nil {
			return err
		}
		if thumbs == nil {
			continue
		}
		data, err := thumbs.Read(p.ID)
		if err != nil || len(data) == 0 {
			continue
		}
		f, err := zw.Create(path.Join(archiveThumbsDir, p.ID+".jpg"))
		if err != nil {
			return fmt.Errorf("create thumbnail entry: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("write thumbnail entry: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

// ImportArchive appends all people from a roster archive, restoring
// thumbnails through thumbs when given. Identities are globally unique, so
// records are appended unconditionally. Returns the number of people
// imported.
func (d *Database) ImportArchive(r io.ReaderAt, size int64, thumbs ThumbnailWriter) (int, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}

	var manifest Manifest
	if err := readArchiveJSON(zr, archiveManifestName, &manifest); err != nil {
		return 0, err
	}
	if manifest.Version > archiveVersion {
		return 0, fmt.Errorf("archive version %d is newer than supported %d",
			manifest.Version, archiveVersion)
	}

	var people []KnownPerson
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		switch strings.TrimSuffix(dir, "/") {
		case archivePeopleDir:
			var p KnownPerson
			if err := decodeArchiveFile(f, &p); err != nil {
				return 0, fmt.Errorf("person record %s: %w", base, err)
			}
			people = append(people, p)
		case archiveThumbsDir:
			if thumbs == nil {
				continue
			}
			data, err := readArchiveFile(f)
			if err != nil {
				return 0, fmt.Errorf("thumbnail %s: %w", base, err)
			}
			id := strings.TrimSuffix(base, path.Ext(base))
			if err := thumbs.Write(id, data); err != nil {
				return 0, fmt.Errorf("restore thumbnail %s: %w", id, err)
			}
		}
	}

	return d.Import(people), nil
}

func writeArchiveJSON(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

func readArchiveJSON(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name == name {
			return decodeArchiveFile(f, v)
		}
	}
	return fmt.Errorf("archive is missing %s", name)
}

func decodeArchiveFile(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return json.NewDecoder(rc).Decode(v)
}

func readArchiveFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
