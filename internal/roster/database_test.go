package roster

import (
	"testing"

	"github.com/kozaktomas/face-organizer/internal/face"
)

func blob(vec ...float32) []byte {
	return face.EncodeEmbedding(face.Vector(vec))
}

func emb(vec ...float32) PersonEmbedding {
	return PersonEmbedding{Embedding: blob(vec...), Mode: face.ModeFaceOnly}
}

func TestAddPersonFillsIdentity(t *testing.T) {
	db := New()
	p := db.AddPerson("Jana Nováková", "bride", []PersonEmbedding{emb(1, 0)})

	if p.ID == "" {
		t.Error("person id not assigned")
	}
	if len(p.Embeddings) != 1 || p.Embeddings[0].ID == "" {
		t.Errorf("embedding id not assigned: %+v", p.Embeddings)
	}
	if p.RepresentativeID != p.Embeddings[0].ID {
		t.Error("representative not set to first embedding")
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if db.Count() != 1 || db.EmbeddingCount() != 1 {
		t.Errorf("counts = %d people / %d embeddings", db.Count(), db.EmbeddingCount())
	}
}

func TestAddEmbeddingsDedupIdempotence(t *testing.T) {
	db := New()
	p := db.AddPerson("Petr", "", []PersonEmbedding{emb(1, 0)})

	// Adding the byte-identical blob twice keeps exactly one stored copy.
	for i := 0; i < 2; i++ {
		added, found := db.AddEmbeddings(p.ID, []PersonEmbedding{emb(1, 0)})
		if !found {
			t.Fatal("person not found")
		}
		if added != 0 {
			t.Errorf("pass %d: added %d duplicates, want 0", i, added)
		}
	}
	if got := db.EmbeddingCount(); got != 1 {
		t.Errorf("embedding count = %d, want 1", got)
	}

	// A different blob is stored even when it is similar.
	added, _ := db.AddEmbeddings(p.ID, []PersonEmbedding{emb(0.999, 0.001)})
	if added != 1 || db.EmbeddingCount() != 2 {
		t.Errorf("added = %d, count = %d; want 1, 2", added, db.EmbeddingCount())
	}

	// Unknown person is a no-op, not an error.
	if _, found := db.AddEmbeddings("ghost", []PersonEmbedding{emb(1, 0)}); found {
		t.Error("expected not-found for unknown person")
	}
}

type fakeThumbs struct {
	removed []string
	stored  map[string][]byte
}

func (f *fakeThumbs) Remove(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeThumbs) Read(id string) ([]byte, error) {
	return f.stored[id], nil
}

func (f *fakeThumbs) Write(id string, data []byte) error {
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[id] = data
	return nil
}

func TestMergePeopleConservation(t *testing.T) {
	db := New()
	thumbs := &fakeThumbs{}
	db.SetThumbnailStore(thumbs)

	shared := emb(1, 0)
	target := db.AddPerson("Alena", "", []PersonEmbedding{shared, emb(0, 1)})
	source := db.AddPerson("Alena B", "", []PersonEmbedding{shared, emb(0.5, 0.5), emb(0.2, 0.8)})

	preTarget := len(db.PersonByID(target.ID).Embeddings)
	notInTarget := 2 // source embeddings minus the shared blob

	moved, ok := db.MergePeople(source.ID, target.ID)
	if !ok {
		t.Fatal("MergePeople failed")
	}
	if moved != notInTarget {
		t.Errorf("moved = %d, want %d", moved, notInTarget)
	}
	if got := len(db.PersonByID(target.ID).Embeddings); got != preTarget+notInTarget {
		t.Errorf("target embedding count = %d, want %d", got, preTarget+notInTarget)
	}
	if db.PersonByID(source.ID) != nil {
		t.Error("source person still exists after merge")
	}
	if len(thumbs.removed) != 1 || thumbs.removed[0] != source.ID {
		t.Errorf("thumbnail removal = %v, want [%s]", thumbs.removed, source.ID)
	}

	// Merging with an unknown id is a no-op.
	if _, ok := db.MergePeople("ghost", target.ID); ok {
		t.Error("merge with unknown source should report not-found")
	}
	if _, ok := db.MergePeople(target.ID, target.ID); ok {
		t.Error("self-merge should be rejected")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	db := New()
	p := db.AddPerson("Olga", "", []PersonEmbedding{emb(1, 0)})

	before := db.People()
	db.UpdatePerson(p.ID, "Olga Renamed", "", "")

	if before[0].Name != "Olga" {
		t.Error("reader snapshot mutated by a later write")
	}
	if db.PersonByID(p.ID).Name != "Olga Renamed" {
		t.Error("update not visible in new snapshot")
	}

	// Mutating a returned copy must not leak into the database.
	copyOut := db.PersonByID(p.ID)
	copyOut.Embeddings[0].Source = "tampered"
	if db.PersonByID(p.ID).Embeddings[0].Source == "tampered" {
		t.Error("returned person shares state with the database")
	}
}

func TestRemovePerson(t *testing.T) {
	db := New()
	thumbs := &fakeThumbs{}
	db.SetThumbnailStore(thumbs)

	p := db.AddPerson("Karel", "", nil)
	if !db.RemovePerson(p.ID) {
		t.Fatal("RemovePerson failed")
	}
	if db.Count() != 0 {
		t.Error("person still present")
	}
	if db.RemovePerson(p.ID) {
		t.Error("second removal should be a no-op")
	}
	if len(thumbs.removed) != 1 {
		t.Errorf("thumbnail removals = %v", thumbs.removed)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jiří", "jiri"},
		{"Jana-Nováková", "jana novakova"},
		{"  Mixed   Case ", "mixed case"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
