package roster

import (
	"bytes"
	"math"
	"testing"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// vecAt returns a 2D unit vector at the given cosine distance from (1, 0).
func vecAt(distance float64) face.Vector {
	c := 1 - distance
	return face.Vector{float32(c), float32(math.Sqrt(1 - c*c))}
}

func TestMatchFaceRanking(t *testing.T) {
	db := New()
	near := db.AddPerson("Near", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.6))}, // worse embedding
		{Embedding: face.EncodeEmbedding(vecAt(0.2))}, // person score = min = 0.2
	})
	far := db.AddPerson("Far", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.3))},
	})
	db.AddPerson("Out of range", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.9))},
	})

	query := blob(1, 0)
	matches := db.MatchFace(query, 0.5, 10)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
	if matches[0].PersonID != near.ID || matches[1].PersonID != far.ID {
		t.Errorf("ranking = %s, %s; want %s, %s",
			matches[0].PersonID, matches[1].PersonID, near.ID, far.ID)
	}
	if math.Abs(matches[0].Confidence-0.8) > 1e-6 {
		t.Errorf("top confidence = %v, want 0.8", matches[0].Confidence)
	}

	// maxResults caps the list.
	if got := db.MatchFace(query, 0.5, 1); len(got) != 1 {
		t.Errorf("maxResults=1 returned %d matches", len(got))
	}
}

func TestMatchFaceCorruptData(t *testing.T) {
	db := New()
	p := db.AddPerson("Mixed", "", []PersonEmbedding{
		{Embedding: []byte{1, 2, 3}}, // corrupt, skipped
		{Embedding: face.EncodeEmbedding(vecAt(0.2))},
	})
	db.AddPerson("Only corrupt", "", []PersonEmbedding{
		{Embedding: []byte{9}},
	})

	matches := db.MatchFace(blob(1, 0), 0.5, 10)
	if len(matches) != 1 || matches[0].PersonID != p.ID {
		t.Errorf("matches = %+v, want only %s", matches, p.ID)
	}

	// A query that fails to decode yields no matches, not an error.
	if got := db.MatchFace([]byte{0xff}, 0.5, 10); got != nil {
		t.Errorf("corrupt query returned %+v", got)
	}
}

func TestBestAutoMatch(t *testing.T) {
	policy := AutoMatchPolicy{Threshold: 0.5, MinConfidence: 0.6, MinGap: 0.05}

	t.Run("clear winner", func(t *testing.T) {
		db := New()
		first := db.AddPerson("First", "", []PersonEmbedding{
			{Embedding: face.EncodeEmbedding(vecAt(0.2))}, // confidence 0.8
		})
		db.AddPerson("Second", "", []PersonEmbedding{
			{Embedding: face.EncodeEmbedding(vecAt(0.3))}, // confidence 0.7, gap 0.1
		})

		m := db.BestAutoMatch(blob(1, 0), policy)
		if m == nil || m.PersonID != first.ID {
			t.Fatalf("BestAutoMatch = %+v, want %s", m, first.ID)
		}
	})

	t.Run("ambiguous gap", func(t *testing.T) {
		db := New()
		db.AddPerson("First", "", []PersonEmbedding{
			{Embedding: face.EncodeEmbedding(vecAt(0.2))}, // confidence 0.8
		})
		db.AddPerson("Second", "", []PersonEmbedding{
			{Embedding: face.EncodeEmbedding(vecAt(0.22))}, // confidence 0.78, gap 0.02
		})

		if m := db.BestAutoMatch(blob(1, 0), policy); m != nil {
			t.Errorf("ambiguous roster auto-matched %+v", m)
		}
	})

	t.Run("below confidence floor", func(t *testing.T) {
		db := New()
		db.AddPerson("Weak", "", []PersonEmbedding{
			{Embedding: face.EncodeEmbedding(vecAt(0.45))}, // confidence 0.55
		})
		if m := db.BestAutoMatch(blob(1, 0), policy); m != nil {
			t.Errorf("low-confidence roster auto-matched %+v", m)
		}
	})

	t.Run("empty roster", func(t *testing.T) {
		if m := New().BestAutoMatch(blob(1, 0), policy); m != nil {
			t.Errorf("empty roster auto-matched %+v", m)
		}
	})
}

func TestCheckDuplicate(t *testing.T) {
	db := New()
	jana := db.AddPerson("Jana Nováková", "", []PersonEmbedding{emb(1, 0)})
	petr := db.AddPerson("Petr", "", []PersonEmbedding{{Embedding: face.EncodeEmbedding(vecAt(0.9))}})

	tests := []struct {
		name     string
		person   string
		probe    []byte
		wantKind DuplicateKind
		wantID   string
	}{
		{"both signals", "jana-novakova", blob(1, 0), DuplicateBoth, jana.ID},
		{"name only", "JANA NOVÁKOVÁ", face.EncodeEmbedding(vecAt(0.95)), DuplicateName, jana.ID},
		{"name only, no probe", "jana novakova", nil, DuplicateName, jana.ID},
		{"face only", "Unknown Guest", blob(1, 0), DuplicateFace, jana.ID},
		{"no duplicate", "Someone Else", blob(-1, 0), DuplicateNone, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := db.CheckDuplicate(tc.person, tc.probe, 0.5)
			if got.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s (%+v)", got.Kind, tc.wantKind, got)
			}
			switch tc.wantKind {
			case DuplicateBoth, DuplicateName:
				if got.NamePersonID != tc.wantID {
					t.Errorf("NamePersonID = %s, want %s", got.NamePersonID, tc.wantID)
				}
			case DuplicateFace:
				if got.FacePersonID != tc.wantID {
					t.Errorf("FacePersonID = %s, want %s", got.FacePersonID, tc.wantID)
				}
			}
		})
	}
	_ = petr
}

func TestAddOrMergePerson(t *testing.T) {
	db := New()

	id1, created := db.AddOrMergePerson("Marta", "", []PersonEmbedding{emb(1, 0)}, 0.5)
	if !created {
		t.Fatal("first add should create")
	}

	// Same name, new embedding: merged into the existing record.
	id2, created := db.AddOrMergePerson("marta", "", []PersonEmbedding{emb(0.99, 0.01)}, 0.5)
	if created || id2 != id1 {
		t.Errorf("got (%s, %v), want merge into %s", id2, created, id1)
	}
	if db.Count() != 1 || db.EmbeddingCount() != 2 {
		t.Errorf("counts = %d/%d, want 1/2", db.Count(), db.EmbeddingCount())
	}

	// Unrelated person creates a new record.
	id3, created := db.AddOrMergePerson("Ivan", "", []PersonEmbedding{{Embedding: face.EncodeEmbedding(vecAt(0.95))}}, 0.5)
	if !created || id3 == id1 {
		t.Errorf("expected new person, got (%s, %v)", id3, created)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	db := New()
	p1 := db.AddPerson("Jana", "bride", []PersonEmbedding{emb(1, 0), emb(0, 1)})
	p2 := db.AddPerson("Petr", "", []PersonEmbedding{emb(0.5, 0.5)})

	thumbs := &fakeThumbs{stored: map[string][]byte{p1.ID: []byte("jpegdata")}}

	var buf bytes.Buffer
	if err := db.Export(&buf, thumbs); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	restored := New()
	sink := &fakeThumbs{}
	n, err := restored.ImportArchive(bytes.NewReader(buf.Bytes()), int64(buf.Len()), sink)
	if err != nil {
		t.Fatalf("ImportArchive failed: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d people, want 2", n)
	}
	if restored.Count() != 2 || restored.EmbeddingCount() != 3 {
		t.Errorf("counts = %d/%d, want 2/3", restored.Count(), restored.EmbeddingCount())
	}
	got := restored.PersonByID(p1.ID)
	if got == nil || got.Name != "Jana" || len(got.Embeddings) != 2 {
		t.Errorf("restored person = %+v", got)
	}
	if !bytes.Equal(sink.stored[p1.ID], []byte("jpegdata")) {
		t.Error("thumbnail not restored")
	}
	if _, ok := sink.stored[p2.ID]; ok {
		t.Error("unexpected thumbnail for person without one")
	}
}

func TestMatchVectorWithIndex(t *testing.T) {
	db := New()
	db.AddPerson("Near", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.6))},
		{Embedding: face.EncodeEmbedding(vecAt(0.2))},
	})
	db.AddPerson("Far", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.3))},
	})
	db.AddPerson("Out of range", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.9))},
	})

	query := blob(1, 0)
	want := db.MatchFace(query, 0.5, 10)

	db.SetMatchIndex(NewMatchIndex())
	got := db.MatchFace(query, 0.5, 10)
	if len(got) != len(want) {
		t.Fatalf("indexed scan returned %d matches, linear returned %d", len(got), len(want))
	}
	for i := range want {
		if got[i].PersonID != want[i].PersonID || got[i].Distance != want[i].Distance {
			t.Errorf("match %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Mutations rebuild the index, so new people are immediately matchable
	// and removed people drop out.
	added := db.AddPerson("Closest", "", []PersonEmbedding{
		{Embedding: face.EncodeEmbedding(vecAt(0.1))},
	})
	got = db.MatchFace(query, 0.5, 10)
	if len(got) != 3 || got[0].PersonID != added.ID {
		t.Fatalf("after add, matches = %+v, want %s first of 3", got, added.ID)
	}
	if !db.RemovePerson(added.ID) {
		t.Fatal("RemovePerson failed")
	}
	if got = db.MatchFace(query, 0.5, 10); len(got) != 2 {
		t.Errorf("after remove, got %d matches, want 2", len(got))
	}
}

func TestMatchIndexCandidates(t *testing.T) {
	db := New()
	a := db.AddPerson("A", "", []PersonEmbedding{emb(1, 0, 0), emb(0.99, 0.05, 0)})
	b := db.AddPerson("B", "", []PersonEmbedding{emb(0, 1, 0)})
	db.AddPerson("corrupt only", "", []PersonEmbedding{{Embedding: []byte{1}}})

	idx := NewMatchIndex()
	idx.Rebuild(db.People())
	if idx.Len() != 3 {
		t.Errorf("index size = %d, want 3", idx.Len())
	}

	got := idx.Candidates(face.Vector{1, 0, 0}, 3)
	if len(got) == 0 || got[0] != a.ID {
		t.Fatalf("candidates = %v, want %s first", got, a.ID)
	}
	for _, id := range got {
		if id != a.ID && id != b.ID {
			t.Errorf("unexpected candidate %s", id)
		}
	}
}
