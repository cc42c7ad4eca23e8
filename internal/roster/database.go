package roster

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ThumbnailStore is the slice of the thumbnail storage the roster needs:
// removing the thumbnail of a person deleted by merge.
type ThumbnailStore interface {
	Remove(id string) error
}

// Database holds the known-person roster. All mutating operations are
// serialized behind a single writer lock and publish a fresh immutable
// snapshot, so concurrent readers never observe a partially updated record.
type Database struct {
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	thumbs ThumbnailStore
	index  *MatchIndex
}

type snapshot struct {
	people []KnownPerson
}

// New creates an empty roster database.
func New() *Database {
	d := &Database{}
	d.snap.Store(&snapshot{})
	return d
}

// SetThumbnailStore wires the thumbnail storage used on person deletion.
func (d *Database) SetThumbnailStore(t ThumbnailStore) {
	d.thumbs = t
}

// SetMatchIndex attaches a candidate pre-selection index for matching. The
// index is rebuilt from the current roster immediately and after every
// mutation; passing nil detaches it. Like SetThumbnailStore, this is
// wiring-time configuration, not safe to call concurrently with matches.
func (d *Database) SetMatchIndex(x *MatchIndex) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = x
	if x != nil {
		x.Rebuild(d.snap.Load().people)
	}
}

// publish swaps in a new snapshot and keeps the match index in step with it.
// Callers hold d.mu.
func (d *Database) publish(s *snapshot) {
	d.snap.Store(s)
	if d.index != nil {
		d.index.Rebuild(s.people)
	}
}

// Load replaces the whole roster, typically with records read from the
// persistence layer.
func (d *Database) Load(people []KnownPerson) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publish(&snapshot{people: clonePeople(people)})
}

// People returns a point-in-time copy of all roster entries.
func (d *Database) People() []KnownPerson {
	return clonePeople(d.snap.Load().people)
}

// PersonByID returns a copy of the person, or nil when the id is unknown.
func (d *Database) PersonByID(id string) *KnownPerson {
	for _, p := range d.snap.Load().people {
		if p.ID == id {
			c := clonePerson(p)
			return &c
		}
	}
	return nil
}

// Count returns the number of people in the roster.
func (d *Database) Count() int {
	return len(d.snap.Load().people)
}

// EmbeddingCount returns the total number of stored embeddings.
func (d *Database) EmbeddingCount() int {
	var n int
	for _, p := range d.snap.Load().people {
		n += len(p.Embeddings)
	}
	return n
}

// AddPerson creates a new roster entry and returns a copy of it. Embedding
// ids and timestamps are filled in when missing; byte-identical embedding
// blobs are stored once.
func (d *Database) AddPerson(name, role string, embeddings []PersonEmbedding) KnownPerson {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	p := KnownPerson{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	appendDeduped(&p, embeddings, now)
	if rep := p.Representative(); rep != nil {
		p.RepresentativeID = rep.ID
	}

	people := append(clonePeople(d.snap.Load().people), p)
	d.publish(&snapshot{people: people})
	return clonePerson(p)
}

// UpdatePerson changes name, role and notes. Unknown id is a no-op.
func (d *Database) UpdatePerson(id, name, role, notes string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	people := clonePeople(d.snap.Load().people)
	for i := range people {
		if people[i].ID != id {
			continue
		}
		people[i].Name = name
		people[i].Role = role
		people[i].Notes = notes
		people[i].UpdatedAt = time.Now().UTC()
		d.publish(&snapshot{people: people})
		return true
	}
	return false
}

// RemovePerson deletes a roster entry and its thumbnail. Unknown id is a
// no-op.
func (d *Database) RemovePerson(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	people := clonePeople(d.snap.Load().people)
	for i := range people {
		if people[i].ID != id {
			continue
		}
		people = append(people[:i], people[i+1:]...)
		d.publish(&snapshot{people: people})
		if d.thumbs != nil {
			_ = d.thumbs.Remove(id)
		}
		return true
	}
	return false
}

// AddEmbeddings appends embeddings to a person, skipping any whose raw blob
// is byte-identical to one already stored. Returns how many were added and
// whether the person exists.
func (d *Database) AddEmbeddings(personID string, embeddings []PersonEmbedding) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	people := clonePeople(d.snap.Load().people)
	for i := range people {
		if people[i].ID != personID {
			continue
		}
		now := time.Now().UTC()
		added := appendDeduped(&people[i], embeddings, now)
		if added > 0 {
			people[i].UpdatedAt = now
			if people[i].RepresentativeID == "" {
				people[i].RepresentativeID = people[i].Embeddings[0].ID
			}
		}
		d.publish(&snapshot{people: people})
		return added, true
	}
	return 0, false
}

// MergePeople moves all of src's embeddings that dst does not already hold
// into dst, then deletes src and its thumbnail. Returns how many embeddings
// moved and whether both people existed.
func (d *Database) MergePeople(srcID, dstID string) (int, bool) {
	if srcID == dstID {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	people := clonePeople(d.snap.Load().people)
	srcIdx, dstIdx := -1, -1
	for i := range people {
		switch people[i].ID {
		case srcID:
			srcIdx = i
		case dstID:
			dstIdx = i
		}
	}
	if srcIdx < 0 || dstIdx < 0 {
		return 0, false
	}

	now := time.Now().UTC()
	moved := appendDeduped(&people[dstIdx], people[srcIdx].Embeddings, now)
	people[dstIdx].UpdatedAt = now

	people = append(people[:srcIdx], people[srcIdx+1:]...)
	d.publish(&snapshot{people: people})

	if d.thumbs != nil {
		_ = d.thumbs.Remove(srcID)
	}
	return moved, true
}

// Import appends records unconditionally; identities are globally unique so
// no collision resolution is needed.
func (d *Database) Import(people []KnownPerson) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	merged := append(clonePeople(d.snap.Load().people), clonePeople(people)...)
	d.publish(&snapshot{people: merged})
	return len(people)
}

// appendDeduped appends embeddings whose blob is not already stored on p,
// assigning ids and capture times where missing. Returns the number added.
func appendDeduped(p *KnownPerson, embeddings []PersonEmbedding, now time.Time) int {
	added := 0
	for _, e := range embeddings {
		if hasIdenticalBlob(p, e.Embedding) {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CapturedAt.IsZero() {
			e.CapturedAt = now
		}
		p.Embeddings = append(p.Embeddings, e)
		added++
	}
	return added
}

// hasIdenticalBlob is the cheap exact-duplicate filter: byte equality, not
// a similarity check.
func hasIdenticalBlob(p *KnownPerson, blob []byte) bool {
	for i := range p.Embeddings {
		if bytes.Equal(p.Embeddings[i].Embedding, blob) {
			return true
		}
	}
	return false
}

func clonePerson(p KnownPerson) KnownPerson {
	c := p
	c.Embeddings = append([]PersonEmbedding(nil), p.Embeddings...)
	return c
}

func clonePeople(people []KnownPerson) []KnownPerson {
	out := make([]KnownPerson, len(people))
	for i := range people {
		out[i] = clonePerson(people[i])
	}
	return out
}
