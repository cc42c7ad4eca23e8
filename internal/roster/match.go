package roster

import (
	"sort"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// MatchFace compares a query embedding blob against every known person and
// returns the people within the threshold, best first, capped at maxResults.
// A person's score is the minimum distance across all of their embeddings.
//
// A corrupt stored embedding is skipped for that comparison only; a query
// blob that fails to decode yields no matches.
func (d *Database) MatchFace(blob []byte, threshold float64, maxResults int) []Match {
	query, err := face.DecodeEmbedding(blob)
	if err != nil {
		return nil
	}
	return d.MatchVector(query, threshold, maxResults)
}

// MatchVector is MatchFace for an already decoded query vector.
//
// When a MatchIndex is attached it narrows the scan to the candidate people
// it returns; every candidate is still scored with exact distances, so the
// result matches the linear scan as long as the index recall holds.
func (d *Database) MatchVector(query face.Vector, threshold float64, maxResults int) []Match {
	if len(query) == 0 || threshold <= 0 {
		return nil
	}

	people := d.snap.Load().people
	if idx := d.index; idx != nil && idx.Len() > 0 {
		people = selectPeople(people, idx.Candidates(query, candidateBreadth(maxResults)))
	}

	var matches []Match
	for _, p := range people {
		best := -1.0
		for i := range p.Embeddings {
			vec, err := face.DecodeEmbedding(p.Embeddings[i].Embedding)
			if err != nil {
				continue
			}
			d := face.CosineDistance(query, vec)
			if best < 0 || d < best {
				best = d
			}
		}
		if best < 0 || best > threshold {
			continue
		}
		matches = append(matches, Match{
			PersonID:   p.ID,
			Name:       p.Name,
			Distance:   best,
			Confidence: face.Confidence(best),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// candidateBreadth widens the ANN search well beyond the caller's cap so a
// person whose best embedding sits deeper in the neighbor list is not pruned
// before exact scoring.
func candidateBreadth(maxResults int) int {
	k := maxResults * 8
	if k < 64 {
		k = 64
	}
	return k
}

func selectPeople(people []KnownPerson, ids []string) []KnownPerson {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]KnownPerson, 0, len(ids))
	for _, p := range people {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// BestAutoMatch applies the auto-naming policy: the top match must clear
// the confidence floor and beat the runner-up by at least the minimum gap.
// Returns nil when no match qualifies or the result is ambiguous.
func (d *Database) BestAutoMatch(blob []byte, policy AutoMatchPolicy) *Match {
	matches := d.MatchFace(blob, policy.Threshold, 2)
	if len(matches) == 0 {
		return nil
	}
	top := matches[0]
	if top.Confidence < policy.MinConfidence {
		return nil
	}
	if len(matches) > 1 && top.Confidence-matches[1].Confidence < policy.MinGap {
		return nil
	}
	return &top
}

// CheckDuplicate classifies whether a person about to be created already
// exists, by normalized name equality and, when faceBlob is non-empty, by a
// face match under the threshold.
func (d *Database) CheckDuplicate(name string, faceBlob []byte, threshold float64) DuplicateCheck {
	var check DuplicateCheck

	normalized := NormalizeName(name)
	for _, p := range d.snap.Load().people {
		if NormalizeName(p.Name) == normalized {
			check.NamePersonID = p.ID
			break
		}
	}

	if len(faceBlob) > 0 {
		if matches := d.MatchFace(faceBlob, threshold, 1); len(matches) > 0 {
			check.FacePersonID = matches[0].PersonID
		}
	}

	switch {
	case check.NamePersonID != "" && check.NamePersonID == check.FacePersonID:
		check.Kind = DuplicateBoth
	case check.NamePersonID != "":
		// When name and face point at different people the name wins: it is
		// the user's explicit signal.
		check.Kind = DuplicateName
	case check.FacePersonID != "":
		check.Kind = DuplicateFace
	default:
		check.Kind = DuplicateNone
	}
	return check
}

// AddOrMergePerson creates a new person, or appends the embeddings to the
// duplicate found by CheckDuplicate. The first embedding blob is used for
// the face-duplicate probe. Returns the person id and whether a new record
// was created.
func (d *Database) AddOrMergePerson(name, role string, embeddings []PersonEmbedding, threshold float64) (string, bool) {
	var probe []byte
	if len(embeddings) > 0 {
		probe = embeddings[0].Embedding
	}

	check := d.CheckDuplicate(name, probe, threshold)
	target := check.NamePersonID
	if target == "" {
		target = check.FacePersonID
	}
	if target == "" {
		p := d.AddPerson(name, role, embeddings)
		return p.ID, true
	}

	d.AddEmbeddings(target, embeddings)
	return target, false
}
