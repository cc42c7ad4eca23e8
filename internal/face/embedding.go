package face

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Vector is a fixed-length face embedding decoded from its blob form.
type Vector []float32

var (
	// ErrEmptyEmbedding is returned when a blob holds no data.
	ErrEmptyEmbedding = errors.New("empty embedding blob")
	// ErrMalformedEmbedding is returned when a blob is not a sequence of
	// little-endian float32 values.
	ErrMalformedEmbedding = errors.New("malformed embedding blob")
)

// DecodeEmbedding deserializes an opaque embedding blob into a vector.
// The wire format is a packed sequence of little-endian float32 values.
func DecodeEmbedding(blob []byte) (Vector, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedEmbedding, len(blob))
	}
	vec := make(Vector, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		f := math.Float32frombits(bits)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", ErrMalformedEmbedding, i)
		}
		vec[i] = f
	}
	return vec, nil
}

// EncodeEmbedding serializes a vector into its blob form.
func EncodeEmbedding(vec Vector) []byte {
	blob := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical direction) and 2 (opposite).
// Mismatched or zero vectors yield the maximum distance.
func CosineDistance(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// Confidence converts a distance into a 0-1 similarity confidence.
func Confidence(distance float64) float64 {
	if c := 1 - distance; c > 0 {
		return c
	}
	return 0
}
