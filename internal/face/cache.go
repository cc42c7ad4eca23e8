package face

// Cache memoizes embedding blob decoding keyed by face id, so repeated
// pairwise comparisons within one clustering invocation decode each blob
// once. Decode failures are cached too: a corrupt record degrades to "no
// embedding" instead of being retried for every comparison.
//
// A Cache is scoped to a single clustering invocation (or an explicitly
// shared multi-phase pipeline) and is not safe for concurrent use.
type Cache struct {
	vectors map[string]Vector
	failed  map[string]bool
}

// NewCache creates an empty embedding cache.
func NewCache() *Cache {
	return &Cache{
		vectors: make(map[string]Vector),
		failed:  make(map[string]bool),
	}
}

// Get returns the decoded vector for the given key, decoding blob on first
// use. The second result is false when the blob cannot be decoded.
func (c *Cache) Get(key string, blob []byte) (Vector, bool) {
	if vec, ok := c.vectors[key]; ok {
		return vec, true
	}
	if c.failed[key] {
		return nil, false
	}
	vec, err := DecodeEmbedding(blob)
	if err != nil {
		c.failed[key] = true
		return nil, false
	}
	c.vectors[key] = vec
	return vec, true
}

// Len returns the number of successfully decoded entries.
func (c *Cache) Len() int {
	return len(c.vectors)
}
