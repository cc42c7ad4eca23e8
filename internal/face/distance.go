package face

// Default weights for dual-embedding mode. The context embedding helps
// within-folder clustering (same clothing across a shoot) but is noisier
// than the face embedding, so it gets the smaller share.
const (
	DefaultPrimaryWeight = 0.7
	DefaultContextWeight = 0.3
)

// Metric computes dissimilarity between detected faces through a shared
// embedding cache. In dual-embedding mode the primary and context distances
// are combined with the configured weights; the context term is dropped
// whenever either side lacks a context embedding.
type Metric struct {
	cache         *Cache
	primaryWeight float64
	contextWeight float64
}

// NewMetric creates a face metric in single-embedding mode.
func NewMetric(cache *Cache) *Metric {
	return &Metric{cache: cache, primaryWeight: 1, contextWeight: 0}
}

// NewDualMetric creates a face metric combining primary and context
// embeddings with the given weights.
func NewDualMetric(cache *Cache, primaryWeight, contextWeight float64) *Metric {
	return &Metric{
		cache:         cache,
		primaryWeight: primaryWeight,
		contextWeight: contextWeight,
	}
}

// Cache exposes the metric's embedding cache so multi-phase pipelines can
// share one across operations.
func (m *Metric) Cache() *Cache {
	return m.cache
}

// Distance computes the dissimilarity between two faces. The second result
// is false when either primary embedding cannot be decoded, which makes the
// whole comparison undefined.
func (m *Metric) Distance(a, b *DetectedFace) (float64, bool) {
	va, ok := m.cache.Get(a.ID, a.Embedding)
	if !ok {
		return 0, false
	}
	vb, ok := m.cache.Get(b.ID, b.Embedding)
	if !ok {
		return 0, false
	}
	primary := CosineDistance(va, vb)

	if m.contextWeight <= 0 {
		return primary, true
	}
	ca, ok := m.contextVector(a)
	if !ok {
		return primary, true
	}
	cb, ok := m.contextVector(b)
	if !ok {
		return primary, true
	}
	return m.primaryWeight*primary + m.contextWeight*CosineDistance(ca, cb), true
}

// VectorDistance computes the distance between a raw query vector and a
// face's primary embedding. Used by incremental assignment against stored
// groups and by the two-pass representative comparison.
func (m *Metric) VectorDistance(query Vector, f *DetectedFace) (float64, bool) {
	v, ok := m.cache.Get(f.ID, f.Embedding)
	if !ok {
		return 0, false
	}
	return CosineDistance(query, v), true
}

func (m *Metric) contextVector(f *DetectedFace) (Vector, bool) {
	if len(f.ContextEmbedding) == 0 {
		return nil, false
	}
	return m.cache.Get(f.ID+"/ctx", f.ContextEmbedding)
}
