package vectorstore

// VectorRecord is one chunk entry destined for a tenant partition.
// The payload mirrors enough of the chunk to render search results
// without a ground-truth round trip.
type VectorRecord struct {
	// DocumentID is the owning document's UUID string.
	DocumentID string

	// ContentHash is the stable hash of the normalized chunk text,
	// used for duplicate suppression at query time.
	ContentHash uint64

	// SourceName is the document's filename.
	SourceName string

	// Text is the chunk text. Payload copies are truncated; the full
	// text lives in the ground-truth store.
	Text string

	// Vector is the chunk embedding.
	Vector []float32
}

// SearchHit is one scored result from a partition query.
type SearchHit struct {
	DocumentID  string
	ContentHash uint64
	SourceName  string
	Text        string
	Score       float32
}
