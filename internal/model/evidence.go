package model

import "time"

// EmbeddingDimensions is the fixed dimensionality of fragment embeddings.
// Query embeddings must match or similarity comparison is meaningless.
const EmbeddingDimensions = 1536

// EvidenceFragment is a contiguous slice of ingested document text with its
// embedding vector. Similarity is relative to a single query and is never
// persisted or cached across queries.
type EvidenceFragment struct {
	SourceID   string    `json:"source_id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Similarity float64   `json:"similarity"`
}

// Document is an ingested source document. Fragments reference their
// document through DocumentID.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"` // "text" or "url"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
