// Package ingest chunks, embeds, and stores documents so they become
// searchable evidence.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/internal/store"
	"github.com/sells-group/grounded-chat/pkg/jina"
	"github.com/sells-group/grounded-chat/pkg/openai"
)

// Ingestor converts raw text or URLs into embedded document fragments.
type Ingestor struct {
	store     store.Store
	embedder  openai.Client
	reader    jina.Client
	chunkSize int
}

// New creates an Ingestor. reader may be nil if URL ingestion is not needed.
func New(st store.Store, embedder openai.Client, reader jina.Client, chunkSize int) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Ingestor{store: st, embedder: embedder, reader: reader, chunkSize: chunkSize}
}

// Result reports what one ingestion produced.
type Result struct {
	DocumentID      string
	Title           string
	Chunks          int
	EmbeddingTokens int
}

// IngestText chunks, embeds, and stores a text document.
func (ing *Ingestor) IngestText(ctx context.Context, userID, title, content string) (*Result, error) {
	if content == "" {
		return nil, eris.New("ingest: empty content")
	}
	if title == "" {
		title = "User uploaded document"
	}

	doc := model.Document{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Kind:      "text",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := ing.store.CreateDocument(ctx, doc); err != nil {
		return nil, eris.Wrap(err, "ingest: create document")
	}

	res, err := ing.embedAndStore(ctx, doc.ID, content)
	if err != nil {
		return nil, err
	}
	res.Title = title

	zap.L().Info("ingest: document stored",
		zap.String("document_id", doc.ID),
		zap.String("title", title),
		zap.Int("chunks", res.Chunks),
	)
	return res, nil
}

// IngestURL fetches a URL through the reader and ingests its content.
func (ing *Ingestor) IngestURL(ctx context.Context, userID, targetURL string) (*Result, error) {
	if ing.reader == nil {
		return nil, eris.New("ingest: url ingestion not configured")
	}

	page, err := ing.reader.Read(ctx, targetURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s", targetURL)
	}

	title := page.Data.Title
	if title == "" {
		title = "Web Document"
	}
	return ing.IngestText(ctx, userID, title, page.Data.Content)
}

// UpdateDocument replaces a document's content and re-embeds its fragments.
func (ing *Ingestor) UpdateDocument(ctx context.Context, docID, content string) (*Result, error) {
	if content == "" {
		return nil, eris.New("ingest: empty content")
	}

	doc, err := ing.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load document")
	}
	if doc == nil {
		return nil, eris.Errorf("ingest: document not found: %s", docID)
	}

	if err := ing.store.UpdateDocumentContent(ctx, docID, content); err != nil {
		return nil, eris.Wrap(err, "ingest: update document")
	}

	res, err := ing.embedAndStore(ctx, docID, content)
	if err != nil {
		return nil, err
	}
	res.Title = doc.Title
	return res, nil
}

func (ing *Ingestor) embedAndStore(ctx context.Context, docID, content string) (*Result, error) {
	chunks := ChunkText(content, ing.chunkSize)
	if len(chunks) == 0 {
		return nil, eris.New("ingest: no chunks produced")
	}

	embedded, err := ing.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: embed chunks")
	}

	fragments := make([]model.EvidenceFragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = model.EvidenceFragment{
			SourceID:   uuid.New().String(),
			DocumentID: docID,
			Content:    chunk,
			Embedding:  embedded.Vectors[i],
		}
	}
	if err := ing.store.ReplaceFragments(ctx, docID, fragments); err != nil {
		return nil, eris.Wrap(err, "ingest: store fragments")
	}

	return &Result{
		DocumentID:      docID,
		Chunks:          len(chunks),
		EmbeddingTokens: embedded.Tokens,
	}, nil
}
