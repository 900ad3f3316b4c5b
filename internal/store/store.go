// Package store persists chats, messages, documents, and embedded document
// fragments behind a driver-agnostic interface.
package store

import (
	"context"
	"time"

	"github.com/sells-group/grounded-chat/internal/model"
)

// Store defines the persistence interface for the chat pipeline. The
// fragment table is read-only during query processing; the only write a
// turn performs is the final message insert.
type Store interface {
	// Chats
	CreateChat(ctx context.Context, chat model.Chat) error
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error

	// Messages
	SaveMessages(ctx context.Context, messages []model.Message) error
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	// DeleteMessagesAfter removes all messages for a chat created strictly
	// after the cutoff, returning the number deleted.
	DeleteMessagesAfter(ctx context.Context, chatID string, cutoff time.Time) (int, error)

	// Documents and fragments
	CreateDocument(ctx context.Context, doc model.Document) error
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	UpdateDocumentContent(ctx context.Context, docID, content string) error
	// ReplaceFragments deletes a document's fragments and inserts the given
	// set, preserving slice order as insertion order.
	ReplaceFragments(ctx context.Context, docID string, fragments []model.EvidenceFragment) error

	// SearchFragments ranks stored fragments by cosine similarity to the
	// query vector: strictly greater than minSimilarity, descending, at
	// most limit results. Equal similarities keep insertion order.
	SearchFragments(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]model.EvidenceFragment, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
