package main

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/openai"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateChat(ctx context.Context, chat model.Chat) error {
	return m.Called(ctx, chat).Error(0)
}

func (m *mockStore) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	args := m.Called(ctx, chatID)
	chat, _ := args.Get(0).(*model.Chat)
	return chat, args.Error(1)
}

func (m *mockStore) DeleteChat(ctx context.Context, chatID string) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *mockStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	return m.Called(ctx, messages).Error(0)
}

func (m *mockStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	args := m.Called(ctx, chatID)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *mockStore) DeleteMessagesAfter(ctx context.Context, chatID string, cutoff time.Time) (int, error) {
	args := m.Called(ctx, chatID, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CreateDocument(ctx context.Context, doc model.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	args := m.Called(ctx, docID)
	doc, _ := args.Get(0).(*model.Document)
	return doc, args.Error(1)
}

func (m *mockStore) UpdateDocumentContent(ctx context.Context, docID, content string) error {
	return m.Called(ctx, docID, content).Error(0)
}

func (m *mockStore) ReplaceFragments(ctx context.Context, docID string, fragments []model.EvidenceFragment) error {
	return m.Called(ctx, docID, fragments).Error(0)
}

func (m *mockStore) SearchFragments(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]model.EvidenceFragment, error) {
	args := m.Called(ctx, query, limit, minSimilarity)
	frags, _ := args.Get(0).([]model.EvidenceFragment)
	return frags, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) (*openai.EmbedResult, error) {
	return &openai.EmbedResult{Vector: []float32{1, 0}, Tokens: 1}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) (*openai.BatchEmbedResult, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return &openai.BatchEmbedResult{Vectors: vectors, Tokens: len(texts)}, nil
}
