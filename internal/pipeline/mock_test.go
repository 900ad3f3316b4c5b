package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
	"github.com/sells-group/grounded-chat/pkg/openai"
)

// --- Anthropic Mock ---

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropic) CreateObject(ctx context.Context, req anthropic.ObjectRequest) (json.RawMessage, anthropic.TokenUsage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Get(1).(anthropic.TokenUsage), args.Error(2)
	}
	return args.Get(0).(json.RawMessage), args.Get(1).(anthropic.TokenUsage), args.Error(2)
}

func (m *mockAnthropic) StreamMessage(ctx context.Context, req anthropic.MessageRequest, cb anthropic.StreamCallbacks, runTool anthropic.ToolRunner) (*anthropic.StreamResult, error) {
	args := m.Called(ctx, req, cb, runTool)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.StreamResult), args.Error(1)
}

// textResponse builds a single-text-block response for mock returns.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 10, OutputTokens: 20},
	}
}

// --- Embedder Mock ---

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, input string) (*openai.EmbedResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.EmbedResult), args.Error(1)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, inputs []string) (*openai.BatchEmbedResult, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.BatchEmbedResult), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateChat(ctx context.Context, chat model.Chat) error {
	return m.Called(ctx, chat).Error(0)
}

func (m *mockStore) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Chat), args.Error(1)
}

func (m *mockStore) DeleteChat(ctx context.Context, chatID string) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *mockStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	return m.Called(ctx, messages).Error(0)
}

func (m *mockStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) UpdateDocumentContent(ctx context.Context, docID, content string) error {
	return m.Called(ctx, docID, content).Error(0)
}

func (m *mockStore) ReplaceFragments(ctx context.Context, docID string, fragments []model.EvidenceFragment) error {
	return m.Called(ctx, docID, fragments).Error(0)
}

func (m *mockStore) SearchFragments(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]model.EvidenceFragment, error) {
	args := m.Called(ctx, query, limit, minSimilarity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EvidenceFragment), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
