package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grounded-chat/internal/ingest"
	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/openai"
)

func newTestRegistry(st *mockStore, emb *mockEmbedder, ai *mockAnthropic) *ToolRegistry {
	return NewToolRegistry(st, ingest.New(st, emb, nil, 1000), ai, "m")
}

func TestToolRegistry_Defs(t *testing.T) {
	r := newTestRegistry(&mockStore{}, &mockEmbedder{}, &mockAnthropic{})

	var names []string
	for _, d := range r.Defs() {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.NotEmpty(t, d.Required)
	}
	assert.Equal(t, []string{"get_weather", "create_document", "update_document", "request_suggestions"}, names)
}

func TestToolRunner_UnknownTool(t *testing.T) {
	r := newTestRegistry(&mockStore{}, &mockEmbedder{}, &mockAnthropic{})
	run := r.Runner("u1")

	_, err := run(context.Background(), "launch_missiles", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestToolRunner_BudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":21.5}}`))
	}))
	defer srv.Close()

	r := newTestRegistry(&mockStore{}, &mockEmbedder{}, &mockAnthropic{})
	r.weatherBaseURL = srv.URL
	run := r.Runner("u1")

	input := json.RawMessage(`{"latitude":52.52,"longitude":13.4}`)
	for i := 0; i < maxToolCalls; i++ {
		_, err := run(context.Background(), "get_weather", input)
		require.NoError(t, err)
	}

	_, err := run(context.Background(), "get_weather", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget exhausted")
}

func TestToolRunner_GetWeather(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		assert.Equal(t, "52.52", req.URL.Query().Get("latitude"))
		w.Write([]byte(`{"current":{"temperature_2m":21.5}}`))
	}))
	defer srv.Close()

	r := newTestRegistry(&mockStore{}, &mockEmbedder{}, &mockAnthropic{})
	r.weatherBaseURL = srv.URL

	out, err := r.Runner("u1")(context.Background(), "get_weather",
		json.RawMessage(`{"latitude":52.52,"longitude":13.4}`))
	require.NoError(t, err)
	assert.Equal(t, "/v1/forecast", gotPath)
	assert.Contains(t, out, "21.5")
}

func TestToolRunner_GetWeather_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newTestRegistry(&mockStore{}, &mockEmbedder{}, &mockAnthropic{})
	r.weatherBaseURL = srv.URL

	_, err := r.Runner("u1")(context.Background(), "get_weather",
		json.RawMessage(`{"latitude":1,"longitude":2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestToolRunner_CreateDocument(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	r := newTestRegistry(st, emb, &mockAnthropic{})

	var createdDoc model.Document
	st.On("CreateDocument", mock.Anything, mock.AnythingOfType("model.Document")).
		Run(func(args mock.Arguments) { createdDoc = args.Get(1).(model.Document) }).
		Return(nil)
	emb.On("EmbedBatch", mock.Anything, []string{"Gophers are burrowing rodents."}).
		Return(&openai.BatchEmbedResult{Vectors: [][]float32{{0.1, 0.2}}, Tokens: 8}, nil)
	st.On("ReplaceFragments", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)

	out, err := r.Runner("u1")(context.Background(), "create_document",
		json.RawMessage(`{"title":"Gophers","content":"Gophers are burrowing rodents."}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Gophers")
	assert.Contains(t, out, "1 chunks")

	assert.Equal(t, "u1", createdDoc.UserID)
	assert.Equal(t, "Gophers", createdDoc.Title)
	st.AssertExpectations(t)
}

func TestToolRunner_UpdateDocument(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	r := newTestRegistry(st, emb, &mockAnthropic{})

	st.On("GetDocument", mock.Anything, "doc-1").Return(&model.Document{ID: "doc-1", Title: "Gophers"}, nil)
	st.On("UpdateDocumentContent", mock.Anything, "doc-1", "new content").Return(nil)
	emb.On("EmbedBatch", mock.Anything, []string{"new content"}).
		Return(&openai.BatchEmbedResult{Vectors: [][]float32{{0.3}}, Tokens: 2}, nil)
	st.On("ReplaceFragments", mock.Anything, "doc-1", mock.Anything).Return(nil)

	out, err := r.Runner("u1")(context.Background(), "update_document",
		json.RawMessage(`{"document_id":"doc-1","content":"new content"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	st.AssertExpectations(t)
}

func TestToolRunner_RequestSuggestions(t *testing.T) {
	st := &mockStore{}
	ai := &mockAnthropic{}
	r := newTestRegistry(st, &mockEmbedder{}, ai)

	st.On("GetDocument", mock.Anything, "doc-1").Return(&model.Document{
		ID:      "doc-1",
		Content: "Draft text.",
	}, nil)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("1. Add examples\n2. Tighten the intro"), nil)

	out, err := r.Runner("u1")(context.Background(), "request_suggestions",
		json.RawMessage(`{"document_id":"doc-1"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Add examples")
}

func TestToolRunner_RequestSuggestions_MissingDocument(t *testing.T) {
	st := &mockStore{}
	r := newTestRegistry(st, &mockEmbedder{}, &mockAnthropic{})

	st.On("GetDocument", mock.Anything, "doc-404").Return(nil, nil)

	_, err := r.Runner("u1")(context.Background(), "request_suggestions",
		json.RawMessage(`{"document_id":"doc-404"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
