package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grounded-chat/internal/ingest"
	"github.com/sells-group/grounded-chat/internal/store"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// maxToolCalls caps tool invocations per turn so a looping model cannot run
// unbounded.
const maxToolCalls = 5

const defaultWeatherBaseURL = "https://api.open-meteo.com"

// ToolRegistry holds the synthesis-stage tools: their declarations for the
// model and their handlers.
type ToolRegistry struct {
	store          store.Store
	ingestor       *ingest.Ingestor
	ai             anthropic.Client
	suggestModel   string
	httpClient     *http.Client
	weatherBaseURL string
}

// NewToolRegistry builds the registry. suggestModel is the model used to
// generate document suggestions.
func NewToolRegistry(st store.Store, ingestor *ingest.Ingestor, ai anthropic.Client, suggestModel string) *ToolRegistry {
	return &ToolRegistry{
		store:          st,
		ingestor:       ingestor,
		ai:             ai,
		suggestModel:   suggestModel,
		httpClient:     http.DefaultClient,
		weatherBaseURL: defaultWeatherBaseURL,
	}
}

// Defs returns the tool declarations offered to the model during synthesis.
func (r *ToolRegistry) Defs() []anthropic.ToolDef {
	return []anthropic.ToolDef{
		{
			Name:        "get_weather",
			Description: "Get the current weather at a location.",
			Properties: map[string]any{
				"latitude":  map[string]any{"type": "number"},
				"longitude": map[string]any{"type": "number"},
			},
			Required: []string{"latitude", "longitude"},
		},
		{
			Name:        "create_document",
			Description: "Create a new document with the given title and content. The document is chunked and indexed for future retrieval.",
			Properties: map[string]any{
				"title":   map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			Required: []string{"title", "content"},
		},
		{
			Name:        "update_document",
			Description: "Replace an existing document's content. Its index entries are rebuilt.",
			Properties: map[string]any{
				"document_id": map[string]any{"type": "string"},
				"content":     map[string]any{"type": "string"},
			},
			Required: []string{"document_id", "content"},
		},
		{
			Name:        "request_suggestions",
			Description: "Get improvement suggestions for an existing document.",
			Properties: map[string]any{
				"document_id": map[string]any{"type": "string"},
			},
			Required: []string{"document_id"},
		},
	}
}

// Runner binds the registry to a turn's user and returns the ToolRunner the
// streaming client invokes.
func (r *ToolRegistry) Runner(userID string) anthropic.ToolRunner {
	var calls atomic.Int64
	return func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		if calls.Add(1) > maxToolCalls {
			return "", eris.Errorf("pipeline: tool call budget exhausted after %d calls", maxToolCalls)
		}
		switch name {
		case "get_weather":
			return r.getWeather(ctx, input)
		case "create_document":
			return r.createDocument(ctx, userID, input)
		case "update_document":
			return r.updateDocument(ctx, input)
		case "request_suggestions":
			return r.requestSuggestions(ctx, input)
		default:
			return "", eris.Errorf("pipeline: unknown tool %q", name)
		}
	}
}

func (r *ToolRegistry) getWeather(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", eris.Wrap(err, "pipeline: decode get_weather input")
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", args.Latitude))
	q.Set("longitude", fmt.Sprintf("%g", args.Longitude))
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m")

	reqURL := fmt.Sprintf("%s/v1/forecast?%s", r.weatherBaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: build weather request")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: fetch weather")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "pipeline: read weather response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("pipeline: weather service returned %d", resp.StatusCode)
	}
	return string(body), nil
}

func (r *ToolRegistry) createDocument(ctx context.Context, userID string, input json.RawMessage) (string, error) {
	var args struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", eris.Wrap(err, "pipeline: decode create_document input")
	}
	res, err := r.ingestor.IngestText(ctx, userID, args.Title, args.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created document %s (%q, %d chunks indexed).", res.DocumentID, res.Title, res.Chunks), nil
}

func (r *ToolRegistry) updateDocument(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		DocumentID string `json:"document_id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", eris.Wrap(err, "pipeline: decode update_document input")
	}
	res, err := r.ingestor.UpdateDocument(ctx, args.DocumentID, args.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated document %s (%d chunks re-indexed).", args.DocumentID, res.Chunks), nil
}

func (r *ToolRegistry) requestSuggestions(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", eris.Wrap(err, "pipeline: decode request_suggestions input")
	}

	doc, err := r.store.GetDocument(ctx, args.DocumentID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", eris.Errorf("pipeline: document %s not found", args.DocumentID)
	}

	resp, err := r.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.suggestModel,
		MaxTokens: 1024,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(suggestionsPrompt, doc.Content),
		}},
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: request suggestions")
	}
	return resp.Text(), nil
}
