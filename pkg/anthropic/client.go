// Package anthropic wraps the official Anthropic SDK behind a small
// interface so the pipeline can be tested with doubles.
package anthropic

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the pipeline.
type Client interface {
	// CreateMessage runs a single non-streaming generation request.
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)

	// CreateObject runs a generation request whose output is forced through
	// a single tool schema, returning the raw structured object. A response
	// that carries no tool invocation is an error, never a partial parse.
	CreateObject(ctx context.Context, req ObjectRequest) (json.RawMessage, TokenUsage, error)

	// StreamMessage streams a generation request, invoking cb.OnText for
	// each text delta. When the model requests a tool and runTool is
	// non-nil, the tool result is fed back and generation continues until
	// the model stops on its own.
	StreamMessage(ctx context.Context, req MessageRequest, cb StreamCallbacks, runTool ToolRunner) (*StreamResult, error)
}

// MessageRequest is our own request type for generation calls.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
	Tools       []ToolDef
}

// ObjectRequest describes a structured-output request. The model is forced
// to answer through the named tool, whose input schema constrains the shape
// of the object.
type ObjectRequest struct {
	Model      string
	MaxTokens  int64
	Messages   []Message
	ToolName   string
	ToolDesc   string
	Properties map[string]any
	Required   []string
}

// SystemBlock represents a system prompt block, optionally with cache control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// ToolDef declares a callable capability offered to the model.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// ToolRunner executes a tool invocation and returns its textual result.
type ToolRunner func(ctx context.Context, name string, input json.RawMessage) (string, error)

// StreamCallbacks receives incremental stream events.
type StreamCallbacks struct {
	// OnText is called for every text delta, in order.
	OnText func(delta string)
	// OnToolUse is called when the model invokes a tool, before it runs.
	OnToolUse func(name string, input json.RawMessage)
	// OnToolResult is called with the tool's result (or error) after it runs.
	OnToolResult func(name string, result string, err error)
}

// StreamResult is the accumulated outcome of a streamed generation.
type StreamResult struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type string
	Text string
}

// Text returns the concatenated text blocks of the response.
func (r *MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// LogCost logs token usage with structured zap fields, attributed to a
// pipeline stage.
func (u TokenUsage) LogCost(model, stage string) {
	zap.L().Info("token usage",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, toSDKParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

func (c *sdkClient) CreateObject(ctx context.Context, req ObjectRequest) (json.RawMessage, TokenUsage, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
		Tools: []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        req.ToolName,
				Description: sdk.String(req.ToolDesc),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: req.Properties,
					Required:   req.Required,
				},
			},
		}},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: req.ToolName},
		},
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, TokenUsage{}, eris.Wrap(err, "anthropic: create object")
	}

	usage := fromSDKUsage(msg.Usage)
	for _, block := range msg.Content {
		if tu, ok := block.AsAny().(sdk.ToolUseBlock); ok && tu.Name == req.ToolName {
			return json.RawMessage(tu.JSON.Input.Raw()), usage, nil
		}
	}
	return nil, usage, eris.New("anthropic: response carried no structured object")
}

func (c *sdkClient) StreamMessage(ctx context.Context, req MessageRequest, cb StreamCallbacks, runTool ToolRunner) (*StreamResult, error) {
	params := toSDKParams(req)
	result := &StreamResult{}

	// Tool-use loop: stream, run requested tools, feed results back, repeat
	// until the model stops for a reason other than tool_use.
	for {
		stream := c.client.Messages.NewStreaming(ctx, params)
		var msg sdk.Message

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return nil, eris.Wrap(err, "anthropic: accumulate stream event")
			}
			if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
				if text, ok := delta.Delta.AsAny().(sdk.TextDelta); ok && cb.OnText != nil {
					cb.OnText(text.Text)
				}
			}
		}
		if err := stream.Err(); err != nil {
			return nil, eris.Wrap(err, "anthropic: stream message")
		}

		result.Usage.Add(fromSDKUsage(msg.Usage))
		result.StopReason = string(msg.StopReason)
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(sdk.TextBlock); ok {
				result.Text += tb.Text
			}
		}

		if msg.StopReason != "tool_use" || runTool == nil {
			return result, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		var toolResults []sdk.ContentBlockParamUnion
		for _, block := range msg.Content {
			tu, ok := block.AsAny().(sdk.ToolUseBlock)
			if !ok {
				continue
			}
			input := json.RawMessage(tu.JSON.Input.Raw())
			if cb.OnToolUse != nil {
				cb.OnToolUse(tu.Name, input)
			}
			out, toolErr := runTool(ctx, tu.Name, input)
			if cb.OnToolResult != nil {
				cb.OnToolResult(tu.Name, out, toolErr)
			}
			if toolErr != nil {
				out = toolErr.Error()
			}
			toolResults = append(toolResults, sdk.NewToolResultBlock(tu.ID, out, toolErr != nil))
		}
		if len(toolResults) == 0 {
			return result, nil
		}
		params.Messages = append(params.Messages, sdk.NewUserMessage(toolResults...))
	}
}

// --- SDK type conversion helpers ---

func toSDKParams(req MessageRequest) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = sdk.ToolUnionParam{
				OfTool: &sdk.ToolParam{
					Name:        t.Name,
					Description: sdk.String(t.Description),
					InputSchema: sdk.ToolInputSchemaParam{
						Properties: t.Properties,
						Required:   t.Required,
					},
				},
			}
		}
		params.Tools = tools
	}
	return params
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{
			Text: b.Text,
		}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
			out[i].CacheControl = cc
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		blocks = append(blocks, ContentBlock{
			Type: b.Type,
			Text: b.Text,
		})
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Content:    blocks,
		StopReason: string(msg.StopReason),
		Usage:      fromSDKUsage(msg.Usage),
	}
}

func fromSDKUsage(u sdk.Usage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}
}
