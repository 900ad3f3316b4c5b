package pipeline

import (
	"context"

	"github.com/sells-group/grounded-chat/internal/model"
)

// EventType discriminates turn events.
type EventType string

const (
	// EventSearch carries the serialized evidence set.
	EventSearch EventType = "search"
	// EventStatus carries a free-text progress message.
	EventStatus EventType = "status"
	// EventPerspectives carries both perspective texts.
	EventPerspectives EventType = "perspectives"
	// EventPerspectiveAnalysis carries the arbitration outcome.
	EventPerspectiveAnalysis EventType = "perspective_analysis"
	// EventFactCheck carries the ordered verdict list.
	EventFactCheck EventType = "fact_check"
	// EventDelta carries one word of the streamed answer.
	EventDelta EventType = "text-delta"
	// EventTool reports a tool invocation and its outcome.
	EventTool EventType = "tool"
	// EventFinish is the success-terminal signal.
	EventFinish EventType = "finish"
	// EventError is the failure-terminal signal. Its message is generic;
	// details go to the log, not the client.
	EventError EventType = "error"
)

// Event is one item on a turn's ordered event stream. Every event is tagged
// with the id of the user message that triggered the turn. Exactly one
// terminal event (finish or error) ends the stream, followed by channel
// close.
type Event struct {
	MessageID string    `json:"message_id"`
	Type      EventType `json:"type"`

	// search
	Results []model.EvidenceFragment `json:"results,omitempty"`

	// status / error
	Message string `json:"message,omitempty"`

	// perspectives
	Critic   string `json:"critic,omitempty"`
	Optimist string `json:"optimist,omitempty"`

	// perspective_analysis
	Choice     model.Stance `json:"choice,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`

	// fact_check
	Verdicts []model.FactCheckVerdict `json:"verdicts,omitempty"`

	// text-delta
	Delta string `json:"delta,omitempty"`

	// tool
	ToolName   string `json:"tool_name,omitempty"`
	ToolStatus string `json:"tool_status,omitempty"` // "call", "result", "error"
	ToolDetail string `json:"tool_detail,omitempty"`

	// finish
	ResponseID string `json:"response_id,omitempty"`
}

// emitter pushes events onto the turn's channel, dropping nothing while the
// context lives. emit returns false once the context is cancelled so stages
// can stop early.
type emitter struct {
	messageID string
	ch        chan<- Event
}

func (e *emitter) emit(ctx context.Context, ev Event) bool {
	ev.MessageID = e.messageID
	select {
	case e.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *emitter) status(ctx context.Context, msg string) bool {
	return e.emit(ctx, Event{Type: EventStatus, Message: msg})
}
