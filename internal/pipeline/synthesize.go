package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// synthesisInput carries everything the final composition stage consumes.
type synthesisInput struct {
	History     []anthropic.Message
	Evidence    []model.EvidenceFragment
	Chosen      model.Perspective
	Arbitration *model.Arbitration
	Verdicts    []model.FactCheckVerdict
}

// synthesize streams the final cited answer, re-chunking model deltas to
// word granularity and emitting tool events as the model invokes tools.
func synthesize(
	ctx context.Context,
	ai anthropic.Client,
	modelID string,
	maxTokens int64,
	in synthesisInput,
	tools *ToolRegistry,
	userID string,
	em *emitter,
) (*anthropic.StreamResult, error) {
	evidenceJSON, err := serializeEvidence(in.Evidence)
	if err != nil {
		return nil, err
	}
	verdictsJSON, err := json.Marshal(in.Verdicts)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: serialize verdicts")
	}

	system := fmt.Sprintf(synthesisPrompt,
		in.Chosen.Stance,
		in.Arbitration.Confidence,
		in.Chosen.Text,
		in.Arbitration.Reasoning,
		verdictsJSON,
		evidenceJSON,
	)

	chunker := newWordChunker(func(word string) {
		em.emit(ctx, Event{Type: EventDelta, Delta: word})
	})

	cb := anthropic.StreamCallbacks{
		OnText: chunker.write,
		OnToolUse: func(name string, input json.RawMessage) {
			em.emit(ctx, Event{Type: EventTool, ToolName: name, ToolStatus: "call"})
		},
		OnToolResult: func(name string, result string, err error) {
			ev := Event{Type: EventTool, ToolName: name, ToolStatus: "result", ToolDetail: result}
			if err != nil {
				ev.ToolStatus = "error"
				ev.ToolDetail = err.Error()
			}
			em.emit(ctx, ev)
		},
	}

	result, err := ai.StreamMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: maxTokens,
		System:    []anthropic.SystemBlock{{Text: system}},
		Messages:  in.History,
		Tools:     tools.Defs(),
	}, cb, tools.Runner(userID))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: synthesize")
	}

	chunker.flush()
	return result, nil
}

// wordChunker re-slices an arbitrary delta stream into word units. Each
// emitted unit is one word plus the whitespace that follows it, so
// concatenating the units reproduces the original text exactly.
type wordChunker struct {
	pending string
	emit    func(string)
}

func newWordChunker(emit func(string)) *wordChunker {
	return &wordChunker{emit: emit}
}

func (w *wordChunker) write(delta string) {
	w.pending += delta
	for {
		cut := wordBoundary(w.pending)
		if cut < 0 {
			return
		}
		w.emit(w.pending[:cut])
		w.pending = w.pending[cut:]
	}
}

// flush emits whatever partial word remains. Call once after the stream ends.
func (w *wordChunker) flush() {
	if w.pending != "" {
		w.emit(w.pending)
		w.pending = ""
	}
}

// wordBoundary returns the byte index of the first non-space character that
// follows a word and its trailing whitespace, or -1 if the string does not
// yet contain a complete unit.
func wordBoundary(s string) int {
	seenWord := false
	seenSpace := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if seenWord {
				seenSpace = true
			}
			continue
		}
		if seenSpace {
			return i
		}
		seenWord = true
	}
	return -1
}
