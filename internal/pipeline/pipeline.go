// Package pipeline runs the multi-stage answer-synthesis pipeline: embedding
// retrieval, dual perspectives, arbitration, fact check, and cited streaming
// synthesis. Each turn produces an ordered event stream and, on success, one
// persisted assistant message.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/cost"
	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/internal/retrieval"
	"github.com/sells-group/grounded-chat/internal/store"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// Options configures a Pipeline.
type Options struct {
	Model               string
	TitleModel          string
	MaxTokens           int64
	CriticTemperature   float64
	OptimistTemperature float64

	// FactCheckRequired makes a failed fact-check call fatal to the turn.
	// When false (the default) the turn proceeds with no verdicts.
	FactCheckRequired bool

	// EventBuffer sizes the per-turn event channel.
	EventBuffer int
}

// Pipeline orchestrates turns. Safe for concurrent use; each Run is an
// independent turn.
type Pipeline struct {
	opts     Options
	store    store.Store
	searcher *retrieval.Searcher
	ai       anthropic.Client
	tools    *ToolRegistry
	costs    *cost.Calculator
}

// New builds a Pipeline.
func New(opts Options, st store.Store, searcher *retrieval.Searcher, ai anthropic.Client, tools *ToolRegistry) *Pipeline {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Pipeline{
		opts:     opts,
		store:    st,
		searcher: searcher,
		ai:       ai,
		tools:    tools,
		costs:    cost.NewCalculator(cost.DefaultRates()),
	}
}

// TurnRequest describes one user turn.
type TurnRequest struct {
	ChatID  string
	UserID  string
	Content string

	// MessageID identifies the user message. Generated when empty. Every
	// event of the turn is tagged with it.
	MessageID string
}

// Run starts a turn and returns its event stream. The stream carries exactly
// one terminal event (finish or error) and is then closed; on context
// cancellation it closes without a terminal event and nothing is persisted
// for the assistant side.
func (p *Pipeline) Run(ctx context.Context, req TurnRequest) <-chan Event {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	events := make(chan Event, p.opts.EventBuffer)
	go func() {
		defer close(events)
		p.run(ctx, req, &emitter{messageID: req.MessageID, ch: events})
	}()
	return events
}

func (p *Pipeline) run(ctx context.Context, req TurnRequest, em *emitter) {
	log := zap.L().With(
		zap.String("chat_id", req.ChatID),
		zap.String("message_id", req.MessageID),
	)
	started := time.Now()

	if req.Content == "" {
		p.fail(ctx, em, log, eris.New("pipeline: empty user message"))
		return
	}

	// Resolve the chat, creating it with a generated title on first contact.
	chat, err := p.store.GetChat(ctx, req.ChatID)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}
	if chat == nil {
		title := generateTitle(ctx, p.ai, p.opts.TitleModel, req.Content)
		if err := p.store.CreateChat(ctx, model.Chat{
			ID:        req.ChatID,
			UserID:    req.UserID,
			Title:     title,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			p.fail(ctx, em, log, err)
			return
		}
		log.Info("chat created", zap.String("title", title))
	}

	history, err := p.store.ListMessages(ctx, req.ChatID)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}

	// The user message is durable before any model work begins.
	userMsg := model.Message{
		ID:        req.MessageID,
		ChatID:    req.ChatID,
		Role:      model.RoleUser,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.SaveMessages(ctx, []model.Message{userMsg}); err != nil {
		p.fail(ctx, em, log, err)
		return
	}

	convo := toHistory(history, userMsg)
	var totalUsage anthropic.TokenUsage
	var embeddingTokens int

	// Retrieval.
	em.status(ctx, "Searching the knowledge base...")
	search, err := p.searcher.Search(ctx, req.Content)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}
	embeddingTokens = search.EmbeddingTokens
	em.emit(ctx, Event{Type: EventSearch, Results: search.Fragments})
	log.Info("retrieval complete",
		zap.Int("fragments", len(search.Fragments)),
		zap.Int("embedding_tokens", search.EmbeddingTokens))

	// Dual perspectives.
	em.status(ctx, "Generating perspectives...")
	critic, optimist, usage, err := generatePerspectives(ctx, p.ai, PerspectiveConfig{
		Model:               p.opts.Model,
		MaxTokens:           p.opts.MaxTokens,
		CriticTemperature:   p.opts.CriticTemperature,
		OptimistTemperature: p.opts.OptimistTemperature,
	}, search.Fragments, convo)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}
	totalUsage.Add(usage)
	usage.LogCost(p.opts.Model, "perspectives")
	em.emit(ctx, Event{Type: EventPerspectives, Critic: critic.Text, Optimist: optimist.Text})

	// Arbitration.
	em.status(ctx, "Analyzing perspectives...")
	arb, usage, err := arbitrate(ctx, p.ai, p.opts.Model, req.Content, critic, optimist)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}
	totalUsage.Add(usage)
	usage.LogCost(p.opts.Model, "arbitration")
	chosen := critic
	if arb.ChosenStance == model.StanceOptimist {
		chosen = optimist
	}
	em.emit(ctx, Event{
		Type:       EventPerspectiveAnalysis,
		Choice:     arb.ChosenStance,
		Confidence: &arb.Confidence,
		Reasoning:  arb.Reasoning,
	})

	// Fact check.
	em.status(ctx, "Fact checking the chosen draft...")
	verdicts, usage, err := checkFacts(ctx, p.ai, p.opts.Model, chosen.Text, search.Fragments)
	if err != nil {
		if p.opts.FactCheckRequired || ctx.Err() != nil {
			p.fail(ctx, em, log, err)
			return
		}
		log.Warn("fact check unavailable, continuing without verdicts", zap.Error(err))
		verdicts = nil
	}
	totalUsage.Add(usage)
	usage.LogCost(p.opts.Model, "fact_check")
	em.emit(ctx, Event{Type: EventFactCheck, Verdicts: verdicts})

	// Synthesis.
	em.status(ctx, "Composing the answer...")
	result, err := synthesize(ctx, p.ai, p.opts.Model, p.opts.MaxTokens, synthesisInput{
		History:     convo,
		Evidence:    search.Fragments,
		Chosen:      chosen,
		Arbitration: arb,
		Verdicts:    verdicts,
	}, p.tools, req.UserID, em)
	if err != nil {
		p.fail(ctx, em, log, err)
		return
	}
	totalUsage.Add(result.Usage)
	result.Usage.LogCost(p.opts.Model, "synthesis")

	// A cancelled turn persists nothing on the assistant side.
	if ctx.Err() != nil {
		log.Info("turn cancelled, discarding assistant message")
		return
	}

	assistant := model.Message{
		ID:                   uuid.NewString(),
		ChatID:               req.ChatID,
		Role:                 model.RoleAssistant,
		Content:              result.Text,
		Sources:              search.Fragments,
		FactCheck:            verdicts,
		Confidence:           &arb.Confidence,
		PerspectiveReasoning: arb.Reasoning,
		CreatedAt:            time.Now().UTC(),
	}
	if err := p.store.SaveMessages(ctx, []model.Message{assistant}); err != nil {
		// The answer already streamed; losing the persisted copy is a
		// warning, not a turn failure.
		log.Warn("assistant message not persisted", zap.Error(err))
	}

	log.Info("turn complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("chosen_stance", string(arb.ChosenStance)),
		zap.Float64("confidence", arb.Confidence),
		zap.Int("verdicts", len(verdicts)),
		zap.Int64("input_tokens", totalUsage.InputTokens),
		zap.Int64("output_tokens", totalUsage.OutputTokens),
		zap.Float64("claude_cost_usd", p.costs.Claude(p.opts.Model,
			totalUsage.InputTokens, totalUsage.OutputTokens,
			totalUsage.CacheCreationInputTokens, totalUsage.CacheReadInputTokens)),
		zap.Float64("embedding_cost_usd", p.costs.Embedding(embeddingTokens)),
	)
	em.emit(ctx, Event{Type: EventFinish, ResponseID: assistant.ID})
}

// fail logs the real error and emits a generic error event. Clients never
// see internal detail.
func (p *Pipeline) fail(ctx context.Context, em *emitter, log *zap.Logger, err error) {
	if ctx.Err() != nil {
		log.Info("turn cancelled", zap.Error(ctx.Err()))
		return
	}
	log.Error("turn failed", zap.Error(err))
	em.emit(ctx, Event{Type: EventError, Message: "Oops, an error occurred!"})
}

// toHistory converts persisted messages plus the new user message into the
// conversation the model sees.
func toHistory(prior []model.Message, latest model.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(prior)+1)
	for _, m := range prior {
		out = append(out, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}
	out = append(out, anthropic.Message{Role: string(latest.Role), Content: latest.Content})
	return out
}
