package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// PerspectiveConfig controls the dual-perspective stage.
type PerspectiveConfig struct {
	Model               string
	MaxTokens           int64
	CriticTemperature   float64
	OptimistTemperature float64
}

// generatePerspectives produces the critic and optimist drafts concurrently.
// Both must succeed; a failure of either fails the stage.
func generatePerspectives(
	ctx context.Context,
	ai anthropic.Client,
	cfg PerspectiveConfig,
	evidence []model.EvidenceFragment,
	history []anthropic.Message,
) (critic, optimist model.Perspective, usage anthropic.TokenUsage, err error) {
	evidenceJSON, err := serializeEvidence(evidence)
	if err != nil {
		return critic, optimist, usage, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	run := func(stance model.Stance, prompt string, temp float64, out *model.Perspective) func() error {
		return func() error {
			req := anthropic.MessageRequest{
				Model:       cfg.Model,
				MaxTokens:   cfg.MaxTokens,
				System:      anthropic.BuildCachedSystemBlocks(fmt.Sprintf(prompt, evidenceJSON)),
				Messages:    history,
				Temperature: &temp,
			}
			resp, err := ai.CreateMessage(gctx, req)
			if err != nil {
				return eris.Wrapf(err, "pipeline: %s perspective", stance)
			}
			mu.Lock()
			defer mu.Unlock()
			*out = model.Perspective{Stance: stance, Text: resp.Text()}
			usage.Add(resp.Usage)
			return nil
		}
	}

	g.Go(run(model.StanceCritic, criticPrompt, cfg.CriticTemperature, &critic))
	g.Go(run(model.StanceOptimist, optimistPrompt, cfg.OptimistTemperature, &optimist))

	if err := g.Wait(); err != nil {
		return critic, optimist, usage, err
	}
	return critic, optimist, usage, nil
}

// serializeEvidence renders the evidence set as the JSON block every prompt
// embeds. Fragment embeddings are excluded from serialization.
func serializeEvidence(evidence []model.EvidenceFragment) (string, error) {
	if len(evidence) == 0 {
		return "[]", nil
	}
	raw, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "pipeline: serialize evidence")
	}
	return string(raw), nil
}
