package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// arbitrate judges the two perspectives and picks a winner. The model's
// answer is forced through a tool schema; an answer that still fails
// validation (unknown stance, confidence outside [0,1]) fails the stage.
func arbitrate(
	ctx context.Context,
	ai anthropic.Client,
	modelID string,
	question string,
	critic, optimist model.Perspective,
) (*model.Arbitration, anthropic.TokenUsage, error) {
	raw, usage, err := ai.CreateObject(ctx, anthropic.ObjectRequest{
		Model:     modelID,
		MaxTokens: 1024,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(arbiterPrompt, question, critic.Text, optimist.Text),
		}},
		ToolName: "report_verdict",
		ToolDesc: "Report which draft was chosen, with confidence and reasoning.",
		Properties: map[string]any{
			"model": map[string]any{
				"type": "string",
				"enum": []string{string(model.StanceCritic), string(model.StanceOptimist)},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"reasoning": map[string]any{
				"type": "string",
			},
		},
		Required: []string{"model", "confidence", "reasoning"},
	})
	if err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: arbitrate")
	}

	var verdict struct {
		Model      string  `json:"model"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: decode arbitration verdict")
	}

	stance := model.Stance(verdict.Model)
	if !stance.Valid() {
		return nil, usage, eris.Errorf("pipeline: arbiter chose unknown stance %q", verdict.Model)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, usage, eris.Errorf("pipeline: arbiter confidence %v outside [0,1]", verdict.Confidence)
	}

	return &model.Arbitration{
		ChosenStance: stance,
		Confidence:   verdict.Confidence,
		Reasoning:    verdict.Reasoning,
	}, usage, nil
}
