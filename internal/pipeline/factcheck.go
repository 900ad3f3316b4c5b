package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// checkFacts verifies the chosen draft claim by claim against the evidence
// set. The model is asked for a bare JSON array; since it answers in free
// text, malformed output is tolerated and decoded best-effort. Only a failed
// API call returns an error.
func checkFacts(
	ctx context.Context,
	ai anthropic.Client,
	modelID string,
	draft string,
	evidence []model.EvidenceFragment,
) ([]model.FactCheckVerdict, anthropic.TokenUsage, error) {
	evidenceJSON, err := serializeEvidence(evidence)
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	resp, err := ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: 2048,
		System:    []anthropic.SystemBlock{{Text: fmt.Sprintf(factCheckPrompt, evidenceJSON)}},
		Messages:  []anthropic.Message{{Role: "user", Content: draft}},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, eris.Wrap(err, "pipeline: fact check")
	}

	verdicts := parseVerdicts(resp.Text())
	return verdicts, resp.Usage, nil
}

// parseVerdicts extracts as many well-formed verdicts as the text yields.
// The array may be wrapped in prose or truncated mid-element; decoding stops
// at the first malformed element and keeps everything before it.
func parseVerdicts(text string) []model.FactCheckVerdict {
	start := strings.Index(text, "[")
	if start < 0 {
		zap.L().Warn("fact check output carried no JSON array", zap.Int("output_len", len(text)))
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if _, err := dec.Token(); err != nil { // opening bracket
		return nil
	}

	var verdicts []model.FactCheckVerdict
	for dec.More() {
		var v model.FactCheckVerdict
		if err := dec.Decode(&v); err != nil {
			zap.L().Warn("fact check output truncated",
				zap.Int("verdicts_kept", len(verdicts)),
				zap.Error(err))
			break
		}
		if v.Claim == "" {
			continue
		}
		verdicts = append(verdicts, v)
	}
	return verdicts
}
