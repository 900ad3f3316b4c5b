package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/pkg/anthropic"
)

// generateTitle produces a chat title from the opening user message. Title
// generation is best-effort: on any failure the truncated message itself
// becomes the title, so chat creation never blocks on the model.
func generateTitle(ctx context.Context, ai anthropic.Client, modelID, userContent string) string {
	resp, err := ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: 64,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(titlePrompt, userContent),
		}},
	})
	if err != nil {
		zap.L().Warn("title generation failed, falling back to message prefix", zap.Error(err))
		return fallbackTitle(userContent)
	}

	title := sanitizeTitle(resp.Text())
	if title == "" {
		return fallbackTitle(userContent)
	}
	return title
}

// sanitizeTitle enforces the title constraints regardless of what the model
// returned: no quotes, no colons, at most MaxTitleLength characters.
func sanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(`"`, "", "'", "", "`", "", ":", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return truncateTitle(s)
}

func fallbackTitle(userContent string) string {
	return truncateTitle(strings.Join(strings.Fields(userContent), " "))
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= model.MaxTitleLength {
		return s
	}
	return strings.TrimSpace(string(runes[:model.MaxTitleLength]))
}
