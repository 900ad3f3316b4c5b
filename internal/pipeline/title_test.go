package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/grounded-chat/internal/model"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"Quoted title"`, "Quoted title"},
		{"Go: a retrospective", "Go a retrospective"},
		{"  spaced   out  ", "spaced out"},
		{"It's 'fine'", "Its fine"},
		{strings.Repeat("a", 100), strings.Repeat("a", 80)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, sanitizeTitle(c.in), "input %q", c.in)
	}
}

func TestTruncateTitle_RespectsRunes(t *testing.T) {
	long := strings.Repeat("ü", 100)
	got := truncateTitle(long)
	assert.Equal(t, model.MaxTitleLength, len([]rune(got)))
}

func TestGenerateTitle_FallsBackOnError(t *testing.T) {
	ai := &mockAnthropic{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	title := generateTitle(context.Background(), ai, "m", "What is the airspeed of an unladen swallow?")
	assert.Equal(t, "What is the airspeed of an unladen swallow?", title)
}

func TestGenerateTitle_FallsBackOnEmptyResponse(t *testing.T) {
	ai := &mockAnthropic{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`""`), nil)

	title := generateTitle(context.Background(), ai, "m", "hello there")
	assert.Equal(t, "hello there", title)
}

func TestGenerateTitle_SanitizesModelOutput(t *testing.T) {
	ai := &mockAnthropic{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("Swallows: a study\n"), nil)

	title := generateTitle(context.Background(), ai, "m", "question")
	assert.Equal(t, "Swallows a study", title)
}
