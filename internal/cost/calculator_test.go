package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_Claude(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1M input + 1M output at sonnet rates.
	got := c.Claude("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000, 0, 0)
	assert.InDelta(t, 18.00, got, 1e-9)

	// Cache write costs 1.25x input, cache read 0.1x.
	got = c.Claude("claude-sonnet-4-5-20250929", 0, 0, 1_000_000, 1_000_000)
	assert.InDelta(t, 3.00*1.25+3.00*0.1, got, 1e-9)
}

func TestCalculator_Claude_UnknownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Zero(t, c.Claude("claude-2", 1_000_000, 1_000_000, 0, 0))
}

func TestCalculator_Embedding(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.InDelta(t, 0.13, c.Embedding(1_000_000), 1e-9)
	assert.InDelta(t, 0.000013, c.Embedding(100), 1e-9)
	assert.Zero(t, c.Embedding(0))
}

func TestCalculator_Jina(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.InDelta(t, 0.02, c.Jina(1_000_000), 1e-9)
}
