package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractThink_SingleBlock(t *testing.T) {
	cot, remainder := extractThink("<think>reasoning here</think>{\"action\":\"COMPLETE\"}")
	assert.Equal(t, "reasoning here", cot)
	assert.Equal(t, `{"action":"COMPLETE"}`, remainder)
}

func TestExtractThink_MultipleTopLevelBlocks(t *testing.T) {
	cot, remainder := extractThink("<think>first</think> mid <think>second</think> tail")
	assert.Equal(t, "first\nsecond", cot)
	assert.Equal(t, "mid  tail", remainder)
}

func TestExtractThink_NoBlocks(t *testing.T) {
	cot, remainder := extractThink(`{"action":"COMPLETE"}`)
	assert.Empty(t, cot)
	assert.Equal(t, `{"action":"COMPLETE"}`, remainder)
}

func TestExtractThink_UnterminatedTagLeftInPlace(t *testing.T) {
	cot, remainder := extractThink("<think>never closes")
	assert.Empty(t, cot)
	assert.Equal(t, "<think>never closes", remainder)
}

func TestStripThink_DiscardsCoT(t *testing.T) {
	remainder := stripThink("<think>ignored</think>ok")
	assert.Equal(t, "ok", remainder)
}

func TestIsGreetingLike(t *testing.T) {
	cases := map[string]bool{
		"hi":                        true,
		"hello there":               true,
		"thanks!":                   true,
		"good morning":              true,
		"refactor the auth module":  false,
		"hi, please also add tests and run the full suite across every package": false,
	}
	for input, want := range cases {
		assert.Equal(t, want, isGreetingLike(input), "input=%q", input)
	}
}
