package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_LowercasesAndSplitsOnNonAlphanumeric(t *testing.T) {
	assert.Equal(t, []string{"node", "js", "stack"}, Tokenize("Node.js-stack!"))
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	assert.Equal(t, []string{"go"}, Tokenize("a go i"))
}

func TestTokenize_DropsStopWords(t *testing.T) {
	got := Tokenize("the capital of France is Paris")
	assert.Equal(t, []string{"capital", "france", "paris"}, got)
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
}

func TestTokenize_Deterministic(t *testing.T) {
	text := "React + Node + Mongo stack for the backend"
	assert.Equal(t, Tokenize(text), Tokenize(text))
}

func TestTokenize_UnicodeCaseFolding(t *testing.T) {
	got := Tokenize("CAFÉ MÜNCHEN")
	assert.Equal(t, []string{"café", "münchen"}, got)
}

func TestTokenize_DigitsAreKeptAsTokens(t *testing.T) {
	assert.Equal(t, []string{"gpt4", "model"}, Tokenize("GPT4 model"))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("how"))
	assert.False(t, IsStopWord("paris"))
}
