package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_Stopwords(t *testing.T) {
	tok := NewTokenizer(true)
	assert.Equal(t, []string{"photosynthesis", "produce", "glucose"},
		tok.Tokenize("What is Photosynthesis? How does it produce glucose?"))
}

func TestTokenizer_KeepStopwords(t *testing.T) {
	tok := NewTokenizer(false)
	assert.Equal(t, []string{"what", "is", "dna"}, tok.Tokenize("What is DNA?"))
}

func TestTokenizer_SplitsOnPunctuation(t *testing.T) {
	tok := NewTokenizer(false)
	assert.Equal(t, []string{"foo_bar", "baz", "42"}, tok.Tokenize("foo_bar,baz...42 x"))
}

func TestTokenizer_Unicode(t *testing.T) {
	tok := NewTokenizer(false)
	assert.Equal(t, []string{"écoute", "straße"}, tok.Tokenize("ÉCOUTE Straße"))
}

func TestTokenizer_TokenSet(t *testing.T) {
	tok := NewTokenizer(true)
	set := tok.TokenSet("cell cell CELL membrane")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "cell")
	assert.Contains(t, set, "membrane")
}

func TestTokenizer_Empty(t *testing.T) {
	tok := NewTokenizer(true)
	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize("the a of ?!"))
}
