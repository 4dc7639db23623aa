package port

type Tokenizer interface {
	Tokenize(text string) []string
	// TokenSet returns the distinct tokens of text.
	TokenSet(text string) map[string]struct{}
}
