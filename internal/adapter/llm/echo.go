package llm

import (
	"context"
	"strings"
)

const echoTail = 400

// Echo is an offline stand-in for a language model. It answers with the
// tail of the prompt, which makes the pipeline runnable without credentials.
type Echo struct{}

func (Echo) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	runes := []rune(strings.TrimSpace(prompt))
	if len(runes) > echoTail {
		runes = runes[len(runes)-echoTail:]
	}
	return "[echo] " + string(runes), nil
}

func (Echo) ModelName() string { return "echo" }
