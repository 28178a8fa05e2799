package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ResetPrompt is shown before destroying the schema.
const ResetPrompt = `Are you sure? If so type "y": `

// Confirmer answers a yes/no question before a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Answer confirms only when the given answer is "y".
func Answer(answer string) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) {
		return IsAffirmative(answer), nil
	})
}

// IsAffirmative reports whether an answer counts as yes.
func IsAffirmative(answer string) bool {
	return strings.TrimSpace(answer) == "y"
}

// PromptConfirmer asks on Out and reads one line from In.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	if _, err := fmt.Fprint(p.Out, prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if !IsAffirmative(line) {
		fmt.Fprintln(p.Out, "Aborted.")
		return false, nil
	}
	return true, nil
}
