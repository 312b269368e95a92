package userinput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/spigell/auto-apply/internal/application"
)

// Prompter is the terminal surface of the human loop.
type Prompter interface {
	Say(text string)
	Ask(ctx context.Context, label string) (string, error)
}

// Console prompts on the terminal with promptui. Prompts and messages go to stderr.
type Console struct {
	out io.Writer
	run func(label string) (string, error)
}

func NewConsole() *Console {
	return &Console{
		out: os.Stderr,
		run: func(label string) (string, error) {
			prompt := promptui.Prompt{
				Label:  label,
				Stdout: os.Stderr,
			}
			return prompt.Run()
		},
	}
}

func (c *Console) Say(text string) {
	fmt.Fprintln(c.out, text)
}

// Ask blocks on a dedicated goroutine so the caller can give up when ctx is done.
// A cancelled read stays parked until the terminal delivers a line.
func (c *Console) Ask(ctx context.Context, label string) (string, error) {
	type reply struct {
		value string
		err   error
	}

	replies := make(chan reply, 1)
	go func() {
		value, err := c.run(label)
		replies <- reply{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-replies:
		if r.err != nil {
			return "", mapPromptError(r.err)
		}
		return r.value, nil
	}
}

func mapPromptError(err error) error {
	switch {
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF), errors.Is(err, promptui.ErrAbort):
		return &application.PendingUserInputError{Message: "user input aborted", Err: err}
	default:
		return fmt.Errorf("read user input: %w", err)
	}
}
