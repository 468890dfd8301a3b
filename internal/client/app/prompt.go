package app

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// Prompter collects form fields from the user.
type Prompter interface {
	Input(label string) (string, error)
	Password(label string) (string, error)
}

// PromptUI prompts on the terminal.
type PromptUI struct{}

func (PromptUI) Input(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	result, err := p.Run()
	return result, wrapPromptError(err)
}

// Password masks the input.
func (PromptUI) Password(label string) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	result, err := p.Run()
	return result, wrapPromptError(err)
}

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapPromptError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}
