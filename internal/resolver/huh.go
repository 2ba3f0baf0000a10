package resolver

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/nvandessel/qualsim/internal/attribute"
)

// HuhPrompter asks on the terminal with a select list.
type HuhPrompter struct {
	// Accessible renders the form without cursor movement, for screen
	// readers and dumb terminals.
	Accessible bool
}

// Choose implements Prompter.
func (h HuhPrompter) Choose(path attribute.Path, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%s has no candidate levels", path)
	}
	choice := options[0]
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which level does %s have?", path)).
				Options(huh.NewOptions(options...)...).
				Value(&choice),
		),
	).WithAccessible(h.Accessible)
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}
