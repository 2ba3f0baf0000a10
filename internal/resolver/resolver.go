// Package resolver computes the levels an uncertain attribute may hold and
// lets a user (or any Prompter) commit one of them.
package resolver

import (
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
)

// ErrAlreadyDetermined is returned when resolving an attribute whose value is
// already concrete.
var ErrAlreadyDetermined = errors.New("attribute value is already determined")

// AllowedLevels returns the levels an unknown cell may hold given its
// last-known value and last trend: at or below the bound for a downward
// trend, at or above it for an upward trend, every level otherwise.
func AllowedLevels(cell *attribute.Cell, space *quantity.Space) []string {
	lastKnown, _ := cell.LastKnown()
	return attribute.BoundedLevels(space, lastKnown, cell.LastTrend())
}

// Candidates returns the levels a cell may hold: its level when concrete,
// its members in space order for a candidate set, AllowedLevels when unknown.
// Branching and interactive resolution both use this function.
func Candidates(cell *attribute.Cell) []string {
	if cell.Value().IsUnknown() {
		return AllowedLevels(cell, cell.Space())
	}
	return cell.Candidates()
}

// Prompter asks for one level out of options.
type Prompter interface {
	Choose(path attribute.Path, options []string) (string, error)
}

// Resolve asks p for a level of the uncertain attribute at path and commits
// it with Instance.SetAttributeValue.
func Resolve(inst *object.Instance, path attribute.Path, p Prompter) (string, error) {
	cell, err := inst.Cell(path)
	if err != nil {
		return "", err
	}
	if cell.Value().IsConcrete() {
		return "", fmt.Errorf("%s = %s: %w", path, cell.Value(), ErrAlreadyDetermined)
	}
	options := Candidates(cell)
	choice, err := p.Choose(path, options)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := inst.SetAttributeValue(path, choice); err != nil {
		return "", err
	}
	return choice, nil
}

// StaticPrompter answers from a fixed map of path to level. It serves
// non-interactive callers such as the MCP server and tests.
type StaticPrompter map[attribute.Path]string

// Choose implements Prompter.
func (s StaticPrompter) Choose(path attribute.Path, options []string) (string, error) {
	level, ok := s[path]
	if !ok {
		return "", fmt.Errorf("no level given for %s (options: %v)", path, options)
	}
	return level, nil
}
