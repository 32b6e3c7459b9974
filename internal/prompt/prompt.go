// Package prompt abstracts operator confirmation. The engines only depend on
// Confirm; the silent variant keeps non-interactive runs moving, the terminal
// and tui variants put a human in the loop before destructive steps.
package prompt

import (
	"errors"

	"github.com/stagemerge/stagemerge/internal/model"
)

// Decision is the operator's answer to a confirmation prompt.
type Decision int

const (
	// Proceed performs the pending step.
	Proceed Decision = iota
	// Skip omits the pending step and continues the run.
	Skip
	// Cancel terminates the run; the orchestrator rolls back.
	Cancel
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned up the call chain when the operator cancels the
// run from a prompt.
var ErrCancelled = errors.New("cancelled by operator")

// Prompter surfaces a pending step and an optional row sample to the
// operator. Prompters never mutate the database.
type Prompter interface {
	Confirm(title, message string, sample *model.Rowset) (Decision, error)
}

// Silent always proceeds. Used for non-interactive runs.
type Silent struct{}

// Confirm implements Prompter.
func (Silent) Confirm(title, message string, sample *model.Rowset) (Decision, error) {
	return Proceed, nil
}
