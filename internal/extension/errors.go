package extension

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// CycleError reports a dependency cycle. Chain starts and ends with the same
// extension name.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "extension dependency cycle: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }

// MissingDependencyError reports a dependency that was never registered.
type MissingDependencyError struct {
	Name     string
	NeededBy string
}

func (e *MissingDependencyError) Error() string {
	if e.NeededBy == "" {
		return fmt.Sprintf("extension %q is not registered", e.Name)
	}
	return fmt.Sprintf("extension %q needed by %q is not registered", e.Name, e.NeededBy)
}

func (e *MissingDependencyError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }

// ParamNotFoundError reports a parameter that is neither overridden nor
// declared by the extension or any of its ancestors.
type ParamNotFoundError struct {
	Extension string
	Key       string
}

func (e *ParamNotFoundError) Error() string {
	return fmt.Sprintf("extension %q has no parameter %q", e.Extension, e.Key)
}

func (e *ParamNotFoundError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }
