package contentproc

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// ProcessingError wraps the failure of one processor on one node.
type ProcessingError struct {
	Processor string
	Node      string
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("processor %s: %v", e.Processor, e.Cause)
	}
	return fmt.Sprintf("processor %s on %s: %v", e.Processor, e.Node, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

func (e *ProcessingError) Category() ferrors.ErrorCategory { return ferrors.CategoryBuild }

// UnknownProcessorError is returned for a pipeline naming an unregistered processor.
type UnknownProcessorError struct {
	Name string
}

func (e *UnknownProcessorError) Error() string {
	return fmt.Sprintf("unknown content processor %q", e.Name)
}

func (e *UnknownProcessorError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }
