package sitepath

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// FormatError reports a raw location that cannot be parsed into a Path.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Raw, e.Reason)
}

func (e *FormatError) Category() ferrors.ErrorCategory { return ferrors.CategoryValidation }

// TemplateError reports a name template that cannot be expanded.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template %q: placeholder <%s> %s", e.Template, e.Placeholder, e.Reason)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

func (e *TemplateError) Category() ferrors.ErrorCategory { return ferrors.CategoryValidation }

// MountError reports an invalid mount point or strip prefix.
type MountError struct {
	Raw    string
	Prefix string
	Reason string
}

func (e *MountError) Error() string {
	return fmt.Sprintf("cannot mount %q at %q: %s", e.Raw, e.Prefix, e.Reason)
}

func (e *MountError) Category() ferrors.ErrorCategory { return ferrors.CategoryConfig }
