// Package errors provides the classified error primitives used across sitegen.
//
// Domain packages define their own typed errors (path.FormatError,
// extension.CycleError, contentproc.ProcessingError, ...) and expose a
// Category method. At the command boundary Classify lifts them into a
// ClassifiedError so the CLIErrorAdapter can pick an exit code.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryCache, "snapshot write failed").
//		WithContext("backend", "sqlite").
//		WithCause(originalErr).
//		Build()
package errors
