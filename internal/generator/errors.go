package generator

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// DestinationCollisionError reports two nodes writing the same output file.
type DestinationCollisionError struct {
	Dest  string
	ALCN  string
	Other string
}

func (e *DestinationCollisionError) Error() string {
	return fmt.Sprintf("node %s writes to %s, which node %s already claims", e.ALCN, e.Dest, e.Other)
}

func (e *DestinationCollisionError) Category() ferrors.ErrorCategory { return ferrors.CategoryBuild }

// StageErrorKind classifies why a stage stopped the run.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"
	StageErrorCanceled StageErrorKind = "canceled"
)

// StageError is returned by Run when a stage aborted the whole run.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Category reports the category of the cause, or runtime for cancellation.
func (e *StageError) Category() ferrors.ErrorCategory {
	if e.Kind == StageErrorCanceled {
		return ferrors.CategoryRuntime
	}
	return ferrors.GetCategory(e.Err)
}

// NodeFailuresError summarizes the failed nodes and rejected source paths
// of a finished run. First is the earliest node failure, or the first
// rejected path when no node failed.
type NodeFailuresError struct {
	Failed  int
	Invalid int
	First   error
}

func (e *NodeFailuresError) Error() string {
	var parts []string
	if e.Failed > 0 {
		parts = append(parts, countNoun(e.Failed, "node failed", "nodes failed"))
	}
	if e.Invalid > 0 {
		parts = append(parts, countNoun(e.Invalid, "path invalid", "paths invalid"))
	}
	return fmt.Sprintf("%s, first: %v", strings.Join(parts, ", "), e.First)
}

func countNoun(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func (e *NodeFailuresError) Unwrap() error { return e.First }

func (e *NodeFailuresError) Category() ferrors.ErrorCategory { return ferrors.CategoryBuild }
