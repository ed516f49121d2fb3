package service

import (
	"fmt"
	"strings"
)

// Issue is one problem found while validating a batch.
type Issue struct {
	Index  int // -1 for batch level issues
	Field  string
	Reason string
}

func (i Issue) String() string {
	if i.Index < 0 {
		return fmt.Sprintf("%s: %s", i.Field, i.Reason)
	}
	return fmt.Sprintf("item %d %s: %s", i.Index, i.Field, i.Reason)
}

// ValidationError rejects a structurally invalid batch before anything is
// written.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.String())
	}
	return "invalid import batch: " + strings.Join(parts, "; ")
}

// Pipeline stages an item can fail in.
const (
	StageCandidates = "candidates"
	StageInsert     = "insert"
	StageMerge      = "merge"
)

// ItemError records why one batch item was not fully processed.
type ItemError struct {
	Index  int
	Stage  string
	Reason string
	Err    error `json:"-"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d %s: %s", e.Index, e.Stage, e.Reason)
}

func (e ItemError) Unwrap() error { return e.Err }

func itemError(index int, stage string, err error) ItemError {
	return ItemError{Index: index, Stage: stage, Reason: err.Error(), Err: err}
}
