package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDocument is returned when the tree handed to Encode is not
	// rooted at a doc node.
	ErrNotDocument = errors.New("root node is not a doc")

	// ErrTooDeep is returned when a tree nests deeper than Config.MaxDepth.
	ErrTooDeep = errors.New("document nesting exceeds limit")
)

// MalformedInputError reports a compact string that is not valid grammar.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed compact input: %s: %v", e.Reason, e.Err)
	}
	return "malformed compact input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func malformed(reason string, err error) *MalformedInputError {
	return &MalformedInputError{Reason: reason, Err: err}
}

// MissingContextError reports a node whose expansion needs a
// reconstruction field the caller did not supply.
type MissingContextError struct {
	NodeType string
	Field    string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("missing reconstruction context: %s node requires %s", e.NodeType, e.Field)
}

// ShapeMismatchError is the soft failure of a compaction rule: the node's
// attrs did not fit the shape the rule expects. Encode never returns it; the
// node is passed through and the error is logged.
type ShapeMismatchError struct {
	NodeType string
	Reason   string
	Err      error
}

func (e *ShapeMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s node not compactable: %s: %v", e.NodeType, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s node not compactable: %s", e.NodeType, e.Reason)
}

func (e *ShapeMismatchError) Unwrap() error { return e.Err }
