package cmd

import (
	"errors"
	"strings"
)

// ErrTreeFrozen is returned by registration calls after the tree was published.
var ErrTreeFrozen = errors.New("command tree is frozen")

// DuplicateCommandError reports a second registration of the same leaf path.
type DuplicateCommandError struct {
	Path []string
}

func (e *DuplicateCommandError) Error() string {
	return "command already registered: " + JoinPath(e.Path)
}

// ConflictingNodeKindError reports a path that would make a node both a group
// and a command.
type ConflictingNodeKindError struct {
	Path   []string
	Reason string
}

func (e *ConflictingNodeKindError) Error() string {
	return "conflicting node kind at " + JoinPath(e.Path) + ": " + e.Reason
}

// UnknownCommandError reports a path that does not lead to a leaf.
type UnknownCommandError struct {
	Path []string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command: " + JoinPath(e.Path)
}

// JoinPath renders a path the way users type it: "base hello".
func JoinPath(path []string) string {
	return strings.Join(path, " ")
}
