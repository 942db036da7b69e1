// Package ident allocates and validates the identifiers used by the dispatch core:
// command names that are published to the platform, and component ids that are
// embedded into rendered messages.
package ident

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// MaxComponentIDLength is the longest custom id a component may carry.
const MaxComponentIDLength = 100

var (
	// ErrInvalidName is returned for command or group names the platform would reject.
	ErrInvalidName = errors.New("invalid command name")
	// ErrInvalidComponentID is returned for empty or oversized component ids.
	ErrInvalidComponentID = errors.New("invalid component id")
)

var nameRe = regexp.MustCompile(`^[-_\p{L}\p{N}]{1,32}$`)

// ValidateName checks that name is 1-32 lowercase letters, digits, '-' or '_'.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) || strings.ToLower(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateComponentID checks that id fits into a component custom id.
func ValidateComponentID(id string) error {
	if id == "" || len(id) > MaxComponentIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidComponentID, id)
	}
	return nil
}

// Generator hands out component ids. Implementations must be safe for concurrent use.
type Generator interface {
	Next() string
}

// UUID generates random v4 UUIDs. Collisions are negligible.
type UUID struct{}

func (UUID) Next() string { return uuid.NewString() }

// Sequence generates monotonic ids of the form prefix+n, starting at 1.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

// NewSequence returns a Sequence producing prefix1, prefix2, ...
func NewSequence(prefix string) *Sequence {
	return &Sequence{Prefix: prefix}
}

func (s *Sequence) Next() string {
	return s.Prefix + strconv.FormatUint(s.n.Add(1), 10)
}
