package cmd

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/keshon/switchboard/pkg/ident"
)

// Leaf is what a command carries: its handler plus the metadata published to
// the platform.
type Leaf[H any] struct {
	Description string
	Options     []Option
	Handler     H
}

// Node is either a group (has children, no leaf) or a command (has a leaf, no
// children). Never both.
type Node[H any] struct {
	name        string
	description string
	parent      *Node[H]
	children    map[string]*Node[H]
	order       []string
	leaf        *Leaf[H]
}

// Name returns the node's own name.
func (n *Node[H]) Name() string { return n.name }

// Parent returns the owning group, or nil for top-level nodes.
func (n *Node[H]) Parent() *Node[H] {
	if n.parent != nil && n.parent.parent == nil {
		return nil
	}
	return n.parent
}

// Path returns the names from the root down to n.
func (n *Node[H]) Path() []string {
	var path []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		path = append(path, cur.name)
	}
	slices.Reverse(path)
	return path
}

// IsLeaf reports whether n is an invocable command.
func (n *Node[H]) IsLeaf() bool { return n.leaf != nil }

// Leaf returns the command data, or nil for groups.
func (n *Node[H]) Leaf() *Leaf[H] { return n.leaf }

// Handler returns the leaf handler, or the zero value for groups.
func (n *Node[H]) Handler() H {
	var zero H
	if n.leaf == nil {
		return zero
	}
	return n.leaf.Handler
}

// Children returns child nodes in registration order.
func (n *Node[H]) Children() []*Node[H] {
	out := make([]*Node[H], 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

func (n *Node[H]) child(name string) *Node[H] {
	if n.children == nil {
		return nil
	}
	return n.children[name]
}

func (n *Node[H]) addChild(c *Node[H]) {
	if n.children == nil {
		n.children = make(map[string]*Node[H])
	}
	c.parent = n
	n.children[c.name] = c
	n.order = append(n.order, c.name)
}

// Tree is a deterministic trie of commands. Registration happens at startup;
// after Freeze the tree is read-only and reads take no lock. Before that,
// reads serialize with registration.
type Tree[H any] struct {
	mu     sync.Mutex
	root   *Node[H]
	frozen atomic.Bool
}

// NewTree returns an empty tree.
func NewTree[H any]() *Tree[H] {
	return &Tree[H]{root: &Node[H]{}}
}

// Register adds a leaf command at path, creating missing groups on the way.
// A failed registration leaves the tree unchanged.
func (t *Tree[H]) Register(path []string, leaf Leaf[H]) (*Node[H], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return nil, fmt.Errorf("register %q: %w", JoinPath(path), ErrTreeFrozen)
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}

	// validate the whole walk before touching anything
	cur := t.root
	depth := 0
	for i, name := range path {
		next := cur.child(name)
		if next == nil {
			break
		}
		last := i == len(path)-1
		switch {
		case last && next.IsLeaf():
			return nil, &DuplicateCommandError{Path: slices.Clone(path)}
		case last:
			return nil, &ConflictingNodeKindError{Path: slices.Clone(path), Reason: "a group already exists here"}
		case next.IsLeaf():
			return nil, &ConflictingNodeKindError{Path: slices.Clone(path[:i+1]), Reason: "a command cannot have subcommands"}
		}
		cur = next
		depth = i + 1
	}

	for _, name := range path[depth : len(path)-1] {
		g := &Node[H]{name: name}
		cur.addChild(g)
		cur = g
	}
	l := leaf
	n := &Node[H]{name: path[len(path)-1], description: leaf.Description, leaf: &l}
	cur.addChild(n)
	return n, nil
}

// RegisterGroup declares a (possibly nested) group at path. Registering an
// existing group again is a no-op apart from filling in a missing description.
func (t *Tree[H]) RegisterGroup(path []string, description string) (*Node[H], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return nil, fmt.Errorf("register group %q: %w", JoinPath(path), ErrTreeFrozen)
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}

	cur := t.root
	depth := 0
	for i, name := range path {
		next := cur.child(name)
		if next == nil {
			break
		}
		if next.IsLeaf() {
			return nil, &ConflictingNodeKindError{Path: slices.Clone(path[:i+1]), Reason: "a command already exists here"}
		}
		cur = next
		depth = i + 1
	}

	if depth == len(path) {
		if cur.description == "" {
			cur.description = description
		}
		return cur, nil
	}
	for i, name := range path[depth:] {
		g := &Node[H]{name: name}
		if depth+i == len(path)-1 {
			g.description = description
		}
		cur.addChild(g)
		cur = g
	}
	return cur, nil
}

// Resolve walks path from the root and returns the leaf it names.
func (t *Tree[H]) Resolve(path []string) (*Node[H], error) {
	if len(path) == 0 {
		return nil, &UnknownCommandError{Path: path}
	}
	defer t.read()()
	cur := t.root
	for _, name := range path {
		cur = cur.child(name)
		if cur == nil {
			return nil, &UnknownCommandError{Path: slices.Clone(path)}
		}
	}
	if !cur.IsLeaf() {
		return nil, &UnknownCommandError{Path: slices.Clone(path)}
	}
	return cur, nil
}

// read locks the tree until it is frozen and returns the matching unlock.
func (t *Tree[H]) read() func() {
	if t.frozen.Load() {
		return func() {}
	}
	t.mu.Lock()
	return t.mu.Unlock
}

// Freeze makes the tree read-only. It is called once, right before publishing.
func (t *Tree[H]) Freeze() {
	t.mu.Lock()
	t.frozen.Store(true)
	t.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (t *Tree[H]) Frozen() bool { return t.frozen.Load() }

// Roots returns the top-level nodes in registration order.
func (t *Tree[H]) Roots() []*Node[H] { return t.root.Children() }

// Walk visits every node depth-first in registration order.
func (t *Tree[H]) Walk(fn func(n *Node[H]) error) error {
	var walk func(n *Node[H]) error
	walk = func(n *Node[H]) error {
		for _, c := range n.Children() {
			if err := fn(c); err != nil {
				return err
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.root)
}

// Definitions serializes the tree for publishing. Missing descriptions default
// to the node name.
func (t *Tree[H]) Definitions() []Definition {
	defer t.read()()
	var build func(n *Node[H]) Definition
	build = func(n *Node[H]) Definition {
		d := Definition{Name: n.name, Description: n.description}
		if d.Description == "" {
			d.Description = n.name
		}
		if n.IsLeaf() {
			d.Options = slices.Clone(n.leaf.Options)
			return d
		}
		d.Group = true
		for _, c := range n.Children() {
			d.Children = append(d.Children, build(c))
		}
		return d
	}

	roots := t.root.Children()
	out := make([]Definition, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}

func validatePath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ident.ErrInvalidName)
	}
	for _, name := range path {
		if err := ident.ValidateName(name); err != nil {
			return err
		}
	}
	return nil
}
