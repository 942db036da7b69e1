package dispatch

import (
	"fmt"
	"slices"

	"github.com/keshon/switchboard/pkg/platform"
)

// Result is one finished handler as later links of a chain see it.
type Result struct {
	// Path is the command path, nil for component callbacks.
	Path []string
	// Message is the message the handler rendered into, zero if none.
	Message platform.MessageRef
	// Value is whatever the handler passed to SetResult.
	Value any
}

// ChainLink is a pending continuation recorded by Context.Chain.
type ChainLink struct {
	Target Handler
	// Path is set when the target was chained by command path.
	Path []string
	// ReuseMessage makes the continuation edit the current message instead
	// of sending a new one.
	ReuseMessage bool
}

// Chain schedules target to run after the current handler returns. With
// reuseMessage the continuation renders into this context's message. A
// context can chain once.
func (c *Context) Chain(target Handler, reuseMessage bool) error {
	if target == nil {
		return fmt.Errorf("chain: nil target")
	}
	return c.setLink(&ChainLink{Target: target, ReuseMessage: reuseMessage})
}

// ChainCommand is Chain with a registered command as the target.
func (c *Context) ChainCommand(path []string, reuseMessage bool) error {
	node, err := c.engine.tree.Resolve(path)
	if err != nil {
		return err
	}
	return c.setLink(&ChainLink{
		Target:       node.Handler().handler,
		Path:         node.Path(),
		ReuseMessage: reuseMessage,
	})
}

func (c *Context) setLink(link *ChainLink) error {
	if c.link != nil {
		return ErrAlreadyChained
	}
	if limit := c.engine.cfg.MaxChainDepth; limit > 0 && len(c.chain)+1 > limit {
		return fmt.Errorf("%w: %d", ErrChainTooDeep, limit)
	}
	c.link = link
	return nil
}

// Chained reports whether the context has a pending continuation.
func (c *Context) Chained() bool { return c.link != nil }

// next builds the context of the pending continuation.
func (c *Context) next() *Context {
	n := &Context{
		engine: c.engine,
		ctx:    c.ctx,
		event:  c.event,
		ex:     c.ex,
		path:   slices.Clone(c.link.Path),
		chain:  append(slices.Clone(c.chain), c.Result()),
	}
	if c.link.ReuseMessage && c.message != nil {
		ref := *c.message
		n.message = &ref
	}
	return n
}
