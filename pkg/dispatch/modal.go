package dispatch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/keshon/switchboard/pkg/binder"
	"github.com/keshon/switchboard/pkg/ident"
	"github.com/keshon/switchboard/pkg/platform"
)

// MaxModalInputs is the most text inputs one modal can carry.
const MaxModalInputs = 5

// Modal is a form a handler opens in answer to an interaction. Handler runs
// once when the user submits it, with the input values available through
// Context.Field.
type Modal struct {
	Title   string
	Inputs  []platform.TextInput
	Handler Handler
	// TTL overrides the engine's binding TTL for the submission.
	TTL time.Duration
}

// modalKey is the binder key modal submissions resolve under. Modals are
// not attached to a message, so they get a key of their own.
func modalKey(id string) string { return "modal:" + id }

// Modal answers the interaction with m. It must be the first response of the
// dispatch; afterwards the platform no longer accepts a modal.
func (c *Context) Modal(m Modal) error {
	e := c.engine
	if m.Handler == nil {
		return fmt.Errorf("modal %q has no handler", m.Title)
	}
	if len(m.Inputs) == 0 || len(m.Inputs) > MaxModalInputs {
		return fmt.Errorf("modal has %d inputs, between 1 and %d allowed", len(m.Inputs), MaxModalInputs)
	}
	seen := make(map[string]struct{}, len(m.Inputs))
	for _, in := range m.Inputs {
		if err := ident.ValidateComponentID(in.ID); err != nil {
			return fmt.Errorf("modal input %q: %w", in.Label, err)
		}
		if _, dup := seen[in.ID]; dup {
			return fmt.Errorf("modal input id %q used twice", in.ID)
		}
		seen[in.ID] = struct{}{}
	}

	if c.event == nil || c.ex.ack != platform.AckNone {
		return ErrModalUnavailable
	}
	switch c.event.Kind {
	case platform.EventCommand, platform.EventComponent:
	default:
		return ErrModalUnavailable
	}
	mc, ok := e.client.(platform.Modaler)
	if !ok {
		return ErrModalUnavailable
	}

	id := e.binder.NewID()
	b := binder.Binding[binding]{
		ID:    id,
		Value: binding{handler: m.Handler, chain: c.ChainState()},
		TTL:   m.TTL,
	}
	err := e.binder.Swap(modalKey(id), []binder.Binding[binding]{b}, func() error {
		return mc.ShowModal(c.ctx, platform.ModalRequest{
			Event:  c.event,
			ID:     id,
			Title:  m.Title,
			Inputs: m.Inputs,
		})
	})
	if err != nil {
		return fmt.Errorf("show modal: %w", err)
	}
	c.ex.ack = platform.AckResponded
	return nil
}

// forModal builds the context of a modal submission. A modal can be
// submitted once; a second submission finds nothing bound.
func (e *Engine) forModal(ctx context.Context, ev *platform.Event, ex *exchange) (*Context, Handler, error) {
	b, err := e.binder.Take(modalKey(ev.ComponentID), ev.ComponentID)
	if err != nil {
		return nil, nil, err
	}
	c := &Context{
		engine: e,
		ctx:    ctx,
		event:  ev,
		ex:     ex,
		chain:  slices.Clone(b.chain),
	}
	if ev.MessageID != "" {
		c.message = &platform.MessageRef{ID: ev.MessageID, ChannelID: ev.ChannelID}
		e.inflight.watch(ev.MessageID, ex)
	}
	return c, b.handler, nil
}

// Field returns the value of a submitted modal input.
func (c *Context) Field(id string) (string, bool) {
	if c.event == nil || c.event.Fields == nil {
		return "", false
	}
	v, ok := c.event.Fields[id]
	return v, ok
}

// Fields returns every submitted modal input by id.
func (c *Context) Fields() map[string]string {
	if c.event == nil {
		return nil
	}
	return maps.Clone(c.event.Fields)
}
