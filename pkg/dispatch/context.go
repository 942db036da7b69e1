package dispatch

import (
	"context"
	"fmt"
	"slices"

	"github.com/keshon/switchboard/pkg/platform"
)

// exchange is the interaction state shared by all contexts of one dispatch
// (the first handler and its chained continuations).
type exchange struct {
	ack    platform.Ack
	cancel context.CancelFunc
}

// Context is handed to a handler for exactly one invocation. It is owned by
// the dispatch that created it and must not be used after the handler returns.
type Context struct {
	engine  *Engine
	ctx     context.Context
	event   *platform.Event
	ex      *exchange
	path    []string
	chain   []Result
	message *platform.MessageRef
	link    *ChainLink
	value   any
	channel string
}

// forCommand builds the context of a command invocation.
func (e *Engine) forCommand(ctx context.Context, ev *platform.Event, ex *exchange) (*Context, Handler, error) {
	node, err := e.tree.Resolve(ev.Path)
	if err != nil {
		return nil, nil, err
	}
	c := &Context{
		engine: e,
		ctx:    ctx,
		event:  ev,
		ex:     ex,
		path:   node.Path(),
	}
	return c, node.Handler().handler, nil
}

// forComponent builds the context of a component activation. The chain state
// is the one of the context that rendered the component.
func (e *Engine) forComponent(ctx context.Context, ev *platform.Event, ex *exchange) (*Context, Handler, error) {
	b, err := e.binder.Resolve(ev.MessageID, ev.ComponentID)
	if err != nil {
		return nil, nil, err
	}
	c := &Context{
		engine:  e,
		ctx:     ctx,
		event:   ev,
		ex:      ex,
		chain:   slices.Clone(b.chain),
		message: &platform.MessageRef{ID: ev.MessageID, ChannelID: ev.ChannelID},
	}
	e.inflight.watch(ev.MessageID, ex)
	return c, b.handler, nil
}

// Ctx returns the dispatch's context.Context. It is cancelled when the
// message this dispatch works on is deleted or the engine stops.
func (c *Context) Ctx() context.Context { return c.ctx }

// Event returns the raw event that started the dispatch. It is nil for
// contexts created by Engine.Send.
func (c *Context) Event() *platform.Event { return c.event }

// User returns the invoking actor.
func (c *Context) User() platform.User {
	if c.event == nil {
		return platform.User{}
	}
	return c.event.User
}

// GuildID returns the guild the event came from, empty for direct messages.
func (c *Context) GuildID() string {
	if c.event == nil {
		return ""
	}
	return c.event.GuildID
}

// Path returns the command path for command contexts, nil for components
// and modal submissions.
func (c *Context) Path() []string { return slices.Clone(c.path) }

// ChainState returns the results of the handlers that ran before this one in
// the current chain, oldest first.
func (c *Context) ChainState() []Result { return slices.Clone(c.chain) }

// Message returns the message this context renders into, if any.
func (c *Context) Message() (platform.MessageRef, bool) {
	if c.message == nil {
		return platform.MessageRef{}, false
	}
	return *c.message, true
}

// SetResult records the value continuations will see in their chain state.
func (c *Context) SetResult(v any) { c.value = v }

// Result is what this context contributes to the chain state.
func (c *Context) Result() Result {
	r := Result{Path: slices.Clone(c.path), Value: c.value}
	if c.message != nil {
		r.Message = *c.message
	}
	return r
}

// Option returns the raw value of a command option.
func (c *Context) Option(name string) (any, bool) {
	if c.event == nil || c.event.Options == nil {
		return nil, false
	}
	v, ok := c.event.Options[name]
	return v, ok
}

// String returns a string option.
func (c *Context) String(name string) (string, bool) {
	v, ok := c.Option(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns an integer option. Platforms that decode numbers as float64
// are accepted.
func (c *Context) Int(name string) (int64, bool) {
	v, ok := c.Option(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Float returns a number option.
func (c *Context) Float(name string) (float64, bool) {
	v, ok := c.Option(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Bool returns a boolean option.
func (c *Context) Bool(name string) (bool, bool) {
	v, ok := c.Option(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Defer acknowledges the interaction so the handler can take its time.
// Component activations and modal submissions from a message are
// acknowledged as an update of that message.
func (c *Context) Defer(ephemeral bool) error {
	if c.event == nil || c.ex.ack != platform.AckNone {
		return nil
	}
	d, ok := c.engine.client.(platform.Deferrer)
	if !ok {
		return nil
	}
	update := c.event.UpdatesMessage() && c.message != nil && c.message.ID == c.event.MessageID
	if err := d.Defer(c.ctx, c.event, ephemeral, update); err != nil {
		return fmt.Errorf("defer: %w", err)
	}
	c.ex.ack = platform.AckDeferred
	return nil
}

// Send renders m. If the context already has a message (a clicked
// component's message, a follow-up chain, or an earlier Send) that message
// is edited and its old components stop working; otherwise a new message is
// created.
func (c *Context) Send(m Message) error {
	return c.render(m, false)
}

// SendNew always creates a new message.
func (c *Context) SendNew(m Message) error {
	return c.render(m, true)
}

// Reply sends plain text.
func (c *Context) Reply(content string) error {
	return c.Send(Message{Content: content})
}

// Replyf sends formatted text.
func (c *Context) Replyf(format string, args ...any) error {
	return c.Send(Message{Content: fmt.Sprintf(format, args...)})
}

// Embed sends e, split into pages when it exceeds the embed limits.
func (c *Context) Embed(e platform.Embed, components ...Component) error {
	pages, err := PaginateEmbed(e)
	if err != nil {
		return err
	}
	return c.Send(Message{Embeds: pages, Components: components})
}

func (c *Context) render(m Message, fresh bool) error {
	e := c.engine
	payload, bindings, err := e.prepare(c, m)
	if err != nil {
		return err
	}

	var ref platform.MessageRef
	if c.message != nil && !fresh {
		// clicks on this message wait for the edit, and see the old
		// buttons again if it fails
		err = e.binder.Swap(c.message.ID, bindings, func() error {
			var eerr error
			ref, eerr = e.client.EditMessage(c.ctx, platform.EditRequest{
				Event:   c.event,
				Message: *c.message,
				Ack:     c.ex.ack,
				Payload: payload,
			})
			return eerr
		})
		if err != nil {
			return fmt.Errorf("edit message %s: %w", c.message.ID, err)
		}
	} else {
		ref, err = e.client.SendMessage(c.ctx, platform.SendRequest{
			Event:     c.event,
			ChannelID: c.channelID(),
			Ack:       c.ex.ack,
			Ephemeral: m.Ephemeral,
			Payload:   payload,
		})
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		if err := e.binder.Replace(ref.ID, bindings); err != nil {
			return err
		}
	}

	if c.event != nil {
		c.ex.ack = platform.AckResponded
	}
	c.message = &ref
	e.inflight.watch(ref.ID, c.ex)
	return nil
}

func (c *Context) channelID() string {
	if c.channel != "" {
		return c.channel
	}
	if c.message != nil && c.message.ChannelID != "" {
		return c.message.ChannelID
	}
	if c.event != nil {
		return c.event.ChannelID
	}
	return ""
}
