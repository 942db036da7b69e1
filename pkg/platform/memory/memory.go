// Package memory is an in-process platform.Client. It records every call,
// keeps the latest payload of each message, and lets the caller push events.
// Tests use it as the fake platform; cmd/cli uses it as a console.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/platform"
)

// ErrUnknownMessage is returned when editing a message that was never sent
// or was deleted.
var ErrUnknownMessage = errors.New("unknown message")

// Op names a recorded call.
type Op string

const (
	OpSend    Op = "send"
	OpEdit    Op = "edit"
	OpDefer   Op = "defer"
	OpSuggest Op = "suggest"
	OpModal   Op = "modal"
)

// Call is one recorded platform call.
type Call struct {
	Op        Op
	Event     *platform.Event
	Message   platform.MessageRef
	Ack       platform.Ack
	Ephemeral bool
	Update    bool
	Payload   platform.Payload
	Choices   []cmd.Choice
	Modal     platform.ModalRequest
}

// Client is safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	events    chan *platform.Event
	closed    bool
	nextID    int
	messages  map[string]platform.Payload
	modals    map[string]platform.ModalRequest
	calls     []Call
	published [][]cmd.Definition

	// OnCall, when set, observes every recorded call.
	OnCall func(Call)
	// FailSend, when set, makes SendMessage, EditMessage and ShowModal
	// return it.
	FailSend error
}

// New returns a client whose event channel buffers up to buffer events.
func New(buffer int) *Client {
	return &Client{
		events:   make(chan *platform.Event, buffer),
		messages: make(map[string]platform.Payload),
		modals:   make(map[string]platform.ModalRequest),
	}
}

// Push delivers an event to the engine.
func (c *Client) Push(ev *platform.Event) {
	c.events <- ev
}

// Close ends the event stream, like a dropped connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Delete forgets a message and pushes the matching delete event.
func (c *Client) Delete(messageID string) {
	c.mu.Lock()
	delete(c.messages, messageID)
	c.mu.Unlock()
	c.Push(&platform.Event{Kind: platform.EventMessageDelete, MessageID: messageID})
}

func (c *Client) ReceiveEvents(ctx context.Context) (<-chan *platform.Event, error) {
	return c.events, nil
}

func (c *Client) SendMessage(ctx context.Context, req platform.SendRequest) (platform.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return platform.MessageRef{}, err
	}
	c.mu.Lock()
	if c.FailSend != nil {
		err := c.FailSend
		c.mu.Unlock()
		return platform.MessageRef{}, err
	}
	c.nextID++
	ref := platform.MessageRef{
		ID:        fmt.Sprintf("m%d", c.nextID),
		ChannelID: req.ChannelID,
		Ephemeral: req.Ephemeral,
	}
	c.messages[ref.ID] = req.Payload
	call := Call{Op: OpSend, Event: req.Event, Message: ref, Ack: req.Ack, Ephemeral: req.Ephemeral, Payload: req.Payload}
	c.record(call)
	c.mu.Unlock()
	c.notify(call)
	return ref, nil
}

func (c *Client) EditMessage(ctx context.Context, req platform.EditRequest) (platform.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return platform.MessageRef{}, err
	}
	c.mu.Lock()
	if c.FailSend != nil {
		err := c.FailSend
		c.mu.Unlock()
		return platform.MessageRef{}, err
	}
	if _, ok := c.messages[req.Message.ID]; !ok {
		c.mu.Unlock()
		return platform.MessageRef{}, fmt.Errorf("edit %s: %w", req.Message.ID, ErrUnknownMessage)
	}
	c.messages[req.Message.ID] = req.Payload
	call := Call{Op: OpEdit, Event: req.Event, Message: req.Message, Ack: req.Ack, Payload: req.Payload}
	c.record(call)
	c.mu.Unlock()
	c.notify(call)
	return req.Message, nil
}

func (c *Client) Defer(ctx context.Context, ev *platform.Event, ephemeral, update bool) error {
	c.mu.Lock()
	call := Call{Op: OpDefer, Event: ev, Ephemeral: ephemeral, Update: update}
	c.record(call)
	c.mu.Unlock()
	c.notify(call)
	return nil
}

func (c *Client) Suggest(ctx context.Context, ev *platform.Event, choices []cmd.Choice) error {
	c.mu.Lock()
	call := Call{Op: OpSuggest, Event: ev, Choices: slices.Clone(choices)}
	c.record(call)
	c.mu.Unlock()
	c.notify(call)
	return nil
}

func (c *Client) ShowModal(ctx context.Context, req platform.ModalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.FailSend != nil {
		err := c.FailSend
		c.mu.Unlock()
		return err
	}
	req.Inputs = slices.Clone(req.Inputs)
	c.modals[req.ID] = req
	call := Call{Op: OpModal, Event: req.Event, Modal: req}
	c.record(call)
	c.mu.Unlock()
	c.notify(call)
	return nil
}

// Modal returns a modal that was shown, by id.
func (c *Client) Modal(id string) (platform.ModalRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modals[id]
	return m, ok
}

func (c *Client) PublishCommandTree(ctx context.Context, defs []cmd.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, defs)
	return nil
}

// Calls returns a copy of the recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// CallsFor returns the recorded calls answering event id.
func (c *Client) CallsFor(eventID string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if call.Event != nil && call.Event.ID == eventID {
			out = append(out, call)
		}
	}
	return out
}

// Message returns the latest payload of a message.
func (c *Client) Message(id string) (platform.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.messages[id]
	return p, ok
}

// Published returns every tree handed to PublishCommandTree.
func (c *Client) Published() [][]cmd.Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.published)
}

func (c *Client) record(call Call) {
	c.calls = append(c.calls, call)
}

func (c *Client) notify(call Call) {
	if c.OnCall != nil {
		c.OnCall(call)
	}
}

var (
	_ platform.Client    = (*Client)(nil)
	_ platform.Deferrer  = (*Client)(nil)
	_ platform.Suggester = (*Client)(nil)
	_ platform.Modaler   = (*Client)(nil)
)
