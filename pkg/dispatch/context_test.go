package dispatch

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/keshon/switchboard/pkg/platform"
	"github.com/keshon/switchboard/pkg/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionAccessors(t *testing.T) {
	c := &Context{event: &platform.Event{Options: map[string]any{
		"name":  "bob",
		"count": float64(3),
		"big":   int64(7),
		"ratio": 0.5,
		"loud":  true,
	}}}

	s, ok := c.String("name")
	assert.True(t, ok)
	assert.Equal(t, "bob", s)

	n, ok := c.Int("count")
	assert.True(t, ok)
	assert.EqualValues(t, 3, n)

	n, ok = c.Int("big")
	assert.True(t, ok)
	assert.EqualValues(t, 7, n)

	f, ok := c.Float("ratio")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	b, ok := c.Bool("loud")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = c.String("count")
	assert.False(t, ok)
	_, ok = c.Int("missing")
	assert.False(t, ok)

	empty := &Context{}
	_, ok = empty.Option("name")
	assert.False(t, ok)
	assert.Equal(t, platform.User{}, empty.User())
	assert.Empty(t, empty.GuildID())
}

func TestDeferThenSend(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("slow", HandlerFunc(func(c *Context) error {
		require.NoError(t, c.Defer(true))
		// a second defer is a no-op
		require.NoError(t, c.Defer(true))
		return c.Reply("done")
	})))

	ev := commandEvent("slow")
	require.NoError(t, e.Dispatch(context.Background(), ev))

	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 2)
	assert.Equal(t, memory.OpDefer, calls[0].Op)
	assert.True(t, calls[0].Ephemeral)
	assert.False(t, calls[0].Update)
	assert.Equal(t, memory.OpSend, calls[1].Op)
	assert.Equal(t, platform.AckDeferred, calls[1].Ack)
}

func TestComponentDeferIsUpdate(t *testing.T) {
	e, client := newTestEngine(t)
	ref, err := e.Send(context.Background(), "ch1", Message{Components: []Component{
		Button("wait", HandlerFunc(func(c *Context) error {
			if err := c.Defer(false); err != nil {
				return err
			}
			return c.Reply("updated")
		})),
	}})
	require.NoError(t, err)

	ev := clickEvent(ref.ID, "c1")
	require.NoError(t, e.Dispatch(context.Background(), ev))
	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Update)
	assert.Equal(t, memory.OpEdit, calls[1].Op)
	assert.Equal(t, ref.ID, calls[1].Message.ID)
}

func TestSendNewKeepsOldMessageBound(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("two", HandlerFunc(func(c *Context) error {
		if err := c.Send(Message{Content: "one", Components: []Component{Button("a", HandlerFunc(noop))}}); err != nil {
			return err
		}
		if err := c.SendNew(Message{Content: "two", Components: []Component{Button("b", HandlerFunc(noop))}}); err != nil {
			return err
		}
		ref, _ := c.Message()
		assert.Equal(t, "m2", ref.ID)
		return nil
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("two")))
	assert.Equal(t, 2, e.Bindings())
	_, ok := client.Message("m1")
	assert.True(t, ok)
	_, ok = client.Message("m2")
	assert.True(t, ok)
}

func TestEphemeralSend(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("secret", HandlerFunc(func(c *Context) error {
		return c.Send(Message{Content: "shh", Ephemeral: true})
	})))

	ev := commandEvent("secret")
	require.NoError(t, e.Dispatch(context.Background(), ev))
	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Ephemeral)
	assert.True(t, calls[0].Message.Ephemeral)
}

func TestEmbedIsPaginated(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("long", HandlerFunc(func(c *Context) error {
		return c.Embed(platform.Embed{Title: "Log", Description: strings.Repeat("word ", 1000)})
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("long")))
	payload, ok := client.Message("m1")
	require.True(t, ok)
	assert.Len(t, payload.Embeds, 3)
}

func TestInvalidComponents(t *testing.T) {
	e, client := newTestEngine(t)

	_, err := e.Send(context.Background(), "ch1", Message{Components: []Component{{Label: "dead"}}})
	assert.Error(t, err)

	many := make([]Component, MaxComponents+1)
	for i := range many {
		many[i] = Button("b", HandlerFunc(noop))
	}
	_, err = e.Send(context.Background(), "ch1", Message{Components: many})
	assert.Error(t, err)

	assert.Empty(t, client.Calls())
	assert.Zero(t, e.Bindings())
}

func TestLinkButtonsAreNotBound(t *testing.T) {
	e, client := newTestEngine(t)
	ref, err := e.Send(context.Background(), "ch1", Message{Components: []Component{
		LinkButton("docs", "https://example.com"),
		Button("ok", HandlerFunc(noop)),
	}})
	require.NoError(t, err)

	payload, _ := client.Message(ref.ID)
	require.Len(t, payload.Components, 2)
	assert.Empty(t, payload.Components[0].ID)
	assert.Equal(t, platform.ButtonLink, payload.Components[0].Style)
	assert.Equal(t, "c1", payload.Components[1].ID)
	assert.Equal(t, 1, e.Bindings())
}

func TestSendFailureIsReturned(t *testing.T) {
	e, client := newTestEngine(t)
	client.FailSend = assert.AnError
	_, err := e.Send(context.Background(), "ch1", Message{Content: "x"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFailedEditKeepsVisibleButtonsBound(t *testing.T) {
	e, client := newTestEngine(t)
	var clicks atomic.Int32
	var again Handler
	again = HandlerFunc(func(c *Context) error {
		clicks.Add(1)
		return c.Send(Message{Content: "again", Components: []Component{Button("more", again)}})
	})
	require.NoError(t, e.RegisterCommand("menu", HandlerFunc(func(c *Context) error {
		return c.Send(Message{Content: "menu", Components: []Component{Button("more", again)}})
	})))
	require.NoError(t, e.Dispatch(context.Background(), commandEvent("menu")))
	require.Equal(t, 1, e.Bindings())

	client.FailSend = assert.AnError
	assert.Error(t, e.Dispatch(context.Background(), clickEvent("m1", "c1")))
	client.FailSend = nil

	payload, ok := client.Message("m1")
	require.True(t, ok)
	require.Len(t, payload.Components, 1)
	assert.Equal(t, "c1", payload.Components[0].ID)
	assert.Equal(t, 1, e.Bindings(), "the never shown c2 must not stay bound")

	require.NoError(t, e.Dispatch(context.Background(), clickEvent("m1", "c1")))
	assert.EqualValues(t, 2, clicks.Load())
	payload, _ = client.Message("m1")
	assert.Equal(t, "again", payload.Content)
	assert.Equal(t, 1, e.Bindings())
}
