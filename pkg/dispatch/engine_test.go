package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keshon/switchboard/pkg/binder"
	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/ident"
	"github.com/keshon/switchboard/pkg/platform"
	"github.com/keshon/switchboard/pkg/platform/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, mutate ...func(*Config)) (*Engine, *memory.Client) {
	t.Helper()
	client := memory.New(16)
	cfg := Config{
		BindingTTL:    time.Minute,
		MaxChainDepth: 16,
		IDs:           ident.NewSequence("c"),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := New(client, cfg)
	require.NoError(t, err)
	return e, client
}

var eventSeq atomic.Int64

func commandEvent(path ...string) *platform.Event {
	return &platform.Event{
		ID:        fmt.Sprintf("ev%d", eventSeq.Add(1)),
		Kind:      platform.EventCommand,
		User:      platform.User{ID: "u1", Name: "alice"},
		GuildID:   "g1",
		ChannelID: "ch1",
		Path:      path,
	}
}

func clickEvent(messageID, componentID string) *platform.Event {
	return &platform.Event{
		ID:          fmt.Sprintf("ev%d", eventSeq.Add(1)),
		Kind:        platform.EventComponent,
		User:        platform.User{ID: "u1", Name: "alice"},
		GuildID:     "g1",
		ChannelID:   "ch1",
		MessageID:   messageID,
		ComponentID: componentID,
	}
}

func noop(*Context) error { return nil }

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(memory.New(1), Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, Config{BindingTTL: time.Minute})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(memory.New(1), Config{BindingTTL: time.Minute, MaxChainDepth: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGroupResolution(t *testing.T) {
	e, client := newTestEngine(t)
	var calls atomic.Int32
	require.NoError(t, e.RegisterGroup([]string{"base"}, "Base commands"))
	require.NoError(t, e.Register([]string{"base", "hello"}, HandlerFunc(func(c *Context) error {
		calls.Add(1)
		assert.Equal(t, []string{"base", "hello"}, c.Path())
		assert.Empty(t, c.ChainState())
		return c.Reply("hi")
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("base", "hello")))
	assert.EqualValues(t, 1, calls.Load())

	ev := commandEvent("base", "bye")
	err := e.Dispatch(context.Background(), ev)
	var unknown *cmd.UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"base", "bye"}, unknown.Path)

	reported := client.CallsFor(ev.ID)
	require.Len(t, reported, 1)
	assert.Equal(t, memory.OpSend, reported[0].Op)
	assert.True(t, reported[0].Ephemeral)
	assert.Equal(t, MsgUnknownCommand, reported[0].Payload.Content)
}

func TestButtonActivatesOnceUntilReplaced(t *testing.T) {
	e, client := newTestEngine(t)
	var clicks atomic.Int32
	click := HandlerFunc(func(c *Context) error {
		clicks.Add(1)
		return c.Reply("clicked")
	})
	require.NoError(t, e.RegisterCommand("pick", HandlerFunc(func(c *Context) error {
		return c.Send(Message{Content: "pick one", Components: []Component{Button("Go", click)}})
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("pick")))
	payload, ok := client.Message("m1")
	require.True(t, ok)
	require.Len(t, payload.Components, 1)
	assert.Equal(t, "c1", payload.Components[0].ID)
	assert.Equal(t, 1, e.Bindings())

	require.NoError(t, e.Dispatch(context.Background(), clickEvent("m1", "c1")))
	assert.EqualValues(t, 1, clicks.Load())

	payload, _ = client.Message("m1")
	assert.Equal(t, "clicked", payload.Content)
	assert.Empty(t, payload.Components)

	again := clickEvent("m1", "c1")
	err := e.Dispatch(context.Background(), again)
	var unbound *binder.UnboundComponentError
	require.ErrorAs(t, err, &unbound)
	assert.EqualValues(t, 1, clicks.Load())

	reported := client.CallsFor(again.ID)
	require.Len(t, reported, 1)
	assert.Equal(t, MsgExpired, reported[0].Payload.Content)
	assert.True(t, reported[0].Ephemeral)
}

func TestChainReusesMessage(t *testing.T) {
	e, client := newTestEngine(t)
	var (
		mu    sync.Mutex
		order []string
		seen  platform.MessageRef
		state []Result
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	require.NoError(t, e.RegisterCommand("world", HandlerFunc(func(c *Context) error {
		record("world")
		seen, _ = c.Message()
		state = c.ChainState()
		return c.Reply("world")
	})))
	require.NoError(t, e.RegisterCommand("hello", HandlerFunc(func(c *Context) error {
		defer record("hello done")
		if err := c.Reply("hello"); err != nil {
			return err
		}
		c.SetResult("greeted")
		return c.ChainCommand([]string{"world"}, true)
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("hello")))

	assert.Equal(t, []string{"hello done", "world"}, order)
	assert.Equal(t, "m1", seen.ID)
	require.Len(t, state, 1)
	assert.Equal(t, []string{"hello"}, state[0].Path)
	assert.Equal(t, "m1", state[0].Message.ID)
	assert.Equal(t, "greeted", state[0].Value)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, memory.OpSend, calls[0].Op)
	assert.Equal(t, memory.OpEdit, calls[1].Op)
	assert.Equal(t, "m1", calls[1].Message.ID)
	assert.Equal(t, platform.AckResponded, calls[1].Ack)
}

func TestChainWithoutReuseSendsNewMessage(t *testing.T) {
	e, client := newTestEngine(t)
	var seen bool
	second := HandlerFunc(func(c *Context) error {
		_, seen = c.Message()
		return c.Reply("second")
	})
	require.NoError(t, e.RegisterCommand("first", HandlerFunc(func(c *Context) error {
		if err := c.Reply("first"); err != nil {
			return err
		}
		return c.Chain(second, false)
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("first")))
	assert.False(t, seen)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, memory.OpSend, calls[1].Op)
	assert.Equal(t, "m2", calls[1].Message.ID)
}

func TestChainTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	var ran []string
	var second error
	a := HandlerFunc(func(c *Context) error { ran = append(ran, "a"); return nil })
	b := HandlerFunc(func(c *Context) error { ran = append(ran, "b"); return nil })

	require.NoError(t, e.RegisterCommand("twice", HandlerFunc(func(c *Context) error {
		require.NoError(t, c.Chain(a, false))
		second = c.Chain(b, false)
		assert.True(t, c.Chained())
		return nil
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("twice")))
	assert.ErrorIs(t, second, ErrAlreadyChained)
	assert.Equal(t, []string{"a"}, ran)
}

func TestChainDepthLimit(t *testing.T) {
	e, client := newTestEngine(t, func(c *Config) { c.MaxChainDepth = 2 })
	var runs atomic.Int32
	var loop Handler
	loop = HandlerFunc(func(c *Context) error {
		runs.Add(1)
		return c.Chain(loop, true)
	})
	require.NoError(t, e.RegisterCommand("loop", loop))

	ev := commandEvent("loop")
	err := e.Dispatch(context.Background(), ev)
	assert.ErrorIs(t, err, ErrChainTooDeep)
	assert.EqualValues(t, 3, runs.Load())

	reported := client.CallsFor(ev.ID)
	require.Len(t, reported, 1)
	assert.Equal(t, MsgInternal, reported[0].Payload.Content)
}

func TestHandlerErrorsAreReported(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("user", HandlerFunc(func(*Context) error {
		return Fail("queue is empty (%d)", 0)
	})))
	require.NoError(t, e.RegisterCommand("blank", HandlerFunc(func(*Context) error {
		return &UserError{}
	})))
	require.NoError(t, e.RegisterCommand("internal", HandlerFunc(func(*Context) error {
		return errors.New("db down: password=hunter2")
	})))
	require.NoError(t, e.RegisterCommand("panic", HandlerFunc(func(*Context) error {
		panic("boom")
	})))

	tests := []struct {
		path string
		want string
	}{
		{"user", "queue is empty (0)"},
		{"blank", MsgFailed},
		{"internal", MsgInternal},
		{"panic", MsgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ev := commandEvent(tt.path)
			assert.Error(t, e.Dispatch(context.Background(), ev))
			calls := client.CallsFor(ev.ID)
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Payload.Content)
			assert.True(t, calls[0].Ephemeral)
		})
	}
}

func TestErrorAfterResponseUsesFollowup(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("half", HandlerFunc(func(c *Context) error {
		if err := c.Reply("working"); err != nil {
			return err
		}
		return Fail("gave up")
	})))

	ev := commandEvent("half")
	require.Error(t, e.Dispatch(context.Background(), ev))
	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 2)
	assert.Equal(t, platform.AckResponded, calls[1].Ack)
	assert.Equal(t, "gave up", calls[1].Payload.Content)
}

func TestSilentComponentIsAcknowledged(t *testing.T) {
	e, client := newTestEngine(t)
	ref, err := e.Send(context.Background(), "ch1", Message{
		Content:    "menu",
		Components: []Component{Button("Nothing", HandlerFunc(noop))},
	})
	require.NoError(t, err)
	assert.Equal(t, "ch1", ref.ChannelID)

	ev := clickEvent(ref.ID, "c1")
	require.NoError(t, e.Dispatch(context.Background(), ev))
	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 1)
	assert.Equal(t, memory.OpDefer, calls[0].Op)
	assert.True(t, calls[0].Update)

	// the button is still bound
	assert.Equal(t, 1, e.Bindings())
}

func TestDeleteAbandonsChain(t *testing.T) {
	e, _ := newTestEngine(t)
	rendered := make(chan struct{})
	var continued atomic.Bool

	next := HandlerFunc(func(*Context) error {
		continued.Store(true)
		return nil
	})
	require.NoError(t, e.RegisterCommand("slow", HandlerFunc(func(c *Context) error {
		if err := c.Send(Message{Content: "wait", Components: []Component{Button("x", HandlerFunc(noop))}}); err != nil {
			return err
		}
		close(rendered)
		<-c.Ctx().Done()
		return c.Chain(next, true)
	})))

	done := make(chan error, 1)
	go func() { done <- e.Dispatch(context.Background(), commandEvent("slow")) }()

	<-rendered
	require.NoError(t, e.Dispatch(context.Background(), &platform.Event{Kind: platform.EventMessageDelete, MessageID: "m1"}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrChainAbandoned)
	case <-time.After(time.Second):
		t.Fatal("chain did not observe the deleted message")
	}
	assert.False(t, continued.Load())
	assert.Zero(t, e.Bindings())
	assert.Zero(t, e.inflight.size())

	var unbound *binder.UnboundComponentError
	assert.ErrorAs(t, e.Dispatch(context.Background(), clickEvent("m1", "c1")), &unbound)
}

func TestActivationsOnDifferentMessagesDoNotBlock(t *testing.T) {
	e, _ := newTestEngine(t)
	release := make(chan struct{})
	entered := make(chan struct{})

	slowRef, err := e.Send(context.Background(), "ch1", Message{Components: []Component{
		Button("slow", HandlerFunc(func(*Context) error {
			close(entered)
			<-release
			return nil
		})),
	}})
	require.NoError(t, err)
	fastRef, err := e.Send(context.Background(), "ch1", Message{Components: []Component{
		Button("fast", HandlerFunc(noop)),
	}})
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() { slowDone <- e.Dispatch(context.Background(), clickEvent(slowRef.ID, "c1")) }()
	<-entered

	fastDone := make(chan error, 1)
	go func() { fastDone <- e.Dispatch(context.Background(), clickEvent(fastRef.ID, "c2")) }()

	select {
	case err := <-fastDone:
		assert.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("activation blocked behind another message's handler")
	}
	close(release)
	assert.NoError(t, <-slowDone)
}

func TestBindingsExpire(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	e, client := newTestEngine(t, func(c *Config) { c.Clock = clock })
	long := Button("long", HandlerFunc(noop))
	long.TTL = time.Hour
	ref, err := e.Send(context.Background(), "ch1", Message{Components: []Component{
		Button("short", HandlerFunc(noop)),
		long,
	}})
	require.NoError(t, err)

	advance(2 * time.Minute)

	ev := clickEvent(ref.ID, "c1")
	var unbound *binder.UnboundComponentError
	require.ErrorAs(t, e.Dispatch(context.Background(), ev), &unbound)
	assert.Equal(t, MsgExpired, client.CallsFor(ev.ID)[0].Payload.Content)

	assert.NoError(t, e.Dispatch(context.Background(), clickEvent(ref.ID, "c2")))
}

func TestRegisterComponentOnRenderedMessage(t *testing.T) {
	e, _ := newTestEngine(t)
	ref, err := e.Send(context.Background(), "ch1", Message{Content: "plain"})
	require.NoError(t, err)

	var hit atomic.Bool
	id, err := e.RegisterComponent(ref.ID, HandlerFunc(func(*Context) error {
		hit.Store(true)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	require.NoError(t, e.Dispatch(context.Background(), clickEvent(ref.ID, id)))
	assert.True(t, hit.Load())

	_, err = e.RegisterComponent(ref.ID, nil)
	assert.Error(t, err)
}

func TestComponentContinuesChain(t *testing.T) {
	e, _ := newTestEngine(t)
	var state []Result
	confirm := HandlerFunc(func(c *Context) error {
		state = c.ChainState()
		return c.Reply("confirmed")
	})
	require.NoError(t, e.RegisterCommand("start", HandlerFunc(func(c *Context) error {
		if err := c.Reply("step one"); err != nil {
			return err
		}
		c.SetResult(1)
		return c.Chain(HandlerFunc(func(c *Context) error {
			return c.Send(Message{Content: "sure?", Components: []Component{Button("Yes", confirm)}})
		}), true)
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("start")))
	require.NoError(t, e.Dispatch(context.Background(), clickEvent("m1", "c1")))

	// the click sees what the rendering handler saw
	require.Len(t, state, 1)
	assert.Equal(t, []string{"start"}, state[0].Path)
	assert.Equal(t, 1, state[0].Value)
	assert.Equal(t, "m1", state[0].Message.ID)
}

func TestPublishOnce(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterGroup([]string{"base"}, "Base"))
	require.NoError(t, e.Register([]string{"base", "hello"}, HandlerFunc(noop), WithDescription("Say hello")))

	require.NoError(t, e.Publish(context.Background()))
	published := client.Published()
	require.Len(t, published, 1)
	require.Len(t, published[0], 1)
	assert.Equal(t, "base", published[0][0].Name)
	assert.Equal(t, "Say hello", published[0][0].Children[0].Description)

	assert.ErrorIs(t, e.Publish(context.Background()), cmd.ErrTreeFrozen)
	assert.ErrorIs(t, e.RegisterCommand("late", HandlerFunc(noop)), cmd.ErrTreeFrozen)
}

func TestRegisterErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("ping", HandlerFunc(noop)))

	var dup *cmd.DuplicateCommandError
	assert.ErrorAs(t, e.RegisterCommand("ping", HandlerFunc(noop)), &dup)

	var conflict *cmd.ConflictingNodeKindError
	assert.ErrorAs(t, e.Register([]string{"ping", "pong"}, HandlerFunc(noop)), &conflict)

	assert.Error(t, e.RegisterCommand("nil", nil))
}

func TestRunUntilStreamCloses(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("ping", HandlerFunc(func(c *Context) error {
		return c.Send(Message{Content: "pong", Components: []Component{Button("again", HandlerFunc(noop))}})
	})))

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	client.Push(commandEvent("ping"))
	assert.Eventually(t, func() bool { return len(client.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, client.Published(), 1)

	client.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrEventStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, e.Bindings())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.MaxConcurrent = 2 })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunStopsWhileAllSlotsBusy(t *testing.T) {
	e, client := newTestEngine(t, func(c *Config) { c.MaxConcurrent = 1 })
	started := make(chan struct{}, 2)
	require.NoError(t, e.RegisterCommand("hold", HandlerFunc(func(c *Context) error {
		started <- struct{}{}
		<-c.Ctx().Done()
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	client.Push(commandEvent("hold"))
	client.Push(commandEvent("hold"))
	<-started
	// the second event now waits for the only slot
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, started, 0, "the queued event never ran")
}

func TestAutocomplete(t *testing.T) {
	e, client := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("play", HandlerFunc(noop),
		WithOptions(cmd.Option{Name: "song", Type: cmd.OptionString, Autocomplete: true}),
		WithAutocomplete(func(c *Context, focused string) ([]cmd.Choice, error) {
			assert.Equal(t, "song", focused)
			out := make([]cmd.Choice, 30)
			for i := range out {
				out[i] = cmd.Choice{Name: fmt.Sprint("s", i), Value: i}
			}
			return out, nil
		}),
	))

	ev := commandEvent("play")
	ev.Kind = platform.EventAutocomplete
	ev.Focused = "song"
	require.NoError(t, e.Dispatch(context.Background(), ev))

	calls := client.CallsFor(ev.ID)
	require.Len(t, calls, 1)
	assert.Equal(t, memory.OpSuggest, calls[0].Op)
	assert.Len(t, calls[0].Choices, MaxSuggestions)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(c *Context) error {
				order = append(order, name)
				return next.Handle(c)
			})
		}
	}
	e, _ := newTestEngine(t, func(c *Config) { c.Middleware = []Middleware{trace("engine")} })
	require.NoError(t, e.RegisterCommand("x", HandlerFunc(func(*Context) error {
		order = append(order, "handler")
		return nil
	}), WithMiddleware(trace("outer"), trace("inner"))))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("x")))
	assert.Equal(t, []string{"engine", "outer", "inner", "handler"}, order)
}

func TestStatefulHandlersDoNotShareState(t *testing.T) {
	type counter struct{ n int }
	var seen []int
	h := Stateful(func() *counter { return &counter{} }, func(c *Context, s *counter) error {
		s.n++
		seen = append(seen, s.n)
		return nil
	})
	e, _ := newTestEngine(t)
	require.NoError(t, e.RegisterCommand("count", h))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("count")))
	require.NoError(t, e.Dispatch(context.Background(), commandEvent("count")))
	assert.Equal(t, []int{1, 1}, seen)
}

func TestStateTransitions(t *testing.T) {
	var states []State
	e, _ := newTestEngine(t, func(c *Config) {
		c.OnTransition = func(_ *platform.Event, s State) { states = append(states, s) }
	})
	require.NoError(t, e.RegisterCommand("b", HandlerFunc(noop)))
	require.NoError(t, e.RegisterCommand("a", HandlerFunc(func(c *Context) error {
		return c.ChainCommand([]string{"b"}, false)
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("a")))
	assert.Equal(t, []State{StateReceived, StateResolving, StateInvoking, StateChaining, StateInvoking, StateDone}, states)

	states = nil
	assert.Error(t, e.Dispatch(context.Background(), commandEvent("missing")))
	assert.Equal(t, []State{StateReceived, StateResolving, StateFailed}, states)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _ := newTestEngine(t, func(c *Config) { c.Registerer = reg })
	require.NoError(t, e.RegisterCommand("ok", HandlerFunc(func(c *Context) error {
		return c.Send(Message{Components: []Component{Button("b", HandlerFunc(noop))}})
	})))

	require.NoError(t, e.Dispatch(context.Background(), commandEvent("ok")))
	assert.Error(t, e.Dispatch(context.Background(), commandEvent("nope")))
	assert.Error(t, e.Dispatch(context.Background(), clickEvent("m9", "c9")))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.dispatches.WithLabelValues("command", OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.dispatches.WithLabelValues("command", OutcomeUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.dispatches.WithLabelValues("component", OutcomeExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.bindings))

	// a second engine on the same registry collides
	_, err := New(memory.New(1), Config{BindingTTL: time.Minute, Registerer: reg})
	assert.Error(t, err)
}
