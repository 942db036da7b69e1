// Package dispatch routes interaction events to handlers. An Engine owns a
// command tree, a component binder, and the chain coordinator; handlers talk
// to the platform only through the Context they are given, which lets the
// engine bind every rendered button automatically.
//
//	e, _ := dispatch.New(client, dispatch.Config{BindingTTL: 15 * time.Minute})
//	_ = e.RegisterGroup([]string{"base"}, "Base commands")
//	_ = e.Register([]string{"base", "hello"}, dispatch.HandlerFunc(hello))
//	_ = e.Run(ctx)
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/keshon/switchboard/pkg/binder"
	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/ident"
	"github.com/keshon/switchboard/pkg/jobmgr"
	"github.com/keshon/switchboard/pkg/platform"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxSuggestions is the most autocomplete choices passed to the platform.
const MaxSuggestions = 25

const reportTimeout = 5 * time.Second

// State is a step of the per-event state machine.
type State int

const (
	StateReceived State = iota
	StateResolving
	StateInvoking
	StateChaining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateResolving:
		return "resolving"
	case StateInvoking:
		return "invoking"
	case StateChaining:
		return "chaining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config tunes an Engine.
type Config struct {
	// BindingTTL is how long a rendered button stays clickable. Required.
	BindingTTL time.Duration
	// ReapInterval is how often Run sweeps expired bindings. Defaults to BindingTTL.
	ReapInterval time.Duration
	// MaxChainDepth bounds the number of continuations per dispatch. 0 means no bound.
	MaxChainDepth int
	// MaxConcurrent bounds concurrent dispatches in Run. 0 means no bound.
	MaxConcurrent int
	// IDs generates component ids. Defaults to random UUIDs.
	IDs ident.Generator
	// Middleware wraps every handler the engine invokes.
	Middleware []Middleware
	// Registerer receives the engine's metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// OnTransition observes state machine steps.
	OnTransition func(ev *platform.Event, s State)
	// Clock replaces time.Now for binding expiry.
	Clock func() time.Time
}

// Engine is created once at startup and shared by whatever drives the event loop.
type Engine struct {
	client   platform.Client
	cfg      Config
	tree     *cmd.Tree[*command]
	binder   *binder.Binder[binding]
	inflight *tracker
	metrics  *metrics
}

// New returns an engine talking to client.
func New(client platform.Client, cfg Config) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil platform client", ErrInvalidConfig)
	}
	if cfg.BindingTTL <= 0 {
		return nil, fmt.Errorf("%w: BindingTTL must be positive", ErrInvalidConfig)
	}
	if cfg.MaxChainDepth < 0 || cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.BindingTTL
	}
	if cfg.IDs == nil {
		cfg.IDs = ident.UUID{}
	}

	opts := []binder.Option[binding]{binder.WithGenerator[binding](cfg.IDs)}
	if cfg.Clock != nil {
		opts = append(opts, binder.WithClock[binding](cfg.Clock))
	}
	e := &Engine{
		client:   client,
		cfg:      cfg,
		tree:     cmd.NewTree[*command](),
		binder:   binder.New[binding](cfg.BindingTTL, opts...),
		inflight: newTracker(),
	}
	m, err := newMetrics(cfg.Registerer, func() float64 { return float64(e.binder.Len()) })
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	e.metrics = m
	return e, nil
}

// RegisterCommand registers a top-level command.
func (e *Engine) RegisterCommand(name string, h Handler, opts ...CommandOption) error {
	return e.Register([]string{name}, h, opts...)
}

// Register registers a command at path, e.g. {"base", "hello"}. Missing
// groups along the path are created.
func (e *Engine) Register(path []string, h Handler, opts ...CommandOption) error {
	if h == nil {
		return fmt.Errorf("register %q: nil handler", cmd.JoinPath(path))
	}
	var cc commandConfig
	for _, opt := range opts {
		opt(&cc)
	}
	_, err := e.tree.Register(path, cmd.Leaf[*command]{
		Description: cc.description,
		Options:     cc.options,
		Handler: &command{
			handler:      Apply(h, cc.middleware...),
			autocomplete: cc.autocomplete,
		},
	})
	return err
}

// RegisterGroup declares a command group, nested when path has several names.
func (e *Engine) RegisterGroup(path []string, description string) error {
	_, err := e.tree.RegisterGroup(path, description)
	return err
}

// RegisterComponent binds h to a fresh component id on an already rendered
// message and returns the id.
func (e *Engine) RegisterComponent(messageID string, h Handler) (string, error) {
	if h == nil {
		return "", fmt.Errorf("register component on %s: nil handler", messageID)
	}
	return e.binder.Bind(messageID, binding{handler: h})
}

// Definitions returns the serialized command tree.
func (e *Engine) Definitions() []cmd.Definition {
	return e.tree.Definitions()
}

// Publish freezes the command tree and hands it to the platform. It can
// succeed only once.
func (e *Engine) Publish(ctx context.Context) error {
	if e.tree.Frozen() {
		return fmt.Errorf("publish: %w", cmd.ErrTreeFrozen)
	}
	e.tree.Freeze()
	if err := e.client.PublishCommandTree(ctx, e.tree.Definitions()); err != nil {
		return fmt.Errorf("publish command tree: %w", err)
	}
	return nil
}

// Bindings returns the number of live component bindings.
func (e *Engine) Bindings() int { return e.binder.Len() }

// Send renders m into channelID outside of any interaction, e.g. from a
// scheduled job. Buttons on it are bound like any other.
func (e *Engine) Send(ctx context.Context, channelID string, m Message) (platform.MessageRef, error) {
	c := &Context{engine: e, ctx: ctx, ex: &exchange{}, channel: channelID}
	if err := c.render(m, true); err != nil {
		return platform.MessageRef{}, err
	}
	return *c.message, nil
}

// Run publishes the tree (unless already published), then dispatches events
// until ctx is done or the platform closes the stream. Every event runs in
// its own goroutine.
func (e *Engine) Run(ctx context.Context) error {
	if !e.tree.Frozen() {
		if err := e.Publish(ctx); err != nil {
			return err
		}
	}
	events, err := e.client.ReceiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("receive events: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	jobs := jobmgr.NewManager(func(s string) { log.Println("[DEBUG] job", s) })
	if err := jobs.StartAsync(runCtx, "binder-reaper", func(ctx context.Context) error {
		return e.binder.RunReaper(ctx, e.cfg.ReapInterval)
	}); err != nil {
		return err
	}
	defer jobs.StopAll()

	var (
		g     errgroup.Group
		slots *semaphore.Weighted
	)
	if e.cfg.MaxConcurrent > 0 {
		slots = semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	}

	result := error(nil)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				log.Println("[WARN] Platform event stream closed, abandoning in-flight chains")
				result = ErrEventStreamClosed
				break loop
			}
			// waiting for a slot must not hide shutdown
			if slots != nil {
				if err := slots.Acquire(ctx, 1); err != nil {
					break loop
				}
			}
			g.Go(func() error {
				if slots != nil {
					defer slots.Release(1)
				}
				_ = e.Dispatch(runCtx, ev)
				return nil
			})
		}
	}

	stop()
	_ = g.Wait()
	e.binder.Clear()
	return result
}

// Dispatch runs the full state machine for one event. The returned error is
// informational: it has already been reported to the user and logged.
func (e *Engine) Dispatch(ctx context.Context, ev *platform.Event) error {
	if ev == nil {
		return nil
	}
	started := time.Now()
	e.enter(ev, StateReceived)

	switch ev.Kind {
	case platform.EventMessageDelete:
		e.forget(ev.MessageID)
		return nil
	case platform.EventAutocomplete:
		return e.autocomplete(ctx, ev)
	case platform.EventCommand, platform.EventComponent, platform.EventModalSubmit:
	default:
		log.Printf("[DEBUG] Unknown interaction kind: %d", ev.Kind)
		return nil
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ex := &exchange{cancel: cancel}
	defer e.inflight.release(ex)

	e.enter(ev, StateResolving)
	var (
		c   *Context
		h   Handler
		err error
	)
	switch ev.Kind {
	case platform.EventCommand:
		c, h, err = e.forCommand(dctx, ev, ex)
	case platform.EventModalSubmit:
		c, h, err = e.forModal(dctx, ev, ex)
	default:
		c, h, err = e.forComponent(dctx, ev, ex)
	}
	if err != nil {
		e.enter(ev, StateFailed)
		outcome, msg := e.resolveFailure(ev, err)
		e.report(ctx, ev, ex, msg)
		e.metrics.observe(ev.Kind, outcome, 0, started)
		return err
	}

	links, outcome, err := e.invoke(c, h)
	e.metrics.observe(ev.Kind, outcome, links, started)
	return err
}

// invoke runs h and every continuation it chains, one after another.
func (e *Engine) invoke(c *Context, h Handler) (int, string, error) {
	ev := c.event
	links := 0
	for {
		e.enter(ev, StateInvoking)
		links++
		if err := e.call(c, h); err != nil {
			e.logHandlerError(c, err)
			e.report(c.ctx, ev, c.ex, userMessage(err))
			e.enter(ev, StateDone)
			return links, OutcomeHandlerError, err
		}

		link := c.link
		if link == nil {
			e.finish(c)
			e.enter(ev, StateDone)
			return links, OutcomeDone, nil
		}

		e.enter(ev, StateChaining)
		if err := c.ctx.Err(); err != nil {
			log.Printf("[WARN] Chain abandoned after %s: %v", describe(c), err)
			e.enter(ev, StateFailed)
			return links, OutcomeAbandoned, fmt.Errorf("%w: %v", ErrChainAbandoned, err)
		}
		c, h = c.next(), link.Target
	}
}

// call invokes h behind the engine middleware, turning panics into errors.
func (e *Engine) call(c *Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERR] Handler panic in %s: %v\n%s", describe(c), r, debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return Apply(h, e.cfg.Middleware...).Handle(c)
}

// finish acknowledges component activations and modal submissions from a
// message whose handler rendered nothing, so the platform does not show the
// interaction as failed.
func (e *Engine) finish(c *Context) {
	if c.event == nil || c.ex.ack != platform.AckNone {
		return
	}
	if !c.event.UpdatesMessage() {
		log.Printf("[WARN] %s finished without responding", describe(c))
		return
	}
	if d, ok := e.client.(platform.Deferrer); ok {
		if err := d.Defer(c.ctx, c.event, false, true); err != nil {
			log.Printf("[WARN] Failed to acknowledge %s: %v", describe(c), err)
			return
		}
		c.ex.ack = platform.AckDeferred
	}
}

func (e *Engine) resolveFailure(ev *platform.Event, err error) (string, string) {
	var (
		unknown *cmd.UnknownCommandError
		unbound *binder.UnboundComponentError
	)
	switch {
	case errors.As(err, &unknown):
		log.Printf("[WARN] Unknown command: /%s", cmd.JoinPath(unknown.Path))
		return OutcomeUnknown, MsgUnknownCommand
	case errors.As(err, &unbound):
		if ev.Kind == platform.EventModalSubmit {
			log.Printf("[WARN] Expired modal %s", unbound.ComponentID)
		} else {
			log.Printf("[WARN] Expired component %s on message %s", unbound.ComponentID, unbound.MessageID)
		}
		return OutcomeExpired, MsgExpired
	default:
		log.Printf("[ERR] Failed to resolve %s event %s: %v", ev.Kind, ev.ID, err)
		return OutcomeFailed, MsgInternal
	}
}

func (e *Engine) logHandlerError(c *Context, err error) {
	var ue *UserError
	switch {
	case errors.As(err, &ue):
		log.Printf("[INFO] %s failed for user %s: %v", describe(c), c.User().ID, err)
	case errors.Is(err, ErrAlreadyChained), errors.Is(err, ErrChainTooDeep):
		log.Printf("[ERR] Chaining bug in %s: %v", describe(c), err)
	default:
		log.Printf("[ERR] Error running %s: %v", describe(c), err)
	}
}

// report tells the invoking user about a failure with an ephemeral message.
// It is best effort and still runs when the dispatch was cancelled.
func (e *Engine) report(ctx context.Context, ev *platform.Event, ex *exchange, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	_, err := e.client.SendMessage(ctx, platform.SendRequest{
		Event:     ev,
		ChannelID: ev.ChannelID,
		Ack:       ex.ack,
		Ephemeral: true,
		Payload:   platform.Payload{Content: msg},
	})
	if err != nil {
		log.Printf("[WARN] Failed to report error to user: %v", err)
		return
	}
	ex.ack = platform.AckResponded
}

// forget drops everything tied to a deleted message.
func (e *Engine) forget(messageID string) {
	n := e.binder.Invalidate(messageID)
	abandoned := e.inflight.cancel(messageID)
	if n > 0 || abandoned > 0 {
		log.Printf("[DEBUG] Message %s deleted: %d bindings dropped, %d dispatches abandoned", messageID, n, abandoned)
	}
}

func (e *Engine) autocomplete(ctx context.Context, ev *platform.Event) error {
	started := time.Now()
	e.enter(ev, StateResolving)
	node, err := e.tree.Resolve(ev.Path)
	if err != nil {
		e.enter(ev, StateFailed)
		log.Printf("[WARN] Autocomplete for unknown command: /%s", cmd.JoinPath(ev.Path))
		e.metrics.observe(ev.Kind, OutcomeUnknown, 0, started)
		return err
	}

	var choices []cmd.Choice
	if fn := node.Handler().autocomplete; fn != nil {
		e.enter(ev, StateInvoking)
		c := &Context{engine: e, ctx: ctx, event: ev, ex: &exchange{}, path: node.Path()}
		choices, err = fn(c, ev.Focused)
		if err != nil {
			log.Printf("[ERR] Autocomplete for /%s failed: %v", cmd.JoinPath(ev.Path), err)
			choices = nil
		}
	}
	if len(choices) > MaxSuggestions {
		choices = choices[:MaxSuggestions]
	}
	if s, ok := e.client.(platform.Suggester); ok {
		if serr := s.Suggest(ctx, ev, choices); serr != nil {
			log.Printf("[WARN] Failed to send suggestions: %v", serr)
		}
	}
	e.enter(ev, StateDone)
	outcome := OutcomeDone
	if err != nil {
		outcome = OutcomeHandlerError
	}
	e.metrics.observe(ev.Kind, outcome, 1, started)
	return err
}

func (e *Engine) enter(ev *platform.Event, s State) {
	if e.cfg.OnTransition != nil {
		e.cfg.OnTransition(ev, s)
	}
}

// describe names what a context is running, for logs.
func describe(c *Context) string {
	if len(c.path) > 0 {
		return "/" + cmd.JoinPath(c.path)
	}
	if c.event != nil && c.event.Kind == platform.EventModalSubmit {
		return "modal " + c.event.ComponentID
	}
	if c.event != nil && c.event.ComponentID != "" {
		return "component " + c.event.ComponentID
	}
	return "handler"
}
