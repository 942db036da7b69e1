package dispatch

import "github.com/keshon/switchboard/pkg/cmd"

// Handler runs one command, component callback, or chained continuation.
type Handler interface {
	Handle(c *Context) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(c *Context) error

func (f HandlerFunc) Handle(c *Context) error { return f(c) }

// Stateful builds a handler whose state is created fresh for every
// invocation, so concurrent invocations never share mutable fields.
//
//	type rollState struct{ sides int; rolls []int }
//	h := dispatch.Stateful(func() *rollState { return &rollState{sides: 6} }, roll)
func Stateful[S any](newState func() S, fn func(c *Context, state S) error) Handler {
	return HandlerFunc(func(c *Context) error {
		return fn(c, newState())
	})
}

// AutocompleteFunc suggests values for the focused option of a command.
type AutocompleteFunc func(c *Context, focused string) ([]cmd.Choice, error)

// Middleware wraps a handler (logging, permission checks, metrics).
type Middleware func(Handler) Handler

// Apply wraps h with mws; the first middleware is the outermost.
func Apply(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// command is what the engine stores on a leaf of the command tree.
type command struct {
	handler      Handler
	autocomplete AutocompleteFunc
}

// CommandOption configures a registered command.
type CommandOption func(*commandConfig)

type commandConfig struct {
	description  string
	options      []cmd.Option
	autocomplete AutocompleteFunc
	middleware   []Middleware
}

// WithDescription sets the description published with the command.
func WithDescription(s string) CommandOption {
	return func(c *commandConfig) { c.description = s }
}

// WithOptions declares the command's arguments.
func WithOptions(opts ...cmd.Option) CommandOption {
	return func(c *commandConfig) { c.options = append(c.options, opts...) }
}

// WithAutocomplete sets the suggestion source for options marked Autocomplete.
func WithAutocomplete(fn AutocompleteFunc) CommandOption {
	return func(c *commandConfig) { c.autocomplete = fn }
}

// WithMiddleware wraps only this command, inside the engine-wide middleware.
func WithMiddleware(mws ...Middleware) CommandOption {
	return func(c *commandConfig) { c.middleware = append(c.middleware, mws...) }
}
