package dispatch

import (
	"fmt"
	"time"

	"github.com/keshon/switchboard/pkg/binder"
	"github.com/keshon/switchboard/pkg/platform"
)

// MaxComponents is the most components one message can carry.
const MaxComponents = 25

// Component is a button as a handler describes it. Handler is called when
// the button is clicked; link buttons set URL instead.
type Component struct {
	Label    string
	Style    platform.ButtonStyle
	URL      string
	Disabled bool
	Handler  Handler
	// TTL overrides the engine's binding TTL for this button.
	TTL time.Duration
}

// Button is a shorthand for a primary button.
func Button(label string, h Handler) Component {
	return Component{Label: label, Style: platform.ButtonPrimary, Handler: h}
}

// LinkButton is a button that opens url.
func LinkButton(label, url string) Component {
	return Component{Label: label, Style: platform.ButtonLink, URL: url}
}

// Message is what a handler renders.
type Message struct {
	Content    string
	Embeds     []platform.Embed
	Components []Component
	Ephemeral  bool
}

// binding is the value stored per component id.
type binding struct {
	handler Handler
	// chain state of the context that rendered the component
	chain []Result
}

// prepare turns m into a payload, allocating fresh ids for every button
// with a handler.
func (e *Engine) prepare(c *Context, m Message) (platform.Payload, []binder.Binding[binding], error) {
	if len(m.Components) > MaxComponents {
		return platform.Payload{}, nil, fmt.Errorf("message has %d components, at most %d allowed", len(m.Components), MaxComponents)
	}
	p := platform.Payload{
		Content: m.Content,
		Embeds:  m.Embeds,
	}
	var bindings []binder.Binding[binding]
	for i, comp := range m.Components {
		rc := platform.Component{
			Label:    comp.Label,
			Style:    comp.Style,
			URL:      comp.URL,
			Disabled: comp.Disabled,
		}
		switch {
		case comp.URL != "":
			rc.Style = platform.ButtonLink
		case comp.Handler == nil:
			return platform.Payload{}, nil, fmt.Errorf("component %d (%q) has neither handler nor url", i, comp.Label)
		default:
			if rc.Style == 0 {
				rc.Style = platform.ButtonPrimary
			}
			rc.ID = e.binder.NewID()
			bindings = append(bindings, binder.Binding[binding]{
				ID:    rc.ID,
				Value: binding{handler: comp.Handler, chain: c.ChainState()},
				TTL:   comp.TTL,
			})
		}
		p.Components = append(p.Components, rc)
	}
	return p, bindings, nil
}
