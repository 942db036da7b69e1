package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/keshon/switchboard/pkg/platform"
	"github.com/keshon/switchboard/pkg/platform/memory"
)

const consoleChannel = "console"

var errUsage = errors.New("expected /command, complete, click, submit or delete")

// parser turns console lines into platform events.
type parser struct {
	user  string
	guild string
	seq   atomic.Int64
	// modals looks up a shown modal, so a submission can carry the message
	// it was opened from.
	modals func(id string) (platform.ModalRequest, bool)
}

func (p *parser) parse(line string) (*platform.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errUsage
	}
	switch {
	case strings.HasPrefix(fields[0], "/"):
		ev := p.event(platform.EventCommand)
		fields[0] = strings.TrimPrefix(fields[0], "/")
		ev.Path, ev.Options = splitArgs(fields)
		return ev, nil

	case fields[0] == "complete":
		// complete <option> /path... <partial>
		if len(fields) < 4 || !strings.HasPrefix(fields[2], "/") {
			return nil, errors.New("usage: complete <option> /command... <partial>")
		}
		ev := p.event(platform.EventAutocomplete)
		ev.Focused = fields[1]
		fields[2] = strings.TrimPrefix(fields[2], "/")
		last := len(fields) - 1
		ev.Path, ev.Options = splitArgs(fields[2:last])
		ev.Options[ev.Focused] = fields[last]
		return ev, nil

	case fields[0] == "click":
		if len(fields) < 3 {
			return nil, errors.New("usage: click <message> <component> [values...]")
		}
		ev := p.event(platform.EventComponent)
		ev.MessageID = fields[1]
		ev.ComponentID = fields[2]
		ev.Values = fields[3:]
		return ev, nil

	case fields[0] == "submit":
		if len(fields) < 2 {
			return nil, errors.New("usage: submit <modal> [input=value...]")
		}
		ev := p.event(platform.EventModalSubmit)
		ev.ComponentID = fields[1]
		ev.Fields = make(map[string]string, len(fields)-2)
		for _, f := range fields[2:] {
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				return nil, fmt.Errorf("input %q is not input=value", f)
			}
			ev.Fields[k] = v
		}
		if p.modals != nil {
			if m, ok := p.modals(ev.ComponentID); ok && m.Event != nil {
				ev.MessageID = m.Event.MessageID
			}
		}
		return ev, nil

	case fields[0] == "delete":
		if len(fields) != 2 {
			return nil, errors.New("usage: delete <message>")
		}
		ev := p.event(platform.EventMessageDelete)
		ev.MessageID = fields[1]
		return ev, nil
	}
	return nil, errUsage
}

func (p *parser) event(kind platform.EventKind) *platform.Event {
	return &platform.Event{
		ID:        "ev" + strconv.FormatInt(p.seq.Add(1), 10),
		Kind:      kind,
		User:      platform.User{ID: p.user, Name: p.user},
		GuildID:   p.guild,
		ChannelID: consoleChannel,
	}
}

// splitArgs separates path segments from key=value options.
func splitArgs(fields []string) ([]string, map[string]any) {
	var path []string
	opts := make(map[string]any)
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			path = append(path, f)
			continue
		}
		opts[k] = optionValue(v)
	}
	return path, opts
}

func optionValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func formatCall(c memory.Call) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<- %s", c.Op)
	if c.Message.ID != "" {
		fmt.Fprintf(&b, " [%s]", c.Message.ID)
	}
	if c.Ephemeral || c.Message.Ephemeral {
		b.WriteString(" (ephemeral)")
	}
	if c.Payload.Content != "" {
		fmt.Fprintf(&b, " %s", c.Payload.Content)
	}
	for _, e := range c.Payload.Embeds {
		fmt.Fprintf(&b, "\n   | %s", e.Title)
		for _, line := range strings.Split(e.Description, "\n") {
			fmt.Fprintf(&b, "\n   | %s", line)
		}
	}
	for _, comp := range c.Payload.Components {
		state := ""
		if comp.Disabled {
			state = " disabled"
		}
		if comp.ID == "" {
			fmt.Fprintf(&b, "\n   [%s -> %s]", comp.Label, comp.URL)
			continue
		}
		fmt.Fprintf(&b, "\n   [%s] %s%s", comp.ID, comp.Label, state)
	}
	if c.Op == memory.OpModal {
		fmt.Fprintf(&b, " [%s] %s", c.Modal.ID, c.Modal.Title)
		for _, in := range c.Modal.Inputs {
			req := ""
			if in.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "\n   {%s} %s%s", in.ID, in.Label, req)
		}
	}
	for _, ch := range c.Choices {
		fmt.Fprintf(&b, "\n   * %s", ch.Name)
	}
	return b.String()
}
