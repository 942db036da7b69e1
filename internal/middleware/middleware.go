// Package middleware holds dispatch middleware shared by the bot's commands.
package middleware

import (
	"strings"

	"github.com/keshon/switchboard/pkg/dispatch"
)

// name describes what a context runs, for logs and replies.
func name(c *dispatch.Context) string {
	if p := c.Path(); len(p) > 0 {
		return "/" + strings.Join(p, " ")
	}
	if ev := c.Event(); ev != nil && ev.ComponentID != "" {
		return "component " + ev.ComponentID
	}
	return "handler"
}

func replyEphemeral(c *dispatch.Context, msg string) error {
	return c.Send(dispatch.Message{Content: msg, Ephemeral: true})
}
