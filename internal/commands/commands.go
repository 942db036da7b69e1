// Package commands contains the bot's slash commands.
package commands

import (
	"fmt"

	"github.com/keshon/switchboard/internal/middleware"
	"github.com/keshon/switchboard/pkg/dispatch"
)

// Register adds every command to e. Errors here are programming errors and
// should stop startup.
func Register(e *dispatch.Engine) error {
	steps := []func(*dispatch.Engine) error{
		registerPing,
		registerHelp,
		registerBase,
		registerCounter,
		registerRoll,
	}
	for _, step := range steps {
		if err := step(e); err != nil {
			return fmt.Errorf("register commands: %w", err)
		}
	}
	return nil
}

func registerPing(e *dispatch.Engine) error {
	return e.RegisterCommand("ping", dispatch.HandlerFunc(func(c *dispatch.Context) error {
		return c.Reply("🏓 Pong!")
	}), dispatch.WithDescription("Pong!"))
}

// guildOnly is shared by commands that make no sense in direct messages.
var guildOnly = dispatch.WithMiddleware(middleware.WithGuildOnly())
