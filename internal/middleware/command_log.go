package middleware

import (
	"log"
	"time"

	"github.com/keshon/switchboard/pkg/dispatch"
)

// WithCommandLogger logs every handler run with its user, guild and duration.
func WithCommandLogger() dispatch.Middleware {
	return func(next dispatch.Handler) dispatch.Handler {
		return dispatch.HandlerFunc(func(c *dispatch.Context) error {
			started := time.Now()
			err := next.Handle(c)

			user := c.User()
			guild := c.GuildID()
			if guild == "" {
				guild = "DM"
			}
			if err != nil {
				log.Printf("[INFO] %s by %s (%s) in %s failed after %s: %v", name(c), user.Name, user.ID, guild, time.Since(started).Round(time.Millisecond), err)
			} else {
				log.Printf("[INFO] %s by %s (%s) in %s took %s", name(c), user.Name, user.ID, guild, time.Since(started).Round(time.Millisecond))
			}
			return err
		})
	}
}
