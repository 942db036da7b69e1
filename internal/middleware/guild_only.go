package middleware

import "github.com/keshon/switchboard/pkg/dispatch"

// MsgGuildOnly is shown when a guild-only command is used in direct messages.
const MsgGuildOnly = "This command can only be used in a server."

// WithGuildOnly rejects invocations outside of a guild.
func WithGuildOnly() dispatch.Middleware {
	return func(next dispatch.Handler) dispatch.Handler {
		return dispatch.HandlerFunc(func(c *dispatch.Context) error {
			if c.GuildID() == "" {
				return replyEphemeral(c, MsgGuildOnly)
			}
			return next.Handle(c)
		})
	}
}
