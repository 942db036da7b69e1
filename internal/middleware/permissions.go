package middleware

import (
	"slices"

	"github.com/keshon/switchboard/pkg/dispatch"
)

// MsgNotAllowed is shown to users outside of an allow list.
const MsgNotAllowed = "You are not allowed to run this command."

// WithAllowedUsers lets only the given user IDs through. An empty list allows everyone.
func WithAllowedUsers(ids ...string) dispatch.Middleware {
	return func(next dispatch.Handler) dispatch.Handler {
		return dispatch.HandlerFunc(func(c *dispatch.Context) error {
			if len(ids) > 0 && !slices.Contains(ids, c.User().ID) {
				return replyEphemeral(c, MsgNotAllowed)
			}
			return next.Handle(c)
		})
	}
}
