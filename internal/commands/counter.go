package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/switchboard/pkg/dispatch"
	"github.com/keshon/switchboard/pkg/platform"
)

// counter is the state captured by the buttons of one counter message.
type counter struct {
	owner string
	value int
}

func registerCounter(e *dispatch.Engine) error {
	return e.RegisterCommand("counter", dispatch.HandlerFunc(func(c *dispatch.Context) error {
		return renderCounter(c, &counter{owner: c.User().ID})
	}), dispatch.WithDescription("A counter only you can click"), guildOnly)
}

// renderCounter draws the counter with fresh buttons bound to st. Every click
// re-renders, so buttons of older renders stop working.
func renderCounter(c *dispatch.Context, st *counter) error {
	step := func(delta int) dispatch.Handler {
		return dispatch.HandlerFunc(func(c *dispatch.Context) error {
			if c.User().ID != st.owner {
				return dispatch.Fail("This counter belongs to someone else.")
			}
			next := &counter{owner: st.owner, value: st.value + delta}
			return renderCounter(c, next)
		})
	}
	reset := dispatch.Button("Reset", step(-st.value))
	reset.Style = platform.ButtonDanger
	reset.Disabled = st.value == 0
	set := dispatch.Button("Set", dispatch.HandlerFunc(func(c *dispatch.Context) error {
		if c.User().ID != st.owner {
			return dispatch.Fail("This counter belongs to someone else.")
		}
		return c.Modal(dispatch.Modal{
			Title: "Set counter",
			Inputs: []platform.TextInput{{
				ID:        "value",
				Label:     "New value",
				Style:     platform.InputShort,
				Value:     strconv.Itoa(st.value),
				Required:  true,
				MaxLength: 9,
			}},
			Handler: dispatch.HandlerFunc(func(c *dispatch.Context) error {
				raw, _ := c.Field("value")
				n, err := strconv.Atoi(strings.TrimSpace(raw))
				if err != nil {
					return dispatch.Fail("%q is not a whole number.", raw)
				}
				return renderCounter(c, &counter{owner: st.owner, value: n})
			}),
		})
	}))
	set.Style = platform.ButtonSecondary

	return c.Send(dispatch.Message{
		Content: fmt.Sprintf("🔢 Count: **%d**", st.value),
		Components: []dispatch.Component{
			dispatch.Button("+1", step(1)),
			dispatch.Button("-1", step(-1)),
			reset,
			set,
		},
	})
}
