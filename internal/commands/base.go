package commands

import (
	"fmt"

	"github.com/keshon/switchboard/pkg/dispatch"
)

func registerBase(e *dispatch.Engine) error {
	if err := e.RegisterGroup([]string{"base"}, "Greetings"); err != nil {
		return err
	}
	if err := e.Register([]string{"base", "world"}, dispatch.HandlerFunc(world),
		dispatch.WithDescription("Greet the world")); err != nil {
		return err
	}
	if err := e.Register([]string{"base", "hello"}, dispatch.HandlerFunc(hello),
		dispatch.WithDescription("Say hello, then greet the world")); err != nil {
		return err
	}
	return e.Register([]string{"base", "bye"}, dispatch.HandlerFunc(bye),
		dispatch.WithDescription("Say goodbye"))
}

func hello(c *dispatch.Context) error {
	if err := c.Replyf("👋 Hello, %s!", c.User().Name); err != nil {
		return err
	}
	c.SetResult(c.User().Name)
	return c.ChainCommand([]string{"base", "world"}, true)
}

// world greets everyone. Run after hello it edits hello's message.
func world(c *dispatch.Context) error {
	msg := "🌍 Hello, world!"
	if prev := c.ChainState(); len(prev) > 0 {
		if name, ok := prev[len(prev)-1].Value.(string); ok {
			msg = fmt.Sprintf("👋 Hello, %s! 🌍 And hello, world!", name)
		}
	}
	return c.Send(dispatch.Message{
		Content:    msg,
		Components: []dispatch.Component{dispatch.Button("Wave back", dispatch.HandlerFunc(waveBack))},
	})
}

func waveBack(c *dispatch.Context) error {
	return c.Replyf("🙌 %s waved back!", c.User().Name)
}

func bye(c *dispatch.Context) error {
	return c.Replyf("👋 Bye, %s!", c.User().Name)
}
