package commands

import (
	"fmt"
	"strings"

	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/dispatch"
	"github.com/keshon/switchboard/pkg/platform"
)

func registerHelp(e *dispatch.Engine) error {
	return e.RegisterCommand("help", dispatch.HandlerFunc(func(c *dispatch.Context) error {
		return c.Embed(platform.Embed{
			Title:       "📖 Available Commands",
			Description: buildHelpMessage(e.Definitions()),
		})
	}), dispatch.WithDescription("Show a list of available commands."))
}

// buildHelpMessage lists every leaf command with its full path.
func buildHelpMessage(defs []cmd.Definition) string {
	var sb strings.Builder
	var walk func(prefix string, defs []cmd.Definition)
	walk = func(prefix string, defs []cmd.Definition) {
		for _, d := range defs {
			path := strings.TrimSpace(prefix + " " + d.Name)
			if d.IsGroup() {
				sb.WriteString(fmt.Sprintf("**%s**\n", path))
				walk(path, d.Children)
				continue
			}
			sb.WriteString(fmt.Sprintf("`/%s` - %s\n", path, d.Description))
		}
	}
	walk("", defs)
	return sb.String()
}
