package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/retrylimit"
	"github.com/keshon/switchboard/pkg/util"
)

// maxDepth is command > subcommand group > subcommand.
const maxDepth = 3

const publishWorkers = 4

// PublishCommandTree overwrites the application commands of every configured
// scope. Scopes whose definition hash is unchanged since the last publish
// are skipped.
func (c *Client) PublishCommandTree(ctx context.Context, defs []cmd.Definition) error {
	cmds, err := toApplicationCommands(defs)
	if err != nil {
		return err
	}
	appID, err := c.applicationID()
	if err != nil {
		return err
	}

	scopes := c.opts.GuildIDs
	if len(scopes) == 0 {
		scopes = []string{""}
	}
	return util.Parallel(ctx, scopes, publishWorkers, func(ctx context.Context, guildID string) error {
		return c.publishScope(ctx, appID, guildID, cmds)
	})
}

func (c *Client) publishScope(ctx context.Context, appID, guildID string, cmds []*discordgo.ApplicationCommand) error {
	scope := scopeName(guildID)
	sum := hashCommands(cmds)
	if c.cache.hash(scope) == sum {
		log.Printf("[INFO] [%s] Commands unchanged, skipping publish", scope)
		return nil
	}

	log.Printf("[INFO] [%s] Publishing %d command(s)...", scope, len(cmds))
	err := retrylimit.Do(ctx, c.limiter, c.retry, func(ctx context.Context) error {
		_, err := c.commands.ApplicationCommandBulkOverwrite(appID, guildID, cmds, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("publish commands to %s: %w", scope, err)
	}
	c.cache.store(scope, sum)
	log.Printf("[DONE] [%s] Commands published", scope)
	return nil
}

func publishPolicy() retrylimit.Policy {
	p := retrylimit.DefaultPolicy()
	p.Classify = classifyRESTError
	return p
}

// classifyRESTError retries rate limits and server errors. Other API errors
// mean the payload was rejected and will be rejected again.
func classifyRESTError(err error) retrylimit.Verdict {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return retrylimit.Retry
	}
	switch code := rest.Response.StatusCode; {
	case code == http.StatusTooManyRequests:
		return retrylimit.Throttle
	case code >= 500:
		return retrylimit.Retry
	default:
		return retrylimit.Fail
	}
}

func scopeName(guildID string) string {
	if guildID == "" {
		return "global"
	}
	return guildID
}

// toApplicationCommands converts the serialized command tree into slash
// command definitions, groups becoming subcommand (group) options.
func toApplicationCommands(defs []cmd.Definition) ([]*discordgo.ApplicationCommand, error) {
	out := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, d := range defs {
		if d.Depth() > maxDepth {
			return nil, fmt.Errorf("command %q nests deeper than %d levels", d.Name, maxDepth)
		}
		ac := &discordgo.ApplicationCommand{
			Name:        d.Name,
			Description: d.Description,
			Type:        discordgo.ChatApplicationCommand,
		}
		if d.IsGroup() {
			for _, child := range d.Children {
				ac.Options = append(ac.Options, subcommandOption(child))
			}
		} else {
			ac.Options = toOptions(d.Options)
		}
		out = append(out, ac)
	}
	return out, nil
}

func subcommandOption(d cmd.Definition) *discordgo.ApplicationCommandOption {
	o := &discordgo.ApplicationCommandOption{
		Name:        d.Name,
		Description: d.Description,
		Type:        discordgo.ApplicationCommandOptionSubCommand,
	}
	if d.IsGroup() {
		o.Type = discordgo.ApplicationCommandOptionSubCommandGroup
		for _, child := range d.Children {
			o.Options = append(o.Options, subcommandOption(child))
		}
		return o
	}
	o.Options = toOptions(d.Options)
	return o
}

func toOptions(opts []cmd.Option) []*discordgo.ApplicationCommandOption {
	var out []*discordgo.ApplicationCommandOption
	for _, opt := range opts {
		desc := opt.Description
		if desc == "" {
			desc = opt.Name
		}
		o := &discordgo.ApplicationCommandOption{
			Name:         opt.Name,
			Description:  desc,
			Type:         optionType(opt.Type),
			Required:     opt.Required,
			Autocomplete: opt.Autocomplete,
		}
		for _, ch := range opt.Choices {
			o.Choices = append(o.Choices, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
		}
		out = append(out, o)
	}
	return out
}

func optionType(t cmd.OptionType) discordgo.ApplicationCommandOptionType {
	switch t {
	case cmd.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case cmd.OptionNumber:
		return discordgo.ApplicationCommandOptionNumber
	case cmd.OptionBoolean:
		return discordgo.ApplicationCommandOptionBoolean
	case cmd.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	default:
		return discordgo.ApplicationCommandOptionString
	}
}
