package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/switchboard/pkg/platform"
)

// toEvent converts an interaction into a platform event. It returns nil for
// interactions the engine does not route (context menus, pings).
func toEvent(i *discordgo.Interaction) *platform.Event {
	ev := &platform.Event{
		ID:        i.ID,
		User:      interactionUser(i),
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Raw:       i,
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		data := i.ApplicationCommandData()
		if data.CommandType != 0 && data.CommandType != discordgo.ChatApplicationCommand {
			return nil
		}
		ev.Kind = platform.EventCommand
		if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
			ev.Kind = platform.EventAutocomplete
		}
		ev.Path, ev.Options, ev.Focused = walkOptions(data.Name, data.Options)

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.Kind = platform.EventComponent
		ev.ComponentID = data.CustomID
		ev.Values = data.Values
		if i.Message != nil {
			ev.MessageID = i.Message.ID
		}

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = platform.EventModalSubmit
		ev.ComponentID = data.CustomID
		ev.Fields = modalFields(data.Components)
		if i.Message != nil {
			ev.MessageID = i.Message.ID
		}

	default:
		return nil
	}
	return ev
}

// modalFields collects the text input values of a modal submission.
func modalFields(rows []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, row := range rows {
		var children []discordgo.MessageComponent
		switch r := row.(type) {
		case *discordgo.ActionsRow:
			children = r.Components
		case discordgo.ActionsRow:
			children = r.Components
		}
		for _, child := range children {
			switch in := child.(type) {
			case *discordgo.TextInput:
				fields[in.CustomID] = in.Value
			case discordgo.TextInput:
				fields[in.CustomID] = in.Value
			}
		}
	}
	return fields
}

// walkOptions descends through subcommand groups and subcommands, collecting
// the command path and the values of the leaf's options.
func walkOptions(name string, opts []*discordgo.ApplicationCommandInteractionDataOption) ([]string, map[string]any, string) {
	path := []string{name}
	for len(opts) == 1 && isSubcommand(opts[0].Type) {
		path = append(path, opts[0].Name)
		opts = opts[0].Options
	}

	values := make(map[string]any, len(opts))
	focused := ""
	for _, o := range opts {
		values[o.Name] = optionValue(o)
		if o.Focused {
			focused = o.Name
		}
	}
	return path, values, focused
}

func isSubcommand(t discordgo.ApplicationCommandOptionType) bool {
	return t == discordgo.ApplicationCommandOptionSubCommand || t == discordgo.ApplicationCommandOptionSubCommandGroup
}

// optionValue normalizes JSON-decoded option values: integers become int64,
// users their ID. Values being typed during autocomplete may still be strings.
func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) any {
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		if f, ok := o.Value.(float64); ok {
			return int64(f)
		}
	case discordgo.ApplicationCommandOptionUser:
		if s, ok := o.Value.(string); ok {
			return s
		}
	}
	return o.Value
}

func interactionUser(i *discordgo.Interaction) platform.User {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return platform.User{ID: i.Member.User.ID, Name: i.Member.User.Username}
	case i.User != nil:
		return platform.User{ID: i.User.ID, Name: i.User.Username}
	default:
		return platform.User{ID: "unknown", Name: "Unknown"}
	}
}

func deleteEvent(messageID, channelID, guildID string) *platform.Event {
	return &platform.Event{
		Kind:      platform.EventMessageDelete,
		MessageID: messageID,
		ChannelID: channelID,
		GuildID:   guildID,
	}
}

// interaction returns the discordgo interaction an event was built from.
func interaction(ev *platform.Event) (*discordgo.Interaction, bool) {
	if ev == nil {
		return nil, false
	}
	i, ok := ev.Raw.(*discordgo.Interaction)
	return i, ok && i != nil
}
