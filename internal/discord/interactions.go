package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/platform"
)

// buttonsPerRow is the most buttons an action row holds.
const buttonsPerRow = 5

var errNoInteraction = errors.New("event does not carry a discord interaction")

// SendMessage answers the interaction when there is one (initial response,
// deferred response or follow-up depending on req.Ack), otherwise posts to
// the channel.
func (c *Client) SendMessage(ctx context.Context, req platform.SendRequest) (platform.MessageRef, error) {
	content, embeds, components := render(req.Payload)
	opt := discordgo.WithContext(ctx)

	if req.Event == nil {
		m, err := c.dg.ChannelMessageSendComplex(req.ChannelID, &discordgo.MessageSend{
			Content:    content,
			Embeds:     embeds,
			Components: components,
		}, opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		return ref(m, false), nil
	}

	i, ok := interaction(req.Event)
	if !ok {
		return platform.MessageRef{}, errNoInteraction
	}
	var flags discordgo.MessageFlags
	if req.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	switch {
	case req.Ack == platform.AckNone:
		err := c.dg.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Embeds:     embeds,
				Components: components,
				Flags:      flags,
			},
		}, opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		m, err := c.dg.InteractionResponse(i, opt)
		if err != nil {
			return platform.MessageRef{}, fmt.Errorf("fetch interaction response: %w", err)
		}
		return ref(m, req.Ephemeral), nil

	case req.Ack == platform.AckDeferred && !req.Event.UpdatesMessage():
		// fill in the "thinking..." placeholder
		m, err := c.dg.InteractionResponseEdit(i, webhookEdit(content, embeds, components), opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		return ref(m, req.Ephemeral), nil

	default:
		m, err := c.dg.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
			Content:    content,
			Embeds:     embeds,
			Components: components,
			Flags:      flags,
		}, opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		return ref(m, req.Ephemeral), nil
	}
}

// EditMessage updates a message. The message a component or modal was
// opened from is updated through the interaction, which also acknowledges it.
func (c *Client) EditMessage(ctx context.Context, req platform.EditRequest) (platform.MessageRef, error) {
	content, embeds, components := render(req.Payload)
	opt := discordgo.WithContext(ctx)
	ev := req.Event
	i, hasInteraction := interaction(ev)

	switch {
	case hasInteraction && ev.UpdatesMessage() && ev.MessageID == req.Message.ID && req.Ack == platform.AckNone:
		err := c.dg.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Embeds:     embeds,
				Components: components,
			},
		}, opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		return req.Message, nil

	case hasInteraction && ev.UpdatesMessage() && ev.MessageID == req.Message.ID,
		hasInteraction && req.Message.Ephemeral:
		// ephemeral messages can only be edited through the interaction webhook
		if _, err := c.dg.InteractionResponseEdit(i, webhookEdit(content, embeds, components), opt); err != nil {
			return platform.MessageRef{}, err
		}
		return req.Message, nil

	default:
		_, err := c.dg.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         req.Message.ID,
			Channel:    req.Message.ChannelID,
			Content:    &content,
			Embeds:     &embeds,
			Components: &components,
		}, opt)
		if err != nil {
			return platform.MessageRef{}, err
		}
		return req.Message, nil
	}
}

// Defer acknowledges an interaction. update acknowledges a component
// activation or modal submission as a pending edit of its message.
func (c *Client) Defer(ctx context.Context, ev *platform.Event, ephemeral, update bool) error {
	i, ok := interaction(ev)
	if !ok {
		return errNoInteraction
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{},
	}
	if update {
		resp.Type = discordgo.InteractionResponseDeferredMessageUpdate
	}
	if ephemeral {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	return c.dg.InteractionRespond(i, resp, discordgo.WithContext(ctx))
}

// ShowModal answers an interaction with a form. Each input gets a row of
// its own.
func (c *Client) ShowModal(ctx context.Context, req platform.ModalRequest) error {
	i, ok := interaction(req.Event)
	if !ok {
		return errNoInteraction
	}
	return c.dg.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   req.ID,
			Title:      req.Title,
			Components: toInputRows(req.Inputs),
		},
	}, discordgo.WithContext(ctx))
}

// Suggest answers an autocomplete interaction.
func (c *Client) Suggest(ctx context.Context, ev *platform.Event, choices []cmd.Choice) error {
	i, ok := interaction(ev)
	if !ok {
		return errNoInteraction
	}
	return c.dg.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: toChoices(choices)},
	}, discordgo.WithContext(ctx))
}

func ref(m *discordgo.Message, ephemeral bool) platform.MessageRef {
	if m == nil {
		return platform.MessageRef{Ephemeral: ephemeral}
	}
	return platform.MessageRef{ID: m.ID, ChannelID: m.ChannelID, Ephemeral: ephemeral}
}

func webhookEdit(content string, embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

// render converts a payload into discordgo values. Components are laid out
// in rows of five; empty slices clear the message's embeds and buttons on edit.
func render(p platform.Payload) (string, []*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	embeds := make([]*discordgo.MessageEmbed, 0, len(p.Embeds))
	for _, e := range p.Embeds {
		embeds = append(embeds, toEmbed(e))
	}
	return p.Content, embeds, toRows(p.Components)
}

func toEmbed(e platform.Embed) *discordgo.MessageEmbed {
	color := e.Color
	if color == 0 {
		color = EmbedColor
	}
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       color,
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return me
}

func toRows(cs []platform.Component) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, (len(cs)+buttonsPerRow-1)/buttonsPerRow)
	for start := 0; start < len(cs); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(cs))
		row := discordgo.ActionsRow{}
		for _, comp := range cs[start:end] {
			row.Components = append(row.Components, toButton(comp))
		}
		rows = append(rows, row)
	}
	return rows
}

func toButton(comp platform.Component) discordgo.Button {
	b := discordgo.Button{
		Label:    comp.Label,
		Style:    buttonStyle(comp.Style),
		Disabled: comp.Disabled,
	}
	if b.Style == discordgo.LinkButton {
		b.URL = comp.URL
	} else {
		b.CustomID = comp.ID
	}
	return b
}

func buttonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	case platform.ButtonLink:
		return discordgo.LinkButton
	default:
		return discordgo.PrimaryButton
	}
}

func toInputRows(inputs []platform.TextInput) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		style := discordgo.TextInputShort
		if in.Style == platform.InputParagraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.ID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				Required:    in.Required,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	return rows
}

func toChoices(choices []cmd.Choice) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, ch := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
	}
	return out
}
