// Package platform describes what the dispatch core needs from a chat
// platform: a stream of interaction events, message send/edit, and a one-time
// publish of the command tree. internal/discord implements it on discordgo,
// platform/memory implements it in process.
package platform

import (
	"context"

	"github.com/keshon/switchboard/pkg/cmd"
)

// EventKind classifies an incoming event.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventComponent
	EventAutocomplete
	EventMessageDelete
	EventModalSubmit
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventComponent:
		return "component"
	case EventAutocomplete:
		return "autocomplete"
	case EventMessageDelete:
		return "message_delete"
	case EventModalSubmit:
		return "modal_submit"
	default:
		return "unknown"
	}
}

// User identifies the invoking actor.
type User struct {
	ID   string
	Name string
}

// Event is a platform-neutral interaction event.
type Event struct {
	ID        string
	Kind      EventKind
	User      User
	GuildID   string
	ChannelID string

	// Command and autocomplete events.
	Path    []string
	Options map[string]any
	Focused string

	// Component events carry the clicked message; delete events the deleted one.
	// Modal submissions carry the modal id as ComponentID, and the message of
	// the component that opened the modal when there is one.
	MessageID   string
	ComponentID string
	Values      []string

	// Fields holds a modal submission's text inputs by input id.
	Fields map[string]string

	// Raw is the adapter's own event value, opaque to the core.
	Raw any
}

// UpdatesMessage reports whether responding to the event can update
// MessageID in place instead of creating a message.
func (e *Event) UpdatesMessage() bool {
	if e == nil || e.MessageID == "" {
		return false
	}
	return e.Kind == EventComponent || e.Kind == EventModalSubmit
}

// Ack is how far an interaction has been acknowledged.
type Ack int

const (
	AckNone Ack = iota
	AckDeferred
	AckResponded
)

// MessageRef identifies a rendered message.
type MessageRef struct {
	ID        string
	ChannelID string
	Ephemeral bool
}

// ButtonStyle mirrors the common button styles of chat platforms.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

// Component is a rendered interactive element. ID is empty for link buttons.
type Component struct {
	ID       string
	Label    string
	Style    ButtonStyle
	URL      string
	Disabled bool
}

// EmbedField is one name/value pair of an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

// Payload is the full content of a message.
type Payload struct {
	Content    string
	Embeds     []Embed
	Components []Component
}

// SendRequest asks for a new message. Event is nil for messages that do not
// answer an interaction.
type SendRequest struct {
	Event     *Event
	ChannelID string
	Ack       Ack
	Ephemeral bool
	Payload   Payload
}

// EditRequest replaces the content of an existing message.
type EditRequest struct {
	Event   *Event
	Message MessageRef
	Ack     Ack
	Payload Payload
}

// Client is the platform collaborator of the dispatch engine.
type Client interface {
	// ReceiveEvents returns the event stream. It is closed when the connection
	// is gone and cannot be restarted.
	ReceiveEvents(ctx context.Context) (<-chan *Event, error)
	SendMessage(ctx context.Context, req SendRequest) (MessageRef, error)
	EditMessage(ctx context.Context, req EditRequest) (MessageRef, error)
	// PublishCommandTree is called once, before events are consumed.
	PublishCommandTree(ctx context.Context, defs []cmd.Definition) error
}

// Deferrer is implemented by platforms that support acknowledging an
// interaction before the response is ready. update acknowledges a component
// activation without creating a new message.
type Deferrer interface {
	Defer(ctx context.Context, ev *Event, ephemeral, update bool) error
}

// TextInputStyle is the size of a modal text input.
type TextInputStyle int

const (
	InputShort TextInputStyle = iota + 1
	InputParagraph
)

// TextInput is one field of a modal.
type TextInput struct {
	ID          string
	Label       string
	Style       TextInputStyle
	Placeholder string
	Value       string
	Required    bool
	MinLength   int
	MaxLength   int
}

// ModalRequest asks the platform to open a form in answer to Event.
type ModalRequest struct {
	Event  *Event
	ID     string
	Title  string
	Inputs []TextInput
}

// Modaler is implemented by platforms that can answer an interaction with a
// modal form. The submission comes back as an EventModalSubmit.
type Modaler interface {
	ShowModal(ctx context.Context, req ModalRequest) error
}

// Suggester is implemented by platforms that support autocomplete.
type Suggester interface {
	Suggest(ctx context.Context, ev *Event, choices []cmd.Choice) error
}
