package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/switchboard/pkg/platform"
	"github.com/keshon/switchboard/pkg/retrylimit"
)

// EmbedColor is used for embeds rendered without a color.
const EmbedColor = 0xb01e66

// commandAPI is the part of the session used to publish commands.
type commandAPI interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Options configures a Client.
type Options struct {
	// GuildIDs lists the guilds commands are published to. Empty publishes globally.
	GuildIDs []string
	// CachePath is the file remembering published command hashes. Empty disables the cache.
	CachePath string
}

// Client is a platform.Client backed by a discordgo session.
type Client struct {
	dg       *discordgo.Session
	commands commandAPI
	opts     Options
	cache    *commandCache
	appID    string
	limiter  *retrylimit.Limiter
	retry    retrylimit.Policy

	events chan *platform.Event
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// New creates the session and registers the event handlers. Call Open to connect.
func New(token string, opts Options) (*Client, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	cache, err := openCommandCache(context.Background(), opts.CachePath)
	if err != nil {
		return nil, err
	}

	c := newClient(dg, opts)
	c.cache = cache

	dg.AddHandler(c.onReady)
	dg.AddHandler(c.onInteractionCreate)
	dg.AddHandler(c.onMessageDelete)
	dg.AddHandler(c.onMessageDeleteBulk)
	return c, nil
}

func newClient(dg *discordgo.Session, opts Options) *Client {
	c := &Client{
		dg:     dg,
		opts:   opts,
		events:  make(chan *platform.Event, 64),
		done:    make(chan struct{}),
		limiter: retrylimit.NewLimiter(publishWorkers, 1, 2*publishWorkers),
		retry:   publishPolicy(),
	}
	if dg != nil {
		c.commands = dg
	}
	return c
}

// Open connects the gateway.
func (c *Client) Open() error {
	if err := c.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close ends the event stream, disconnects and flushes the command cache.
func (c *Client) Close() error {
	c.stop()
	var err error
	if c.dg != nil {
		err = c.dg.Close()
	}
	if cerr := c.cache.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ReceiveEvents returns the interaction stream. It is closed when ctx is done
// or the client is closed.
func (c *Client) ReceiveEvents(ctx context.Context) (<-chan *platform.Event, error) {
	go func() {
		select {
		case <-ctx.Done():
			c.stop()
		case <-c.done:
		}
	}()
	return c.events, nil
}

func (c *Client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

// emit hands ev to the consumer, giving up when the stream is stopped.
func (c *Client) emit(ev *platform.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[INFO] ✅ Discord bot %v is running in %d guild(s).", r.User.Username, len(r.Guilds))
}

func (c *Client) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ev := toEvent(i.Interaction)
	if ev == nil {
		log.Printf("[DEBUG] Unknown interaction type: %d", i.Type)
		return
	}
	c.emit(ev)
}

func (c *Client) onMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if m.Message == nil {
		return
	}
	c.emit(deleteEvent(m.ID, m.ChannelID, m.GuildID))
}

func (c *Client) onMessageDeleteBulk(s *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	for _, id := range m.Messages {
		c.emit(deleteEvent(id, m.ChannelID, m.GuildID))
	}
}

// applicationID returns the bot's application ID, fetching it if the state is empty.
func (c *Client) applicationID() (string, error) {
	if c.appID != "" {
		return c.appID, nil
	}
	if c.dg.State != nil && c.dg.State.User != nil && c.dg.State.User.ID != "" {
		return c.dg.State.User.ID, nil
	}
	u, err := c.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

var (
	_ platform.Client    = (*Client)(nil)
	_ platform.Deferrer  = (*Client)(nil)
	_ platform.Suggester = (*Client)(nil)
	_ platform.Modaler   = (*Client)(nil)
)
