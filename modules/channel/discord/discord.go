package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/pkg/message"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext key the channel registers under.
const ServiceName = "channel.discord"

func init() {
	core.RegisterModule(&Discord{})
}

// Compile-time interface guards.
var (
	_ channel.Channel       = (*Discord)(nil)
	_ channel.TypingChannel = (*Discord)(nil)
	_ core.Configurable     = (*Discord)(nil)
	_ core.Provisioner      = (*Discord)(nil)
	_ core.Validator        = (*Discord)(nil)
	_ core.Starter          = (*Discord)(nil)
	_ core.Stopper          = (*Discord)(nil)
)

// Discord observes guild channels over the gateway and replies over REST.
type Discord struct {
	config    Config
	client    *Client
	gateway   *Gateway
	names     *guildCache
	allowList *channel.AllowList
	logger    *slog.Logger

	inbox func(message.Turn) error

	mu      sync.RWMutex
	self    *message.Speaker
	onReady []func(message.Speaker)

	cancel context.CancelFunc
	done   chan struct{}
}

// ModuleInfo implements core.Module.
func (d *Discord) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.discord",
		New: func() core.Module { return &Discord{} },
	}
}

// Configure implements core.Configurable.
func (d *Discord) Configure(node *yaml.Node) error {
	if err := node.Decode(&d.config); err != nil {
		return fmt.Errorf("discord: decode config: %w", err)
	}
	d.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (d *Discord) Provision(ctx *core.AppContext) error {
	d.config.defaults()
	d.logger = ctx.Logger
	d.client = NewClient(d.config.Token, d.config.APIURL)
	d.names = newGuildCache()
	d.allowList = channel.NewAllowList(d.config.AllowServers, d.config.AllowChannels)
	d.gateway = NewGateway(d.config, GatewayHandlers{
		Ready:   d.handleReady,
		Guild:   d.names.putGuild,
		Channel: d.names.putChannel,
		Message: d.handleMessage,
	}, d.logger)
	ctx.RegisterService(ServiceName, d)
	return nil
}

// Validate implements core.Validator.
func (d *Discord) Validate() error {
	return d.config.Validate()
}

// Start implements core.Starter. It checks the token over REST, then keeps
// a gateway session open in the background.
func (d *Discord) Start() error {
	if d.inbox == nil {
		return fmt.Errorf("discord: %w", channel.ErrNoInbox)
	}

	user, err := d.client.CurrentUser(context.Background())
	if err != nil {
		return fmt.Errorf("discord: fetch current user (check token): %w", err)
	}
	d.setSelf(user)
	d.logger.Info("discord bot authenticated", "id", user.ID.String(), "username", user.Username)

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		if err := d.gateway.Run(ctx); err != nil {
			d.logger.Error("discord: gateway stopped", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper.
func (d *Discord) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.logger.Info("discord channel stopping")
	d.cancel()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Secrets returns the values the log redactor must hide.
func (d *Discord) Secrets() []string {
	return []string{d.config.Token}
}

// OnReady registers fn to run after each gateway READY with the agent's
// own account. Register before Start.
func (d *Discord) OnReady(fn func(message.Speaker)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReady = append(d.onReady, fn)
}

// Connected reports whether the gateway session is up.
func (d *Discord) Connected() bool {
	return d.gateway != nil && d.gateway.Connected()
}

// Send implements channel.Channel. Text over the length limit goes out as
// several messages; only the first one replies to ReplyToID.
func (d *Discord) Send(ctx context.Context, msg message.Outbound) error {
	chunks := channel.SplitMessage(msg, channel.ChunkConfig{
		MaxLength:      d.config.MaxMessageLength,
		PreserveBlocks: true,
	})
	for _, c := range chunks {
		var replyTo Snowflake
		if c.ReplyToID != "" {
			id, err := strconv.ParseInt(c.ReplyToID, 10, 64)
			if err != nil {
				return fmt.Errorf("discord: invalid reply id %q: %w", c.ReplyToID, err)
			}
			replyTo = Snowflake(id)
		}
		if _, err := d.client.CreateMessage(ctx, Snowflake(c.ChannelID), c.Text, replyTo); err != nil {
			return err
		}
	}
	return nil
}

// SendTyping implements channel.TypingChannel.
func (d *Discord) SendTyping(ctx context.Context, channelID int64) error {
	return d.client.TriggerTyping(ctx, Snowflake(channelID))
}

// SetInbox implements channel.Channel.
func (d *Discord) SetInbox(fn func(turn message.Turn) error) {
	d.inbox = fn
}

// Self implements channel.Channel.
func (d *Discord) Self() (message.Speaker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.self == nil {
		return message.Speaker{}, false
	}
	return *d.self, true
}

func (d *Discord) setSelf(u User) message.Speaker {
	s := speaker(u, nil)
	s.Bot = true
	d.mu.Lock()
	d.self = &s
	d.mu.Unlock()
	return s
}

func (d *Discord) handleReady(u User) {
	s := d.setSelf(u)
	d.mu.RLock()
	hooks := append([]func(message.Speaker){}, d.onReady...)
	d.mu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}
}

func (d *Discord) handleMessage(m Message) {
	var selfID Snowflake
	if s, ok := d.Self(); ok {
		selfID = Snowflake(s.ID)
	}

	turn, err := convertMessage(m, d.names, selfID)
	if errors.Is(err, errDirectMessage) {
		d.logger.Debug("discord: ignoring direct message", "author", m.Author.Username)
		return
	}
	if err != nil {
		d.logger.Warn("discord: convert message", "error", err)
		return
	}
	if !d.allowList.IsAllowed(turn) {
		return
	}
	if err := d.inbox(turn); err != nil {
		d.logger.Warn("discord: inbox rejected turn", "room", turn.Room.String(), "error", err)
	}
}
