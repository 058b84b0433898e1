package discord

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pipebot/internal/command"
	"pipebot/internal/config"
	"pipebot/internal/relay"
	"pipebot/pkg/retrylimit"
)

// api is the part of *discordgo.Session the bot calls.
type api interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// Bot is a Discord session that relays commands. It implements
// relay.Dispatcher.
type Bot struct {
	dg      *discordgo.Session
	api     api
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config
	logger  *zap.Logger

	applyMu sync.Mutex // serializes presence updates sent to Discord

	mu        sync.Mutex
	presence  *relay.Presence
	connected bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewBot creates the bot; call Open to connect.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	b := newBot(dg, cfg, logger)
	b.dg = dg
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onDisconnect)
	return b, nil
}

func newBot(a api, cfg *config.Config, logger *zap.Logger) *Bot {
	retry := retrylimit.DefaultConfig()
	retry.MaxAttempts = cfg.SendAttempts
	retry.Logger = logger

	sendRate := rate.Limit(cfg.SendRate)
	b := &Bot{
		api:     a,
		limiter: retrylimit.NewAdaptiveLimiter(sendRate, 1, max(sendRate, 20), 1, 0.5),
		retry:   retry,
		logger:  logger,
		ready:   make(chan struct{}),
	}
	b.retry.OnRetry = b.onSendRetry
	return b
}

func (b *Bot) onSendRetry(attempt int, err error) {
	fields := []zap.Field{zap.Int("attempt", attempt), zap.Error(err)}
	if b.limiter != nil {
		fields = append(fields, zap.Float64("rate_limit", b.limiter.CurrentLimit()))
	}
	b.logger.Debug("Retrying send", fields...)
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.dg.Close()
}

// Ready is closed once the first gateway Ready has been handled.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// RestorePresence sets the presence to apply on the next Ready without
// sending it now.
func (b *Bot) RestorePresence(p *relay.Presence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presence = p
}

// Send posts text to a channel. Transient failures are retried; client
// errors such as a missing permission are returned at once.
func (b *Bot) Send(ctx context.Context, channelID uint64, text string) error {
	id := strconv.FormatUint(channelID, 10)
	return retrylimit.Do(ctx, b.limiter, b.retry, func() error {
		_, err := b.api.ChannelMessageSend(id, text, discordgo.WithContext(ctx))
		return classify(err)
	})
}

// SetPresence updates the bot's activity; nil clears it. The presence is
// remembered and re-applied after every reconnect.
func (b *Bot) SetPresence(p *relay.Presence) {
	b.mu.Lock()
	b.presence = p
	b.mu.Unlock()

	if !b.syncPresence(false) {
		b.logger.Debug("Not connected, presence will be applied on ready")
	}
}

// syncPresence sends the presence stored at the time of sending, so the
// last update Discord sees always matches the latest SetPresence. A nil
// presence is skipped when skipNil is set. It reports false when the bot
// is not connected.
func (b *Bot) syncPresence(skipNil bool) bool {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()

	b.mu.Lock()
	p, connected := b.presence, b.connected
	b.mu.Unlock()

	if !connected {
		return false
	}
	if p == nil && skipNil {
		return true
	}
	if err := b.api.UpdateStatusComplex(statusData(p)); err != nil {
		b.logger.Error("Failed to update presence", zap.Error(err))
	}
	return true
}

// onReady is called on every gateway (re)connect.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.handleReady(r)
}

func (b *Bot) handleReady(r *discordgo.Ready) {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	b.syncPresence(true)

	fields := []zap.Field{}
	if r != nil {
		if r.User != nil {
			fields = append(fields, zap.String("user", r.User.Username))
		}
		fields = append(fields, zap.Int("guilds", len(r.Guilds)))
	}
	b.logger.Info("Discord bot is running", fields...)
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bot) onDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.logger.Warn("Disconnected from gateway")
}

func statusData(p *relay.Presence) discordgo.UpdateStatusData {
	data := discordgo.UpdateStatusData{Status: string(discordgo.StatusOnline)}
	if p != nil {
		data.Activities = []*discordgo.Activity{{
			Name: p.Name,
			Type: activityType(p.Kind),
		}}
	}
	return data
}

func activityType(k command.ActivityKind) discordgo.ActivityType {
	switch k {
	case command.ListeningTo:
		return discordgo.ActivityTypeListening
	case command.Watching:
		return discordgo.ActivityTypeWatching
	case command.CompetingIn:
		return discordgo.ActivityTypeCompeting
	default:
		return discordgo.ActivityTypeGame
	}
}
