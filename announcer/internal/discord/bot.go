package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alexistats/nhl-modelling-bayesian/announcer/internal/consumer"
)

const embedColor = 0x1F77B4

// Bot wraps a Discord session and channel for projection posts and commands.
type Bot struct {
	session *discordgo.Session
	// channelID is where projections are posted
	channelID string
	mu        sync.Mutex
}

// Config for the Discord bot.
type Config struct {
	Token             string
	AnnounceChannelID string
}

// NewBot creates a Discord bot. Token must be non-empty.
func NewBot(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Bot{session: s, channelID: cfg.AnnounceChannelID}, nil
}

// ProjectionDescription is the embed body for one projection.
func ProjectionDescription(e consumer.ProjectionEvent) string {
	return fmt.Sprintf(
		"**%s** projects to **%.1f points** (%.0f%% HDI %.0f–%.0f)\n\n"+
			"🥅 Goals: %.1f (%.0f–%.0f)\n🍎 Assists: %.1f (%.0f–%.0f)\n\n"+
			"To date: %d G, %d A in %d GP • %d games left",
		e.Player, e.Points.Mean, e.Points.Level*100, e.Points.Lower, e.Points.Upper,
		e.Goals.Mean, e.Goals.Lower, e.Goals.Upper,
		e.Assists.Mean, e.Assists.Lower, e.Assists.Upper,
		e.GoalsToDate, e.AssistsToDate, e.GamesPlayed, e.GamesRemaining,
	)
}

// ProjectionEmbed builds the rich embed for one projection.
func ProjectionEmbed(e consumer.ProjectionEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "📈 Season projection",
		Description: ProjectionDescription(e),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Season " + e.SeasonID + " • NHL"},
	}
	if _, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		embed.Timestamp = e.CreatedAt
	}
	return embed
}

// PostProjection sends the projection embed to the announce channel.
func (b *Bot) PostProjection(ctx context.Context, e consumer.ProjectionEvent) error {
	if b.channelID == "" {
		return nil
	}
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	if _, err := s.ChannelMessageSendEmbed(b.channelID, ProjectionEmbed(e), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send embed: %w", err)
	}
	slog.Info("discord projection sent", "channel", b.channelID, "player", e.Player)
	return nil
}

// Session returns the discordgo session (for registering handlers and opening).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Commands lists the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "projection",
			Description: "Latest season projection for a tracked player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player name, e.g. Connor McDavid",
					Required:    true,
				},
			},
		},
		{
			Name:        "ping",
			Description: "Ping the bot to check if it's online",
		},
	}
}

// RegisterSlashCommands registers Commands(). Call after Open() so State is ready.
func (b *Bot) RegisterSlashCommands(guildID string) ([]*discordgo.ApplicationCommand, error) {
	appID := b.session.State.User.ID
	var registered []*discordgo.ApplicationCommand
	for _, cmd := range Commands() {
		created, err := b.session.ApplicationCommandCreate(appID, guildID, cmd)
		if err != nil {
			return registered, fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
		registered = append(registered, created)
	}
	return registered, nil
}

// AddInteractionHandler registers the handler for slash commands.
func (b *Bot) AddInteractionHandler(handler func(s *discordgo.Session, i *discordgo.InteractionCreate)) {
	b.session.AddHandler(handler)
}

// SetWatchingStatus sets the bot's activity to "Watching <n> players".
func (b *Bot) SetWatchingStatus(players int) error {
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{Type: discordgo.ActivityTypeWatching, Name: StatusName(players)},
		},
	})
}

// StatusName returns the "Watching" activity text.
func StatusName(players int) string {
	if players == 1 {
		return "1 player"
	}
	return fmt.Sprintf("%d players", players)
}
