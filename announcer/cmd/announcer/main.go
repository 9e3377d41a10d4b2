package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/announcer/internal/consumer"
	"github.com/alexistats/nhl-modelling-bayesian/announcer/internal/discord"
	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	c := consumer.NewConsumer(rdb)
	if err := c.EnsureGroup(ctx); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		slog.Warn("consumer group ensure", "group", consumer.ConsumerGroup, "error", err)
	}
	slog.Info("announcer started", "stream", consumer.StreamKey, "group", consumer.ConsumerGroup)

	var bot *discord.Bot
	if cfg.DiscordToken != "" {
		bot, err = discord.NewBot(discord.Config{
			Token:             cfg.DiscordToken,
			AnnounceChannelID: cfg.DiscordChannelID,
		})
		if err != nil {
			slog.Error("discord bot create failed", "error", err)
			os.Exit(1)
		}
		bot.AddInteractionHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if i.Type != discordgo.InteractionApplicationCommand {
				return
			}
			data := i.ApplicationCommandData()
			switch data.Name {
			case "ping":
				respond(s, i, "🏒 **Pong!** Pointsbot is online.")
			case "projection":
				var name string
				for _, opt := range data.Options {
					if opt.Name == "player" {
						name = opt.StringValue()
					}
				}
				handleProjection(ctx, s, i, c, name)
			}
		})
		bot.Session().AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			slog.Info("discord connected", "user", r.User.Username, "id", r.User.ID)
			if err := bot.SetWatchingStatus(len(cfg.Players)); err != nil {
				slog.Warn("status update failed", "error", err)
			}
		})
		slog.Info("connecting to Discord gateway...")
		if err := bot.Session().Open(); err != nil {
			slog.Error("discord open failed", "error", err)
			os.Exit(1)
		}
		defer bot.Session().Close()
		registered, err := bot.RegisterSlashCommands(cfg.DiscordGuildID)
		if err != nil {
			slog.Warn("discord register commands failed", "error", err)
		} else {
			slog.Info("discord slash commands registered", "count", len(registered), "guild_id", cfg.DiscordGuildID)
		}
	} else {
		slog.Info("discord token not set; Discord announcements and commands disabled")
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down announcer", "reason", ctx.Err())
			return
		default:
			events, ids, err := c.ReadMessages(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("read messages failed", "error", err)
					time.Sleep(time.Second)
				}
				continue
			}
			for _, e := range events {
				slog.Info("projection received",
					"player", e.Player,
					"run_id", e.RunID,
					"points_mean", e.Points.Mean,
					"points_hdi_low", e.Points.Lower,
					"points_hdi_high", e.Points.Upper,
				)
				if bot != nil {
					if err := bot.PostProjection(ctx, e); err != nil {
						slog.Warn("discord post failed", "player", e.Player, "error", err)
					}
				}
			}
			if len(ids) > 0 {
				if err := c.Ack(ctx, ids...); err != nil {
					slog.Warn("ack failed", "error", err)
				}
			}
		}
	}
}

func handleProjection(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, c *consumer.Consumer, name string) {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	e, err := c.ReadProjection(lookupCtx, name)
	switch {
	case err != nil:
		respond(s, i, "❌ Could not read projection: "+err.Error())
	case e == nil:
		respond(s, i, fmt.Sprintf("No projection stored for **%s**.", name))
	default:
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds:          []*discordgo.MessageEmbed{discord.ProjectionEmbed(*e)},
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			},
		})
		if err != nil {
			slog.Warn("discord respond failed", "error", err)
		}
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		slog.Warn("discord respond failed", "error", err)
	}
}
