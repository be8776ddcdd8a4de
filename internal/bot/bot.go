package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildwarden/internal/analytics"
	"guildwarden/internal/config"
	"guildwarden/internal/modules/audit"
	"guildwarden/internal/modules/ladder"
	"guildwarden/internal/modules/moderation"
	"guildwarden/internal/modules/roles"
	"guildwarden/internal/schedule"
	"guildwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	svc        *schedule.Service
	reconciler *schedule.Reconciler
	moderation *moderation.Module
	roles      *roles.Module
	ladder     *ladder.Engine
	audit      *audit.Logger
	analytics  *analytics.Service
	session    *discordgo.Session

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New wires the bot around a session the caller already opened a
// gateway adapter on, so REST calls and event handlers share state.
func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, store *storage.Store, svc *schedule.Service, reconciler *schedule.Reconciler, moderationModule *moderation.Module, rolesModule *roles.Module, ladderEngine *ladder.Engine, auditLogger *audit.Logger, analyticsService *analytics.Service) *Bot {
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers

	b := &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		svc:        svc,
		reconciler: reconciler,
		moderation: moderationModule,
		roles:      rolesModule,
		ladder:     ladderEngine,
		audit:      auditLogger,
		analytics:  analyticsService,
		session:    session,
		done:       make(chan struct{}),
	}

	if b.audit != nil {
		b.audit.SetNotifier(b.notifyAudit)
	}

	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startAuditCleanup(90)
	return nil
}

func (b *Bot) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.GuildID == "" || event.User == nil {
		return
	}
	_ = session
	b.reconciler.OnMemberRemove(context.Background(), event.GuildID, event.User.ID)
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:       guildID,
		ModLogChannel: b.cfg.DefaultModLogChannel,
		MuteRoleID:    b.cfg.Moderation.MuteRoleID,
		WarnRoleID:    b.cfg.Moderation.WarnRoleID,
		WarnThreshold: b.cfg.Moderation.WarnThreshold,
	}

	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.Error(err))
		return defaults
	}
	return settings
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	settings := b.guildSettings(ctx, entry.GuildID)
	channelID := settings.ModLogChannel
	if channelID == "" {
		return
	}

	content := fmt.Sprintf("[%s] **%s** %s", entry.Level, entry.Event, entry.Details)
	if entry.UserID != "" {
		content += fmt.Sprintf(" (<@%s>)", entry.UserID)
	}
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("mod log notify failed",
			zap.String("guild_id", entry.GuildID),
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) startAuditCleanup(retentionDays int) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-b.done:
				return
			case <-ticker.C:
				if err := b.store.CleanupAuditLogs(context.Background(), retentionDays); err != nil {
					b.logger.Warn("audit cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}
