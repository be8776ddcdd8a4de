package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"guildwarden/internal/modules/audit"
	"guildwarden/internal/schedule"
	"guildwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respond(session, interaction, "This command only works in a server.", true)
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case "warn":
		b.handleWarn(ctx, session, interaction, options)
	case "pardon":
		b.handlePardon(ctx, session, interaction, options)
	case "mute":
		b.handleMute(ctx, session, interaction, options)
	case "unmute":
		b.handleUnmute(ctx, session, interaction, options)
	case "temprole":
		b.handleTempRole(ctx, session, interaction, options)
	case "blacklist":
		b.handleBlacklist(ctx, session, interaction, options)
	case "announce":
		b.handleAnnounce(ctx, session, interaction, options)
	case "pending":
		b.handlePending(ctx, session, interaction, options)
	case "cancelaction":
		b.handleCancel(ctx, session, interaction, options)
	case "reschedule":
		b.handleReschedule(ctx, session, interaction, options)
	case "match":
		b.handleMatch(ctx, session, interaction, options)
	case "standings":
		b.handleStandings(ctx, session, interaction)
	case "colorrole":
		b.handleColorRole(ctx, session, interaction, options)
	case "modlog":
		b.handleModLog(ctx, session, interaction, options)
	case "modstats":
		b.handleModStats(ctx, session, interaction)
	}
}

func (b *Bot) handleWarn(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	if user == nil {
		b.respond(session, interaction, "User is required.", true)
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	level, err := b.moderation.Warn(ctx, settings, user.ID, actorID(interaction), options.str("reason"))
	if err != nil {
		b.logger.Warn("warn failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Warn failed, try again later.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> warned, level is now %d.", user.ID, level), false)
}

func (b *Bot) handlePardon(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	if user == nil {
		b.respond(session, interaction, "User is required.", true)
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	if err := b.moderation.Pardon(ctx, settings, user.ID, actorID(interaction)); err != nil {
		b.logger.Warn("pardon failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Pardon failed, try again later.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Warns cleared for <@%s>.", user.ID), false)
}

func (b *Bot) handleMute(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	duration, err := utils.ParseDuration(options.str("duration"))
	if user == nil || err != nil {
		b.respond(session, interaction, "Usage: /mute user duration (e.g. 2h, 7d).", true)
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	until, err := b.moderation.Mute(ctx, settings, user.ID, actorID(interaction), duration)
	if err != nil {
		b.logger.Warn("mute failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Mute failed: "+publicError(err), true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> muted until <t:%d:f>.", user.ID, until.Unix()), false)
}

func (b *Bot) handleUnmute(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	if user == nil {
		b.respond(session, interaction, "User is required.", true)
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	found, err := b.moderation.Unmute(ctx, settings, user.ID, actorID(interaction))
	if err != nil {
		b.logger.Warn("unmute failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Unmute failed, try again later.", true)
		return
	}
	if !found {
		b.respond(session, interaction, "No active mute for that member.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> unmuted, roles restored.", user.ID), false)
}

func (b *Bot) handleTempRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	role := options.role(session, interaction.GuildID, "role")
	duration, err := utils.ParseDuration(options.str("duration"))
	if user == nil || role == nil || err != nil {
		b.respond(session, interaction, "Usage: /temprole user role duration.", true)
		return
	}
	until, err := b.roles.GrantTempRole(ctx, interaction.GuildID, user.ID, role.ID, actorID(interaction), duration)
	if err != nil {
		b.logger.Warn("temp role failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Temp role failed: "+publicError(err), true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> holds <@&%s> until <t:%d:f>.", user.ID, role.ID, until.Unix()), false)
}

func (b *Bot) handleBlacklist(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	role := options.role(session, interaction.GuildID, "role")
	duration, err := utils.ParseDuration(options.str("duration"))
	if user == nil || role == nil || err != nil {
		b.respond(session, interaction, "Usage: /blacklist user role duration.", true)
		return
	}
	until, err := b.roles.Blacklist(ctx, interaction.GuildID, user.ID, role.ID, actorID(interaction), duration)
	if err != nil {
		b.logger.Warn("blacklist failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Blacklist failed: "+publicError(err), true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> blacklisted from giveaways until <t:%d:f>.", user.ID, until.Unix()), false)
}

func (b *Bot) handleAnnounce(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	channel := options.channel(session, "channel")
	delay, err := utils.ParseDuration(options.str("delay"))
	text := options.str("text")
	if channel == nil || err != nil || text == "" {
		b.respond(session, interaction, "Usage: /announce channel delay text.", true)
		return
	}
	at := time.Now().Add(delay)
	id, err := b.svc.Schedule(ctx, schedule.KindScheduledMessage,
		schedule.Subject{GuildID: interaction.GuildID, TargetID: channel.ID},
		schedule.MessagePayload{Content: text}, at)
	if err != nil {
		b.logger.Warn("announce failed", zap.Error(err))
		b.respond(session, interaction, "Scheduling failed, try again later.", true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, "", "message_scheduled",
		fmt.Sprintf("id=%s channel=%s at=%s", id, channel.ID, at.UTC().Format(time.RFC3339)))
	b.respond(session, interaction, fmt.Sprintf("Message `%s` scheduled for <t:%d:f> in <#%s>.", id, at.Unix(), channel.ID), true)
}

func (b *Bot) handlePending(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	user := options.user(session, "user")
	if user == nil {
		b.respond(session, interaction, "User is required.", true)
		return
	}
	actions, err := b.svc.List(ctx, schedule.Subject{GuildID: interaction.GuildID, TargetID: user.ID})
	if err != nil {
		b.respond(session, interaction, "Lookup failed, try again later.", true)
		return
	}
	var lines []string
	if record, err := b.store.GetWarnRecord(ctx, interaction.GuildID, user.ID); err == nil && record.Level > 0 {
		line := fmt.Sprintf("Warn level %d", record.Level)
		if record.LastActor != "" {
			line += fmt.Sprintf(", last set by <@%s> at <t:%d:f>", record.LastActor, record.LastAt.Unix())
		}
		lines = append(lines, line+".")
	}
	if len(actions) == 0 && len(lines) == 0 {
		b.respond(session, interaction, fmt.Sprintf("Nothing scheduled for <@%s>.", user.ID), true)
		return
	}
	for _, action := range actions {
		lines = append(lines, fmt.Sprintf("`%s` %s at <t:%d:f>", action.ID, action.Kind, action.TriggerAt.Unix()))
	}
	b.respond(session, interaction, strings.Join(lines, "\n"), true)
}

func (b *Bot) handleCancel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	id := options.str("id")
	ok, err := b.svc.Cancel(ctx, id)
	if err != nil {
		b.respond(session, interaction, "Cancel failed, try again later.", true)
		return
	}
	if !ok {
		b.respond(session, interaction, "That action already ran or was canceled.", true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, "", "action_canceled", "id="+id)
	b.respond(session, interaction, "Action canceled.", true)
}

func (b *Bot) handleReschedule(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	id := options.str("id")
	delay, err := utils.ParseDuration(options.str("delay"))
	if err != nil {
		b.respond(session, interaction, "Usage: /reschedule id delay (e.g. 2h).", true)
		return
	}
	at := time.Now().Add(delay)
	ok, err := b.svc.Reschedule(ctx, id, at)
	if err != nil {
		b.respond(session, interaction, "Reschedule failed, try again later.", true)
		return
	}
	if !ok {
		b.respond(session, interaction, "That action already ran or was canceled.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Action moved to <t:%d:f>.", at.Unix()), true)
}

func (b *Bot) handleMatch(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	if !settings.LadderEnabled {
		b.respond(session, interaction, "The ladder is disabled on this server.", true)
		return
	}
	winner := options.user(session, "winner")
	loser := options.user(session, "loser")
	if winner == nil || loser == nil || winner.ID == loser.ID {
		b.respond(session, interaction, "Pick two different players.", true)
		return
	}
	result, err := b.ladder.ReportMatch(ctx, interaction.GuildID, winner.ID, loser.ID)
	if err != nil {
		b.logger.Warn("match report failed", zap.Error(err))
		b.respond(session, interaction, "Match report failed, try again later.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("<@%s> %.0f (+%.0f) beats <@%s> %.0f (-%.0f).",
		winner.ID, result.Winner.Rating, result.Delta, loser.ID, result.Loser.Rating, result.Delta), false)
}

func (b *Bot) handleStandings(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	standings, err := b.ladder.Standings(ctx, interaction.GuildID, 10)
	if err != nil {
		b.respond(session, interaction, "Standings unavailable, try again later.", true)
		return
	}
	if len(standings) == 0 {
		b.respond(session, interaction, "No matches reported yet.", true)
		return
	}
	var lines []string
	for i, entry := range standings {
		lines = append(lines, fmt.Sprintf("%d. <@%s> %.0f (%dW/%dL)", i+1, entry.UserID, entry.Rating, entry.Wins, entry.Losses))
	}
	b.respond(session, interaction, strings.Join(lines, "\n"), false)
}

func (b *Bot) handleColorRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	userID := actorID(interaction)
	if userID == "" {
		b.respond(session, interaction, "Could not resolve your user.", true)
		return
	}

	if options.boolean("clear") {
		roleID, err := b.store.GetColorRole(ctx, interaction.GuildID, userID)
		if err != nil {
			b.respond(session, interaction, "Color role lookup failed.", true)
			return
		}
		if roleID == "" {
			b.respond(session, interaction, "You have no color role.", true)
			return
		}
		if err := session.GuildRoleDelete(interaction.GuildID, roleID); err != nil {
			// The role may have been deleted by hand; the row still goes.
			b.logger.Warn("color role delete failed", zap.String("role_id", roleID), zap.Error(err))
		}
		if err := b.store.DeleteColorRole(ctx, interaction.GuildID, userID); err != nil {
			b.respond(session, interaction, "Could not remove the color role.", true)
			return
		}
		b.respond(session, interaction, "Color role removed.", true)
		return
	}

	color, err := parseHexColor(options.str("color"))
	if err != nil {
		b.respond(session, interaction, "Color must be a hex value like #57F287.", true)
		return
	}

	roleID, err := b.store.GetColorRole(ctx, interaction.GuildID, userID)
	if err != nil {
		b.respond(session, interaction, "Color role lookup failed.", true)
		return
	}
	name := "color-" + userID
	if roleID == "" {
		role, err := session.GuildRoleCreate(interaction.GuildID, &discordgo.RoleParams{Name: name, Color: &color})
		if err != nil {
			b.logger.Warn("color role create failed", zap.Error(err))
			b.respond(session, interaction, "Could not create the color role.", true)
			return
		}
		roleID = role.ID
		if err := session.GuildMemberRoleAdd(interaction.GuildID, userID, roleID); err != nil {
			b.respond(session, interaction, "Could not assign the color role.", true)
			return
		}
		if err := b.store.SetColorRole(ctx, interaction.GuildID, userID, roleID); err != nil {
			b.respond(session, interaction, "Could not save the color role.", true)
			return
		}
	} else {
		if _, err := session.GuildRoleEdit(interaction.GuildID, roleID, &discordgo.RoleParams{Name: name, Color: &color}); err != nil {
			b.logger.Warn("color role edit failed", zap.Error(err))
			b.respond(session, interaction, "Could not update the color role.", true)
			return
		}
	}
	b.respond(session, interaction, fmt.Sprintf("Color set to #%06X.", color), true)
}

func (b *Bot) handleModLog(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionIndex) {
	channel := options.channel(session, "channel")
	if channel == nil {
		b.respond(session, interaction, "Channel is required.", true)
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.ModLogChannel = channel.ID
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.respond(session, interaction, "Saving failed, try again later.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Moderation log set to <#%s>.", channel.ID), true)
}

func (b *Bot) handleModStats(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	report, err := b.analytics.Report(ctx, interaction.GuildID, time.Now().AddDate(0, 0, -7))
	if err != nil {
		b.respond(session, interaction, "Stats unavailable, try again later.", true)
		return
	}
	content := fmt.Sprintf("Last 7 days: %d entries | INFO: %d | WARN: %d | CRIT: %d",
		report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
	b.respond(session, interaction, content, true)
}

type optionIndex map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) optionIndex {
	index := make(optionIndex, len(options))
	for _, option := range options {
		index[option.Name] = option
	}
	return index
}

func (o optionIndex) str(name string) string {
	if option, ok := o[name]; ok {
		return option.StringValue()
	}
	return ""
}

func (o optionIndex) boolean(name string) bool {
	if option, ok := o[name]; ok {
		return option.BoolValue()
	}
	return false
}

func (o optionIndex) user(session *discordgo.Session, name string) *discordgo.User {
	if option, ok := o[name]; ok {
		return option.UserValue(session)
	}
	return nil
}

func (o optionIndex) role(session *discordgo.Session, guildID, name string) *discordgo.Role {
	if option, ok := o[name]; ok {
		return option.RoleValue(session, guildID)
	}
	return nil
}

func (o optionIndex) channel(session *discordgo.Session, name string) *discordgo.Channel {
	if option, ok := o[name]; ok {
		return option.ChannelValue(session)
	}
	return nil
}

func actorID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func parseHexColor(value string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return 0, errors.New("expected 6 hex digits")
	}
	parsed, err := strconv.ParseInt(trimmed, 16, 32)
	if err != nil {
		return 0, err
	}
	return int(parsed), nil
}

func publicError(err error) string {
	switch {
	case errors.Is(err, schedule.ErrDuplicate):
		return "already scheduled, use /reschedule"
	case errors.Is(err, schedule.ErrForbidden):
		return "missing permissions"
	case errors.Is(err, schedule.ErrNotFound):
		return "member or role not found"
	default:
		return "try again later"
	}
}
