package bot

import "github.com/bwmarrin/discordgo"

func (b *Bot) registerCommands() error {
	manageRoles := int64(discordgo.PermissionManageRoles)
	manageGuild := int64(discordgo.PermissionManageServer)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:                     "warn",
			Description:              "Warn a member (warns decay over time)",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to warn", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason", Required: false},
			},
		},
		{
			Name:                     "pardon",
			Description:              "Clear a member's warn level",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to pardon", Required: true},
			},
		},
		{
			Name:                     "mute",
			Description:              "Mute a member for a duration",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to mute", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "e.g. 30m, 2h, 7d", Required: true},
			},
		},
		{
			Name:                     "unmute",
			Description:              "Lift a mute early and restore roles",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to unmute", Required: true},
			},
		},
		{
			Name:                     "temprole",
			Description:              "Grant a role for a duration",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
				{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to grant", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "e.g. 1d, 12h", Required: true},
			},
		},
		{
			Name:                     "blacklist",
			Description:              "Blacklist a member from giveaways for a duration",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
				{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Blacklist role", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "e.g. 14d", Required: true},
			},
		},
		{
			Name:                     "announce",
			Description:              "Schedule a message",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Target channel", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "delay", Description: "e.g. 1h, 2d", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "Message text", Required: true},
			},
		},
		{
			Name:                     "pending",
			Description:              "List scheduled actions for a member",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
			},
		},
		{
			Name:                     "cancelaction",
			Description:              "Cancel a scheduled action by id",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Action id", Required: true},
			},
		},
		{
			Name:                     "reschedule",
			Description:              "Move a scheduled action to a new time",
			DefaultMemberPermissions: &manageRoles,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Action id", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "delay", Description: "New delay from now, e.g. 2h", Required: true},
			},
		},
		{
			Name:        "match",
			Description: "Report a ladder match result",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "winner", Description: "Winner", Required: true},
				{Type: discordgo.ApplicationCommandOptionUser, Name: "loser", Description: "Loser", Required: true},
			},
		},
		{
			Name:        "standings",
			Description: "Show the ladder top 10",
		},
		{
			Name:        "colorrole",
			Description: "Set or remove your custom color role",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "color", Description: "Hex color, e.g. #57F287", Required: false},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "clear", Description: "Remove your color role", Required: false},
			},
		},
		{
			Name:                     "modlog",
			Description:              "Set the moderation log channel",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Log channel", Required: true},
			},
		},
		{
			Name:                     "modstats",
			Description:              "Moderation activity over the last 7 days",
			DefaultMemberPermissions: &manageRoles,
		},
	}

	for _, command := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", command); err != nil {
			return err
		}
	}
	return nil
}
