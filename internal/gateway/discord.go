// Package gateway adapts a discordgo session to the guild state interface
// the action executor consumes, mapping Discord REST failures onto the
// not-found / forbidden / transient taxonomy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"guildwarden/internal/schedule"

	"github.com/bwmarrin/discordgo"
)

type Discord struct {
	session *discordgo.Session
	timeout time.Duration
}

func New(session *discordgo.Session, timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{session: session, timeout: timeout}
}

func (d *Discord) GetMember(ctx context.Context, guildID, userID string) (*schedule.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	member, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return &schedule.Member{UserID: userID, Roles: member.Roles}, nil
}

func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return mapError(d.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (d *Discord) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return mapError(d.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (d *Discord) SendMessage(ctx context.Context, channelID, content string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (d *Discord) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	if guild, err := d.session.State.Guild(guildID); err == nil && guild != nil {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				return true, nil
			}
		}
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapError(err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", schedule.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", schedule.ErrForbidden, err)
		}
	}
	return err
}
