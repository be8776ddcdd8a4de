package schedule

import (
	"context"
	"errors"
)

// Gateway error taxonomy. Anything not matching these two is treated as
// transient and retried on the next wake.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ErrDuplicate is returned by the store when a live action of a
// uniqueness-constrained kind already exists for the same subject and
// dedupe key. Callers replace instead of inserting.
var ErrDuplicate = errors.New("duplicate pending action")

// Member is the slice of guild member state the executor cares about.
type Member struct {
	UserID string
	Roles  []string
}

func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// Gateway is the live guild connection the executor mutates. Calls carry an
// externally imposed timeout; exceeding it surfaces as a transient error.
type Gateway interface {
	// GetMember returns ErrNotFound when the member has left the guild.
	GetMember(ctx context.Context, guildID, userID string) (*Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SendMessage(ctx context.Context, channelID, content string) error
	// RoleExists reports whether the role still exists guild-wide. Mute
	// restore skips snapshot roles that were deleted during the mute.
	RoleExists(ctx context.Context, guildID, roleID string) (bool, error)
}
