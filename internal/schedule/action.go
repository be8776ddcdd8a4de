package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what a pending action does when it fires.
type Kind string

const (
	KindTempRoleExpiry        Kind = "temp_role_expiry"
	KindMuteExpiry            Kind = "mute_expiry"
	KindWarnDecay             Kind = "warn_decay"
	KindGiveawayBlacklistLift Kind = "giveaway_blacklist_lift"
	KindScheduledMessage      Kind = "scheduled_message"
)

// Subject is the entity an action targets: (guild, user) for role and
// moderation kinds, (guild, channel) for scheduled messages.
type Subject struct {
	GuildID  string
	TargetID string
}

func (s Subject) Key() string {
	return s.GuildID + ":" + s.TargetID
}

// PendingAction is a persisted record of a future state change to apply once.
// The store row is the single source of truth; deletion is the commit point.
type PendingAction struct {
	ID        string
	Kind      Kind
	Subject   Subject
	DedupeKey string
	Payload   []byte
	TriggerAt time.Time
	CreatedAt time.Time
}

// Payload is the kind-specific data carried by an action. DedupeKey returns
// the key the store uses to enforce the one-live-row invariant; kinds that
// may stack freely return "".
type Payload interface {
	DedupeKey() string
}

type TempRolePayload struct {
	RoleID string `json:"role_id"`
}

func (p TempRolePayload) DedupeKey() string { return p.RoleID }

// MutePayload carries the mute role plus the snapshot of roles the member
// held before the mute, so expiry restores them verbatim.
type MutePayload struct {
	MuteRoleID string   `json:"mute_role_id"`
	PriorRoles []string `json:"prior_roles"`
}

func (p MutePayload) DedupeKey() string { return p.MuteRoleID }

type WarnDecayPayload struct {
	WarnRoleID string `json:"warn_role_id"`
	// FromLevel records the level this step decays from, persisted before
	// the decrement so a replayed row can tell the step already applied.
	FromLevel int `json:"from_level,omitempty"`
}

func (p WarnDecayPayload) DedupeKey() string { return "" }

type BlacklistPayload struct {
	RoleID string `json:"role_id"`
}

func (p BlacklistPayload) DedupeKey() string { return p.RoleID }

type MessagePayload struct {
	Content string `json:"content"`
	// Sent is persisted before delivery so a crash between send and delete
	// cannot double-post the announcement.
	Sent    bool `json:"sent,omitempty"`
	Retried bool `json:"retried,omitempty"`
}

func (p MessagePayload) DedupeKey() string { return "" }

func decodePayload[T any](action PendingAction) (T, error) {
	var payload T
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload for %s: %w", action.Kind, action.ID, err)
	}
	return payload, nil
}

// Outcome is the executor's verdict on one action.
type Outcome int

const (
	// OutcomeCompleted means the action took effect (or there was provably
	// nothing left to do) and the row must be deleted.
	OutcomeCompleted Outcome = iota
	// OutcomeRetry leaves the row in place for the next wake.
	OutcomeRetry
	// OutcomeAbandoned deletes the row without the effect being applied,
	// after a permanent failure that retrying cannot fix.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}
