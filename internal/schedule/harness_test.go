package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeClock drives the scheduler loop deterministically. Advance moves
// time forward and fires every timer whose deadline has passed.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	timer := &fakeTimer{deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d == 0 {
		timer.ch <- c.now
	}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, timer := range c.timers {
		if timer.stopped || timer.deadline.After(c.now) {
			continue
		}
		select {
		case timer.ch <- c.now:
		default:
		}
		timer.stopped = true
	}
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// memStore is an in-memory Store with the same uniqueness and ordering
// semantics as the sqlite implementation.
type memStore struct {
	mu      sync.Mutex
	actions map[string]PendingAction
	warns   map[string]int

	insertErr error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{
		actions: make(map[string]PendingAction),
		warns:   make(map[string]int),
	}
}

func (m *memStore) InsertAction(ctx context.Context, action PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.actions[action.ID]; exists {
		return fmt.Errorf("%w: %s %s", ErrDuplicate, action.Kind, action.Subject.Key())
	}
	if action.DedupeKey != "" {
		for _, existing := range m.actions {
			if existing.Kind == action.Kind && existing.Subject == action.Subject && existing.DedupeKey == action.DedupeKey {
				return fmt.Errorf("%w: %s %s", ErrDuplicate, action.Kind, action.Subject.Key())
			}
		}
	}
	m.actions[action.ID] = action
	return nil
}

func (m *memStore) ReplaceAction(ctx context.Context, action PendingAction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if action.DedupeKey != "" {
		for id, existing := range m.actions {
			if existing.Kind == action.Kind && existing.Subject == action.Subject && existing.DedupeKey == action.DedupeKey {
				existing.Payload = action.Payload
				existing.TriggerAt = action.TriggerAt
				existing.CreatedAt = action.CreatedAt
				m.actions[id] = existing
				return id, nil
			}
		}
	}
	m.actions[action.ID] = action
	return action.ID, nil
}

func (m *memStore) DueActions(ctx context.Context, now time.Time) ([]PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []PendingAction
	for _, action := range m.actions {
		if !action.TriggerAt.After(now) {
			due = append(due, action)
		}
	}
	sortActions(due)
	return due, nil
}

func (m *memStore) PeekNextAction(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next time.Time
	found := false
	for _, action := range m.actions {
		if !found || action.TriggerAt.Before(next) {
			next = action.TriggerAt
			found = true
		}
	}
	return next, found, nil
}

func (m *memStore) GetAction(ctx context.Context, id string) (PendingAction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	return action, ok, nil
}

func (m *memStore) DeleteAction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.actions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) CancelAction(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[id]; !ok {
		return false, nil
	}
	delete(m.actions, id)
	return true, nil
}

func (m *memStore) RescheduleAction(ctx context.Context, id string, triggerAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return false, nil
	}
	action.TriggerAt = triggerAt
	m.actions[id] = action
	return true, nil
}

func (m *memStore) UpdateActionPayload(ctx context.Context, id string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return fmt.Errorf("action %s not found", id)
	}
	action.Payload = payload
	m.actions[id] = action
	return nil
}

func (m *memStore) ListActionsForSubject(ctx context.Context, subject Subject) ([]PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []PendingAction
	for _, action := range m.actions {
		if action.Subject == subject {
			matched = append(matched, action)
		}
	}
	sortActions(matched)
	return matched, nil
}

func (m *memStore) ListAllActions(ctx context.Context) ([]PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]PendingAction, 0, len(m.actions))
	for _, action := range m.actions {
		all = append(all, action)
	}
	sortActions(all)
	return all, nil
}

func (m *memStore) WarnLevel(ctx context.Context, guildID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warns[guildID+":"+userID], nil
}

func (m *memStore) SetWarnLevel(ctx context.Context, guildID, userID string, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns[guildID+":"+userID] = level
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

func (m *memStore) actionsOfKind(kind Kind) []PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []PendingAction
	for _, action := range m.actions {
		if action.Kind == kind {
			matched = append(matched, action)
		}
	}
	sortActions(matched)
	return matched
}

func sortActions(actions []PendingAction) {
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].TriggerAt.Equal(actions[j].TriggerAt) {
			return actions[i].CreatedAt.Before(actions[j].CreatedAt)
		}
		return actions[i].TriggerAt.Before(actions[j].TriggerAt)
	})
}

// fakeGateway records mutations and serves canned member state.
type fakeGateway struct {
	mu      sync.Mutex
	members map[string]*Member
	roles   map[string]bool

	errGetMember  error
	errRemoveRole error
	errAddRole    error
	errSend       error

	removed []string
	added   []string
	sent    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members: make(map[string]*Member),
		roles:   make(map[string]bool),
	}
}

func (g *fakeGateway) putMember(guildID, userID string, roleIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[guildID+":"+userID] = &Member{UserID: userID, Roles: roleIDs}
	for _, roleID := range roleIDs {
		g.roles[guildID+":"+roleID] = true
	}
}

func (g *fakeGateway) putRole(guildID, roleID string, exists bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[guildID+":"+roleID] = exists
}

func (g *fakeGateway) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errGetMember != nil {
		return nil, g.errGetMember
	}
	member, ok := g.members[guildID+":"+userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := &Member{UserID: member.UserID, Roles: append([]string(nil), member.Roles...)}
	return copied, nil
}

func (g *fakeGateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errAddRole != nil {
		return g.errAddRole
	}
	g.added = append(g.added, guildID+":"+userID+":"+roleID)
	if member, ok := g.members[guildID+":"+userID]; ok {
		member.Roles = append(member.Roles, roleID)
	}
	return nil
}

func (g *fakeGateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errRemoveRole != nil {
		return g.errRemoveRole
	}
	g.removed = append(g.removed, guildID+":"+userID+":"+roleID)
	if member, ok := g.members[guildID+":"+userID]; ok {
		kept := member.Roles[:0]
		for _, id := range member.Roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		member.Roles = kept
	}
	return nil
}

func (g *fakeGateway) SendMessage(ctx context.Context, channelID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errSend != nil {
		return g.errSend
	}
	g.sent = append(g.sent, channelID+":"+content)
	return nil
}

func (g *fakeGateway) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[guildID+":"+roleID], nil
}

func (g *fakeGateway) removedRoles() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.removed...)
}

func (g *fakeGateway) addedRoles() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.added...)
}

func (g *fakeGateway) sentMessages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent...)
}
