package presence

import (
	"context"
	"sync"
	"testing"

	"deskwire/api/internal/store"
)

type event struct {
	name    string
	payload any
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []event
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(name string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event{name: name, payload: payload})
	return nil
}

func (c *fakeConn) eventsNamed(name string) []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []event
	for _, e := range c.events {
		if e.name == name {
			matched = append(matched, e)
		}
	}
	return matched
}

// fakeStore keeps team documents in memory with the same guarded-write
// semantics as the Postgres store.
type fakeStore struct {
	teams  map[string]*store.Team
	agents map[string]*store.Agent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:  make(map[string]*store.Team),
		agents: make(map[string]*store.Agent),
	}
}

func (f *fakeStore) addTeam(teamID, name string) {
	f.teams[teamID] = &store.Team{ID: teamID, Name: name, Members: []store.Member{}, Chats: []store.ChatMessage{}}
}

func (f *fakeStore) addAgent(userID, username, role string) {
	f.agents[userID] = &store.Agent{UserID: userID, Username: username, Role: role, Teams: []store.TeamRef{}}
}

func (f *fakeStore) GetTeam(_ context.Context, teamID string) (store.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return store.Team{}, store.ErrNotFound
	}
	return *team, nil
}

func (f *fakeStore) GetAgent(_ context.Context, userID string) (store.Agent, error) {
	agent, ok := f.agents[userID]
	if !ok {
		return store.Agent{}, store.ErrNotFound
	}
	return *agent, nil
}

func (f *fakeStore) AppendTeamMember(_ context.Context, teamID string, m store.Member) ([]store.Member, bool, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	for _, member := range team.Members {
		if member.UserID == m.UserID {
			return append([]store.Member(nil), team.Members...), false, nil
		}
	}
	team.Members = append(team.Members, m)
	return append([]store.Member(nil), team.Members...), true, nil
}

func (f *fakeStore) UpdateMemberConnection(_ context.Context, teamID, userID, connectionID string) ([]store.Member, bool, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, false, nil
	}
	for i := range team.Members {
		if team.Members[i].UserID == userID {
			team.Members[i].ConnectionID = connectionID
			return append([]store.Member(nil), team.Members...), true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeStore) RemoveTeamMember(_ context.Context, teamID, userID string) ([]store.Member, bool, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, false, nil
	}
	for i := range team.Members {
		if team.Members[i].UserID == userID {
			team.Members = append(team.Members[:i], team.Members[i+1:]...)
			if agent, ok := f.agents[userID]; ok {
				for j := range agent.Teams {
					if agent.Teams[j].TeamID == teamID {
						agent.Teams = append(agent.Teams[:j], agent.Teams[j+1:]...)
						break
					}
				}
			}
			return append([]store.Member(nil), team.Members...), true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeStore) AddAgentTeam(_ context.Context, userID string, ref store.TeamRef) error {
	agent, ok := f.agents[userID]
	if !ok {
		return nil
	}
	for _, existing := range agent.Teams {
		if existing.TeamID == ref.TeamID {
			return nil
		}
	}
	agent.Teams = append(agent.Teams, ref)
	return nil
}

func (f *fakeStore) AppendTeamChat(_ context.Context, teamID string, msg store.ChatMessage) error {
	team, ok := f.teams[teamID]
	if !ok {
		return store.ErrNotFound
	}
	team.Chats = append(team.Chats, msg)
	return nil
}

func setup() (*Hub, *fakeStore) {
	fake := newFakeStore()
	fake.addTeam("T1", "Billing")
	fake.addAgent("u1", "Priya", "Employee")
	fake.addAgent("u2", "Marco", "Admin")
	return NewHub(fake, nil), fake
}

func TestJoinTeamAddsMemberOnce(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)

	if len(fake.teams["T1"].Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(fake.teams["T1"].Members))
	}
	if got := fake.agents["u1"].Teams; len(got) != 1 || got[0].TeamName != "Billing" {
		t.Errorf("agent team set not updated: %+v", got)
	}

	// A second join from another connection must not duplicate membership.
	c2 := &fakeConn{id: "s2"}
	hub.JoinTeam(ctx, "T1", "u1", c2)
	if len(fake.teams["T1"].Members) != 1 {
		t.Errorf("duplicate membership after rejoin: %d members", len(fake.teams["T1"].Members))
	}
	if len(fake.agents["u1"].Teams) != 1 {
		t.Errorf("agent team set grew on rejoin: %+v", fake.agents["u1"].Teams)
	}
}

func TestJoinTeamReplaysTranscriptToJoinerOnly(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()
	fake.teams["T1"].Chats = []store.ChatMessage{{SenderID: "u2", Body: "hello"}}

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u2", c1)

	c2 := &fakeConn{id: "s2"}
	hub.JoinTeam(ctx, "T1", "u1", c2)

	if got := c2.eventsNamed(EventPreviousMessages); len(got) != 1 {
		t.Fatalf("joiner expected 1 previousMessages, got %d", len(got))
	}
	if got := c1.eventsNamed(EventPreviousMessages); len(got) != 1 {
		t.Errorf("existing member should only have its own replay, got %d", len(got))
	}
	if got := c1.eventsNamed(EventTeamUpdate); len(got) != 2 {
		t.Errorf("existing member expected 2 roster updates, got %d", len(got))
	}
}

func TestJoinTeamUnknownTeamOrAgentIsNoop(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "missing", "u1", c)
	hub.JoinTeam(ctx, "T1", "missing", c)

	if len(fake.teams["T1"].Members) != 0 {
		t.Errorf("no membership should be created, got %+v", fake.teams["T1"].Members)
	}
	if len(c.events) != 0 {
		t.Errorf("no events expected, got %+v", c.events)
	}
}

func TestReconnectReplacesHandleNotAppends(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)

	c2 := &fakeConn{id: "s2"}
	hub.ReconnectTeam(ctx, "T1", "u1", c2)

	members := fake.teams["T1"].Members
	if len(members) != 1 {
		t.Fatalf("reconnect must not change member count, got %d", len(members))
	}
	if members[0].UserID != "u1" || members[0].ConnectionID != "s2" {
		t.Errorf("expected u1 with handle s2, got %+v", members[0])
	}

	if got := c2.eventsNamed(EventPreviousMessages); len(got) != 1 {
		t.Errorf("reconnecting conn expected transcript replay, got %d", len(got))
	}
	if got := hub.Online(); len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("online registry: %+v", got)
	}
}

func TestReconnectWithoutMembershipIsSilent(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c := &fakeConn{id: "s1"}
	hub.ReconnectTeam(ctx, "T1", "u1", c)

	if len(fake.teams["T1"].Members) != 0 {
		t.Errorf("reconnect must never create membership, got %+v", fake.teams["T1"].Members)
	}
	if len(c.events) != 0 {
		t.Errorf("no events expected, got %+v", c.events)
	}
}

func TestSendMessageOrderPreservedInReplay(t *testing.T) {
	hub, _ := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)

	for _, body := range []string{"first", "second", "third"} {
		hub.SendMessage(ctx, "T1", store.ChatMessage{SenderID: "u1", Body: body})
	}

	if got := c1.eventsNamed(EventReceiveMessage); len(got) != 3 {
		t.Fatalf("expected 3 live messages, got %d", len(got))
	}

	// A freshly reconnected client sees the transcript in send order.
	c2 := &fakeConn{id: "s2"}
	hub.ReconnectTeam(ctx, "T1", "u1", c2)
	replays := c2.eventsNamed(EventPreviousMessages)
	if len(replays) != 1 {
		t.Fatalf("expected 1 replay, got %d", len(replays))
	}
	chats, ok := replays[0].payload.([]store.ChatMessage)
	if !ok {
		t.Fatalf("unexpected replay payload %T", replays[0].payload)
	}
	want := []string{"first", "second", "third"}
	if len(chats) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(chats))
	}
	for i, body := range want {
		if chats[i].Body != body {
			t.Errorf("position %d: got %q, want %q", i, chats[i].Body, body)
		}
	}
}

func TestSendMessageUnknownTeamIsNoop(t *testing.T) {
	hub, _ := setup()
	hub.SendMessage(context.Background(), "missing", store.ChatMessage{Body: "x"})
}

func TestLeaveTeamSymmetricRemoval(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)
	admin := &fakeConn{id: "s2"}
	hub.JoinTeam(ctx, "T1", "u2", admin)

	hub.LeaveTeam(ctx, admin, "u1", "T1")

	if len(fake.teams["T1"].Members) != 1 || fake.teams["T1"].Members[0].UserID != "u2" {
		t.Errorf("roster after removal: %+v", fake.teams["T1"].Members)
	}
	if len(fake.agents["u1"].Teams) != 0 {
		t.Errorf("agent side of relation not removed: %+v", fake.agents["u1"].Teams)
	}

	if got := c1.eventsNamed(EventKickedOut); len(got) != 1 {
		t.Errorf("removed conn expected kickedOut, got %d", len(got))
	}
	if got := admin.eventsNamed(EventRemovedUser); len(got) != 1 {
		t.Errorf("requester expected removedUser, got %d", len(got))
	}

	// The removed connection no longer receives team broadcasts.
	before := len(c1.eventsNamed(EventReceiveMessage))
	hub.SendMessage(ctx, "T1", store.ChatMessage{Body: "after"})
	if after := len(c1.eventsNamed(EventReceiveMessage)); after != before {
		t.Error("removed conn still attached to broadcast group")
	}
	if got := admin.eventsNamed(EventReceiveMessage); len(got) != 1 {
		t.Errorf("remaining member expected the message, got %d", len(got))
	}
}

func TestDisconnectClearsRegistryOnly(t *testing.T) {
	hub, fake := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)
	hub.ReconnectTeam(ctx, "T1", "u1", c1)

	c2 := &fakeConn{id: "s2"}
	hub.JoinTeam(ctx, "T1", "u2", c2)
	hub.ReconnectTeam(ctx, "T1", "u2", c2)

	hub.Disconnect("s1")

	if got := hub.Online(); len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("online registry after disconnect: %+v", got)
	}
	// Durable membership is untouched by a disconnect.
	if len(fake.teams["T1"].Members) != 2 {
		t.Errorf("membership changed on disconnect: %+v", fake.teams["T1"].Members)
	}
	if got := c2.eventsNamed(EventDisconnected); len(got) != 1 {
		t.Errorf("remaining conn expected disconnected broadcast, got %d", len(got))
	}
}

func TestDisconnectUnknownConnIsQuiet(t *testing.T) {
	hub, _ := setup()
	c := &fakeConn{id: "s9"}
	hub.JoinTeam(context.Background(), "T1", "u1", c)

	hub.Disconnect("never-seen")

	if got := c.eventsNamed(EventDisconnected); len(got) != 0 {
		t.Errorf("no broadcast expected for unknown conn, got %d", len(got))
	}
}

func TestRegistryKeepsOneEntryPerUser(t *testing.T) {
	hub, _ := setup()
	ctx := context.Background()

	c1 := &fakeConn{id: "s1"}
	hub.JoinTeam(ctx, "T1", "u1", c1)
	hub.ReconnectTeam(ctx, "T1", "u1", c1)

	c2 := &fakeConn{id: "s2"}
	hub.ReconnectTeam(ctx, "T1", "u1", c2)

	if got := hub.Online(); len(got) != 1 {
		t.Errorf("expected one registry entry per user, got %+v", got)
	}
}
