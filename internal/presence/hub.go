// Package presence keeps a team's online roster and chat transcript
// consistent across concurrent socket connections. Durable membership and
// chat live in the store; the hub's own registry of who is currently
// connected is in-memory, derived state, rebuilt from nothing on restart.
//
// The presence path fails open: a missing team or agent during a socket
// event is logged and swallowed, never surfaced to the connection.
package presence

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"deskwire/api/internal/store"
)

// Server→client event names.
const (
	EventTeamUpdate       = "teamUpdate"
	EventPreviousMessages = "previousMessages"
	EventReceiveMessage   = "receiveMessage"
	EventJoinedTeam       = "joinedTeam"
	EventKickedOut        = "kickedOut"
	EventRemovedUser      = "removedUser"
	EventReconnected      = "reconnected"
	EventDisconnected     = "disconnected"
)

// Conn is one live client connection on the transport collaborator. ID is
// the transient connection handle; it changes on every reconnect.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
}

// OnlineUser is one entry of the process-wide presence registry.
type OnlineUser struct {
	UserID       string `json:"userID"`
	ConnectionID string `json:"socketID"`
}

// Store is the durable side of presence: rosters, chats, and the
// bidirectional agent↔team relation.
type Store interface {
	GetTeam(ctx context.Context, teamID string) (store.Team, error)
	GetAgent(ctx context.Context, userID string) (store.Agent, error)
	AppendTeamMember(ctx context.Context, teamID string, m store.Member) ([]store.Member, bool, error)
	UpdateMemberConnection(ctx context.Context, teamID, userID, connectionID string) ([]store.Member, bool, error)
	RemoveTeamMember(ctx context.Context, teamID, userID string) ([]store.Member, bool, error)
	AddAgentTeam(ctx context.Context, userID string, ref store.TeamRef) error
	AppendTeamChat(ctx context.Context, teamID string, msg store.ChatMessage) error
}

// Notifier receives best-effort membership events; may be nil.
type Notifier interface {
	MemberJoined(ctx context.Context, teamID, userID string) error
	MemberLeft(ctx context.Context, teamID, userID string) error
}

type Hub struct {
	store    Store
	notifier Notifier

	mu     sync.Mutex
	rooms  map[string]map[string]Conn // teamID → connectionID → conn
	conns  map[string]Conn            // connectionID → conn
	online map[string]string          // userID → connectionID
}

func NewHub(st Store, notifier Notifier) *Hub {
	return &Hub{
		store:    st,
		notifier: notifier,
		rooms:    make(map[string]map[string]Conn),
		conns:    make(map[string]Conn),
		online:   make(map[string]string),
	}
}

// JoinTeam adds the agent to the team roster (idempotent on userID), attaches
// the connection to the team's broadcast group, and replays the transcript to
// the joining connection only.
func (h *Hub) JoinTeam(ctx context.Context, teamID, userID string, conn Conn) {
	agent, err := h.store.GetAgent(ctx, userID)
	if err != nil {
		h.miss("joinTeam", "agent", userID, err)
		return
	}
	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		h.miss("joinTeam", "team", teamID, err)
		return
	}

	member := store.Member{
		ConnectionID: conn.ID(),
		UserID:       agent.UserID,
		Username:     agent.Username,
		Role:         agent.Role,
		Active:       true,
	}
	members, appended, err := h.store.AppendTeamMember(ctx, teamID, member)
	if err != nil {
		log.Printf("presence: joinTeam append member %s to %s: %v", userID, teamID, err)
		return
	}
	if appended {
		// Set-union semantics: recording a team that is already on the
		// agent's profile is a no-op inside the store.
		if err := h.store.AddAgentTeam(ctx, userID, store.TeamRef{TeamID: teamID, TeamName: team.Name}); err != nil {
			log.Printf("presence: joinTeam record team on agent %s: %v", userID, err)
		}
		if h.notifier != nil {
			if err := h.notifier.MemberJoined(ctx, teamID, userID); err != nil {
				log.Printf("presence: joinTeam notify: %v", err)
			}
		}
	}

	h.attach(teamID, conn)

	h.broadcast(teamID, EventTeamUpdate, members)
	h.emit(conn, EventPreviousMessages, team.Chats)
	h.emit(conn, EventJoinedTeam, userID)
}

// ReconnectTeam re-attaches an existing member under a new connection handle.
// The caller never re-joins on reconnect; if the agent is not a member the
// event is silently dropped. Member count never changes here.
func (h *Hub) ReconnectTeam(ctx context.Context, teamID, userID string, conn Conn) {
	if _, err := h.store.GetAgent(ctx, userID); err != nil {
		h.miss("reconnectTeam", "agent", userID, err)
		return
	}
	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		h.miss("reconnectTeam", "team", teamID, err)
		return
	}

	members, updated, err := h.store.UpdateMemberConnection(ctx, teamID, userID, conn.ID())
	if err != nil {
		log.Printf("presence: reconnectTeam update handle for %s in %s: %v", userID, teamID, err)
		return
	}
	if !updated {
		// Not a member; reconnect never creates membership.
		return
	}

	h.attach(teamID, conn)

	h.mu.Lock()
	if _, exists := h.online[userID]; !exists {
		h.online[userID] = conn.ID()
	}
	onlineUsers := h.onlineLocked()
	h.mu.Unlock()

	h.emit(conn, EventPreviousMessages, team.Chats)
	h.broadcast(teamID, EventTeamUpdate, members)
	h.broadcast(teamID, EventReconnected, onlineUsers)
}

// SendMessage appends the message to the team transcript and fans it out to
// every currently attached connection. At-most-once: connections that are
// not attached right now miss the live event and catch up from the
// transcript on their next reconnect.
func (h *Hub) SendMessage(ctx context.Context, teamID string, msg store.ChatMessage) {
	if err := h.store.AppendTeamChat(ctx, teamID, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.miss("sendMessage", "team", teamID, err)
			return
		}
		log.Printf("presence: sendMessage append to %s: %v", teamID, err)
		return
	}
	h.broadcast(teamID, EventReceiveMessage, msg)
}

// LeaveTeam removes the agent from both sides of the membership relation,
// tells the removed connection first, detaches it, then updates the
// remaining roster. requester is the connection that triggered the removal
// and may be nil.
func (h *Hub) LeaveTeam(ctx context.Context, requester Conn, userID, teamID string) {
	if _, err := h.store.GetAgent(ctx, userID); err != nil {
		h.miss("leaveTeam", "agent", userID, err)
		return
	}
	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		h.miss("leaveTeam", "team", teamID, err)
		return
	}

	var removedConnID string
	for _, member := range team.Members {
		if member.UserID == userID {
			removedConnID = member.ConnectionID
			break
		}
	}

	members, removed, err := h.store.RemoveTeamMember(ctx, teamID, userID)
	if err != nil {
		log.Printf("presence: leaveTeam remove %s from %s: %v", userID, teamID, err)
		return
	}
	if !removed {
		h.miss("leaveTeam", "member", userID, store.ErrNotFound)
		return
	}

	if removedConnID != "" {
		h.mu.Lock()
		removedConn := h.conns[removedConnID]
		h.mu.Unlock()
		if removedConn != nil {
			h.emit(removedConn, EventKickedOut, userID)
		}
		h.detachFromRoom(teamID, removedConnID)
	}

	h.broadcast(teamID, EventTeamUpdate, members)
	if requester != nil {
		h.emit(requester, EventRemovedUser, userID)
	}
	if h.notifier != nil {
		if err := h.notifier.MemberLeft(ctx, teamID, userID); err != nil {
			log.Printf("presence: leaveTeam notify: %v", err)
		}
	}
}

// Disconnect drops the connection from the presence registry and every
// broadcast group. Team membership is untouched: disconnecting only means
// not-currently-connected.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.Lock()
	delete(h.conns, connectionID)
	for _, room := range h.rooms {
		delete(room, connectionID)
	}

	var wasOnline bool
	for userID, connID := range h.online {
		if connID == connectionID {
			delete(h.online, userID)
			wasOnline = true
			break
		}
	}
	onlineUsers := h.onlineLocked()
	targets := make([]Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	if !wasOnline {
		return
	}
	for _, conn := range targets {
		h.emit(conn, EventDisconnected, onlineUsers)
	}
}

// Online returns a snapshot of the presence registry.
func (h *Hub) Online() []OnlineUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []OnlineUser {
	users := make([]OnlineUser, 0, len(h.online))
	for userID, connID := range h.online {
		users = append(users, OnlineUser{UserID: userID, ConnectionID: connID})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

func (h *Hub) attach(teamID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[teamID]
	if room == nil {
		room = make(map[string]Conn)
		h.rooms[teamID] = room
	}
	room[conn.ID()] = conn
	h.conns[conn.ID()] = conn
}

func (h *Hub) detachFromRoom(teamID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.rooms[teamID]; room != nil {
		delete(room, connectionID)
	}
}

func (h *Hub) broadcast(teamID, event string, payload any) {
	h.mu.Lock()
	targets := make([]Conn, 0, len(h.rooms[teamID]))
	for _, conn := range h.rooms[teamID] {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		h.emit(conn, event, payload)
	}
}

func (h *Hub) emit(conn Conn, event string, payload any) {
	if err := conn.Emit(event, payload); err != nil {
		log.Printf("presence: emit %s to %s: %v", event, conn.ID(), err)
	}
}

func (h *Hub) miss(op, kind, id string, err error) {
	log.Printf("presence: %s: %s %s not found (%v), ignoring", op, kind, id, err)
}
