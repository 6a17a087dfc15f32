package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deskwire/api/internal/auth"
	"deskwire/api/internal/authpw"
	"deskwire/api/internal/config"
	"deskwire/api/internal/presence"
	"deskwire/api/internal/routing"
	"deskwire/api/internal/rules"
	"deskwire/api/internal/search"
	"deskwire/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service itself touches. Routing
// and rules go through their own services.
type dataStore interface {
	Ping(ctx context.Context) error
	ListTeams(ctx context.Context) ([]store.Team, error)
	GetTeam(ctx context.Context, teamID string) (store.Team, error)
	InsertTeam(ctx context.Context, team store.Team) error
	DeleteTeam(ctx context.Context, teamID string) error
	TeamChats(ctx context.Context, teamID string) ([]store.ChatMessage, error)
	TeamMembers(ctx context.Context, teamID string) ([]store.Member, error)
	GetAgent(ctx context.Context, userID string) (store.Agent, error)
	ListAgents(ctx context.Context) ([]store.Agent, error)
}

// refreshStore persists refresh sessions keyed by token hash.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, agent store.Agent, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Agent, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Searcher executes ticket searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type Service struct {
	cfg      config.Config
	store    dataStore
	rules    *rules.Service
	engine   *routing.Engine
	hub      *presence.Hub
	sessions refreshStore
	authpw   *authpw.Service
	searcher Searcher
}

// NewService wires the service. sessions, authpw, and searcher may be nil;
// the corresponding routes report unavailable.
func NewService(cfg config.Config, st dataStore, ruleSvc *rules.Service, engine *routing.Engine, hub *presence.Hub, sessions refreshStore, authSvc *authpw.Service, searcher Searcher) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		rules:    ruleSvc,
		engine:   engine,
		hub:      hub,
		sessions: sessions,
		authpw:   authSvc,
		searcher: searcher,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) Rules() *rules.Service {
	return s.rules
}

func (s *Service) Engine() *routing.Engine {
	return s.engine
}

func (s *Service) Hub() *presence.Hub {
	return s.hub
}

// CreateSession issues an access token and a rotating refresh token for the
// agent. The refresh token is stored hashed; losing Redis only costs agents
// a re-login.
func (s *Service) CreateSession(ctx context.Context, agent store.Agent) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := uuid.NewString()

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  agent.UserID,
		Name: agent.Username,
		Role: agent.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	session := Session{
		Token:     token,
		UserID:    agent.UserID,
		UserName:  agent.Username,
		Role:      agent.Role,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}

	if s.sessions != nil {
		refresh := uuid.NewString() + uuid.NewString()
		refreshExpires := now.Add(s.cfg.RefreshTTL)
		if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), agent, refreshExpires); err != nil {
			return Session{}, fmt.Errorf("save refresh session: %w", err)
		}
		session.RefreshToken = refresh
	}

	return session, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if s.sessions == nil {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	agent, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, agent)
}

// SessionFromToken validates the access token and refreshes role and name
// from the agent record.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	agent, err := s.store.GetAgent(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    agent.UserID,
		UserName:  agent.Username,
		Role:      agent.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s.sessions == nil || refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// IsAdmin reports whether the session may mutate workflow rules.
func (s *Service) IsAdmin(session Session) bool {
	return strings.EqualFold(session.Role, "Admin")
}

func (s *Service) Profile(ctx context.Context, userID string) (store.Agent, error) {
	return s.store.GetAgent(ctx, userID)
}

func (s *Service) ListAgents(ctx context.Context) ([]store.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []store.Agent{}
	}
	return agents, nil
}

func (s *Service) ListTeams(ctx context.Context) ([]store.Team, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []store.Team{}
	}
	return teams, nil
}

func (s *Service) CreateTeam(ctx context.Context, name string, capacity int) (store.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Team{}, domainError(422, "VALIDATION_ERROR", "teamName is required", nil)
	}
	if capacity <= 0 {
		return store.Team{}, domainError(422, "VALIDATION_ERROR", "teamCapacity must be positive", nil)
	}

	team := store.Team{
		ID:       uuid.NewString(),
		Name:     name,
		Capacity: capacity,
		Members:  []store.Member{},
		Chats:    []store.ChatMessage{},
	}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return store.Team{}, err
	}
	return team, nil
}

func (s *Service) DeleteTeam(ctx context.Context, teamID string) error {
	return s.store.DeleteTeam(ctx, teamID)
}

func (s *Service) TeamChats(ctx context.Context, teamID string) ([]store.ChatMessage, error) {
	chats, err := s.store.TeamChats(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []store.ChatMessage{}
	}
	return chats, nil
}

func (s *Service) TeamMembers(ctx context.Context, teamID string) ([]store.Member, error) {
	members, err := s.store.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []store.Member{}
	}
	return members, nil
}

func (s *Service) SearchTickets(ctx context.Context, q search.Query) (search.Response, error) {
	if s.searcher == nil {
		return search.Response{}, domainError(503, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.searcher.Search(ctx, q), nil
}
