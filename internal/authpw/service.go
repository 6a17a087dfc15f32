// Package authpw provides email/password sign-in for agents.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"deskwire/api/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// AgentStore is the storage surface the auth service needs.
type AgentStore interface {
	GetAgentByEmail(ctx context.Context, email string) (store.Agent, error)
	CreateAgent(ctx context.Context, agent store.Agent) error
	TouchAgentLogin(ctx context.Context, userID string) error
}

type Service struct {
	store AgentStore
}

func NewService(store AgentStore) *Service {
	return &Service{store: store}
}

type SignUpRequest struct {
	Email    string
	Password string
	Username string
}

// SignUp creates a new agent account with the default Employee role.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Agent, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.Username) == "" {
		return store.Agent{}, errors.New("email, password, and username are required")
	}
	if len(req.Password) < 8 {
		return store.Agent{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetAgentByEmail(ctx, email); err == nil {
		return store.Agent{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Agent{}, fmt.Errorf("hash password: %w", err)
	}

	agent := store.Agent{
		UserID:       uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		Email:        email,
		Role:         "Employee",
		Teams:        []store.TeamRef{},
		PasswordHash: string(hash),
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return store.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

// SignIn verifies credentials and records the login time.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Agent, error) {
	agent, err := s.store.GetAgentByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Agent{}, ErrInvalidCredentials
		}
		return store.Agent{}, fmt.Errorf("lookup agent: %w", err)
	}
	if agent.PasswordHash == "" {
		return store.Agent{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(password)); err != nil {
		return store.Agent{}, ErrInvalidCredentials
	}

	if err := s.store.TouchAgentLogin(ctx, agent.UserID); err != nil {
		return store.Agent{}, fmt.Errorf("record login: %w", err)
	}
	return agent, nil
}
