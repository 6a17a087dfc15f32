package authpw

import (
	"context"
	"errors"
	"testing"

	"deskwire/api/internal/store"
)

type fakeAgentStore struct {
	agents map[string]store.Agent // keyed by email
	logins []string
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: make(map[string]store.Agent)}
}

func (f *fakeAgentStore) GetAgentByEmail(_ context.Context, email string) (store.Agent, error) {
	agent, ok := f.agents[email]
	if !ok {
		return store.Agent{}, store.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgentStore) CreateAgent(_ context.Context, agent store.Agent) error {
	f.agents[agent.Email] = agent
	return nil
}

func (f *fakeAgentStore) TouchAgentLogin(_ context.Context, userID string) error {
	f.logins = append(f.logins, userID)
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	fake := newFakeAgentStore()
	service := NewService(fake)
	ctx := context.Background()

	agent, err := service.SignUp(ctx, SignUpRequest{
		Email:    "Priya@Example.com",
		Password: "correct horse",
		Username: "Priya",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if agent.UserID == "" {
		t.Error("expected generated user id")
	}
	if agent.Email != "priya@example.com" {
		t.Errorf("email not normalized: %q", agent.Email)
	}
	if agent.Role != "Employee" {
		t.Errorf("expected default role Employee, got %q", agent.Role)
	}

	signedIn, err := service.SignIn(ctx, "priya@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signedIn.UserID != agent.UserID {
		t.Errorf("signed in as %q, expected %q", signedIn.UserID, agent.UserID)
	}
	if len(fake.logins) != 1 || fake.logins[0] != agent.UserID {
		t.Errorf("expected one recorded login for %q, got %v", agent.UserID, fake.logins)
	}
}

func TestSignUpValidation(t *testing.T) {
	service := NewService(newFakeAgentStore())
	ctx := context.Background()

	cases := []SignUpRequest{
		{Email: "", Password: "long enough", Username: "x"},
		{Email: "a@b.c", Password: "", Username: "x"},
		{Email: "a@b.c", Password: "long enough", Username: "  "},
		{Email: "a@b.c", Password: "short", Username: "x"},
	}
	for _, req := range cases {
		if _, err := service.SignUp(ctx, req); err == nil {
			t.Errorf("expected validation error for %+v", req)
		}
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	service := NewService(newFakeAgentStore())
	ctx := context.Background()

	req := SignUpRequest{Email: "a@b.c", Password: "long enough", Username: "x"}
	if _, err := service.SignUp(ctx, req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := service.SignUp(ctx, req); err == nil {
		t.Error("expected duplicate email error")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	service := NewService(newFakeAgentStore())
	ctx := context.Background()

	if _, err := service.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "long enough", Username: "x"}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if _, err := service.SignIn(ctx, "a@b.c", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.SignIn(ctx, "nobody@b.c", "long enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
