package email

import (
	"net/smtp"
	"strings"
	"testing"

	"deskwire/api/internal/store"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderAssignmentTemplate(t *testing.T) {
	data := AssignmentData{
		AppName:   "Deskwire",
		AgentName: "Priya",
		TicketID:  "T-42",
		Category:  "Billing",
		Priority:  "High",
		Summary:   "Customer double charged on renewal",
	}

	html, err := renderTemplate(assignmentEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Deskwire") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Priya") {
		t.Error("template should contain agent name")
	}
	if !strings.Contains(html, "T-42") {
		t.Error("template should contain ticket id")
	}
	if !strings.Contains(html, "Customer double charged on renewal") {
		t.Error("template should contain ticket summary")
	}
}

func TestNotifyAssignment(t *testing.T) {
	svc := NewService(Config{
		Host: "smtp.example.com",
		Port: "587",
		From: "noreply@example.com",
	})

	var gotTo []string
	var gotMsg []byte
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo = to
		gotMsg = msg
		return nil
	}

	agent := store.Agent{UserID: "u1", Username: "Priya", Email: "priya@example.com"}
	ticket := store.Ticket{ID: "T-42", Category: "Billing", Priority: "High", Summary: "Refund request"}

	if err := svc.NotifyAssignment(agent, ticket); err != nil {
		t.Fatalf("NotifyAssignment failed: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "priya@example.com" {
		t.Errorf("unexpected recipients: %v", gotTo)
	}
	if !strings.Contains(string(gotMsg), "T-42") {
		t.Error("message should mention ticket id")
	}
}

func TestNotifyAssignmentNoEmail(t *testing.T) {
	svc := NewService(Config{
		Host: "smtp.example.com",
		Port: "587",
		From: "noreply@example.com",
	})
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	err := svc.NotifyAssignment(store.Agent{UserID: "u1"}, store.Ticket{ID: "T-1"})
	if err == nil {
		t.Fatal("expected error for agent without email")
	}
}
