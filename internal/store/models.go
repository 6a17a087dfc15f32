package store

import "time"

// Member is an agent's presence record inside one team. ConnectionID is the
// transient socket identifier for the member's current connection; it is
// rewritten on every reconnect and is never used as an identity key.
type Member struct {
	ConnectionID string `json:"connectionID"`
	UserID       string `json:"userID"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Active       bool   `json:"active"`
}

// ChatMessage is one entry in a team's append-only chat transcript.
// Order in the stored array is hub arrival order, not wall-clock order.
type ChatMessage struct {
	SenderID   string `json:"senderID"`
	SenderName string `json:"senderName"`
	Body       string `json:"body"`
	SentAt     int64  `json:"sentAt"`
}

type Team struct {
	ID        string        `json:"teamID"`
	Name      string        `json:"teamName"`
	Capacity  int           `json:"teamCapacity"`
	Members   []Member      `json:"teamMembers"`
	Chats     []ChatMessage `json:"-"`
	CreatedAt time.Time     `json:"-"`
}

// TeamRef is the membership entry kept on an agent's profile.
type TeamRef struct {
	TeamID   string `json:"teamID"`
	TeamName string `json:"teamName"`
}

type Agent struct {
	UserID            string    `json:"userID"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Role              string    `json:"role"`
	Teams             []TeamRef `json:"teams"`
	Workload          int       `json:"workload"`
	AvgResolutionTime int       `json:"avgResolutionTime"`
	SatisfactionScore float64   `json:"satisfactionScore"`
	LastLogin         time.Time `json:"lastLogin"`
	PasswordHash      string    `json:"-"`
}

// WorkflowRule is one entry of the ordered routing rule set. Priorities form
// a dense 1..N sequence; rules are evaluated ascending, priority 1 first.
type WorkflowRule struct {
	ID        string `json:"id"`
	Trigger   string `json:"trigger"`
	Condition string `json:"condition"`
	Value     string `json:"value"`
	Action    string `json:"action"`
	RouteTeam string `json:"routeTeam"`
	Color     string `json:"color"`
	Priority  int    `json:"priority"`
}

// TicketMessage is one line of a support conversation transcript.
type TicketMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type Ticket struct {
	ID                      string          `json:"id"`
	Category                string          `json:"category"`
	Priority                string          `json:"priority"`
	Sentiment               string          `json:"sentiment"`
	Summary                 string          `json:"summary"`
	Status                  string          `json:"status"`
	CustomerID              string          `json:"customerID"`
	AgentID                 string          `json:"agentID"`
	Messages                []TicketMessage `json:"messages"`
	EstimatedResolutionTime *int            `json:"estimatedResolutionTime"`
	CreatedAt               time.Time       `json:"createdAt"`
}

// Solution is a resolved-ticket record used for historical resolution-time
// averages per category.
type Solution struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	ResolutionTime int    `json:"resolutionTime"`
}
