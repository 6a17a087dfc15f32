// Package routing turns an incoming support conversation into a routed,
// assigned ticket: rule evaluation narrows the agent pool, the assignment
// oracle picks the best agent, and the ledger persists the ticket together
// with the agent's workload effects.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"deskwire/api/internal/oracle"
	"deskwire/api/internal/store"
)

var ErrValidation = errors.New("invalid conversation")

// Conversation is the inbound support conversation to route.
type Conversation struct {
	ID         string                `json:"id"`
	Category   string                `json:"category"`
	Priority   string                `json:"priority"`
	Status     string                `json:"status"`
	CustomerID string                `json:"customerID"`
	Messages   []store.TicketMessage `json:"messages"`
}

// Store is the persistence surface for routing and the ticket ledger.
type Store interface {
	ListAgents(ctx context.Context) ([]store.Agent, error)
	AvgResolutionTime(ctx context.Context, category string) (*int, error)
	CreateTicketIfAbsent(ctx context.Context, ticket store.Ticket) (bool, error)
	TicketsByAgent(ctx context.Context, agentID string) ([]store.Ticket, error)
}

// RuleLister provides the ordered rule set.
type RuleLister interface {
	List(ctx context.Context) ([]store.WorkflowRule, error)
}

// Oracle scores a conversation against candidate agents.
type Oracle interface {
	Analyze(ctx context.Context, req oracle.Request) (oracle.Decision, error)
}

// Notifier receives best-effort events after a ticket lands.
type Notifier interface {
	TicketAssigned(ctx context.Context, ticket store.Ticket) error
}

// Mailer sends the assignment notification to the chosen agent.
type Mailer interface {
	NotifyAssignment(agent store.Agent, ticket store.Ticket) error
}

// Indexer pushes created tickets into the search index.
type Indexer interface {
	IndexTicket(ticket store.Ticket)
}

type Engine struct {
	store    Store
	rules    RuleLister
	oracle   Oracle
	notifier Notifier
	mailer   Mailer
	indexer  Indexer
}

// New creates a routing engine. notifier, mailer, and indexer may be nil;
// their side effects are best-effort and never block or fail a routing.
func New(st Store, ruleLister RuleLister, scorer Oracle, notifier Notifier, mailer Mailer, indexer Indexer) *Engine {
	return &Engine{
		store:    st,
		rules:    ruleLister,
		oracle:   scorer,
		notifier: notifier,
		mailer:   mailer,
		indexer:  indexer,
	}
}

// RouteTicket routes the conversation and persists the resulting ticket.
// If the oracle fails, no ticket is persisted. Creating the same
// conversation id twice leaves exactly one ticket and increments the chosen
// agent's workload at most once.
func (e *Engine) RouteTicket(ctx context.Context, conv Conversation) (store.Ticket, bool, error) {
	if conv.ID == "" || conv.Category == "" {
		return store.Ticket{}, false, fmt.Errorf("%w: id and category are required", ErrValidation)
	}

	ruleSet, err := e.rules.List(ctx)
	if err != nil {
		return store.Ticket{}, false, fmt.Errorf("load rules: %w", err)
	}

	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return store.Ticket{}, false, fmt.Errorf("load agents: %w", err)
	}

	targetTeam := matchRouteTeam(ruleSet, conv.Category)
	candidates := filterByTeam(agents, targetTeam)

	historicalAvg, err := e.store.AvgResolutionTime(ctx, conv.Category)
	if err != nil {
		return store.Ticket{}, false, fmt.Errorf("historical average: %w", err)
	}

	decision, err := e.oracle.Analyze(ctx, oracle.Request{
		Category:      conv.Category,
		Messages:      conv.Messages,
		Agents:        candidates,
		Rules:         ruleSet,
		HistoricalAvg: historicalAvg,
	})
	if err != nil {
		return store.Ticket{}, false, err
	}

	// The oracle's pick must come from the candidate pool; anything else is
	// coerced to unassigned at this boundary.
	chosen := pickCandidate(candidates, decision.BestAgentID)

	status := conv.Status
	if status == "" {
		status = "open"
	}

	ticket := store.Ticket{
		ID:                      conv.ID,
		Category:                conv.Category,
		Priority:                conv.Priority,
		Sentiment:               decision.Sentiment,
		Summary:                 decision.Summary,
		Status:                  status,
		CustomerID:              conv.CustomerID,
		Messages:                conv.Messages,
		EstimatedResolutionTime: decision.EstimatedResolutionTime,
	}
	if chosen != nil {
		ticket.AgentID = chosen.UserID
	}

	created, err := e.store.CreateTicketIfAbsent(ctx, ticket)
	if err != nil {
		return store.Ticket{}, false, fmt.Errorf("persist ticket: %w", err)
	}

	if created {
		e.fanOut(ctx, ticket, chosen)
	}
	return ticket, created, nil
}

// fanOut runs the post-persist side effects. Failures are logged, never
// surfaced: the ticket is already durable.
func (e *Engine) fanOut(ctx context.Context, ticket store.Ticket, agent *store.Agent) {
	if e.notifier != nil {
		if err := e.notifier.TicketAssigned(ctx, ticket); err != nil {
			log.Printf("routing: publish ticket %s: %v", ticket.ID, err)
		}
	}
	if e.mailer != nil && agent != nil {
		if err := e.mailer.NotifyAssignment(*agent, ticket); err != nil {
			log.Printf("routing: notify agent %s: %v", agent.UserID, err)
		}
	}
	if e.indexer != nil {
		e.indexer.IndexTicket(ticket)
	}
}

// TicketsByAgent resolves the agent's ticket index into full records.
func (e *Engine) TicketsByAgent(ctx context.Context, agentID string) ([]store.Ticket, error) {
	return e.store.TicketsByAgent(ctx, agentID)
}

// matchRouteTeam walks the rule set in ascending priority order and returns
// the routeTeam of the first matching route_to rule with the category
// trigger, or "" when nothing matches.
func matchRouteTeam(ruleSet []store.WorkflowRule, category string) string {
	for _, rule := range ruleSet {
		if rule.Trigger != "category" || rule.Action != "route_to" {
			continue
		}
		if conditionMatches(rule.Condition, category, rule.Value) {
			return rule.RouteTeam
		}
	}
	return ""
}

func conditionMatches(condition, subject, value string) bool {
	subject = strings.ToLower(subject)
	value = strings.ToLower(value)
	switch condition {
	case "equals":
		return subject == value
	case "contains":
		return strings.Contains(subject, value)
	case "starts_with":
		return strings.HasPrefix(subject, value)
	case "ends_with":
		return strings.HasSuffix(subject, value)
	default:
		return false
	}
}

// filterByTeam narrows the pool to members of the target team. An empty
// target means no rule matched and every agent stays eligible.
func filterByTeam(agents []store.Agent, teamName string) []store.Agent {
	if teamName == "" {
		return agents
	}
	filtered := make([]store.Agent, 0, len(agents))
	for _, agent := range agents {
		for _, ref := range agent.Teams {
			if ref.TeamName == teamName {
				filtered = append(filtered, agent)
				break
			}
		}
	}
	return filtered
}

func pickCandidate(candidates []store.Agent, agentID string) *store.Agent {
	if agentID == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].UserID == agentID {
			return &candidates[i]
		}
	}
	log.Printf("routing: oracle picked %s outside candidate pool, leaving unassigned", agentID)
	return nil
}
