// Package oracle asks a generative model to pick the best agent for a
// support conversation and estimate its resolution time. The model's free
// text never leaves this package; callers get a structured Decision.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"deskwire/api/internal/store"
)

// ErrOracle wraps any failure of the scoring call: transport errors,
// timeouts, and empty responses.
var ErrOracle = errors.New("assignment oracle failed")

// Request carries everything the model needs to score the conversation.
type Request struct {
	Category      string
	Messages      []store.TicketMessage
	Agents        []store.Agent
	Rules         []store.WorkflowRule
	HistoricalAvg *int
}

// Decision is the validated, structured result of one oracle call. Fields
// the model omitted are left at their neutral defaults rather than failing.
type Decision struct {
	Summary                 string
	Sentiment               string
	BestAgentID             string
	EstimatedResolutionTime *int
}

// Completer is the seam between the oracle and the model transport.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type anthropicCompleter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func (c *anthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

type Service struct {
	completer Completer
	timeout   time.Duration
}

// New creates an oracle backed by the Anthropic Messages API.
func New(apiKey, model string, timeout time.Duration) *Service {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Service{
		completer: &anthropicCompleter{
			client:    client,
			model:     anthropic.Model(model),
			maxTokens: 1024,
		},
		timeout: timeout,
	}
}

// NewWithCompleter creates an oracle over a custom transport.
func NewWithCompleter(completer Completer, timeout time.Duration) *Service {
	return &Service{completer: completer, timeout: timeout}
}

// Analyze scores the conversation. The call is bounded by the configured
// timeout; exceeding it is an oracle failure, not a hang.
func (s *Service) Analyze(ctx context.Context, req Request) (Decision, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.completer.Complete(ctx, buildPrompt(req))
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrOracle, err)
	}
	if strings.TrimSpace(text) == "" {
		return Decision{}, fmt.Errorf("%w: empty response", ErrOracle)
	}
	return parseResponse(text), nil
}

func buildPrompt(req Request) string {
	var transcript strings.Builder
	for _, msg := range req.Messages {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.From, msg.Message)
	}

	var agents strings.Builder
	for _, agent := range req.Agents {
		teams := make([]string, 0, len(agent.Teams))
		for _, ref := range agent.Teams {
			teams = append(teams, ref.TeamName)
		}
		fmt.Fprintf(&agents, `
- ID: %s
  Teams: %s
  Avg Resolution Time: %d mins
  Customer Satisfaction Score: %.1f/5
  Current Workload: %d active tickets
`, agent.UserID, strings.Join(teams, ", "), agent.AvgResolutionTime, agent.SatisfactionScore, agent.Workload)
	}

	var rules strings.Builder
	for _, rule := range req.Rules {
		routeTeam := rule.RouteTeam
		if routeTeam == "" {
			routeTeam = "N/A"
		}
		fmt.Fprintf(&rules, `
- ID: %s
  Action: %s
  Trigger: %s
  Condition: %s
  Value: %s
  Route Team: %s
  Priority: %d
`, rule.ID, rule.Action, rule.Trigger, rule.Condition, rule.Value, routeTeam, rule.Priority)
	}

	resolutionContext := "Based on the conversation, estimate the average resolution time for this issue in minutes."
	if req.HistoricalAvg != nil {
		resolutionContext = fmt.Sprintf(
			"Based on past similar cases, the average resolution time for this category is approximately %d minutes.",
			*req.HistoricalAvg)
	}

	return fmt.Sprintf(`You are an AI agent for a customer support ticketing system.

Given the following:
1. Conversation details:
Category: %s
Messages: %s

2. Available Agents:
%s

3. Workflow Rules:
%s

%s

Do the following:
- Summarize the customer's issue in one sentence.
- Predict customer sentiment as Angry, Neutral, or Happy.
- Evaluate the workflow rules based on the 'category' trigger and the current category. If a 'route_to' action is found, identify the target 'routeTeam'.
- Filter available agents to include only those who are part of the identified 'routeTeam' (if a workflow rule matched). If no workflow rule matches for routing, consider all agents.
- Choose the BEST agent from the filtered list to assign based on category, performance (low resolution time, high satisfaction), and low workload.
- Provide an estimated average resolution time for this specific issue in minutes. If historical data for this category is unavailable, make a reasonable estimation based on the conversation.

Respond ONLY in this format:
Summary: <summary>
Sentiment: <sentiment>
BestAgentID: <agent-id>
EstimatedResolutionTime: <minutes>
`, req.Category, transcript.String(), agents.String(), rules.String(), resolutionContext)
}

var (
	summaryPattern    = regexp.MustCompile(`(?i)Summary:\s*(.*)`)
	sentimentPattern  = regexp.MustCompile(`(?i)Sentiment:\s*(.*)`)
	agentPattern      = regexp.MustCompile(`(?i)BestAgentID:\s*(.*)`)
	resolutionPattern = regexp.MustCompile(`(?i)EstimatedResolutionTime:\s*(\d+)`)
)

func parseResponse(text string) Decision {
	decision := Decision{
		Summary:   "No summary available.",
		Sentiment: SentimentNeutral,
	}

	if m := summaryPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		decision.Summary = strings.TrimSpace(m[1])
	}
	if m := sentimentPattern.FindStringSubmatch(text); m != nil {
		decision.Sentiment = classifySentiment(m[1])
	}
	if m := agentPattern.FindStringSubmatch(text); m != nil {
		decision.BestAgentID = normalizeAgentID(m[1])
	}
	if m := resolutionPattern.FindStringSubmatch(text); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil {
			decision.EstimatedResolutionTime = &minutes
		}
	}
	return decision
}

// Fixed sentiment label set, each with its display glyph.
const (
	SentimentNeutral    = "\U0001F610 Neutral"
	SentimentFrustrated = "\U0001F620 Frustrated"
	SentimentHappy      = "\U0001F60A Happy"
	SentimentConfused   = "\U0001F914 Confused"
)

func classifySentiment(raw string) string {
	value := strings.ToLower(raw)
	switch {
	case strings.Contains(value, "frustrated"), strings.Contains(value, "angry"):
		return SentimentFrustrated
	case strings.Contains(value, "happy"):
		return SentimentHappy
	case strings.Contains(value, "confused"):
		return SentimentConfused
	default:
		return SentimentNeutral
	}
}

func normalizeAgentID(raw string) string {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "", "none", "null", "n/a":
		return ""
	}
	return value
}
