// Package events publishes domain events to a RabbitMQ topic exchange.
// Publishing is best effort: callers log and continue when a publish
// fails, so a broker outage never blocks the request path.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"deskwire/api/internal/store"
)

// Routing keys on the exchange.
const (
	KeyTicketAssigned = "ticket.assigned"
	KeyMemberJoined   = "team.member.joined"
	KeyMemberLeft     = "team.member.left"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type ticketAssignedPayload struct {
	TicketID string `json:"ticketID"`
	AgentID  string `json:"agentID"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

type membershipPayload struct {
	TeamID string `json:"teamID"`
	UserID string `json:"userID"`
}

// Publisher owns one AMQP connection and declares the topic exchange on
// startup. A fresh channel per publish keeps it safe for concurrent use.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
}

func New(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, exchange: exchange}, nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

// TicketAssigned announces that a routed ticket landed on an agent's queue.
// Unassigned tickets are announced too, with an empty agent id.
func (p *Publisher) TicketAssigned(ctx context.Context, ticket store.Ticket) error {
	return p.publish(ctx, KeyTicketAssigned, ticketAssignedPayload{
		TicketID: ticket.ID,
		AgentID:  ticket.AgentID,
		Category: ticket.Category,
		Priority: ticket.Priority,
	})
}

func (p *Publisher) MemberJoined(ctx context.Context, teamID, userID string) error {
	return p.publish(ctx, KeyMemberJoined, membershipPayload{TeamID: teamID, UserID: userID})
}

func (p *Publisher) MemberLeft(ctx context.Context, teamID, userID string) error {
	return p.publish(ctx, KeyMemberLeft, membershipPayload{TeamID: teamID, UserID: userID})
}

func (p *Publisher) publish(ctx context.Context, key string, payload any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	env := Envelope{
		ID:         uuid.NewString(),
		Name:       key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Body:         body,
	})
}
