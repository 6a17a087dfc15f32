package search

import (
	"context"
	"log"

	"deskwire/api/internal/store"
)

// Fallback is the database-backed search used when Meilisearch is down.
type Fallback interface {
	SearchTickets(ctx context.Context, query string, limit int) ([]store.Ticket, error)
}

// Service is the facade that tries Meilisearch first and falls back to the
// database. meili may be nil when Meilisearch is not configured.
type Service struct {
	meili    *Meili
	fallback Fallback
}

func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise queries the database.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to database: %v", err)
	}

	tickets, err := s.fallback.SearchTickets(ctx, q.Text, q.Limit)
	if err != nil {
		log.Printf("search: database search: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results := make([]Result, 0, len(tickets))
	for _, t := range tickets {
		results = append(results, Result{
			ID:       t.ID,
			Category: t.Category,
			Priority: t.Priority,
			Summary:  t.Summary,
			Status:   t.Status,
			AgentID:  t.AgentID,
		})
	}
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexTicket pushes a routed ticket into the search index, fire-and-forget.
func (s *Service) IndexTicket(t store.Ticket) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		rec := TicketRecord{
			ID:       t.ID,
			Category: t.Category,
			Priority: t.Priority,
			Summary:  t.Summary,
			Status:   t.Status,
			AgentID:  t.AgentID,
		}
		if err := s.meili.IndexTicket(rec); err != nil {
			log.Printf("search: index ticket %s: %v", t.ID, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
