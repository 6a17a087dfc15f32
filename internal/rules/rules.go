// Package rules maintains the ordered workflow rule set used for ticket
// routing. Priorities always form a dense 1..N sequence: creation appends at
// the end, deletion closes the gap, and reorder rewrites the whole sequence.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"deskwire/api/internal/store"
)

var (
	ErrNotFound   = errors.New("workflow rule not found")
	ErrValidation = errors.New("invalid workflow rule")
)

var allowedTriggers = map[string]struct{}{
	"category":  {},
	"messages":  {},
	"priority":  {},
	"sentiment": {},
}

var allowedConditions = map[string]struct{}{
	"contains":    {},
	"equals":      {},
	"starts_with": {},
	"ends_with":   {},
}

var allowedActions = map[string]struct{}{
	"route_to": {},
}

// Store is the persistence surface; the renumbering operations are atomic at
// the store, so readers never see a partially renumbered sequence.
type Store interface {
	ListRules(ctx context.Context) ([]store.WorkflowRule, error)
	GetRule(ctx context.Context, ruleID string) (store.WorkflowRule, error)
	InsertRule(ctx context.Context, rule store.WorkflowRule) (store.WorkflowRule, error)
	UpdateRule(ctx context.Context, rule store.WorkflowRule) error
	ReorderRules(ctx context.Context, orderedIDs []string) error
	DeleteRule(ctx context.Context, ruleID string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns all rules sorted ascending by priority.
func (s *Service) List(ctx context.Context) ([]store.WorkflowRule, error) {
	return s.store.ListRules(ctx)
}

// Create validates the rule and appends it with the next priority.
func (s *Service) Create(ctx context.Context, rule store.WorkflowRule) (store.WorkflowRule, error) {
	if err := validate(rule); err != nil {
		return store.WorkflowRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	created, err := s.store.InsertRule(ctx, rule)
	if err != nil {
		return store.WorkflowRule{}, fmt.Errorf("create rule: %w", err)
	}
	return created, nil
}

// Patch holds the fields an update may change; nil fields are untouched.
// Bulk priority changes should go through Reorder, but a single priority
// edit is allowed here for parity with ad hoc administrator edits.
type Patch struct {
	Trigger   *string `json:"trigger"`
	Condition *string `json:"condition"`
	Value     *string `json:"value"`
	Action    *string `json:"action"`
	RouteTeam *string `json:"routeTeam"`
	Color     *string `json:"color"`
	Priority  *int    `json:"priority"`
}

func (s *Service) Update(ctx context.Context, ruleID string, patch Patch) (store.WorkflowRule, error) {
	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.WorkflowRule{}, ErrNotFound
		}
		return store.WorkflowRule{}, fmt.Errorf("load rule: %w", err)
	}

	if patch.Trigger != nil {
		rule.Trigger = *patch.Trigger
	}
	if patch.Condition != nil {
		rule.Condition = *patch.Condition
	}
	if patch.Value != nil {
		rule.Value = *patch.Value
	}
	if patch.Action != nil {
		rule.Action = *patch.Action
	}
	if patch.RouteTeam != nil {
		rule.RouteTeam = *patch.RouteTeam
	}
	if patch.Color != nil {
		rule.Color = *patch.Color
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}

	if err := validate(rule); err != nil {
		return store.WorkflowRule{}, err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.WorkflowRule{}, ErrNotFound
		}
		return store.WorkflowRule{}, fmt.Errorf("update rule: %w", err)
	}
	return rule, nil
}

// Reorder reassigns priority = index + 1 for the given full ordering.
func (s *Service) Reorder(ctx context.Context, orderedIDs []string) ([]store.WorkflowRule, error) {
	if len(orderedIDs) == 0 {
		return nil, fmt.Errorf("%w: empty ordering", ErrValidation)
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, ruleID := range orderedIDs {
		if _, dup := seen[ruleID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %s", ErrValidation, ruleID)
		}
		seen[ruleID] = struct{}{}
	}

	if err := s.store.ReorderRules(ctx, orderedIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reorder rules: %w", err)
	}
	return s.store.ListRules(ctx)
}

// Delete removes the rule and closes the priority gap.
func (s *Service) Delete(ctx context.Context, ruleID string) ([]store.WorkflowRule, error) {
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete rule: %w", err)
	}
	return s.store.ListRules(ctx)
}

func validate(rule store.WorkflowRule) error {
	if _, ok := allowedTriggers[rule.Trigger]; !ok {
		return fmt.Errorf("%w: trigger %q", ErrValidation, rule.Trigger)
	}
	if _, ok := allowedConditions[rule.Condition]; !ok {
		return fmt.Errorf("%w: condition %q", ErrValidation, rule.Condition)
	}
	if _, ok := allowedActions[rule.Action]; !ok {
		return fmt.Errorf("%w: action %q", ErrValidation, rule.Action)
	}
	if rule.Value == "" {
		return fmt.Errorf("%w: value is required", ErrValidation)
	}
	if rule.Action == "route_to" && rule.RouteTeam == "" {
		return fmt.Errorf("%w: route_to requires a routeTeam", ErrValidation)
	}
	return nil
}
