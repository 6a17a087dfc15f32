package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNotFound is returned when a team, agent, rule, or ticket is absent.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- Teams ----

func (s *PostgresStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, capacity, members
		FROM teams
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var item Team
		var members []byte
		if err := rows.Scan(&item.ID, &item.Name, &item.Capacity, &members); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		if err := json.Unmarshal(members, &item.Members); err != nil {
			return nil, fmt.Errorf("decode team members: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var item Team
	var members, chats []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, capacity, members, chats, created_at
		FROM teams
		WHERE id=$1
	`, teamID).Scan(&item.ID, &item.Name, &item.Capacity, &members, &chats, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("get team: %w", err)
	}
	if err := json.Unmarshal(members, &item.Members); err != nil {
		return Team{}, fmt.Errorf("decode team members: %w", err)
	}
	if err := json.Unmarshal(chats, &item.Chats); err != nil {
		return Team{}, fmt.Errorf("decode team chats: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertTeam(ctx context.Context, item Team) error {
	members := item.Members
	if members == nil {
		members = []Member{}
	}
	encoded, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode team members: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, capacity, members)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Name, item.Capacity, encoded)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, teamID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id=$1`, teamID)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return nil
}

// AppendTeamMember appends the member to the team's roster unless a member
// with the same userID already exists. The guard rides in the UPDATE itself,
// so two racing joins for the same user cannot both append. Returns the
// roster after the operation and whether the member was actually added.
func (s *PostgresStore) AppendTeamMember(ctx context.Context, teamID string, m Member) ([]Member, bool, error) {
	current, err := s.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, false, err
	}

	entry, err := json.Marshal([]Member{m})
	if err != nil {
		return nil, false, fmt.Errorf("encode member: %w", err)
	}
	probe, err := json.Marshal([]map[string]string{{"userID": m.UserID}})
	if err != nil {
		return nil, false, fmt.Errorf("encode member probe: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, `
		UPDATE teams
		SET members = members || $2::jsonb
		WHERE id = $1 AND NOT members @> $3::jsonb
		RETURNING members
	`, teamID, entry, probe).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		// userID already present; the roster read above is the final state
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("append team member: %w", err)
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, false, fmt.Errorf("decode team members: %w", err)
	}
	return members, true, nil
}

// UpdateMemberConnection rewrites the connection handle of the member with the
// given userID in place, preserving roster order. Returns false when the team
// has no such member.
func (s *PostgresStore) UpdateMemberConnection(ctx context.Context, teamID, userID, connectionID string) ([]Member, bool, error) {
	probe, err := json.Marshal([]map[string]string{{"userID": userID}})
	if err != nil {
		return nil, false, fmt.Errorf("encode member probe: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, `
		UPDATE teams
		SET members = (
			SELECT COALESCE(jsonb_agg(
				CASE WHEN elem->>'userID' = $2
					THEN jsonb_set(elem, '{connectionID}', to_jsonb($3::text))
					ELSE elem
				END ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(members) WITH ORDINALITY AS t(elem, ord)
		)
		WHERE id = $1 AND members @> $4::jsonb
		RETURNING members
	`, teamID, userID, connectionID, probe).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update member connection: %w", err)
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, false, fmt.Errorf("decode team members: %w", err)
	}
	return members, true, nil
}

// RemoveTeamMember removes the member from the team roster and the team from
// the agent's team set in one transaction. The relation is bidirectional:
// either both sides are updated or neither is.
func (s *PostgresStore) RemoveTeamMember(ctx context.Context, teamID, userID string) ([]Member, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin remove member tx: %w", err)
	}
	defer tx.Rollback()

	probe, err := json.Marshal([]map[string]string{{"userID": userID}})
	if err != nil {
		return nil, false, fmt.Errorf("encode member probe: %w", err)
	}

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		UPDATE teams
		SET members = (
			SELECT COALESCE(jsonb_agg(elem ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(members) WITH ORDINALITY AS t(elem, ord)
			WHERE elem->>'userID' <> $2
		)
		WHERE id = $1 AND members @> $3::jsonb
		RETURNING members
	`, teamID, userID, probe).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("remove team member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET teams = (
			SELECT COALESCE(jsonb_agg(elem ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(teams) WITH ORDINALITY AS t(elem, ord)
			WHERE elem->>'teamID' <> $2
		)
		WHERE user_id = $1
	`, userID, teamID); err != nil {
		return nil, false, fmt.Errorf("remove agent team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit remove member tx: %w", err)
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, false, fmt.Errorf("decode team members: %w", err)
	}
	return members, true, nil
}

// AppendTeamChat appends one message to the team's transcript. The append is
// a single guarded UPDATE, so interleaved senders serialize at the row.
func (s *PostgresStore) AppendTeamChat(ctx context.Context, teamID string, msg ChatMessage) error {
	entry, err := json.Marshal([]ChatMessage{msg})
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET chats = chats || $2::jsonb WHERE id = $1
	`, teamID, entry)
	if err != nil {
		return fmt.Errorf("append team chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append team chat result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TeamChats(ctx context.Context, teamID string) ([]ChatMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT chats FROM teams WHERE id=$1`, teamID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team chats: %w", err)
	}
	chats := make([]ChatMessage, 0)
	if err := json.Unmarshal(raw, &chats); err != nil {
		return nil, fmt.Errorf("decode team chats: %w", err)
	}
	return chats, nil
}

func (s *PostgresStore) TeamMembers(ctx context.Context, teamID string) ([]Member, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT members FROM teams WHERE id=$1`, teamID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team members: %w", err)
	}
	members := make([]Member, 0)
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("decode team members: %w", err)
	}
	return members, nil
}

// ---- Agents ----

const agentColumns = `user_id, username, email, role, teams, workload, avg_resolution_time, satisfaction_score, last_login, password_hash`

func scanAgent(scan func(...any) error) (Agent, error) {
	var agent Agent
	var teams []byte
	if err := scan(&agent.UserID, &agent.Username, &agent.Email, &agent.Role, &teams,
		&agent.Workload, &agent.AvgResolutionTime, &agent.SatisfactionScore, &agent.LastLogin, &agent.PasswordHash); err != nil {
		return Agent{}, err
	}
	if err := json.Unmarshal(teams, &agent.Teams); err != nil {
		return Agent{}, fmt.Errorf("decode agent teams: %w", err)
	}
	return agent, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, userID string) (Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id=$1`, userID)
	agent, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *PostgresStore) GetAgentByEmail(ctx context.Context, email string) (Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE email=$1`, email)
	agent, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("get agent by email: %w", err)
	}
	return agent, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	items := make([]Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		items = append(items, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent Agent) error {
	teams := agent.Teams
	if teams == nil {
		teams = []TeamRef{}
	}
	encoded, err := json.Marshal(teams)
	if err != nil {
		return fmt.Errorf("encode agent teams: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (user_id, username, email, role, teams, workload, avg_resolution_time, satisfaction_score, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, agent.UserID, agent.Username, agent.Email, agent.Role, encoded,
		agent.Workload, agent.AvgResolutionTime, agent.SatisfactionScore, agent.PasswordHash)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchAgentLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_login=NOW() WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("touch agent login: %w", err)
	}
	return nil
}

// AddAgentTeam records the team on the agent's profile. Joining a team that
// is already listed is a no-op (set-union semantics).
func (s *PostgresStore) AddAgentTeam(ctx context.Context, userID string, ref TeamRef) error {
	entry, err := json.Marshal([]TeamRef{ref})
	if err != nil {
		return fmt.Errorf("encode team ref: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE agents
		SET teams = teams || $2::jsonb
		WHERE user_id = $1 AND NOT teams @> $2::jsonb
	`, userID, entry)
	if err != nil {
		return fmt.Errorf("add agent team: %w", err)
	}
	return nil
}

// ---- Workflow rules ----

const ruleColumns = `id, trigger, condition, value, action, route_team, color, priority`

func (s *PostgresStore) ListRules(ctx context.Context) ([]WorkflowRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM workflow_rules ORDER BY priority ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	items := make([]WorkflowRule, 0)
	for rows.Next() {
		var item WorkflowRule
		if err := rows.Scan(&item.ID, &item.Trigger, &item.Condition, &item.Value,
			&item.Action, &item.RouteTeam, &item.Color, &item.Priority); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetRule(ctx context.Context, ruleID string) (WorkflowRule, error) {
	var item WorkflowRule
	err := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM workflow_rules WHERE id=$1`, ruleID).
		Scan(&item.ID, &item.Trigger, &item.Condition, &item.Value,
			&item.Action, &item.RouteTeam, &item.Color, &item.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkflowRule{}, ErrNotFound
	}
	if err != nil {
		return WorkflowRule{}, fmt.Errorf("get rule: %w", err)
	}
	return item, nil
}

// InsertRule appends the rule at the end of the evaluation order
// (priority = current max + 1; new rules are lowest precedence).
func (s *PostgresStore) InsertRule(ctx context.Context, rule WorkflowRule) (WorkflowRule, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workflow_rules (id, trigger, condition, value, action, route_team, color, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			(SELECT COALESCE(MAX(priority), 0) + 1 FROM workflow_rules))
		RETURNING priority
	`, rule.ID, rule.Trigger, rule.Condition, rule.Value, rule.Action, rule.RouteTeam, rule.Color).
		Scan(&rule.Priority)
	if err != nil {
		return WorkflowRule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule WorkflowRule) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_rules
		SET trigger=$2, condition=$3, value=$4, action=$5, route_team=$6, color=$7, priority=$8
		WHERE id=$1
	`, rule.ID, rule.Trigger, rule.Condition, rule.Value, rule.Action, rule.RouteTeam, rule.Color, rule.Priority)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderRules reassigns priority = index + 1 for the given full ordering in
// one transaction. A reader never observes a partially renumbered sequence.
func (s *PostgresStore) ReorderRules(ctx context.Context, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_rules`).Scan(&total); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	if total != len(orderedIDs) {
		return fmt.Errorf("reorder expects all %d rules, got %d: %w", total, len(orderedIDs), ErrNotFound)
	}

	// Lift everything out of the dense range first so intermediate states
	// cannot collide with the target priorities.
	if _, err := tx.ExecContext(ctx, `UPDATE workflow_rules SET priority = priority + $1`, total); err != nil {
		return fmt.Errorf("stage reorder: %w", err)
	}

	for index, ruleID := range orderedIDs {
		result, err := tx.ExecContext(ctx, `UPDATE workflow_rules SET priority=$2 WHERE id=$1`, ruleID, index+1)
		if err != nil {
			return fmt.Errorf("reorder rule %s: %w", ruleID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder rule %s result: %w", ruleID, err)
		}
		if affected == 0 {
			return fmt.Errorf("reorder rule %s: %w", ruleID, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder tx: %w", err)
	}
	return nil
}

// DeleteRule removes the rule and closes the priority gap, decrementing every
// rule that followed it, atomically.
func (s *PostgresStore) DeleteRule(ctx context.Context, ruleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete rule tx: %w", err)
	}
	defer tx.Rollback()

	var deleted int
	err = tx.QueryRowContext(ctx, `DELETE FROM workflow_rules WHERE id=$1 RETURNING priority`, ruleID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_rules SET priority = priority - 1 WHERE priority > $1
	`, deleted); err != nil {
		return fmt.Errorf("close priority gap: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete rule tx: %w", err)
	}
	return nil
}

// ---- Tickets ----

const ticketColumns = `id, category, priority, sentiment, summary, status, customer_id, agent_id, messages, estimated_resolution_time, created_at`

func scanTicket(scan func(...any) error) (Ticket, error) {
	var item Ticket
	var messages []byte
	var estimate sql.NullInt64
	if err := scan(&item.ID, &item.Category, &item.Priority, &item.Sentiment, &item.Summary,
		&item.Status, &item.CustomerID, &item.AgentID, &messages, &estimate, &item.CreatedAt); err != nil {
		return Ticket{}, err
	}
	if err := json.Unmarshal(messages, &item.Messages); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket messages: %w", err)
	}
	if estimate.Valid {
		minutes := int(estimate.Int64)
		item.EstimatedResolutionTime = &minutes
	}
	return item, nil
}

// CreateTicketIfAbsent persists the ticket unless one with the same id exists
// already. When the insert lands and an agent was chosen, the agent-ticket
// index entry and the workload increment ride in the same transaction: both
// happen exactly once, or not at all.
func (s *PostgresStore) CreateTicketIfAbsent(ctx context.Context, ticket Ticket) (bool, error) {
	messages := ticket.Messages
	if messages == nil {
		messages = []TicketMessage{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("encode ticket messages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ticket tx: %w", err)
	}
	defer tx.Rollback()

	var estimate sql.NullInt64
	if ticket.EstimatedResolutionTime != nil {
		estimate = sql.NullInt64{Int64: int64(*ticket.EstimatedResolutionTime), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, category, priority, sentiment, summary, status, customer_id, agent_id, messages, estimated_resolution_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, ticket.ID, ticket.Category, ticket.Priority, ticket.Sentiment, ticket.Summary,
		ticket.Status, ticket.CustomerID, ticket.AgentID, encoded, estimate)
	if err != nil {
		return false, fmt.Errorf("insert ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ticket result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if ticket.AgentID != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_tickets (agent_id, ticket_id) VALUES ($1, $2)
			ON CONFLICT (agent_id, ticket_id) DO NOTHING
		`, ticket.AgentID, ticket.ID); err != nil {
			return false, fmt.Errorf("index agent ticket: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE agents SET workload = workload + 1 WHERE user_id = $1
		`, ticket.AgentID); err != nil {
			return false, fmt.Errorf("increment workload: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ticket tx: %w", err)
	}
	return true, nil
}

// TicketsByAgent resolves the agent's index into full ticket records. Stale
// index entries whose ticket is gone are skipped by the join.
func (s *PostgresStore) TicketsByAgent(ctx context.Context, agentID string) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.category, t.priority, t.sentiment, t.summary, t.status,
			t.customer_id, t.agent_id, t.messages, t.estimated_resolution_time, t.created_at
		FROM agent_tickets at
		JOIN tickets t ON t.id = at.ticket_id
		WHERE at.agent_id = $1
		ORDER BY at.position
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("tickets by agent: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0)
	for rows.Next() {
		item, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SearchTickets(ctx context.Context, query string, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE summary ILIKE '%' || $1 || '%' OR category ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0)
	for rows.Next() {
		item, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

// ---- Solutions ----

// AvgResolutionTime returns the mean resolution time recorded for the
// category, rounded to whole minutes, or nil when no history exists.
func (s *PostgresStore) AvgResolutionTime(ctx context.Context, category string) (*int, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(resolution_time) FROM solutions WHERE category=$1
	`, category).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("avg resolution time: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	minutes := int(math.Round(avg.Float64))
	return &minutes, nil
}

func (s *PostgresStore) InsertSolution(ctx context.Context, solution Solution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, category, resolution_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, solution.ID, solution.Category, solution.ResolutionTime)
	if err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}
