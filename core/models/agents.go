package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nyaruka/null/v3"
)

// AgentID is the type for agent (user) IDs
type AgentID int

// NilAgentID is the nil value for agent IDs
const NilAgentID = AgentID(0)

// AgentStatus is the type for an agent's call availability
type AgentStatus string

// agent status constants. NotAvailable is an explicit user choice and is
// sticky, automatic call teardown must never flip it back to Available.
const (
	AgentAvailable    = AgentStatus("A")
	AgentBusy         = AgentStatus("B")
	AgentNotAvailable = AgentStatus("N")
)

// membership role constants. Only working agents take inbound calls,
// dispatchers and auditors belong to teams for routing visibility only.
const (
	RoleWorkingAgent = "working_agent"
	RoleDispatcher   = "dispatcher"
	RoleAuditor      = "auditor"
)

// Agent is a CRM user who can take calls. Role, Booked and MemberSince are
// only populated when the agent was loaded through a team membership.
type Agent struct {
	ID_           AgentID        `db:"id"`
	Name_         string         `db:"name"`
	Status_       AgentStatus    `db:"status"`
	StatusSetOn_  time.Time      `db:"status_set_on"`
	Online_       bool           `db:"online"`
	SipEndpoints_ pq.StringArray `db:"sip_endpoints"`
	TeamID_       TeamID         `db:"team_id"`
	Role_         string         `db:"role"`
	Booked_       int            `db:"booked"`
	MemberSince_  time.Time      `db:"member_since"`
}

func (a *Agent) ID() AgentID            { return a.ID_ }
func (a *Agent) Name() string           { return a.Name_ }
func (a *Agent) Status() AgentStatus    { return a.Status_ }
func (a *Agent) Online() bool           { return a.Online_ }
func (a *Agent) SipEndpoints() []string { return a.SipEndpoints_ }
func (a *Agent) TeamID() TeamID         { return a.TeamID_ }
func (a *Agent) Role() string           { return a.Role_ }
func (a *Agent) Booked() int            { return a.Booked_ }
func (a *Agent) MemberSince() time.Time { return a.MemberSince_ }

// CallEligible returns whether this membership's role takes inbound calls
func (a *Agent) CallEligible() bool { return a.Role_ == RoleWorkingAgent }

const sqlSelectAgent = `
SELECT a.id, a.name, a.status, a.status_set_on, a.online, a.sip_endpoints, '' AS role, 0 AS booked, NOW() AS member_since,
       COALESCE((SELECT m.team_id FROM agents_teammember m WHERE m.agent_id = a.id ORDER BY m.created_on LIMIT 1), 0) AS team_id
  FROM agents_agent a
 WHERE a.id = $1`

// GetAgent loads an agent by id along with their primary team, nil if none
// exists
func GetAgent(ctx context.Context, db Queryer, id AgentID) (*Agent, error) {
	a := &Agent{}
	err := db.GetContext(ctx, a, sqlSelectAgent, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load agent %d: %w", id, err)
	}
	return a, nil
}

const sqlSelectTeamAgents = `
SELECT a.id, a.name, a.status, a.status_set_on, a.online, a.sip_endpoints, m.role, m.booked, m.created_on AS member_since
  FROM agents_agent a
  JOIN agents_teammember m ON m.agent_id = a.id
 WHERE m.team_id = $1
 ORDER BY a.id`

// GetTeamAgents loads the agents belonging to the passed in team along with
// their membership role and booking load
func GetTeamAgents(ctx context.Context, db Queryer, teamID TeamID) ([]*Agent, error) {
	agents := make([]*Agent, 0, 8)
	err := db.SelectContext(ctx, &agents, sqlSelectTeamAgents, teamID)
	if err != nil {
		return nil, fmt.Errorf("unable to load agents for team %d: %w", teamID, err)
	}
	return agents, nil
}

// UpdateAgentStatus conditionally moves an agent from one status to another,
// returning whether the transition was applied. Writes are conditioned on
// the stored status so concurrent teardown paths can't clobber each other.
func UpdateAgentStatus(ctx context.Context, db Queryer, id AgentID, from, to AgentStatus) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE agents_agent SET status = $3, status_set_on = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("error updating status of agent %d: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (i *AgentID) Scan(value any) error         { return null.ScanInt(value, i) }
func (i AgentID) Value() (driver.Value, error)  { return null.IntValue(i) }
func (i *AgentID) UnmarshalJSON(b []byte) error { return null.UnmarshalInt(b, i) }
func (i AgentID) MarshalJSON() ([]byte, error)  { return null.MarshalInt(i) }
