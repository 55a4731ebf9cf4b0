package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nyaruka/gocommon/jsonx"
	"github.com/nyaruka/null/v3"
)

// QueueEntryID is the type for queue entry IDs
type QueueEntryID int

// NilQueueEntryID is the nil value for queue entry IDs
const NilQueueEntryID = QueueEntryID(0)

// QueueAction is what the caller asked for while waiting in queue
type QueueAction string

// queue action constants
const (
	QueueActionNone      = QueueAction("")
	QueueActionCallback  = QueueAction("callback")
	QueueActionVoicemail = QueueAction("voicemail")
	QueueActionTransfer  = QueueAction("transfer")
)

// FiredCalls maps an agent id to the provider call ids of the legs we fired
// at that agent's endpoints while trying to connect a queued caller
type FiredCalls map[AgentID][]string

// Value implements driver.Valuer, fired calls are stored as JSONB
func (f FiredCalls) Value() (driver.Value, error) {
	if f == nil {
		return jsonx.Marshal(FiredCalls{})
	}
	return jsonx.Marshal(f)
}

// Scan implements sql.Scanner
func (f *FiredCalls) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unable to scan fired calls from %T", value)
	}
	return jsonx.Unmarshal(b, f)
}

// QueueEntry is a call's membership in a team's queue. At most one open
// entry (dequeued_on IS NULL) exists per call, enforced by a partial unique
// index on call_id.
type QueueEntry struct {
	ID_               QueueEntryID  `db:"id"`
	CallID_           CallID        `db:"call_id"`
	TeamID_           TeamID        `db:"team_id"`
	EnteredOn_        time.Time     `db:"entered_on"`
	DequeuedOn_       *time.Time    `db:"dequeued_on"`
	ConnectedAgentID_ AgentID       `db:"connected_agent_id"`
	RequestedAction_  QueueAction   `db:"requested_action"`
	DeclinedBy_       pq.Int64Array `db:"declined_by"`
	FiredCalls_       FiredCalls    `db:"fired_calls"`
}

func (e *QueueEntry) ID() QueueEntryID           { return e.ID_ }
func (e *QueueEntry) CallID() CallID             { return e.CallID_ }
func (e *QueueEntry) TeamID() TeamID             { return e.TeamID_ }
func (e *QueueEntry) EnteredOn() time.Time       { return e.EnteredOn_ }
func (e *QueueEntry) DequeuedOn() *time.Time     { return e.DequeuedOn_ }
func (e *QueueEntry) ConnectedAgentID() AgentID  { return e.ConnectedAgentID_ }
func (e *QueueEntry) RequestedAction() QueueAction { return e.RequestedAction_ }
func (e *QueueEntry) FiredCalls() FiredCalls     { return e.FiredCalls_ }

// DeclinedBy returns the ids of agents who declined this queued call
func (e *QueueEntry) DeclinedBy() []AgentID {
	ids := make([]AgentID, len(e.DeclinedBy_))
	for i, id := range e.DeclinedBy_ {
		ids[i] = AgentID(id)
	}
	return ids
}

const sqlSelectQueueEntry = `
SELECT id, call_id, team_id, entered_on, dequeued_on, connected_agent_id, requested_action, declined_by, fired_calls
  FROM calls_queueentry`

// GetOpenQueueEntry loads the open queue entry for the passed in call, nil
// if the call isn't queued
func GetOpenQueueEntry(ctx context.Context, db Queryer, callID CallID) (*QueueEntry, error) {
	e := &QueueEntry{}
	err := db.GetContext(ctx, e, sqlSelectQueueEntry+` WHERE call_id = $1 AND dequeued_on IS NULL`, callID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load queue entry for call %d: %w", callID, err)
	}
	return e, nil
}

// GetOpenQueueEntriesForTeam loads all open entries for a team, oldest first
func GetOpenQueueEntriesForTeam(ctx context.Context, db Queryer, teamID TeamID) ([]*QueueEntry, error) {
	entries := make([]*QueueEntry, 0, 8)
	err := db.SelectContext(ctx, &entries, sqlSelectQueueEntry+` WHERE team_id = $1 AND dequeued_on IS NULL ORDER BY entered_on`, teamID)
	if err != nil {
		return nil, fmt.Errorf("unable to load queue entries for team %d: %w", teamID, err)
	}
	return entries, nil
}

const sqlInsertQueueEntry = `
INSERT INTO calls_queueentry(call_id, team_id, entered_on, declined_by, fired_calls)
                      VALUES($1, $2, $3, '{}', '{}')
ON CONFLICT (call_id) WHERE dequeued_on IS NULL DO NOTHING
RETURNING id`

// InsertQueueEntry creates an open queue entry for the passed in call. This
// is idempotent, a retried webhook that races an existing open entry gets
// that entry back unchanged.
func InsertQueueEntry(ctx context.Context, db Queryer, callID CallID, teamID TeamID, enteredOn time.Time) (*QueueEntry, error) {
	e := &QueueEntry{CallID_: callID, TeamID_: teamID, EnteredOn_: enteredOn, DeclinedBy_: pq.Int64Array{}, FiredCalls_: FiredCalls{}}

	err := db.GetContext(ctx, &e.ID_, sqlInsertQueueEntry, callID, teamID, enteredOn)
	if err == sql.ErrNoRows {
		// conflict with an existing open entry, return that one
		return GetOpenQueueEntry(ctx, db, callID)
	}
	if err != nil {
		return nil, fmt.Errorf("error inserting queue entry for call %d: %w", callID, err)
	}
	return e, nil
}

// AssignConnectedAgent records which agent picked up the queued call, first
// assignment wins. Returns whether this assignment was applied.
func (e *QueueEntry) AssignConnectedAgent(ctx context.Context, db Queryer, agentID AgentID) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_queueentry SET connected_agent_id = $2 WHERE id = $1 AND connected_agent_id IS NULL`,
		e.ID_, agentID,
	)
	if err != nil {
		return false, fmt.Errorf("error assigning agent %d to queue entry %d: %w", agentID, e.ID_, err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		e.ConnectedAgentID_ = agentID
		return true, nil
	}
	return false, nil
}

// Close dequeues the entry with the passed in outcome, a no-op if already
// closed. Returns whether this caller closed it.
func (e *QueueEntry) Close(ctx context.Context, db Queryer, action QueueAction, dequeuedOn time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_queueentry SET dequeued_on = $2, requested_action = $3 WHERE id = $1 AND dequeued_on IS NULL`,
		e.ID_, dequeuedOn, action,
	)
	if err != nil {
		return false, fmt.Errorf("error closing queue entry %d: %w", e.ID_, err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		e.DequeuedOn_ = &dequeuedOn
		e.RequestedAction_ = action
		return true, nil
	}
	return false, nil
}

// AddDeclinedBy records an agent who declined the queued call, once
func (e *QueueEntry) AddDeclinedBy(ctx context.Context, db Queryer, agentID AgentID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE calls_queueentry SET declined_by = array_append(declined_by, $2) WHERE id = $1 AND NOT ($2 = ANY(declined_by))`,
		e.ID_, int64(agentID),
	)
	if err != nil {
		return fmt.Errorf("error recording decline on queue entry %d: %w", e.ID_, err)
	}
	e.DeclinedBy_ = append(e.DeclinedBy_, int64(agentID))
	return nil
}

// UpdateFiredCalls replaces the fired call bookkeeping for the entry
func (e *QueueEntry) UpdateFiredCalls(ctx context.Context, db Queryer, fired FiredCalls) error {
	e.FiredCalls_ = fired
	_, err := db.ExecContext(ctx, `UPDATE calls_queueentry SET fired_calls = $2 WHERE id = $1`, e.ID_, fired)
	if err != nil {
		return fmt.Errorf("error updating fired calls on queue entry %d: %w", e.ID_, err)
	}
	return nil
}

// RecordQueueStats writes the stats row for a closed queue entry so
// reporting doesn't have to scan the live queue table
func RecordQueueStats(ctx context.Context, db Queryer, e *QueueEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO calls_queuestats(call_id, team_id, entered_on, dequeued_on, connected_agent_id, requested_action)
		      VALUES($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (call_id) DO NOTHING`,
		e.CallID_, e.TeamID_, e.EnteredOn_, e.DequeuedOn_, e.ConnectedAgentID_, e.RequestedAction_,
	)
	if err != nil {
		return fmt.Errorf("error recording queue stats for call %d: %w", e.CallID_, err)
	}
	return nil
}

func (i *QueueEntryID) Scan(value any) error         { return null.ScanInt(value, i) }
func (i QueueEntryID) Value() (driver.Value, error)  { return null.IntValue(i) }
func (i *QueueEntryID) UnmarshalJSON(b []byte) error { return null.UnmarshalInt(b, i) }
func (i QueueEntryID) MarshalJSON() ([]byte, error)  { return null.MarshalInt(i) }
