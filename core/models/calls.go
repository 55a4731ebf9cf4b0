package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nyaruka/gocommon/uuids"
	"github.com/nyaruka/null/v3"
)

// CallID is the type for call IDs
type CallID int

// NilCallID is the nil value for call IDs
const NilCallID = CallID(0)

// CallDirection is the type for the direction of a call
type CallDirection string

// call direction constants
const (
	DirectionIn  = CallDirection("I")
	DirectionOut = CallDirection("O")
)

// CallStatus is the type for the status of a call
type CallStatus string

// call status constants
const (
	CallStatusRinging    = CallStatus("R") // provider signaled an incoming leg
	CallStatusQueued     = CallStatus("Q") // caller is waiting in a team queue
	CallStatusInProgress = CallStatus("I") // answered and connected
	CallStatusCompleted  = CallStatus("D") // terminal, normal teardown
	CallStatusMissed     = CallStatus("M") // terminal, nobody answered
	CallStatusCanceled   = CallStatus("C") // terminal, caller gave up before connect
)

// IsTerminal returns whether this status is final. Terminal calls are never
// mutated again, duplicate provider events for them are no-ops.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusMissed || s == CallStatusCanceled
}

// MissedReason is the type for why a call went unanswered
type MissedReason string

// missed reason constants
const (
	MissedNone       = MissedReason("")
	MissedNoQueue    = MissedReason("normal_no_queue")
	MissedDeclined   = MissedReason("queue_declined")
	MissedEndOfDay   = MissedReason("queue_end_of_day")
	MissedFallback   = MissedReason("fallback")
	MissedAfterHours = MissedReason("after_hours")
)

// TargetType is the type of routing destination a call was placed to
type TargetType string

// target type constants
const (
	TargetTeam       = TargetType("team")
	TargetProgram    = TargetType("program")
	TargetTeamMember = TargetType("team_member")
	TargetUser       = TargetType("user")
	TargetExternal   = TargetType("external")
)

// Call is one externally signaled phone interaction. The external id is
// stable for the life of a leg, a transfer creates a new Call linked through
// TransferredFromID rather than mutating this one.
type Call struct {
	ID_                CallID          `db:"id"`
	UUID_              uuids.UUID      `db:"uuid"`
	ExternalID_        string          `db:"external_id"`
	Direction_         CallDirection   `db:"direction"`
	Status_            CallStatus      `db:"status"`
	TargetType_        TargetType      `db:"target_type"`
	TargetID_          int             `db:"target_id"`
	FromNumber_        string          `db:"from_number"`
	ToNumber_          string          `db:"to_number"`
	AgentID_           AgentID         `db:"agent_id"`
	Answered_          bool            `db:"answered"`
	Missed_            bool            `db:"missed"`
	MissedReason_      MissedReason    `db:"missed_reason"`
	CallbackRequested_ bool            `db:"callback_requested"`
	TransferredTo_     string          `db:"transferred_to"`
	TransferredFromID_ CallID          `db:"transferred_from_id"`
	StartedOn_         *time.Time      `db:"started_on"`
	EndedOn_           *time.Time      `db:"ended_on"`
	Duration_          int             `db:"duration"`
	RecordingURL_      string          `db:"recording_url"`
	RecordingID_       string          `db:"recording_id"`
	RecordingDuration_ int             `db:"recording_duration"`
	RecordingRemoved_  bool            `db:"recording_removed"`
	DialedAgentIDs_    pq.Int64Array   `db:"dialed_agent_ids"`
	Raw_               json.RawMessage `db:"raw"`
	CreatedOn_         time.Time       `db:"created_on"`
	ModifiedOn_        time.Time       `db:"modified_on"`
}

func (c *Call) ID() CallID                  { return c.ID_ }
func (c *Call) UUID() uuids.UUID            { return c.UUID_ }
func (c *Call) ExternalID() string          { return c.ExternalID_ }
func (c *Call) Direction() CallDirection    { return c.Direction_ }
func (c *Call) Status() CallStatus          { return c.Status_ }
func (c *Call) TargetType() TargetType      { return c.TargetType_ }
func (c *Call) TargetID() int               { return c.TargetID_ }
func (c *Call) FromNumber() string          { return c.FromNumber_ }
func (c *Call) ToNumber() string            { return c.ToNumber_ }
func (c *Call) AgentID() AgentID            { return c.AgentID_ }
func (c *Call) Answered() bool              { return c.Answered_ }
func (c *Call) Missed() bool                { return c.Missed_ }
func (c *Call) MissedReason() MissedReason  { return c.MissedReason_ }
func (c *Call) CallbackRequested() bool     { return c.CallbackRequested_ }
func (c *Call) TransferredTo() string       { return c.TransferredTo_ }
func (c *Call) TransferredFromID() CallID   { return c.TransferredFromID_ }
func (c *Call) StartedOn() *time.Time       { return c.StartedOn_ }
func (c *Call) EndedOn() *time.Time         { return c.EndedOn_ }
func (c *Call) CreatedOn() time.Time        { return c.CreatedOn_ }
func (c *Call) RecordingRemoved() bool      { return c.RecordingRemoved_ }

// DialedAgentIDs returns the agents whose endpoints were rung for this call
func (c *Call) DialedAgentIDs() []AgentID {
	ids := make([]AgentID, len(c.DialedAgentIDs_))
	for i, id := range c.DialedAgentIDs_ {
		ids[i] = AgentID(id)
	}
	return ids
}

const sqlInsertCall = `
INSERT INTO calls_call(uuid, external_id, direction, status, target_type, target_id, from_number, to_number, agent_id, transferred_from_id, dialed_agent_ids, raw, created_on, modified_on)
               VALUES(:uuid, :external_id, :direction, :status, :target_type, :target_id, :from_number, :to_number, :agent_id, :transferred_from_id, :dialed_agent_ids, :raw, NOW(), NOW())
RETURNING id, created_on`

// InsertCall writes a new call record, assigning it a UUID if the caller
// didn't set one
func InsertCall(ctx context.Context, db Queryer, c *Call) error {
	if c.UUID_ == "" {
		c.UUID_ = uuids.NewV4()
	}
	if c.Raw_ == nil {
		c.Raw_ = json.RawMessage(`{}`)
	}
	if c.DialedAgentIDs_ == nil {
		c.DialedAgentIDs_ = pq.Int64Array{}
	}

	rows, err := db.NamedQueryContext(ctx, sqlInsertCall, c)
	if err != nil {
		return fmt.Errorf("error inserting call with external id %s: %w", c.ExternalID_, err)
	}
	defer rows.Close()

	rows.Next()
	if err := rows.Scan(&c.ID_, &c.CreatedOn_); err != nil {
		return fmt.Errorf("unable to scan id for new call: %w", err)
	}
	c.ModifiedOn_ = c.CreatedOn_
	return nil
}

const sqlSelectCall = `
SELECT id, uuid, external_id, direction, status, target_type, target_id, from_number, to_number, agent_id, answered, missed,
       missed_reason, callback_requested, transferred_to, transferred_from_id, started_on, ended_on, duration,
       recording_url, recording_id, recording_duration, recording_removed, dialed_agent_ids, raw, created_on, modified_on
  FROM calls_call`

// GetCallByExternalID loads the most recent call leg for the passed in
// provider call id, nil if none exists
func GetCallByExternalID(ctx context.Context, db Queryer, externalID string) (*Call, error) {
	c := &Call{}
	err := db.GetContext(ctx, c, sqlSelectCall+` WHERE external_id = $1 ORDER BY id DESC LIMIT 1`, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load call with external id %s: %w", externalID, err)
	}
	return c, nil
}

// GetCallByUUID loads a call by its internal UUID, nil if none exists
func GetCallByUUID(ctx context.Context, db Queryer, uuid string) (*Call, error) {
	c := &Call{}
	err := db.GetContext(ctx, c, sqlSelectCall+` WHERE uuid = $1`, uuid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load call with uuid %s: %w", uuid, err)
	}
	return c, nil
}

// SetDialedAgents records which agents we rang for this call so later
// dial-status events can attribute or release them
func (c *Call) SetDialedAgents(ctx context.Context, db Queryer, agentIDs []AgentID) error {
	ids := make(pq.Int64Array, len(agentIDs))
	for i, id := range agentIDs {
		ids[i] = int64(id)
	}
	c.DialedAgentIDs_ = ids

	_, err := db.ExecContext(ctx, `UPDATE calls_call SET dialed_agent_ids = $2, modified_on = NOW() WHERE id = $1`, c.ID_, ids)
	if err != nil {
		return fmt.Errorf("error setting dialed agents on call %d: %w", c.ID_, err)
	}
	return nil
}

// GetCallByID loads a call by its internal id
func GetCallByID(ctx context.Context, db Queryer, id CallID) (*Call, error) {
	c := &Call{}
	err := db.GetContext(ctx, c, sqlSelectCall+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("unable to load call with id %d: %w", id, err)
	}
	return c, nil
}

// MarkAnswered records that an agent picked up. The started on timestamp is
// only written once, a second answer event for the same leg keeps the first.
func (c *Call) MarkAnswered(ctx context.Context, db Queryer, agentID AgentID, now time.Time) error {
	c.Answered_ = true
	c.Status_ = CallStatusInProgress
	if agentID != NilAgentID {
		c.AgentID_ = agentID
	}
	if c.StartedOn_ == nil {
		c.StartedOn_ = &now
	}

	_, err := db.ExecContext(ctx,
		`UPDATE calls_call SET answered = TRUE, status = $2, agent_id = COALESCE(agent_id, $3), started_on = COALESCE(started_on, $4), modified_on = NOW() WHERE id = $1 AND status NOT IN ('D', 'M', 'C')`,
		c.ID_, c.Status_, agentID, now,
	)
	if err != nil {
		return fmt.Errorf("error marking call %d answered: %w", c.ID_, err)
	}
	return nil
}

// MarkMissed flags the call missed with the passed in reason, a no-op if the
// call already reached a terminal status
func (c *Call) MarkMissed(ctx context.Context, db Queryer, reason MissedReason) error {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_call SET missed = TRUE, missed_reason = $2, status = 'M', modified_on = NOW() WHERE id = $1 AND status NOT IN ('D', 'M', 'C')`,
		c.ID_, reason,
	)
	if err != nil {
		return fmt.Errorf("error marking call %d missed: %w", c.ID_, err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		c.Missed_ = true
		c.MissedReason_ = reason
		c.Status_ = CallStatusMissed
	}
	return nil
}

// MarkEnded writes the end time and duration with first-writer-wins
// semantics, an already set end time is never overwritten. Returns whether
// this caller won the write.
func (c *Call) MarkEnded(ctx context.Context, db Queryer, status CallStatus, endedOn time.Time, duration int) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_call SET status = $2, ended_on = $3, duration = $4, modified_on = NOW() WHERE id = $1 AND ended_on IS NULL`,
		c.ID_, status, endedOn, duration,
	)
	if err != nil {
		return false, fmt.Errorf("error marking call %d ended: %w", c.ID_, err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		c.Status_ = status
		c.EndedOn_ = &endedOn
		c.Duration_ = duration
		return true, nil
	}
	return false, nil
}

// MarkCallbackRequested records that the caller asked for a callback, a
// no-op if the call already reached a terminal status
func (c *Call) MarkCallbackRequested(ctx context.Context, db Queryer) error {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_call SET callback_requested = TRUE, modified_on = NOW() WHERE id = $1 AND status NOT IN ('D', 'M', 'C')`, c.ID_)
	if err != nil {
		return fmt.Errorf("error marking callback requested on call %d: %w", c.ID_, err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		c.CallbackRequested_ = true
	}
	return nil
}

// SetTransferredTo records the external number this call was transferred to,
// a no-op if the call already reached a terminal status
func (c *Call) SetTransferredTo(ctx context.Context, db Queryer, number string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE calls_call SET transferred_to = $2, modified_on = NOW() WHERE id = $1 AND status NOT IN ('D', 'M', 'C')`, c.ID_, number)
	if err != nil {
		return fmt.Errorf("error setting transferred to on call %d: %w", c.ID_, err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		c.TransferredTo_ = number
	}
	return nil
}

// SaveRecording persists recording metadata for the call
func (c *Call) SaveRecording(ctx context.Context, db Queryer, url, recordingID string, duration int) error {
	c.RecordingURL_ = url
	c.RecordingID_ = recordingID
	c.RecordingDuration_ = duration

	_, err := db.ExecContext(ctx,
		`UPDATE calls_call SET recording_url = $2, recording_id = $3, recording_duration = $4, modified_on = NOW() WHERE id = $1`,
		c.ID_, url, recordingID, duration,
	)
	if err != nil {
		return fmt.Errorf("error saving recording on call %d: %w", c.ID_, err)
	}
	return nil
}

// UpdateRaw replaces the sanitized raw provider payload stored for the call
func (c *Call) UpdateRaw(ctx context.Context, db Queryer, raw json.RawMessage) error {
	c.Raw_ = raw
	_, err := db.ExecContext(ctx, `UPDATE calls_call SET raw = $2, modified_on = NOW() WHERE id = $1`, c.ID_, raw)
	if err != nil {
		return fmt.Errorf("error updating raw payload on call %d: %w", c.ID_, err)
	}
	return nil
}

func (i *CallID) Scan(value any) error         { return null.ScanInt(value, i) }
func (i CallID) Value() (driver.Value, error)  { return null.IntValue(i) }
func (i *CallID) UnmarshalJSON(b []byte) error { return null.UnmarshalInt(b, i) }
func (i CallID) MarshalJSON() ([]byte, error)  { return null.MarshalInt(i) }
