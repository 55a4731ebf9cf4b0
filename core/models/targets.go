package models

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/nyaruka/null/v3"
)

// TeamID is the type for team IDs
type TeamID int

// NilTeamID is the nil value for team IDs
const NilTeamID = TeamID(0)

// ProgramID is the type for program IDs
type ProgramID int

// NilProgramID is the nil value for program IDs
const NilProgramID = ProgramID(0)

// Team is a leasing team, the routing destination for most incoming calls
type Team struct {
	ID_            TeamID `db:"id"`
	Name_          string `db:"name"`
	QueueEnabled_  bool   `db:"queue_enabled"`
	CallerID_      string `db:"caller_id"`
	RecordCalls_   bool   `db:"record_calls"`
	VoicemailRole_ string `db:"voicemail_role"`
	OfficeStart_   int    `db:"office_start"`
	OfficeEnd_     int    `db:"office_end"`
	Timezone_      string `db:"timezone"`
}

func (t *Team) ID() TeamID          { return t.ID_ }
func (t *Team) Name() string        { return t.Name_ }
func (t *Team) QueueEnabled() bool  { return t.QueueEnabled_ }
func (t *Team) CallerID() string    { return t.CallerID_ }
func (t *Team) RecordCalls() bool   { return t.RecordCalls_ }

// InOfficeHours returns whether the passed in time falls inside the team's
// configured office hours
func (t *Team) InOfficeHours(now time.Time) bool {
	if t.OfficeStart_ == 0 && t.OfficeEnd_ == 0 {
		return true
	}
	loc, err := time.LoadLocation(t.Timezone_)
	if err != nil {
		loc = time.UTC
	}
	hour := now.In(loc).Hour()
	return hour >= t.OfficeStart_ && hour < t.OfficeEnd_
}

// Program is a marketing program whose calls route to its owning team
type Program struct {
	ID_     ProgramID `db:"id"`
	Name_   string    `db:"name"`
	TeamID_ TeamID    `db:"team_id"`
	Number_ string    `db:"number"`
	Active_ bool      `db:"active"`
}

func (p *Program) ID() ProgramID  { return p.ID_ }
func (p *Program) TeamID() TeamID { return p.TeamID_ }
func (p *Program) Active() bool   { return p.Active_ }

// GetTeam loads a team by id, nil if none exists
func GetTeam(ctx context.Context, db Queryer, id TeamID) (*Team, error) {
	t := &Team{}
	err := db.GetContext(ctx, t,
		`SELECT id, name, queue_enabled, caller_id, record_calls, voicemail_role, office_start, office_end, timezone FROM teams_team WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load team %d: %w", id, err)
	}
	return t, nil
}

// GetProgram loads a program by id, nil if none exists
func GetProgram(ctx context.Context, db Queryer, id ProgramID) (*Program, error) {
	p := &Program{}
	err := db.GetContext(ctx, p,
		`SELECT id, name, team_id, number, active FROM teams_program WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load program %d: %w", id, err)
	}
	return p, nil
}

// IsBlacklisted returns whether the passed in caller number is flagged as
// spam
func IsBlacklisted(ctx context.Context, db Queryer, number string) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT count(*) FROM calls_blacklistednumber WHERE number = $1`, number)
	if err != nil {
		return false, fmt.Errorf("error checking blacklist for %s: %w", number, err)
	}
	return count > 0, nil
}

func (i *TeamID) Scan(value any) error         { return null.ScanInt(value, i) }
func (i TeamID) Value() (driver.Value, error)  { return null.IntValue(i) }
func (i *TeamID) UnmarshalJSON(b []byte) error { return null.UnmarshalInt(b, i) }
func (i TeamID) MarshalJSON() ([]byte, error)  { return null.MarshalInt(i) }

func (i *ProgramID) Scan(value any) error         { return null.ScanInt(value, i) }
func (i ProgramID) Value() (driver.Value, error)  { return null.IntValue(i) }
func (i *ProgramID) UnmarshalJSON(b []byte) error { return null.UnmarshalInt(b, i) }
func (i ProgramID) MarshalJSON() ([]byte, error)  { return null.MarshalInt(i) }
