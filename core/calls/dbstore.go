package calls

import (
	"context"
	"time"

	"github.com/leaseline/callroom/core/models"
)

// DBStore is the production Store backed by the models package
type DBStore struct {
	db models.Queryer
}

// NewDBStore creates a store around the passed in database
func NewDBStore(db models.Queryer) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) GetCallByExternalID(ctx context.Context, externalID string) (*models.Call, error) {
	return models.GetCallByExternalID(ctx, s.db, externalID)
}

func (s *DBStore) GetCallByUUID(ctx context.Context, uuid string) (*models.Call, error) {
	return models.GetCallByUUID(ctx, s.db, uuid)
}

func (s *DBStore) GetCallByID(ctx context.Context, id models.CallID) (*models.Call, error) {
	return models.GetCallByID(ctx, s.db, id)
}

func (s *DBStore) InsertCall(ctx context.Context, c *models.Call) error {
	return models.InsertCall(ctx, s.db, c)
}

func (s *DBStore) MarkAnswered(ctx context.Context, c *models.Call, agentID models.AgentID, now time.Time) error {
	return c.MarkAnswered(ctx, s.db, agentID, now)
}

func (s *DBStore) MarkMissed(ctx context.Context, c *models.Call, reason models.MissedReason) error {
	return c.MarkMissed(ctx, s.db, reason)
}

func (s *DBStore) MarkEnded(ctx context.Context, c *models.Call, status models.CallStatus, endedOn time.Time, duration int) (bool, error) {
	return c.MarkEnded(ctx, s.db, status, endedOn, duration)
}

func (s *DBStore) MarkCallbackRequested(ctx context.Context, c *models.Call) error {
	return c.MarkCallbackRequested(ctx, s.db)
}

func (s *DBStore) SetTransferredTo(ctx context.Context, c *models.Call, number string) error {
	return c.SetTransferredTo(ctx, s.db, number)
}

func (s *DBStore) SetDialedAgents(ctx context.Context, c *models.Call, agentIDs []models.AgentID) error {
	return c.SetDialedAgents(ctx, s.db, agentIDs)
}

func (s *DBStore) SaveRecording(ctx context.Context, c *models.Call, url, recordingID string, duration int) error {
	return c.SaveRecording(ctx, s.db, url, recordingID, duration)
}

func (s *DBStore) GetOpenQueueEntry(ctx context.Context, callID models.CallID) (*models.QueueEntry, error) {
	return models.GetOpenQueueEntry(ctx, s.db, callID)
}

func (s *DBStore) GetOpenQueueEntriesForTeam(ctx context.Context, teamID models.TeamID) ([]*models.QueueEntry, error) {
	return models.GetOpenQueueEntriesForTeam(ctx, s.db, teamID)
}

func (s *DBStore) InsertQueueEntry(ctx context.Context, callID models.CallID, teamID models.TeamID, enteredOn time.Time) (*models.QueueEntry, error) {
	return models.InsertQueueEntry(ctx, s.db, callID, teamID, enteredOn)
}

func (s *DBStore) AssignConnectedAgent(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) (bool, error) {
	return e.AssignConnectedAgent(ctx, s.db, agentID)
}

func (s *DBStore) CloseQueueEntry(ctx context.Context, e *models.QueueEntry, action models.QueueAction, dequeuedOn time.Time) (bool, error) {
	return e.Close(ctx, s.db, action, dequeuedOn)
}

func (s *DBStore) AddDeclinedBy(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) error {
	return e.AddDeclinedBy(ctx, s.db, agentID)
}

func (s *DBStore) UpdateFiredCalls(ctx context.Context, e *models.QueueEntry, fired models.FiredCalls) error {
	return e.UpdateFiredCalls(ctx, s.db, fired)
}

func (s *DBStore) RecordQueueStats(ctx context.Context, e *models.QueueEntry) error {
	return models.RecordQueueStats(ctx, s.db, e)
}

func (s *DBStore) GetAgent(ctx context.Context, id models.AgentID) (*models.Agent, error) {
	return models.GetAgent(ctx, s.db, id)
}

func (s *DBStore) GetTeamAgents(ctx context.Context, teamID models.TeamID) ([]*models.Agent, error) {
	return models.GetTeamAgents(ctx, s.db, teamID)
}

func (s *DBStore) UpdateAgentStatus(ctx context.Context, id models.AgentID, from, to models.AgentStatus) (bool, error) {
	return models.UpdateAgentStatus(ctx, s.db, id, from, to)
}

func (s *DBStore) GetTeam(ctx context.Context, id models.TeamID) (*models.Team, error) {
	return models.GetTeam(ctx, s.db, id)
}

func (s *DBStore) GetProgram(ctx context.Context, id models.ProgramID) (*models.Program, error) {
	return models.GetProgram(ctx, s.db, id)
}

func (s *DBStore) GetVoiceMessages(ctx context.Context, teamID models.TeamID, programID models.ProgramID) (models.VoiceMessageSet, error) {
	return models.GetVoiceMessages(ctx, s.db, teamID, programID)
}

func (s *DBStore) GetDigitMenu(ctx context.Context, teamID models.TeamID) (models.DigitMenu, error) {
	return models.GetDigitMenu(ctx, s.db, teamID)
}

func (s *DBStore) IsBlacklisted(ctx context.Context, number string) (bool, error) {
	return models.IsBlacklisted(ctx, s.db, number)
}
