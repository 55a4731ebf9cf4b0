// Package testsuite provides in-memory fakes of the call engine's
// collaborators so handler behavior can be tested without Postgres, Redis or
// a signaling provider.
package testsuite

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/uuids"
)

// FakeStore is an in-memory implementation of calls.Store with the same
// conditional-write semantics as the real one
type FakeStore struct {
	mu sync.Mutex

	Calls        map[models.CallID]*models.Call
	QueueEntries map[models.QueueEntryID]*models.QueueEntry
	Agents       map[models.AgentID]*models.Agent
	TeamAgents   map[models.TeamID][]models.AgentID
	Teams        map[models.TeamID]*models.Team
	Programs     map[models.ProgramID]*models.Program
	Messages     map[models.TeamID]models.VoiceMessageSet
	Menus        map[models.TeamID]models.DigitMenu
	Blacklist    map[string]bool

	StatsRecorded []models.QueueEntryID

	nextCallID  models.CallID
	nextEntryID models.QueueEntryID

	// Errs forces the named operation to fail, keyed by method name
	Errs map[string]error
}

// NewFakeStore creates an empty fake store
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Calls:        make(map[models.CallID]*models.Call),
		QueueEntries: make(map[models.QueueEntryID]*models.QueueEntry),
		Agents:       make(map[models.AgentID]*models.Agent),
		TeamAgents:   make(map[models.TeamID][]models.AgentID),
		Teams:        make(map[models.TeamID]*models.Team),
		Programs:     make(map[models.ProgramID]*models.Program),
		Messages:     make(map[models.TeamID]models.VoiceMessageSet),
		Menus:        make(map[models.TeamID]models.DigitMenu),
		Blacklist:    make(map[string]bool),
		Errs:         make(map[string]error),
		nextCallID:   100,
		nextEntryID:  500,
	}
}

func (s *FakeStore) err(op string) error { return s.Errs[op] }

func (s *FakeStore) GetCallByExternalID(ctx context.Context, externalID string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("GetCallByExternalID"); err != nil {
		return nil, err
	}
	var latest *models.Call
	for _, c := range s.Calls {
		if c.ExternalID() == externalID && (latest == nil || c.ID() > latest.ID()) {
			latest = c
		}
	}
	return latest, nil
}

func (s *FakeStore) GetCallByUUID(ctx context.Context, uuid string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Calls {
		if string(c.UUID()) == uuid {
			return c, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) GetCallByID(ctx context.Context, id models.CallID) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[id], nil
}

func (s *FakeStore) InsertCall(ctx context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("InsertCall"); err != nil {
		return err
	}
	s.nextCallID++
	c.ID_ = s.nextCallID
	if c.UUID_ == "" {
		c.UUID_ = uuids.NewV4()
	}
	c.CreatedOn_ = time.Now()
	s.Calls[c.ID_] = c
	return nil
}

func (s *FakeStore) MarkAnswered(ctx context.Context, c *models.Call, agentID models.AgentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("MarkAnswered"); err != nil {
		return err
	}
	if c.Status().IsTerminal() {
		return nil
	}
	c.Answered_ = true
	c.Status_ = models.CallStatusInProgress
	if c.AgentID_ == models.NilAgentID {
		c.AgentID_ = agentID
	}
	if c.StartedOn_ == nil {
		c.StartedOn_ = &now
	}
	return nil
}

func (s *FakeStore) MarkMissed(ctx context.Context, c *models.Call, reason models.MissedReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("MarkMissed"); err != nil {
		return err
	}
	if c.Status().IsTerminal() {
		return nil
	}
	c.Missed_ = true
	c.MissedReason_ = reason
	c.Status_ = models.CallStatusMissed
	return nil
}

func (s *FakeStore) MarkEnded(ctx context.Context, c *models.Call, status models.CallStatus, endedOn time.Time, duration int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("MarkEnded"); err != nil {
		return false, err
	}
	if c.EndedOn_ != nil {
		return false, nil
	}
	c.Status_ = status
	c.EndedOn_ = &endedOn
	c.Duration_ = duration
	return true, nil
}

func (s *FakeStore) MarkCallbackRequested(ctx context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status().IsTerminal() {
		return nil
	}
	c.CallbackRequested_ = true
	return nil
}

func (s *FakeStore) SetTransferredTo(ctx context.Context, c *models.Call, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status().IsTerminal() {
		return nil
	}
	c.TransferredTo_ = number
	return nil
}

func (s *FakeStore) SetDialedAgents(ctx context.Context, c *models.Call, agentIDs []models.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.DialedAgentIDs_ = c.DialedAgentIDs_[:0]
	for _, id := range agentIDs {
		c.DialedAgentIDs_ = append(c.DialedAgentIDs_, int64(id))
	}
	return nil
}

func (s *FakeStore) SaveRecording(ctx context.Context, c *models.Call, url, recordingID string, duration int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("SaveRecording"); err != nil {
		return err
	}
	c.RecordingURL_ = url
	c.RecordingID_ = recordingID
	c.RecordingDuration_ = duration
	return nil
}

func (s *FakeStore) GetOpenQueueEntry(ctx context.Context, callID models.CallID) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("GetOpenQueueEntry"); err != nil {
		return nil, err
	}
	for _, e := range s.QueueEntries {
		if e.CallID() == callID && e.DequeuedOn() == nil {
			return e, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) GetOpenQueueEntriesForTeam(ctx context.Context, teamID models.TeamID) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*models.QueueEntry, 0, 4)
	for _, e := range s.QueueEntries {
		if e.TeamID() == teamID && e.DequeuedOn() == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *FakeStore) InsertQueueEntry(ctx context.Context, callID models.CallID, teamID models.TeamID, enteredOn time.Time) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("InsertQueueEntry"); err != nil {
		return nil, err
	}
	for _, e := range s.QueueEntries {
		if e.CallID() == callID && e.DequeuedOn() == nil {
			return e, nil
		}
	}
	s.nextEntryID++
	e := &models.QueueEntry{
		ID_:         s.nextEntryID,
		CallID_:     callID,
		TeamID_:     teamID,
		EnteredOn_:  enteredOn,
		FiredCalls_: models.FiredCalls{},
	}
	s.QueueEntries[e.ID_] = e
	return e, nil
}

func (s *FakeStore) AssignConnectedAgent(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ConnectedAgentID_ != models.NilAgentID {
		return false, nil
	}
	e.ConnectedAgentID_ = agentID
	return true, nil
}

func (s *FakeStore) CloseQueueEntry(ctx context.Context, e *models.QueueEntry, action models.QueueAction, dequeuedOn time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("CloseQueueEntry"); err != nil {
		return false, err
	}
	if e.DequeuedOn_ != nil {
		return false, nil
	}
	e.DequeuedOn_ = &dequeuedOn
	e.RequestedAction_ = action
	return true, nil
}

func (s *FakeStore) AddDeclinedBy(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range e.DeclinedBy_ {
		if id == int64(agentID) {
			return nil
		}
	}
	e.DeclinedBy_ = append(e.DeclinedBy_, int64(agentID))
	return nil
}

func (s *FakeStore) UpdateFiredCalls(ctx context.Context, e *models.QueueEntry, fired models.FiredCalls) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.FiredCalls_ = fired
	return nil
}

func (s *FakeStore) RecordQueueStats(ctx context.Context, e *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatsRecorded = append(s.StatsRecorded, e.ID())
	return nil
}

func (s *FakeStore) GetAgent(ctx context.Context, id models.AgentID) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.Agents[id]
	if a != nil && a.TeamID_ == models.NilTeamID {
		for teamID, members := range s.TeamAgents {
			if slices.Contains(members, id) {
				a.TeamID_ = teamID
				break
			}
		}
	}
	return a, nil
}

func (s *FakeStore) GetTeamAgents(ctx context.Context, teamID models.TeamID) ([]*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err("GetTeamAgents"); err != nil {
		return nil, err
	}
	agents := make([]*models.Agent, 0, 4)
	for _, id := range s.TeamAgents[teamID] {
		if a := s.Agents[id]; a != nil {
			agents = append(agents, a)
		}
	}
	return agents, nil
}

func (s *FakeStore) UpdateAgentStatus(ctx context.Context, id models.AgentID, from, to models.AgentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.Agents[id]
	if a == nil || a.Status_ != from {
		return false, nil
	}
	a.Status_ = to
	return true, nil
}

func (s *FakeStore) GetTeam(ctx context.Context, id models.TeamID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Teams[id], nil
}

func (s *FakeStore) GetProgram(ctx context.Context, id models.ProgramID) (*models.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Programs[id], nil
}

func (s *FakeStore) GetVoiceMessages(ctx context.Context, teamID models.TeamID, programID models.ProgramID) (models.VoiceMessageSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.Messages[teamID]
	if set == nil {
		set = models.VoiceMessageSet{}
	}
	return set, nil
}

func (s *FakeStore) GetDigitMenu(ctx context.Context, teamID models.TeamID) (models.DigitMenu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	menu := s.Menus[teamID]
	if menu == nil {
		menu = models.DigitMenu{}
	}
	return menu, nil
}

func (s *FakeStore) IsBlacklisted(ctx context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Blacklist[number], nil
}

// VoiceCommand records one outbound provider command issued by the engine
type VoiceCommand struct {
	Command string
	Params  map[string]string
}

// FakeVoice is a scriptable implementation of calls.VoiceClient that records
// every command issued
type FakeVoice struct {
	mu sync.Mutex

	Commands []VoiceCommand

	LiveCalls   []*calls.LiveCall
	Conferences map[string]*calls.LiveConference

	// Errs forces the named command to fail
	Errs map[string]error

	nextLegID int
}

// NewFakeVoice creates an empty fake provider client
func NewFakeVoice() *FakeVoice {
	return &FakeVoice{
		Conferences: make(map[string]*calls.LiveConference),
		Errs:        make(map[string]error),
		nextLegID:   9000,
	}
}

func (v *FakeVoice) record(command string, params map[string]string) {
	v.Commands = append(v.Commands, VoiceCommand{Command: command, Params: params})
}

// CommandsOf returns the recorded commands with the passed in name
func (v *FakeVoice) CommandsOf(command string) []VoiceCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	matches := make([]VoiceCommand, 0, 4)
	for _, c := range v.Commands {
		if c.Command == command {
			matches = append(matches, c)
		}
	}
	return matches
}

func (v *FakeVoice) TransferCall(ctx context.Context, params *calls.TransferParams) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["TransferCall"]; err != nil {
		return err
	}
	v.record("TransferCall", map[string]string{"call_id": params.CallID, "legs": params.Legs, "aleg_url": params.ALegURL, "bleg_url": params.BLegURL})
	return nil
}

func (v *FakeVoice) HangupCall(ctx context.Context, callID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["HangupCall"]; err != nil {
		return err
	}
	v.record("HangupCall", map[string]string{"call_id": callID})
	return nil
}

func (v *FakeVoice) MakeCall(ctx context.Context, from, to, answerURL, hangupURL string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["MakeCall"]; err != nil {
		return "", err
	}
	v.nextLegID++
	legID := fmt.Sprintf("leg-%d-%s", v.nextLegID, to)
	v.record("MakeCall", map[string]string{"from": from, "to": to, "answer_url": answerURL, "leg_id": legID})
	return legID, nil
}

func (v *FakeVoice) GetLiveCalls(ctx context.Context) ([]*calls.LiveCall, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["GetLiveCalls"]; err != nil {
		return nil, err
	}
	return v.LiveCalls, nil
}

func (v *FakeVoice) GetLiveConference(ctx context.Context, conferenceID string) (*calls.LiveConference, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["GetLiveConference"]; err != nil {
		return nil, err
	}
	conf, ok := v.Conferences[conferenceID]
	if !ok {
		return nil, &calls.ProviderCommandError{Command: "GetLiveConference", StatusCode: 404, NotFound: true, Err: context.Canceled}
	}
	return conf, nil
}

func (v *FakeVoice) HangupConferenceMember(ctx context.Context, conferenceID, memberID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["HangupConferenceMember"]; err != nil {
		return err
	}
	v.record("HangupConferenceMember", map[string]string{"conference_id": conferenceID, "member_id": memberID})
	return nil
}

func (v *FakeVoice) DeleteRecording(ctx context.Context, recordingID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.Errs["DeleteRecording"]; err != nil {
		return err
	}
	v.record("DeleteRecording", map[string]string{"recording_id": recordingID})
	return nil
}

// FakeNotifier records every published notification
type FakeNotifier struct {
	mu            sync.Mutex
	Notifications []*calls.Notification
	Err           error
}

func (n *FakeNotifier) Publish(ctx context.Context, notification *calls.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Notifications = append(n.Notifications, notification)
	return nil
}

// Events returns the event names of all recorded notifications in order
func (n *FakeNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]string, len(n.Notifications))
	for i, notification := range n.Notifications {
		events[i] = notification.Event
	}
	return events
}

// QueuedDialOut records one queued dial-out task
type QueuedDialOut struct {
	CallID models.CallID
	TeamID models.TeamID
}

// FakeTasks records queued async work
type FakeTasks struct {
	mu       sync.Mutex
	DialOuts []QueuedDialOut
	Err      error
}

func (t *FakeTasks) QueueDialOut(ctx context.Context, callID models.CallID, teamID models.TeamID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.DialOuts = append(t.DialOuts, QueuedDialOut{CallID: callID, TeamID: teamID})
	return nil
}

// FakeLocker always grants locks and records grab/release pairs
type FakeLocker struct {
	mu    sync.Mutex
	Grabs []string
}

func (l *FakeLocker) Grab(key string, expiration time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Grabs = append(l.Grabs, key)
	return "lock-" + key, nil
}

func (l *FakeLocker) Release(key string, value string) error {
	return nil
}
