// Package calls is the call-control engine: it consumes provider webhook
// events, drives the call state machine against durable state, and answers
// each webhook with a signaling markup document. All collaborators are
// injected, the engine itself holds no mutable process-wide state.
package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/leaseline/callroom/core/models"
)

// Store is the persistence seam of the engine. Implementations must make
// every mutation conditional on current stored state, see the models
// package for the real one and testsuite for the in-memory fake.
type Store interface {
	GetCallByExternalID(ctx context.Context, externalID string) (*models.Call, error)
	GetCallByUUID(ctx context.Context, uuid string) (*models.Call, error)
	GetCallByID(ctx context.Context, id models.CallID) (*models.Call, error)
	InsertCall(ctx context.Context, c *models.Call) error
	MarkAnswered(ctx context.Context, c *models.Call, agentID models.AgentID, now time.Time) error
	MarkMissed(ctx context.Context, c *models.Call, reason models.MissedReason) error
	MarkEnded(ctx context.Context, c *models.Call, status models.CallStatus, endedOn time.Time, duration int) (bool, error)
	MarkCallbackRequested(ctx context.Context, c *models.Call) error
	SetTransferredTo(ctx context.Context, c *models.Call, number string) error
	SetDialedAgents(ctx context.Context, c *models.Call, agentIDs []models.AgentID) error
	SaveRecording(ctx context.Context, c *models.Call, url, recordingID string, duration int) error

	GetOpenQueueEntry(ctx context.Context, callID models.CallID) (*models.QueueEntry, error)
	GetOpenQueueEntriesForTeam(ctx context.Context, teamID models.TeamID) ([]*models.QueueEntry, error)
	InsertQueueEntry(ctx context.Context, callID models.CallID, teamID models.TeamID, enteredOn time.Time) (*models.QueueEntry, error)
	AssignConnectedAgent(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) (bool, error)
	CloseQueueEntry(ctx context.Context, e *models.QueueEntry, action models.QueueAction, dequeuedOn time.Time) (bool, error)
	AddDeclinedBy(ctx context.Context, e *models.QueueEntry, agentID models.AgentID) error
	UpdateFiredCalls(ctx context.Context, e *models.QueueEntry, fired models.FiredCalls) error
	RecordQueueStats(ctx context.Context, e *models.QueueEntry) error

	GetAgent(ctx context.Context, id models.AgentID) (*models.Agent, error)
	GetTeamAgents(ctx context.Context, teamID models.TeamID) ([]*models.Agent, error)
	UpdateAgentStatus(ctx context.Context, id models.AgentID, from, to models.AgentStatus) (bool, error)

	GetTeam(ctx context.Context, id models.TeamID) (*models.Team, error)
	GetProgram(ctx context.Context, id models.ProgramID) (*models.Program, error)
	GetVoiceMessages(ctx context.Context, teamID models.TeamID, programID models.ProgramID) (models.VoiceMessageSet, error)
	GetDigitMenu(ctx context.Context, teamID models.TeamID) (models.DigitMenu, error)
	IsBlacklisted(ctx context.Context, number string) (bool, error)
}

// LiveCall is a currently connected call as reported by the provider
type LiveCall struct {
	ID string `json:"id"`
	To string `json:"to"`
}

// LiveConference is the live state of a conference room
type LiveConference struct {
	ID          string   `json:"id"`
	MemberCount int      `json:"member_count"`
	MemberIDs   []string `json:"member_ids"`
}

// TransferParams describes a provider transfer command
type TransferParams struct {
	CallID  string
	Legs    string // "aleg", "bleg" or "both"
	ALegURL string
	BLegURL string
}

// VoiceClient issues outbound commands to the signaling provider. A "not
// found" from the provider comes back as a ProviderCommandError with
// NotFound set, which callers treat as an already resolved call.
type VoiceClient interface {
	TransferCall(ctx context.Context, params *TransferParams) error
	HangupCall(ctx context.Context, callID string) error
	MakeCall(ctx context.Context, from, to, answerURL, hangupURL string) (string, error)
	GetLiveCalls(ctx context.Context) ([]*LiveCall, error)
	GetLiveConference(ctx context.Context, conferenceID string) (*LiveConference, error)
	HangupConferenceMember(ctx context.Context, conferenceID, memberID string) error
	DeleteRecording(ctx context.Context, recordingID string) error
}

// Routing selects which connected clients receive a notification
type Routing struct {
	Users []models.AgentID `json:"users,omitempty"`
	Teams []models.TeamID  `json:"teams,omitempty"`
}

// Notification is the envelope handed to the pub/sub collaborator
type Notification struct {
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
	Routing Routing        `json:"routing"`
}

// notification event constants
const (
	EventCallAnswered      = "call_answered"
	EventCallTerminated    = "call_terminated"
	EventCallQueueChanged  = "call_queue_changed"
	EventCallbackRequested = "callback_requested"
)

// Notifier publishes state-change events to connected UI clients. Fire and
// forget, errors are logged at the engine boundary and never propagate into
// the webhook response path.
type Notifier interface {
	Publish(ctx context.Context, n *Notification) error
}

// Tasks queues async work for the worker pool
type Tasks interface {
	QueueDialOut(ctx context.Context, callID models.CallID, teamID models.TeamID) error
}

// Locker serializes multi-step read-modify-write sequences, keyed per call
type Locker interface {
	Grab(key string, expiration time.Duration) (string, error)
	Release(key string, value string) error
}

// URLs builds the callback URLs handed to the provider in markup documents
// and transfer commands
type URLs struct {
	Base string // e.g. https://crm.example.com
}

func (u URLs) build(endpoint string, params url.Values) string {
	return fmt.Sprintf("%s/cr/telephony/%s?%s", u.Base, endpoint, params.Encode())
}

func (u URLs) callParams(callUUID string) url.Values {
	return url.Values{"call": []string{callUUID}}
}

func (u URLs) DigitsPressed(callUUID string) string {
	return u.build("digitsPressed", u.callParams(callUUID))
}

func (u URLs) PostDial(callUUID string) string {
	return u.build("postDial", u.callParams(callUUID))
}

func (u URLs) CallbackDial(callUUID string) string {
	return u.build("callbackDial", u.callParams(callUUID))
}

func (u URLs) DequeueReady(callUUID string) string {
	return u.build("callReadyForDequeue", u.callParams(callUUID))
}

func (u URLs) Conference(callUUID string) string {
	return u.build("conferenceCallback", u.callParams(callUUID))
}

func (u URLs) Recording(callUUID string) string {
	return u.build("callRecording", u.callParams(callUUID))
}

func (u URLs) TransferFromQueue(callUUID string) string {
	return u.build("transferFromQueue", u.callParams(callUUID))
}

func (u URLs) AgentCallForQueue(queuedCallUUID string, agentID models.AgentID) string {
	params := url.Values{"queued": []string{queuedCallUUID}, "agent": []string{fmt.Sprintf("%d", agentID)}}
	return u.build("agentCallForQueue", params)
}

// TransferDial points at the endpoint that dials an external number for a
// transferred leg
func (u URLs) TransferDial(callUUID string, number string) string {
	params := u.callParams(callUUID)
	params.Set("number", number)
	return u.build("transferDial", params)
}

// TransferTarget points at the endpoint that re-runs routing for a
// transferred leg against its new target
func (u URLs) TransferTarget(callUUID string) string {
	return u.build("transferTarget", u.callParams(callUUID))
}

// Voicemail points at the endpoint that renders a voicemail prompt with the
// passed in message type, used as the aleg URL of voicemail transfers
func (u URLs) Voicemail(callUUID string, msgType models.MessageType) string {
	params := u.callParams(callUUID)
	params.Set("message", string(msgType))
	return u.build("voicemail", params)
}

// ConferenceRoom returns the conference room name for a queued call
func ConferenceRoom(callUUID string) string {
	return "room_" + callUUID
}

// sanitized raw payloads always at least carry the provider call id
func rawFromEvent(callID string, raw json.RawMessage) json.RawMessage {
	if len(raw) > 0 {
		return raw
	}
	b, _ := json.Marshal(map[string]string{"CallUUID": callID})
	return b
}
