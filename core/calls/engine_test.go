package calls_test

import (
	"context"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/leaseline/callroom/testsuite"
)

type fixture struct {
	engine   *calls.Engine
	store    *testsuite.FakeStore
	voice    *testsuite.FakeVoice
	notifier *testsuite.FakeNotifier
	tasks    *testsuite.FakeTasks
	locker   *testsuite.FakeLocker
}

func setup() *fixture {
	store := testsuite.NewFakeStore()
	voice := testsuite.NewFakeVoice()
	notifier := &testsuite.FakeNotifier{}
	tasks := &testsuite.FakeTasks{}
	locker := &testsuite.FakeLocker{}

	store.Teams[1] = &models.Team{
		ID_:           1,
		Name_:         "Leasing",
		QueueEnabled_: true,
		CallerID_:     "+12025550100",
		RecordCalls_:  false,
	}
	store.Programs[10] = &models.Program{ID_: 10, Name_: "Spring Promo", TeamID_: 1, Number_: "+12025550110", Active_: true}

	store.Agents[1] = &models.Agent{ID_: 1, Name_: "Ann", Status_: models.AgentAvailable, Online_: true, SipEndpoints_: []string{"sip:ann@pbx"}, Role_: models.RoleWorkingAgent, Booked_: 2}
	store.Agents[2] = &models.Agent{ID_: 2, Name_: "Bob", Status_: models.AgentAvailable, Online_: true, SipEndpoints_: []string{"sip:bob@pbx"}, Role_: models.RoleWorkingAgent, Booked_: 1}
	store.Agents[3] = &models.Agent{ID_: 3, Name_: "Cat", Status_: models.AgentBusy, Online_: true, SipEndpoints_: []string{"sip:cat@pbx"}, Role_: models.RoleWorkingAgent}
	store.TeamAgents[1] = []models.AgentID{1, 2, 3}

	store.Messages[1] = models.VoiceMessageSet{
		models.MsgVoicemail:            {Type_: models.MsgVoicemail, Text_: "Please leave a message."},
		models.MsgUnavailable:          {Type_: models.MsgUnavailable, Text_: "Nobody is available."},
		models.MsgAfterHours:           {Type_: models.MsgAfterHours, Text_: "We are closed."},
		models.MsgCallQueueWelcome:     {Type_: models.MsgCallQueueWelcome, Text_: "You are in the queue."},
		models.MsgCallQueueUnavailable: {Type_: models.MsgCallQueueUnavailable, Text_: "Press 1 for a callback."},
		models.MsgCallQueueClosing:     {Type_: models.MsgCallQueueClosing, Text_: "We are closing for today."},
		models.MsgCallBackRequestAck:   {Type_: models.MsgCallBackRequestAck, Text_: "We will call you back."},
	}
	store.Menus[1] = models.DigitMenu{
		"1": {Digit_: "1", Kind_: models.DigitCallback},
		"2": {Digit_: "2", Kind_: models.DigitVoicemail},
		"3": {Digit_: "3", Kind_: models.DigitTransferToNumber, Number_: "+12025550199"},
	}

	engine := calls.NewEngine(store, voice, notifier, tasks, locker, calls.Options{
		BaseURL:      "https://crm.example.com",
		HoldMusicURL: "https://crm.example.com/static/hold.mp3",
		DialTimeout:  25,
	})
	return &fixture{engine: engine, store: store, voice: voice, notifier: notifier, tasks: tasks, locker: locker}
}

// insertCall adds a ringing inbound call to team 1 and returns it
func (f *fixture) insertCall(externalID string) *models.Call {
	call := &models.Call{
		ExternalID_: externalID,
		Direction_:  models.DirectionIn,
		Status_:     models.CallStatusRinging,
		TargetType_: models.TargetTeam,
		TargetID_:   1,
		FromNumber_: "+13105550123",
		ToNumber_:   "+12025550100",
	}
	if err := f.store.InsertCall(context.Background(), call); err != nil {
		panic(err)
	}
	return call
}

// enqueueCall puts an inserted call into team 1's queue
func (f *fixture) enqueueCall(call *models.Call) *models.QueueEntry {
	entry, err := f.store.InsertQueueEntry(context.Background(), call.ID(), 1, time.Now())
	if err != nil {
		panic(err)
	}
	return entry
}
