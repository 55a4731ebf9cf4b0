package models

import (
	"context"
	"fmt"
)

// MessageType identifies one of the voice prompts the engine can play
type MessageType string

// message type constants
const (
	MsgAfterHours           = MessageType("afterHours")
	MsgVoicemail            = MessageType("voicemail")
	MsgUnavailable          = MessageType("unavailable")
	MsgCallBackRequestAck   = MessageType("callBackRequestAck")
	MsgCallQueueWelcome     = MessageType("callQueueWelcome")
	MsgCallQueueUnavailable = MessageType("callQueueUnavailable")
	MsgCallQueueClosing     = MessageType("callQueueClosing")
	MsgCallRecordingNotice  = MessageType("callRecordingNotice")
)

// VoiceMessage is a localized prompt, either text to synthesize or a
// pre-recorded audio reference
type VoiceMessage struct {
	Type_     MessageType `db:"message_type"`
	Text_     string      `db:"text"`
	AudioURL_ string      `db:"audio_url"`
}

func (m VoiceMessage) Type() MessageType { return m.Type_ }
func (m VoiceMessage) Text() string      { return m.Text_ }
func (m VoiceMessage) AudioURL() string  { return m.AudioURL_ }

// IsEmpty returns whether this message has no content at all
func (m VoiceMessage) IsEmpty() bool { return m.Text_ == "" && m.AudioURL_ == "" }

// VoiceMessageSet is the full prompt configuration resolved for one team
type VoiceMessageSet map[MessageType]VoiceMessage

const sqlSelectVoiceMessages = `
SELECT message_type, text, audio_url
  FROM calls_voicemessage
 WHERE (scope = 'team' AND scope_id = $1) OR (scope = 'program' AND scope_id = $2) OR scope = 'tenant'
 ORDER BY CASE scope WHEN 'tenant' THEN 0 WHEN 'program' THEN 1 ELSE 2 END`

// GetVoiceMessages resolves the prompt set for a team with program and
// tenant-wide rows as fallback. Rows are applied tenant first so team
// overrides win.
func GetVoiceMessages(ctx context.Context, db Queryer, teamID TeamID, programID ProgramID) (VoiceMessageSet, error) {
	rows := make([]VoiceMessage, 0, 16)
	err := db.SelectContext(ctx, &rows, sqlSelectVoiceMessages, teamID, programID)
	if err != nil {
		return nil, fmt.Errorf("unable to load voice messages for team %d: %w", teamID, err)
	}

	set := make(VoiceMessageSet, len(rows))
	for _, m := range rows {
		set[m.Type_] = m
	}
	return set, nil
}

// DigitActionKind is what a pressed digit does
type DigitActionKind string

// digit action constants
const (
	DigitCallback         = DigitActionKind("callback")
	DigitVoicemail        = DigitActionKind("voicemail")
	DigitTransferToNumber = DigitActionKind("transferToNumber")
)

// DigitAction is one entry of a team's digit menu
type DigitAction struct {
	Digit_  string          `db:"digit"`
	Kind_   DigitActionKind `db:"kind"`
	Number_ string          `db:"number"`
}

func (a DigitAction) Kind() DigitActionKind { return a.Kind_ }
func (a DigitAction) Number() string        { return a.Number_ }

// DigitMenu maps a pressed digit to its configured action. Digits without an
// entry replay the menu instructions.
type DigitMenu map[string]DigitAction

// GetDigitMenu loads the digit menu configured for a team
func GetDigitMenu(ctx context.Context, db Queryer, teamID TeamID) (DigitMenu, error) {
	rows := make([]DigitAction, 0, 4)
	err := db.SelectContext(ctx, &rows, `SELECT digit, kind, number FROM calls_digitmenu WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, fmt.Errorf("unable to load digit menu for team %d: %w", teamID, err)
	}

	menu := make(DigitMenu, len(rows))
	for _, a := range rows {
		menu[a.Digit_] = a
	}
	return menu, nil
}
