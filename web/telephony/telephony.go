// Package telephony contains the webhook endpoints the signaling provider
// calls to drive call handling. Every recognized call gets a 200 with a
// markup document, only calls we have never seen get a 404.
package telephony

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/leaseline/callroom/web"

	"github.com/buger/jsonparser"
	"github.com/nyaruka/gocommon/jsonx"
)

func init() {
	web.RegisterRoute(http.MethodPost, "/cr/telephony/directDial", handleDirectDial)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/digitsPressed", handleDigitsPressed)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/postDial", handlePostDial)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/callbackDial", handleCallbackDial)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/callReadyForDequeue", handleReadyForDequeue)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/conferenceCallback", handleConferenceCallback)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/callRecording", handleCallRecording)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/transferFromQueue", handleTransferFromQueue)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/transferDial", handleTransferDial)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/transferTarget", handleTransferTarget)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/agentCallForQueue", handleAgentCallForQueue)
	web.RegisterRoute(http.MethodPost, "/cr/telephony/voicemail", handleVoicemail)
}

// form fields holding provider credentials, stripped before the payload is
// persisted on the call record
var rawExcluded = []string{"AuthID", "AuthToken", "Token", "Signature"}

// writeMarkup renders the engine's response document with a 200
func writeMarkup(w http.ResponseWriter, r *markup.Response) error {
	body, err := r.Render()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

// respond maps an engine result onto the wire: unknown calls 404, any other
// engine failure still answers the provider with hangup markup so the caller
// hears a clean goodbye instead of provider error audio
func respond(w http.ResponseWriter, resp *markup.Response, err error) error {
	if err != nil {
		if calls.IsNotFound(err) {
			return web.WriteError(w, http.StatusNotFound, err)
		}
		slog.Error("error handling telephony webhook", "comp", "telephony", "error", err)
		return writeMarkup(w, markup.HangupResponse("error handling call"))
	}
	return writeMarkup(w, resp)
}

// checkSignature validates the provider signature, answering 401 when it fails
func checkSignature(s *web.Server, r *http.Request, w http.ResponseWriter) bool {
	if err := s.ValidateSignature(r); err != nil {
		slog.Warn("webhook signature validation failed", "comp", "telephony", "url", r.URL.String(), "error", err)
		web.WriteError(w, http.StatusUnauthorized, err)
		return false
	}
	return true
}

// sanitizedRaw serializes the webhook's form parameters minus any credential
// fields, for storage on the call record
func sanitizedRaw(r *http.Request) []byte {
	values := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		values[k] = r.PostForm.Get(k)
	}
	raw := jsonx.MustMarshal(values)
	for _, k := range rawExcluded {
		raw = jsonparser.Delete(raw, k)
	}
	return raw
}

type directDialForm struct {
	CallUUID   string `form:"CallUUID"   validate:"required"`
	From       string `form:"From"       validate:"required"`
	To         string `form:"To"         validate:"required"`
	TargetType string `form:"target_type" validate:"required"`
	TargetID   int    `form:"target_id"`
}

func handleDirectDial(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &directDialForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().DirectDial(ctx, &calls.DirectDialRequest{
		CallID:     form.CallUUID,
		From:       form.From,
		To:         form.To,
		TargetType: models.TargetType(form.TargetType),
		TargetID:   form.TargetID,
		Raw:        sanitizedRaw(r),
	})
	return respond(w, resp, err)
}

type digitsForm struct {
	CallUUID string `form:"CallUUID" validate:"required"`
	Digits   string `form:"Digits"   validate:"required"`
}

func handleDigitsPressed(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &digitsForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().DigitsPressed(ctx, &calls.DigitsRequest{CallID: form.CallUUID, Digits: form.Digits})
	return respond(w, resp, err)
}

type postDialForm struct {
	CallUUID         string `form:"CallUUID"   validate:"required"`
	DialStatus       string `form:"DialStatus" validate:"required"`
	DialHangupCause  string `form:"DialHangupCause"`
	DialBLegTo       string `form:"DialBLegTo"`
	DialBLegDuration int    `form:"DialBLegDuration"`
}

func handlePostDial(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &postDialForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().PostDial(ctx, &calls.PostDialRequest{
		CallID:       form.CallUUID,
		DialStatus:   form.DialStatus,
		HangupCause:  form.DialHangupCause,
		BLegTo:       form.DialBLegTo,
		BLegDuration: form.DialBLegDuration,
	})
	return respond(w, resp, err)
}

type callbackDialForm struct {
	CallUUID string `form:"CallUUID" validate:"required"`
	Event    string `form:"Event"    validate:"required"`
	Duration int    `form:"Duration"`
	Machine  string `form:"Machine"`
}

func handleCallbackDial(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &callbackDialForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().CallbackDial(ctx, &calls.CallbackDialRequest{
		CallID:          form.CallUUID,
		Event:           form.Event,
		Duration:        form.Duration,
		MachineDetected: form.Machine == "true",
	})
	return respond(w, resp, err)
}

type callRefForm struct {
	Call string `form:"call" validate:"required,uuid4"`
}

func handleReadyForDequeue(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &callRefForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().ReadyForDequeue(ctx, form.Call)
	return respond(w, resp, err)
}

type conferenceForm struct {
	CallUUID          string `form:"CallUUID" validate:"required"`
	ConferenceAction  string `form:"ConferenceAction" validate:"required"`
	ConferenceName    string `form:"ConferenceName"`
	MemberID          string `form:"ConferenceMemberID"`
	RecordURL         string `form:"RecordUrl"`
	RecordingID       string `form:"RecordingID"`
	RecordingDuration int    `form:"RecordingDuration"`
}

func handleConferenceCallback(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &conferenceForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().ConferenceCallback(ctx, &calls.ConferenceRequest{
		CallID:            form.CallUUID,
		Action:            form.ConferenceAction,
		ConferenceName:    form.ConferenceName,
		MemberID:          form.MemberID,
		RecordURL:         form.RecordURL,
		RecordingID:       form.RecordingID,
		RecordingDuration: form.RecordingDuration,
	})
	return respond(w, resp, err)
}

type recordingForm struct {
	CallUUID          string `form:"CallUUID" validate:"required"`
	RecordURL         string `form:"RecordUrl"`
	RecordingID       string `form:"RecordingID"`
	RecordingDuration int    `form:"RecordingDuration"`
}

func handleCallRecording(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &recordingForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().CallRecording(ctx, &calls.RecordingRequest{
		CallID:      form.CallUUID,
		RecordURL:   form.RecordURL,
		RecordingID: form.RecordingID,
		Duration:    form.RecordingDuration,
	})
	return respond(w, resp, err)
}

func handleTransferFromQueue(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &callRefForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().TransferFromQueue(ctx, form.Call)
	return respond(w, resp, err)
}

type transferDialForm struct {
	Call   string `form:"call"   validate:"required,uuid4"`
	Number string `form:"number" validate:"required"`
}

func handleTransferDial(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &transferDialForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().TransferDial(ctx, form.Call, form.Number)
	return respond(w, resp, err)
}

func handleTransferTarget(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &callRefForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().TransferTarget(ctx, form.Call)
	return respond(w, resp, err)
}

type agentCallForm struct {
	Queued   string `form:"queued" validate:"required,uuid4"`
	Agent    int    `form:"agent"  validate:"required"`
	Event    string `form:"Event"  validate:"required"`
	CallUUID string `form:"CallUUID"`
}

func handleAgentCallForQueue(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &agentCallForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().AgentCallForQueue(ctx, &calls.AgentCallRequest{
		QueuedCallUUID: form.Queued,
		AgentID:        models.AgentID(form.Agent),
		Event:          form.Event,
		LegCallID:      form.CallUUID,
	})
	return respond(w, resp, err)
}

type voicemailForm struct {
	Call    string `form:"call"    validate:"required,uuid4"`
	Message string `form:"message" validate:"required"`
}

func handleVoicemail(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	if !checkSignature(s, r, w) {
		return nil
	}

	form := &voicemailForm{}
	if err := web.DecodeAndValidateForm(form, r); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	resp, err := s.Engine().VoicemailPrompt(ctx, form.Call, models.MessageType(form.Message))
	return respond(w, resp, err)
}
