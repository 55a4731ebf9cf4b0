package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
)

// RecordingRequest is the record-complete webhook for a voicemail recording
type RecordingRequest struct {
	CallID      string
	RecordURL   string
	RecordingID string
	Duration    int
}

// CallRecording persists a finished voicemail recording. Zero-length
// recordings and recordings from blacklisted callers are discarded, and a
// recording saved after the call was flagged for removal gets deleted at the
// provider instead of stored.
func (e *Engine) CallRecording(ctx context.Context, req *RecordingRequest) (*markup.Response, error) {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "recording_id", req.RecordingID)

	if req.Duration == 0 {
		return &markup.Response{Message: "empty recording discarded"}, nil
	}

	spam, err := e.store.IsBlacklisted(ctx, call.FromNumber())
	if err != nil {
		log.Error("error checking blacklist", "error", err)
	}
	if spam {
		log.Info("discarding recording from blacklisted caller")
		return &markup.Response{Message: "recording discarded"}, nil
	}

	if call.RecordingRemoved() {
		// the recording was deleted from the CRM while the provider was still
		// uploading, honor the deletion
		if err := e.voice.DeleteRecording(ctx, req.RecordingID); err != nil && !IsProviderNotFound(err) {
			log.Error("error deleting removed recording", "error", err)
		}
		return &markup.Response{Message: "recording removed"}, nil
	}

	if err := e.store.SaveRecording(ctx, call, req.RecordURL, req.RecordingID, req.Duration); err != nil {
		log.Error("error saving recording", "error", err)
	}
	return &markup.Response{Message: "recording saved"}, nil
}
