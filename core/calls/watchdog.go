package calls

import (
	"context"
	"log/slog"
	"time"
)

// Watchdog hangs up a lone conference member that nobody joined within the
// configured delay. There is no cancellation channel: the check re-reads
// live conference state at fire time, so an exit or a second join before
// the delay elapses makes it a no-op.
type Watchdog struct {
	voice VoiceClient
	delay time.Duration

	// schedule is swappable so tests can fire checks synchronously
	schedule func(d time.Duration, fn func())
}

// NewWatchdog creates a watchdog around the passed in provider client
func NewWatchdog(voice VoiceClient, delay time.Duration) *Watchdog {
	return &Watchdog{
		voice:    voice,
		delay:    delay,
		schedule: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// SetScheduler overrides how checks are deferred, for tests
func (w *Watchdog) SetScheduler(schedule func(d time.Duration, fn func())) {
	w.schedule = schedule
}

// MemberEntered schedules a lone-member check for the passed in conference.
// The entering member id is kept as a fallback for providers that don't
// report member ids on the live state read.
func (w *Watchdog) MemberEntered(conferenceID, memberID string) {
	w.schedule(w.delay, func() { w.check(conferenceID, memberID) })
}

func (w *Watchdog) check(conferenceID, enteredMemberID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log := slog.With("comp", "watchdog", "conference_id", conferenceID)

	conf, err := w.voice.GetLiveConference(ctx, conferenceID)
	if err != nil {
		if IsProviderNotFound(err) {
			// conference already ended, nothing to do
			return
		}
		log.Error("error fetching live conference", "error", err)
		return
	}
	if conf == nil || conf.MemberCount != 1 {
		return
	}
	memberID := enteredMemberID
	if len(conf.MemberIDs) > 0 {
		memberID = conf.MemberIDs[0]
	}
	if memberID == "" {
		return
	}

	log.Info("hanging up lone conference member", "member_id", memberID)
	if err := w.voice.HangupConferenceMember(ctx, conferenceID, memberID); err != nil && !IsProviderNotFound(err) {
		log.Error("error hanging up lone member", "error", err)
	}
}
