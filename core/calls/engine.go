package calls

import (
	"context"
	"log/slog"
	"time"
)

// Options tunes engine behavior, zero values get sensible defaults
type Options struct {
	BaseURL       string
	HoldMusicURL  string
	DialTimeout   int           // seconds agent endpoints ring before no-answer
	HoldRepeats   int           // alternating prompt/music rounds inside the digit gather
	WatchdogDelay time.Duration // how long a lone conference member may wait
}

// Engine drives the call state machine. All collaborators are passed in at
// construction, including the provider client.
type Engine struct {
	store    Store
	voice    VoiceClient
	notifier Notifier
	tasks    Tasks
	locker   Locker
	msgs     *MessageResolver
	watchdog *Watchdog
	urls     URLs

	holdMusicURL string
	dialTimeout  int
	holdRepeats  int
}

// NewEngine creates a new engine around the passed in collaborators
func NewEngine(store Store, voice VoiceClient, notifier Notifier, tasks Tasks, locker Locker, opts Options) *Engine {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 25
	}
	if opts.HoldRepeats == 0 {
		opts.HoldRepeats = 10
	}
	if opts.WatchdogDelay == 0 {
		opts.WatchdogDelay = time.Minute
	}

	return &Engine{
		store:        store,
		voice:        voice,
		notifier:     notifier,
		tasks:        tasks,
		locker:       locker,
		msgs:         NewMessageResolver(store),
		watchdog:     NewWatchdog(voice, opts.WatchdogDelay),
		urls:         URLs{Base: opts.BaseURL},
		holdMusicURL: opts.HoldMusicURL,
		dialTimeout:  opts.DialTimeout,
		holdRepeats:  opts.HoldRepeats,
	}
}

// Watchdog exposes the conference watchdog, mostly for test overrides
func (e *Engine) Watchdog() *Watchdog { return e.watchdog }

// URLs exposes the engine's callback URL builder
func (e *Engine) URLs() URLs { return e.urls }

// notify publishes a notification, logging instead of failing, the webhook
// response path never blocks on pub/sub
func (e *Engine) notify(ctx context.Context, n *Notification) {
	if err := e.notifier.Publish(ctx, n); err != nil {
		slog.Error("error publishing notification", "comp", "calls", "event", n.Event, "error", err)
	}
}

// withRetry runs a bookkeeping operation, retrying once after a short
// backoff before wrapping the failure as transient
func withRetry(op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	time.Sleep(retryBackoff)
	if err = fn(); err != nil {
		return &TransientStoreError{Op: op, Err: err}
	}
	return nil
}

var retryBackoff = 100 * time.Millisecond
