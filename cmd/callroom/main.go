package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/leaseline/callroom"
	"github.com/leaseline/callroom/runtime"
	"github.com/nyaruka/ezconf"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

var version = "Dev"

func main() {
	config := runtime.NewDefaultConfig()
	loader := ezconf.NewLoader(
		config,
		"callroom", "Callroom - telephony call control for the leasing CRM",
		[]string{"callroom.toml"},
	)
	loader.MustLoad()

	// if we have a custom version, use it
	if version != "Dev" {
		config.Version = version
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		log.Fatalf("invalid log level '%s'", config.LogLevel)
	}

	// configure our logger
	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logHandler))

	// if we have a DSN entry, try to initialize it
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{Dsn: config.SentryDSN, EnableTracing: false})
		if err != nil {
			log.Fatalf("error initiating sentry client, error %s, dsn %s", err, config.SentryDSN)
		}
		defer sentry.Flush(2 * time.Second)

		slog.SetDefault(slog.New(slogmulti.Fanout(
			logHandler,
			slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
		)))
	}

	cr := callroom.NewCallroom(config)
	if err := cr.Start(); err != nil {
		log.Fatalf("error starting server: %s", err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("stopping", "comp", "main", "signal", <-ch)

	cr.Stop()
}
