// Package callroom wires the service together: database, redis, provider
// client, call engine, web server and the worker pool.
package callroom

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/leaseline/callroom/core/notify"
	"github.com/leaseline/callroom/locker"
	"github.com/leaseline/callroom/queue"
	"github.com/leaseline/callroom/runtime"
	"github.com/leaseline/callroom/services/voice/teleapi"
	"github.com/leaseline/callroom/web"

	"github.com/gomodule/redigo/redis"
	"github.com/vinovest/sqlx"

	_ "github.com/leaseline/callroom/web/call"
	_ "github.com/leaseline/callroom/web/telephony"
	_ "github.com/lib/pq"
)

// TaskFunction is the function that will be called for a type of task
type TaskFunction func(ctx context.Context, engine *calls.Engine, task *queue.Task) error

var taskFunctions = make(map[string]TaskFunction)

// AddTaskFunction adds a task function that will be called for a type of task
func AddTaskFunction(taskType string, taskFunc TaskFunction) {
	taskFunctions[taskType] = taskFunc
}

// Callroom is the telephony service: webhooks in, markup out, async dial-out
// work drained from redis by a worker pool.
type Callroom struct {
	ctx    context.Context
	cancel context.CancelFunc

	rt   *runtime.Runtime
	wg   *sync.WaitGroup
	quit chan bool

	engine  *calls.Engine
	foreman *Foreman

	webserver *web.Server
}

// NewCallroom creates and returns a new callroom instance
func NewCallroom(config *runtime.Config) *Callroom {
	cr := &Callroom{
		rt:   &runtime.Runtime{Config: config},
		quit: make(chan bool),
		wg:   &sync.WaitGroup{},
	}
	cr.ctx, cr.cancel = context.WithCancel(context.Background())
	return cr
}

// Engine returns the call engine, used by task functions and tests
func (cr *Callroom) Engine() *calls.Engine { return cr.engine }

// Start starts the callroom service
func (cr *Callroom) Start() error {
	c := cr.rt.Config
	log := slog.With("comp", "callroom")

	// parse and test our db config
	dbURL, err := url.Parse(c.DB)
	if err != nil {
		return fmt.Errorf("unable to parse DB URL '%s': %w", c.DB, err)
	}
	if dbURL.Scheme != "postgres" {
		return fmt.Errorf("invalid DB URL: '%s', only postgres is supported", c.DB)
	}

	db, err := sqlx.Open("postgres", c.DB)
	if err != nil {
		return fmt.Errorf("unable to open DB with config: '%s': %w", c.DB, err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(c.DBPoolSize)
	db.SetConnMaxLifetime(time.Minute * 30)
	cr.rt.DB = db

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	err = db.PingContext(ctx)
	cancel()
	if err != nil {
		log.Error("db not reachable", "error", err)
	} else {
		log.Info("db ok")
	}

	// parse and test our redis config
	redisURL, err := url.Parse(c.Redis)
	if err != nil {
		return fmt.Errorf("unable to parse Redis URL '%s': %w", c.Redis, err)
	}

	redisPool := &redis.Pool{
		Wait:        true,              // makes callers wait for a connection
		MaxActive:   36,                // only open this many concurrent connections at once
		MaxIdle:     4,                 // only keep up to this many idle
		IdleTimeout: 240 * time.Second, // how long to wait before reaping a connection
		Dial: func() (redis.Conn, error) {
			conn, err := redis.Dial("tcp", redisURL.Host)
			if err != nil {
				return nil, err
			}

			// send auth if required
			if redisURL.User != nil {
				pass, authRequired := redisURL.User.Password()
				if authRequired {
					if _, err := conn.Do("AUTH", pass); err != nil {
						conn.Close()
						return nil, err
					}
				}
			}

			// switch to the right DB
			_, err = conn.Do("SELECT", strings.TrimLeft(redisURL.Path, "/"))
			return conn, err
		},
	}
	cr.rt.RP = redisPool

	conn := redisPool.Get()
	_, err = conn.Do("PING")
	conn.Close()
	if err != nil {
		log.Error("redis not reachable", "error", err)
	} else {
		log.Info("redis ok")
	}

	// build the provider client and the engine around it
	voice := teleapi.NewClient(&http.Client{Timeout: 30 * time.Second}, c.ProviderBaseURL, c.ProviderAuthID, c.ProviderAuthToken)

	cr.engine = calls.NewEngine(
		calls.NewDBStore(cr.rt.DB),
		voice,
		notify.NewRedisNotifier(cr.rt.RP),
		&taskQueuer{rp: cr.rt.RP},
		&redisLocker{rp: cr.rt.RP},
		calls.Options{
			BaseURL:       c.BaseURL(),
			HoldMusicURL:  c.HoldMusicURL,
			DialTimeout:   c.DialTimeout,
			WatchdogDelay: time.Duration(c.WatchdogDelay) * time.Second,
		},
	)

	// init our foreman and start it
	cr.foreman = NewForeman(cr.rt, cr.engine, cr.wg, queue.CallsQueue, c.CallWorkers)
	cr.foreman.Start()

	// start our web server
	cr.webserver = web.NewServer(cr.rt, cr.engine, voice, cr.wg)
	cr.webserver.Start()

	log.Info("callroom started", "version", c.Version)
	return nil
}

// Stop stops the callroom service
func (cr *Callroom) Stop() error {
	log := slog.With("comp", "callroom")
	log.Info("callroom stopping")

	cr.foreman.Stop()
	close(cr.quit)
	cr.cancel()

	cr.webserver.Stop()

	cr.wg.Wait()
	log.Info("callroom stopped")
	return nil
}

// taskQueuer implements calls.Tasks on top of the redis task queue
type taskQueuer struct {
	rp *redis.Pool
}

// DialOutTask is the payload for a queued-call dial-out round
type DialOutTask struct {
	CallID models.CallID `json:"call_id"`
	TeamID models.TeamID `json:"team_id"`
}

// SweepTask is the payload for an end-of-day queue sweep of one team
type SweepTask struct {
	TeamID models.TeamID `json:"team_id"`
}

func (q *taskQueuer) QueueDialOut(ctx context.Context, callID models.CallID, teamID models.TeamID) error {
	rc := q.rp.Get()
	defer rc.Close()

	return queue.AddTask(rc, queue.CallsQueue, queue.DialOutForQueue, int(teamID), &DialOutTask{CallID: callID, TeamID: teamID}, queue.DefaultPriority)
}

// redisLocker implements calls.Locker on top of the redis lock
type redisLocker struct {
	rp *redis.Pool
}

func (l *redisLocker) Grab(key string, expiration time.Duration) (string, error) {
	return locker.GrabLock(l.rp, key, expiration, time.Second*5)
}

func (l *redisLocker) Release(key string, value string) error {
	return locker.ReleaseLock(l.rp, key, value)
}
