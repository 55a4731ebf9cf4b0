package locker_test

import (
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/leaseline/callroom/locker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) *redis.Pool {
	rp := &redis.Pool{
		MaxActive: 4,
		MaxIdle:   2,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", "localhost:6379", redis.DialDatabase(0))
		},
	}

	rc := rp.Get()
	defer rc.Close()
	_, err := rc.Do("DEL", "lock:test")
	require.NoError(t, err)

	return rp
}

func TestLocker(t *testing.T) {
	rp := testPool(t)
	defer rp.Close()

	// acquire a lock, but have it expire in 5 seconds
	v1, err := locker.GrabLock(rp, "test", time.Second*5, time.Second)
	assert.NoError(t, err)
	assert.NotZero(t, v1)

	// try to acquire the same lock, should fail
	v2, err := locker.GrabLock(rp, "test", time.Second*5, time.Second)
	assert.NoError(t, err)
	assert.Zero(t, v2)

	// should succeed if we wait longer than the expiration
	v3, err := locker.GrabLock(rp, "test", time.Second*5, time.Second*5)
	assert.NoError(t, err)
	assert.NotZero(t, v3)
	assert.NotEqual(t, v1, v3)

	// extend the lock
	err = locker.ExtendLock(rp, "test", v3, time.Second*10)
	assert.NoError(t, err)

	// trying to grab it should fail with a 5 second timeout
	v4, err := locker.GrabLock(rp, "test", time.Second*5, time.Second*5)
	assert.NoError(t, err)
	assert.Zero(t, v4)

	// return the lock
	err = locker.ReleaseLock(rp, "test", v3)
	assert.NoError(t, err)

	// new grab should work
	v5, err := locker.GrabLock(rp, "test", time.Second*5, time.Second*5)
	assert.NoError(t, err)
	assert.NotZero(t, v5)
}
