package runtime

import (
	"github.com/gomodule/redigo/redis"
	"github.com/vinovest/sqlx"
)

// Runtime represents the set of services required to run callroom. Used as a
// wrapper for those services to simplify call signatures but not create a
// direct dependency to the server itself.
type Runtime struct {
	DB     *sqlx.DB
	RP     *redis.Pool
	Config *Config
}
