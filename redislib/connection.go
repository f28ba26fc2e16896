package redislib

import (
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/t2bot/patient-media-repo/common/config"
)

var connectionLock = &sync.Mutex{}
var conf config.RedisConfig
var rs *redsync.Redsync
var clients = make([]*redis.Client, 0)

// Configure sets the shards used for locking. Existing connections are
// dropped and re-established on next use.
func Configure(c config.RedisConfig) {
	connectionLock.Lock()
	defer connectionLock.Unlock()
	stopLocked()
	conf = c
}

func makeConnection() *redsync.Redsync {
	connectionLock.Lock()
	defer connectionLock.Unlock()
	if rs != nil {
		return rs
	}
	if !conf.Enabled || len(conf.Shards) == 0 {
		return nil
	}

	pools := make([]rsredis.Pool, 0, len(conf.Shards))
	for _, c := range conf.Shards {
		client := redis.NewClient(&redis.Options{
			DialTimeout: 10 * time.Second,
			DB:          conf.DbNum,
			Addr:        c.Address,
		})
		clients = append(clients, client)
		pools = append(pools, goredis.NewPool(client))
	}
	rs = redsync.New(pools...)
	return rs
}

func Stop() {
	connectionLock.Lock()
	defer connectionLock.Unlock()
	stopLocked()
}

func stopLocked() {
	for _, c := range clients {
		_ = c.Close()
	}
	rs = nil
	clients = make([]*redis.Client, 0)
}
