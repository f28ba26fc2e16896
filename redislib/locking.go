package redislib

import (
	"time"

	"github.com/go-redsync/redsync/v4"
)

// GetMutex returns a distributed mutex for key, or nil when redis is not
// configured.
func GetMutex(key string, expiration time.Duration) *redsync.Mutex {
	r := makeConnection()
	if r == nil {
		return nil
	}

	// The prefix keeps lock keys apart from anything else stored under the hash
	return r.NewMutex("mutex-"+key, redsync.WithExpiry(expiration))
}
