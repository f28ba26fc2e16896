package upload

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/redislib"
)

func useRedis(t *testing.T) *miniredis.Miniredis {
	m := miniredis.RunT(t)
	redislib.Configure(config.RedisConfig{
		Enabled: true,
		Shards:  []config.RedisShardConfig{{Name: "test", Address: m.Addr()}},
	})
	t.Cleanup(func() {
		redislib.Configure(config.RedisConfig{Enabled: false})
	})
	return m
}

func TestLockForUploadWithoutRedis(t *testing.T) {
	redislib.Configure(config.RedisConfig{Enabled: false})
	defer redislib.Stop()

	unlock, err := LockForUpload(rcontext.Initial(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.NoError(t, unlock())
}

func TestLockForUploadWaitsForHolder(t *testing.T) {
	m := useRedis(t)

	unlock, err := LockForUpload(rcontext.Initial(), "abc123")
	require.NoError(t, err)
	assert.True(t, m.Exists("mutex-upload-abc123"))

	acquired := make(chan error, 1)
	go func() {
		unlock2, err := LockForUpload(rcontext.Initial(), "abc123")
		if err == nil {
			err = unlock2()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, unlock())
	select {
	case err = <-acquired:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("second lock never acquired")
	}
	assert.False(t, m.Exists("mutex-upload-abc123"))
}

func TestLockForUploadHonoursContext(t *testing.T) {
	useRedis(t)

	unlock, err := LockForUpload(rcontext.Initial(), "abc123")
	require.NoError(t, err)
	defer unlock()

	c, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = LockForUpload(rcontext.Wrap(c, nil), "abc123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// other hashes are unaffected
	unlockOther, err := LockForUpload(rcontext.Initial(), "def456")
	require.NoError(t, err)
	assert.NoError(t, unlockOther())
}

func TestLockForUploadExtendsWhileHeld(t *testing.T) {
	m := useRedis(t)
	previous := lockRefresh
	lockRefresh = 50 * time.Millisecond
	defer func() {
		lockRefresh = previous
	}()

	unlock, err := LockForUpload(rcontext.Initial(), "abc123")
	require.NoError(t, err)

	m.FastForward(lockExpiry - time.Minute)
	require.LessOrEqual(t, m.TTL("mutex-upload-abc123"), time.Minute)
	assert.Eventually(t, func() bool {
		return m.TTL("mutex-upload-abc123") > lockExpiry-time.Minute
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, unlock())
	assert.False(t, m.Exists("mutex-upload-abc123"))
}
