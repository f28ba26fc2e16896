package upload

import (
	"context"
	"time"

	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/redislib"
)

var (
	lockExpiry  = 5 * time.Minute
	lockRefresh = lockExpiry / 3
)

// LockForUpload serializes reservation of a content hash across processes.
// It waits for as long as ctx allows; a concurrent upload of the same content
// is expected to hold the lock only briefly. While held, the lock is extended
// in the background so it cannot lapse. The returned function releases it.
// Without redis the lock is a no-op and the dedup reservation is the only
// coordination.
func LockForUpload(ctx rcontext.RequestContext, hash string) (func() error, error) {
	mutex := redislib.GetMutex("upload-"+hash, lockExpiry)
	if mutex == nil {
		ctx.Log.Debug("Continuing upload without a distributed lock")
		return func() error { return nil }, nil
	}

	for {
		if err := ctx.Context.Err(); err != nil {
			return nil, err
		}
		err := mutex.LockContext(ctx.Context)
		if err == nil {
			break
		}
		if ctxErr := ctx.Context.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		ctx.Log.Warn("Still waiting for upload lock: ", err)
	}
	ctx.Log.Debugf("Lock acquired until %s", mutex.Until().UTC())

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(lockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if ok, err := mutex.ExtendContext(context.Background()); !ok || err != nil {
					ctx.Log.Warn("Failed to extend upload lock: ", err)
				}
			}
		}
	}()

	return func() error {
		close(stop)
		<-stopped
		ctx.Log.Debug("Unlocking upload lock")
		// A cancelled request context must not keep the lock held
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			ctx.Log.Warn("Did not get quorum on unlock: ", err)
			return err
		}
		return nil
	}, nil
}
