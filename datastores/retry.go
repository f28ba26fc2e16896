package datastores

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
)

// Opener produces a fresh reader for each attempt.
type Opener func() (io.ReadCloser, error)

// PutWithRetry stores the content at p, retrying transient failures with
// exponential backoff. A path collision, an invalid path or a cancelled
// context is not retried.
func PutWithRetry(ctx rcontext.RequestContext, store Store, p string, open Opener, attempts int, initialBackoff time.Duration) (int64, error) {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.MaxElapsedTime = 0

	var written int64
	attempt := 0
	op := func() error {
		attempt++
		r, err := open()
		if err != nil {
			return backoff.Permanent(err)
		}
		defer r.Close()

		written, err = store.Put(ctx, p, r)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrPathExists) || errors.Is(err, common.ErrInvalidPath) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		ctx.Log.Warnf("Error storing file (attempt %d of %d): %s", attempt, attempts, err)
		// A failed put may still have left the object behind on some backends
		_ = store.Delete(ctx, p)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	if err != nil {
		return 0, err
	}
	return written, nil
}
