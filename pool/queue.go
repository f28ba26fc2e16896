package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common/logging"
	"github.com/t2bot/patient-media-repo/util"
)

// admissionRetry bounds how long a waiting Do sleeps between submit attempts
// when no finished task has signalled a free worker.
const admissionRetry = 25 * time.Millisecond

type Queue struct {
	pool  *ants.Pool
	name  string
	freed chan struct{}
}

func NewQueue(workers int, name string) (*Queue, error) {
	p, err := ants.NewPool(workers, ants.WithOptions(ants.Options{
		ExpiryDuration: 1 * time.Minute, // worker lifespan when unused
		PreAlloc:       false,
		Nonblocking:    true, // Do waits for a worker itself so it can watch ctx
		Logger:         &logging.SendToDebugLogger{},
		DisablePurge:   false,
	}))
	if err != nil {
		return nil, err
	}
	return &Queue{pool: p, name: name, freed: make(chan struct{}, 1)}, nil
}

// Do runs task on the queue and waits for it to finish. While every worker
// is busy Do waits for one to free up, giving up with ctx's error if ctx
// ends first; the task is then never run. Once running, the task is
// expected to watch ctx itself.
func (p *Queue) Do(ctx context.Context, task func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		defer func() {
			select {
			case p.freed <- struct{}{}:
			default:
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("Panic from internal queue %s", p.name)
				logrus.Error(r)
				err := util.PanicToError(r)
				sentry.CaptureException(err)
				result <- fmt.Errorf("task panicked: %w", err)
			}
		}()
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- task()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.pool.Submit(wrapped)
		if err == nil {
			break
		}
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.freed:
		case <-time.After(admissionRetry):
		}
	}
	return <-result
}

func (p *Queue) Tune(workers int) {
	p.pool.Tune(workers)
}

func (p *Queue) Running() int {
	return p.pool.Running()
}

func (p *Queue) Release() {
	p.pool.Release()
}
