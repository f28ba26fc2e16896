package limits

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/metrics"
)

type fetchWindow struct {
	start time.Time
	seen  map[string]struct{}
}

// FetchLimiter caps how many distinct artifacts one identity can fetch
// within a fixed window. Re-fetching an artifact already counted in the
// current window is always allowed.
type FetchLimiter struct {
	lock    sync.Mutex
	conf    config.DistinctFetchesConfig
	windows *cache.Cache
	now     func() time.Time
}

func NewFetchLimiter(c config.DistinctFetchesConfig) *FetchLimiter {
	return &FetchLimiter{
		conf:    c,
		windows: cache.New(c.Window(), c.Window()*2),
		now:     time.Now,
	}
}

// Reload swaps the limits in place. Windows already open keep their counts
// so a reload does not hand every identity a fresh quota.
func (l *FetchLimiter) Reload(c config.DistinctFetchesConfig) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.conf = c
}

// Allow records a fetch of artifactId by identity. When the fetch is over
// the limit it returns false along with how long until the window resets.
func (l *FetchLimiter) Allow(identity string, artifactId string) (bool, time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.conf.Enabled || l.conf.MaxFetches <= 0 {
		return true, 0
	}

	now := l.now()
	window := l.conf.Window()
	var w *fetchWindow
	if v, ok := l.windows.Get(identity); ok {
		w = v.(*fetchWindow)
		if now.Sub(w.start) >= window {
			w = nil
		}
	}
	if w == nil {
		w = &fetchWindow{start: now, seen: make(map[string]struct{})}
		l.windows.Set(identity, w, window)
	}

	if _, ok := w.seen[artifactId]; ok {
		return true, 0
	}
	if len(w.seen) >= l.conf.MaxFetches {
		metrics.FetchesLimited.Inc()
		retryAfter := w.start.Add(window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}
	w.seen[artifactId] = struct{}{}
	return true, 0
}
