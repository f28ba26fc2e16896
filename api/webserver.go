package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/limits"
)

var srv *http.Server
var srvLock = &sync.Mutex{}
var waitGroup = &sync.WaitGroup{}
var running = false

// Handler builds the full request chain without binding a listener.
func Handler(c config.MainRepoConfig, svc *apimeta.Services) http.Handler {
	handler := buildRoutes(c.General, svc)

	if c.RateLimit.Enabled {
		logrus.Debug("Enabling rate limit")
		handler = tollbooth.LimitHandler(limits.GetRequestLimiter(c.RateLimit, c.General.TrustAnyForward), handler)
	}

	// Note: we bind Sentry here to ensure we capture *everything*
	sentryHandler := sentryhttp.New(sentryhttp.Options{})
	return sentryHandler.Handle(handler)
}

// Init starts the web server. The returned wait group is released by Stop.
func Init(c config.MainRepoConfig, svc *apimeta.Services) *sync.WaitGroup {
	srvLock.Lock()
	defer srvLock.Unlock()
	if !running {
		waitGroup.Add(1)
		running = true
	}
	start(c, svc)
	return waitGroup
}

func start(c config.MainRepoConfig, svc *apimeta.Services) {
	address := net.JoinHostPort(c.General.BindAddress, strconv.Itoa(c.General.Port))
	srv = &http.Server{
		Addr:              address,
		Handler:           Handler(c, svc),
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func(s *http.Server) {
		//goland:noinspection HttpUrlsUsage
		logrus.WithField("address", address).Info("Started up. Listening at http://" + address)
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			logrus.Fatal(err)
		}
	}(srv)
}

func shutdown() {
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Warn("Error stopping web server: ", err)
		}
		srv = nil
	}
}

// Reload swaps the running server for one built from the new config.
func Reload(c config.MainRepoConfig, svc *apimeta.Services) {
	srvLock.Lock()
	defer srvLock.Unlock()
	shutdown()
	start(c, svc)
}

func Stop() {
	srvLock.Lock()
	defer srvLock.Unlock()
	shutdown()
	if running {
		running = false
		waitGroup.Done()
	}
}
