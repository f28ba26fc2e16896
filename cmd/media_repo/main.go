package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/logging"
	"github.com/t2bot/patient-media-repo/common/version"
	"github.com/t2bot/patient-media-repo/metrics"
	"github.com/t2bot/patient-media-repo/redislib"
)

func main() {
	configPath := flag.String("config", "media-repo.yaml", "The path to the configuration")
	migrationsPath := flag.String("migrations", config.DefaultMigrationsPath, "The absolute path for the migrations folder")
	versionFlag := flag.Bool("version", false, "Prints the version and exits")
	flag.Parse()

	if *versionFlag {
		version.Print(false)
		return // exit 0
	}

	// Override config path with config for Docker users
	configEnv := os.Getenv("REPO_CONFIG")
	if configEnv != "" {
		configPath = &configEnv
	}

	c, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	if c.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err = sentry.Init(sentry.ClientOptions{
			Dsn:         c.Sentry.Dsn,
			Environment: c.Sentry.Environment,
			Debug:       c.Sentry.Debug,
			Release:     version.Release(),
		})
		if err != nil {
			panic(err)
		}
	}
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	err = logging.Setup(
		c.General.LogDirectory,
		c.General.LogColors,
		c.General.JsonLogs,
		c.General.LogLevel,
	)
	if err != nil {
		panic(err)
	}

	logrus.Info("Starting up...")
	version.Print(true)
	redislib.Configure(c.Redis)
	app, err := startup(c, *migrationsPath)
	if err != nil {
		sentry.CaptureException(err)
		logrus.Fatal(err)
	}

	logrus.Info("Starting config watcher...")
	watcher, err := config.Watch(*configPath, app.reload)
	if err != nil {
		logrus.Warn("Config changes will not be picked up: ", err)
	} else {
		defer func(watcher *fsnotify.Watcher) {
			_ = watcher.Close()
		}(watcher)
	}

	logrus.Info("Starting media repository...")
	metrics.Init(c.Metrics)
	web := api.Init(*c, app.services(c))

	// Set up a function to stop everything
	stopAllButWeb := func() {
		logrus.Info("Stopping metrics...")
		metrics.Stop()

		logrus.Info("Draining workers...")
		app.pools.Drain()

		logrus.Info("Closing connections...")
		redislib.Stop()
		app.close()
	}

	// Set up a listener for SIGINT
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	selfStop := false
	go func() {
		defer close(stop)
		<-stop
		selfStop = true

		logrus.Warn("Stop signal received")
		logrus.Info("Stopping web server...")
		api.Stop()
		stopAllButWeb()
	}()

	// Wait for the web server to exit nicely
	web.Wait()

	// Stop everything else if we have to
	if !selfStop {
		stopAllButWeb()
	}

	// For debugging
	logrus.Info("Goodbye!")
}
