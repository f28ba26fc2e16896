package main

import (
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/logging"
	"github.com/t2bot/patient-media-repo/metrics"
	"github.com/t2bot/patient-media-repo/redislib"
)

// reload applies a changed config. The datastore and database stay as they
// were at startup; changing those needs a restart.
func (a *app) reload(c *config.MainRepoConfig) {
	if err := logging.SetLevel(c.General.LogLevel); err != nil {
		logrus.Error("Error changing log level: ", err)
	}

	logrus.Info("Reloading workers...")
	a.pools.AdjustSize(c.Workers)

	logrus.Info("Reloading limits...")
	a.fetches.Reload(c.RateLimit.DistinctFetches)

	logrus.Info("Reloading redis...")
	redislib.Configure(c.Redis)

	logrus.Info("Reloading metrics...")
	metrics.Reload(c.Metrics)

	logrus.Info("Restarting web server...")
	api.Reload(*c, a.services(c))
}
