package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/database"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/limits"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_download"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_upload"
	"github.com/t2bot/patient-media-repo/pool"
	"github.com/t2bot/patient-media-repo/restrictions"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/validation"
)

// app holds the long-lived pieces that survive a config reload.
type app struct {
	db      *database.Database
	store   datastores.Store
	index   dedup.Index
	pools   *pool.Pools
	fetches *limits.FetchLimiter
}

func startup(c *config.MainRepoConfig, migrationsPath string) (*app, error) {
	a := &app{}
	var err error

	logrus.Info("Preparing datastore...")
	if a.store, err = datastores.NewStore(c.Datastore); err != nil {
		return nil, err
	}

	if c.Database.Postgres != "" {
		logrus.Info("Preparing database...")
		if a.db, err = database.Open(c.Database, migrationsPath); err != nil {
			return nil, err
		}
		a.index = dedup.NewPostgresIndex(a.db, c.Database.StaleReservation())
	} else {
		logrus.Warn("No database configured - the dedup index will only live in memory")
		a.index = dedup.NewMemoryIndex()
	}

	logrus.Info("Starting workers...")
	if a.pools, err = pool.NewPools(c.Workers); err != nil {
		a.close()
		return nil, err
	}

	a.fetches = limits.NewFetchLimiter(c.RateLimit.DistinctFetches)
	return a, nil
}

func tempDir(c *config.MainRepoConfig) string {
	if c.Datastore.TempPath != "" {
		return c.Datastore.TempPath
	}
	return os.TempDir()
}

// services assembles the request-facing components for the given config.
func (a *app) services(c *config.MainRepoConfig) *apimeta.Services {
	images := thumbnailing.NewProcessor(c.Images)
	var poster config.DerivativeSize
	for _, d := range c.Images.Derivatives {
		if d.Label == config.ThumbnailLabel {
			poster = d
		}
	}
	transcoder := transcoding.NewTranscoder(c.Videos, transcoding.NewFfmpegEngine(c.Videos), images, poster, tempDir(c))

	return &apimeta.Services{
		Uploads: c.Uploads,
		Upload: pipeline_upload.New(pipeline_upload.Dependencies{
			Uploads:    c.Uploads,
			Images:     c.Images,
			Videos:     c.Videos,
			Validator:  validation.NewValidator(c.Uploads, c.Videos, images, transcoder, tempDir(c)),
			Processor:  images,
			Transcoder: transcoder,
			Index:      a.index,
			Store:      a.store,
			Pools:      a.pools,

			ReservationRefresh: c.Database.ReservationRefresh(),
		}),
		Download:   pipeline_download.NewServer(a.index, a.store, a.fetches, c.Downloads),
		Index:      a.index,
		Store:      a.store,
		Authorizer: restrictions.NewSharedSecretAuthorizer(c.SharedSecret),
	}
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logrus.Warn("Error closing database: ", err)
		}
	}
}
