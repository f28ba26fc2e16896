package apimeta

import (
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_download"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_upload"
	"github.com/t2bot/patient-media-repo/restrictions"
)

// Services is everything the HTTP handlers call into.
type Services struct {
	Uploads    config.UploadsConfig
	Upload     *pipeline_upload.Pipeline
	Download   *pipeline_download.Server
	Index      dedup.Index
	Store      datastores.Store
	Authorizer restrictions.Authorizer
}
