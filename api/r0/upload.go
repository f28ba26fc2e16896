package r0

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/api/routers"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/types"
)

type MediaUploadedResponse struct {
	Artifact     *types.MediaArtifact `json:"artifact"`
	Deduplicated bool                 `json:"deduplicated"`
}

func UploadMedia(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		defer r.Body.Close()

		if r.ContentLength > svc.Uploads.LargestMaxBytes() {
			return responses.Rejected(common.Reject(common.RejectTooLarge, "declared length %d", r.ContentLength))
		}

		filename := r.URL.Query().Get("filename")
		contentType := r.Header.Get("Content-Type")
		artifact, deduplicated, err := svc.Upload.Execute(rctx, r.Body, filename, contentType)
		if err != nil {
			if _, ok := common.AsRejection(err); !ok && rctx.Err() == nil {
				sentry.CaptureException(err)
			}
			return responses.ErrorFrom(err)
		}

		return &MediaUploadedResponse{
			Artifact:     artifact,
			Deduplicated: deduplicated,
		}
	}
}
