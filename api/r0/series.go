package r0

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/api/routers"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_series"
	"github.com/t2bot/patient-media-repo/types"
)

const maxSeriesBodyBytes = 1024 * 1024

type SeriesRequest struct {
	Items []types.SeriesItem `json:"items"`
}

func ValidateSeries(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		defer r.Body.Close()

		req := &SeriesRequest{}
		decoder := json.NewDecoder(io.LimitReader(r.Body, maxSeriesBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(req); err != nil {
			return responses.BadRequest("invalid series body")
		}
		for _, item := range req.Items {
			if errRes := authorizeArtifact(svc, rctx, identity, item.ArtifactId); errRes != nil && errRes.InternalCode == common.ErrCodeForbidden {
				return errRes
			}
		}

		items, err := pipeline_series.Validate(rctx, svc.Index, req.Items)
		if err != nil {
			if !errors.Is(err, common.ErrSeriesInvalid) {
				sentry.CaptureException(err)
				rctx.Log.Error("Error validating series: ", err)
			}
			return responses.ErrorFrom(err)
		}
		return &SeriesRequest{Items: items}
	}
}
