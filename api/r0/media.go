package r0

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/api/routers"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_delete"
	"github.com/t2bot/patient-media-repo/util/ids"
)

type MediaDeletedResponse struct {
	Removed bool `json:"removed"`
}

func authorizeArtifact(svc *apimeta.Services, rctx rcontext.RequestContext, identity string, artifactId string) *responses.ErrorResponse {
	if !svc.Authorizer.Authorize(rctx, identity, artifactId).Allowed {
		rctx.Log.WithFields(logrus.Fields{
			"security":   true,
			"artifactId": artifactId,
		}).Warn("Denied media access")
		return responses.Forbidden()
	}
	if !ids.IsValidId(artifactId) {
		return responses.NotFoundError()
	}
	return nil
}

func GetMediaInfo(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		artifactId := mux.Vars(r)["artifactId"]
		if errRes := authorizeArtifact(svc, rctx, identity, artifactId); errRes != nil {
			return errRes
		}

		artifact, err := svc.Index.GetById(rctx, artifactId)
		if err != nil {
			if !errors.Is(err, common.ErrMediaNotFound) && !errors.Is(err, common.ErrMediaNotReady) {
				sentry.CaptureException(err)
				rctx.Log.Error("Error looking up media: ", err)
			}
			return responses.ErrorFrom(err)
		}
		return artifact
	}
}

func DeleteMedia(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		artifactId := mux.Vars(r)["artifactId"]
		if errRes := authorizeArtifact(svc, rctx, identity, artifactId); errRes != nil {
			return errRes
		}

		removed, err := pipeline_delete.Execute(rctx, svc.Index, svc.Store, artifactId)
		if err != nil {
			if !errors.Is(err, common.ErrMediaNotFound) && !errors.Is(err, common.ErrMediaNotReady) {
				sentry.CaptureException(err)
				rctx.Log.Error("Error deleting media: ", err)
			}
			return responses.ErrorFrom(err)
		}
		return &MediaDeletedResponse{Removed: removed}
	}
}
