package r0

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/api/routers"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/pipelines/pipeline_download"
	"github.com/t2bot/patient-media-repo/types"
)

func serveVariant(svc *apimeta.Services, r *http.Request, rctx rcontext.RequestContext, identity string, variant types.Variant) interface{} {
	artifactId := mux.Vars(r)["artifactId"]
	return svc.Download.Serve(rctx, pipeline_download.Request{
		ArtifactId: artifactId,
		Variant:    variant,
		Decision:   svc.Authorizer.Authorize(rctx, identity, artifactId),
		Range:      r.Header.Get("Range"),
	})
}

func DownloadMedia(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		return serveVariant(svc, r, rctx, identity, types.VariantOriginal)
	}
}

func ThumbnailMedia(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		return serveVariant(svc, r, rctx, identity, types.VariantThumbnail)
	}
}

func DerivativeMedia(svc *apimeta.Services) routers.GeneratorWithIdentityFn {
	return func(r *http.Request, rctx rcontext.RequestContext, identity string) interface{} {
		label := mux.Vars(r)["label"]
		if !datastores.ValidLabel(label) {
			return responses.NotFoundError()
		}
		return serveVariant(svc, r, rctx, identity, types.DerivativeVariant(label))
	}
}
