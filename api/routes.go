package api

import (
	"net/http"

	"github.com/t2bot/patient-media-repo/api/apimeta"
	"github.com/t2bot/patient-media-repo/api/r0"
	"github.com/t2bot/patient-media-repo/api/routers"
	"github.com/t2bot/patient-media-repo/common/config"
)

const PrefixMedia = "/_media/v1"

const idPattern = "{artifactId:[0-9a-f]{32}}"

func buildRoutes(c config.GeneralConfig, svc *apimeta.Services) http.Handler {
	counter := &routers.RequestCounter{}
	router := buildPrimaryRouter()
	auth := func(gen routers.GeneratorWithIdentityFn) routers.GeneratorFn {
		return routers.RequireIdentity(svc.Authorizer, gen)
	}
	route := func(gen routers.GeneratorFn, name string) http.Handler {
		return makeRoute(c, gen, name, counter)
	}

	router.Handle(PrefixMedia+"/upload", route(auth(r0.UploadMedia(svc)), "upload")).Methods(http.MethodPost)
	router.Handle(PrefixMedia+"/download/"+idPattern, route(auth(r0.DownloadMedia(svc)), "download")).Methods(http.MethodGet)
	router.Handle(PrefixMedia+"/thumbnail/"+idPattern, route(auth(r0.ThumbnailMedia(svc)), "thumbnail")).Methods(http.MethodGet)
	router.Handle(PrefixMedia+"/derivative/"+idPattern+"/{label:[a-z0-9_]+}", route(auth(r0.DerivativeMedia(svc)), "derivative")).Methods(http.MethodGet)
	router.Handle(PrefixMedia+"/media/"+idPattern, route(auth(r0.GetMediaInfo(svc)), "media_info")).Methods(http.MethodGet)
	router.Handle(PrefixMedia+"/media/"+idPattern, route(auth(r0.DeleteMedia(svc)), "delete_media")).Methods(http.MethodDelete)
	router.Handle(PrefixMedia+"/series/validate", route(auth(r0.ValidateSeries(svc)), "validate_series")).Methods(http.MethodPost)

	healthzRoute := route(r0.GetHealthz, "healthz")
	router.Handle("/healthz", healthzRoute).Methods(http.MethodGet, http.MethodHead)

	return router
}

func makeRoute(c config.GeneralConfig, generator routers.GeneratorFn, name string, counter *routers.RequestCounter) http.Handler {
	return routers.NewRemoteAddressRouter(c.TrustAnyForward,
		routers.NewInstallMetadataRouter(name, counter,
			routers.NewInstallHeadersRouter(
				routers.NewMetricsRequestRouter(
					routers.NewRContextRouter(generator, routers.NewMetricsResponseRouter(nil)),
				),
			),
		))
}
