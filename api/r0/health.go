package r0

import (
	"net/http"

	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/common/version"
)

type HealthzResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

func GetHealthz(r *http.Request, rctx rcontext.RequestContext) interface{} {
	return &HealthzResponse{
		OK:      true,
		Version: version.Release(),
	}
}
