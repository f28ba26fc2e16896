package routers

import (
	"net/http"

	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/common/rcontext"
)

type GeneratorFn = func(r *http.Request, ctx rcontext.RequestContext) interface{}

type EmptyResponse struct{}

type RContextRouter struct {
	generatorFn GeneratorFn
	next        http.Handler
}

func NewRContextRouter(generatorFn GeneratorFn, next http.Handler) *RContextRouter {
	return &RContextRouter{generatorFn: generatorFn, next: next}
}

func (c *RContextRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r)
	rctx := rcontext.RequestContext{
		Context: r.Context(),
		Log:     log,
		Request: r,
	}

	var res interface{}
	res = c.generatorFn(r, rctx)
	if res == nil {
		res = &EmptyResponse{}
	}

	var httpRes *responses.HttpResponse
	switch v := res.(type) {
	case *responses.HttpResponse:
		httpRes = v
	case *responses.ErrorResponse:
		httpRes = responses.ErrorHttpResponse(v)
	default:
		httpRes = responses.JsonResponse(http.StatusOK, v)
	}
	log.Infof("Replying with status %d (%T)", httpRes.StatusCode, res)

	r = withStatusCode(r, httpRes.StatusCode)
	if _, err := httpRes.WriteTo(w); err != nil {
		// Headers are gone already; the client sees a short body
		log.Warn("Error sending response: ", err)
	}

	if c.next != nil {
		c.next.ServeHTTP(w, r)
	}
}
