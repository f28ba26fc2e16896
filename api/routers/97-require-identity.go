package routers

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/restrictions"
)

type GeneratorWithIdentityFn = func(r *http.Request, ctx rcontext.RequestContext, identity string) interface{}

func RequireIdentity(auth restrictions.Authorizer, generator GeneratorWithIdentityFn) GeneratorFn {
	return func(r *http.Request, ctx rcontext.RequestContext) interface{} {
		identity, err := auth.Authenticate(r)
		if err != nil || identity == "" {
			if err != nil && !errors.Is(err, common.ErrNotAuthorized) {
				sentry.CaptureException(err)
				ctx.Log.Error("Error authenticating request: ", err)
				return responses.InternalServerError("unexpected error authenticating")
			}
			return responses.AuthFailed()
		}

		ctx = ctx.LogWithFields(logrus.Fields{"identity": identity})
		return generator(r, ctx, identity)
	}
}
