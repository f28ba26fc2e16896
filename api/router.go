package api

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/util"
)

func buildPrimaryRouter() *mux.Router {
	router := mux.NewRouter()
	router.StrictSlash(false)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedFn)
	router.NotFoundHandler = http.HandlerFunc(notFoundFn)
	router.Use(recoverMiddleware)
	return router
}

func writeError(w http.ResponseWriter, e *responses.ErrorResponse) {
	if _, err := responses.ErrorHttpResponse(e).WriteTo(w); err != nil {
		logrus.Warn("Error writing error response: ", err)
	}
}

func methodNotAllowedFn(w http.ResponseWriter, r *http.Request) {
	writeError(w, responses.MethodNotAllowed())
}

func notFoundFn(w http.ResponseWriter, r *http.Request) {
	writeError(w, responses.NotFoundError())
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if i := recover(); i != nil {
				panicFn(w, r, i)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func panicFn(w http.ResponseWriter, r *http.Request, i interface{}) {
	logrus.Errorf("Panic received on %s %s: %s", r.Method, util.GetLogSafeUrl(r), i)

	//goland:noinspection GoTypeAssertionOnErrors
	if e, ok := i.(error); ok {
		sentry.CaptureException(e)
	} else {
		sentry.CaptureMessage(fmt.Sprintf("Unknown panic received: %T %+v", i, i))
	}

	writeError(w, responses.InternalServerError("unexpected error"))
}
