package routers

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/util"
)

type ctxKey string

const requestIdCtxKey = ctxKey("pmr.request_id")
const actionNameCtxKey = ctxKey("pmr.action")
const loggerCtxKey = ctxKey("pmr.logger")
const statusCodeCtxKey = ctxKey("pmr.status_code")
const startTimeCtxKey = ctxKey("pmr.start")

type RequestCounter struct {
	lastId uint64
}

func (c *RequestCounter) NextId() string {
	return "REQ-" + strconv.FormatUint(atomic.AddUint64(&c.lastId, 1), 10)
}

type InstallMetadataRouter struct {
	next       http.Handler
	actionName string
	counter    *RequestCounter
}

func NewInstallMetadataRouter(actionName string, counter *RequestCounter, next http.Handler) *InstallMetadataRouter {
	return &InstallMetadataRouter{
		next:       next,
		actionName: actionName,
		counter:    counter,
	}
}

func (i *InstallMetadataRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestId := i.counter.NextId()
	logger := logrus.WithFields(logrus.Fields{
		"method":        r.Method,
		"resource":      r.URL.Path,
		"contentType":   r.Header.Get("Content-Type"),
		"contentLength": r.ContentLength,
		"queryString":   util.GetLogSafeQueryString(r),
		"requestId":     requestId,
		"remoteAddr":    r.RemoteAddr,
		"action":        i.actionName,
	})

	ctx := r.Context()
	ctx = context.WithValue(ctx, requestIdCtxKey, requestId)
	ctx = context.WithValue(ctx, actionNameCtxKey, i.actionName)
	ctx = context.WithValue(ctx, loggerCtxKey, logger)
	ctx = context.WithValue(ctx, startTimeCtxKey, time.Now())
	r = r.WithContext(ctx)

	if i.next != nil {
		i.next.ServeHTTP(w, r)
	}
}

func GetActionName(r *http.Request) string {
	x, ok := r.Context().Value(actionNameCtxKey).(string)
	if !ok {
		return "<UNKNOWN>"
	}
	return x
}

func GetLogger(r *http.Request) *logrus.Entry {
	x, ok := r.Context().Value(loggerCtxKey).(*logrus.Entry)
	if !ok {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return x
}

func GetStatusCode(r *http.Request) int {
	x, ok := r.Context().Value(statusCodeCtxKey).(int)
	if !ok {
		return http.StatusOK
	}
	return x
}

func withStatusCode(r *http.Request, statusCode int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), statusCodeCtxKey, statusCode))
}

func GetStartTime(r *http.Request) time.Time {
	x, ok := r.Context().Value(startTimeCtxKey).(time.Time)
	if !ok {
		return time.Now()
	}
	return x
}
