package rcontext

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
)

func Initial() RequestContext {
	return RequestContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
		Request: nil,
	}.populate()
}

// Wrap builds a RequestContext around an existing context, for callers
// outside of an HTTP request (tests, tools, background work).
func Wrap(ctx context.Context, log *logrus.Entry) RequestContext {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return RequestContext{
		Context: ctx,
		Log:     log,
	}.populate()
}

type RequestContext struct {
	context.Context

	// These are also stored on the context object itself
	Log     *logrus.Entry // pmr.logger
	Request *http.Request // pmr.request
}

func (c RequestContext) populate() RequestContext {
	c.Context = context.WithValue(c.Context, common.ContextLogger, c.Log)
	c.Context = context.WithValue(c.Context, common.ContextRequest, c.Request)
	return c
}

func (c RequestContext) ReplaceLogger(log *logrus.Entry) RequestContext {
	ctx := context.WithValue(c.Context, common.ContextLogger, log)
	return RequestContext{
		Context: ctx,
		Log:     log,
		Request: c.Request,
	}
}

func (c RequestContext) LogWithFields(fields logrus.Fields) RequestContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}

// WithContext swaps the underlying context (for timeouts/cancellation) while
// keeping the logger and request.
func (c RequestContext) WithContext(ctx context.Context) RequestContext {
	return RequestContext{
		Context: ctx,
		Log:     c.Log,
		Request: c.Request,
	}
}
