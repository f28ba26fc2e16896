package pipeline_download

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/logging"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/datastores"
	"github.com/t2bot/patient-media-repo/dedup"
	"github.com/t2bot/patient-media-repo/limits"
	"github.com/t2bot/patient-media-repo/metrics"
	"github.com/t2bot/patient-media-repo/restrictions"
	"github.com/t2bot/patient-media-repo/types"
	"github.com/t2bot/patient-media-repo/util/ids"
)

type Request struct {
	ArtifactId string
	Variant    types.Variant
	Decision   restrictions.Decision
	Range      string
}

type Server struct {
	index   dedup.Index
	store   datastores.Store
	limiter *limits.FetchLimiter
	conf    config.DownloadsConfig
}

func NewServer(index dedup.Index, store datastores.Store, limiter *limits.FetchLimiter, conf config.DownloadsConfig) *Server {
	return &Server{index: index, store: store, limiter: limiter, conf: conf}
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// Serve answers a request for one variant of an artifact. Without an
// affirmative decision nothing is looked up or read.
func (s *Server) Serve(ctx rcontext.RequestContext, req Request) *responses.HttpResponse {
	res := s.serve(ctx, req)
	metrics.MediaServed.WithLabelValues(variantLabel(req.Variant), strconv.Itoa(res.StatusCode)).Inc()
	if res.StatusCode == http.StatusOK || res.StatusCode == http.StatusPartialContent {
		logging.Audit().WithFields(logrus.Fields{
			"identity":   req.Decision.Identity,
			"artifactId": req.ArtifactId,
			"variant":    string(req.Variant),
			"status":     res.StatusCode,
			"servedAt":   time.Now().UTC().Format(time.RFC3339Nano),
		}).Info("Media served")
	}
	return res
}

func variantLabel(v types.Variant) string {
	if v == types.VariantOriginal || v == types.VariantThumbnail {
		return string(v)
	}
	return "derivative"
}

func (s *Server) serve(ctx rcontext.RequestContext, req Request) *responses.HttpResponse {
	// Step 1: Authorization, before anything else is touched
	if !req.Decision.Allowed {
		ctx.Log.WithFields(logrus.Fields{
			"security":   true,
			"artifactId": req.ArtifactId,
		}).Warn("Denied media access")
		return responses.ErrorHttpResponse(responses.Forbidden())
	}
	if !ids.IsValidId(req.ArtifactId) {
		return responses.ErrorHttpResponse(responses.NotFoundError())
	}

	// Step 2: Find the artifact
	artifact, err := s.index.GetById(ctx, req.ArtifactId)
	if err != nil {
		if !errors.Is(err, common.ErrMediaNotFound) && !errors.Is(err, common.ErrMediaNotReady) {
			sentry.CaptureException(err)
			ctx.Log.Error("Error looking up media: ", err)
		}
		return responses.ErrorHttpResponse(responses.ErrorFrom(err))
	}
	fpath := artifact.PathFor(req.Variant)
	if fpath == "" {
		return responses.ErrorHttpResponse(responses.NotFoundError())
	}

	// Step 3: Distinct fetch limit, counted only for artifacts that exist
	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(req.Decision.Identity, artifact.Id); !ok {
			ctx.Log.WithField("artifactId", artifact.Id).Warn("Distinct fetch limit reached")
			res := responses.ErrorHttpResponse(responses.RateLimitReached())
			res.Headers.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			return res
		}
	}

	// Step 4: Open the stored file
	f, err := s.store.Get(ctx, fpath)
	if err != nil {
		if errors.Is(err, common.ErrMediaNotFound) {
			ctx.Log.WithField("artifactId", artifact.Id).Error("Stored file missing for indexed media")
			return responses.ErrorHttpResponse(responses.NotFoundError())
		}
		sentry.CaptureException(err)
		ctx.Log.Error("Error opening stored media: ", err)
		return responses.ErrorHttpResponse(responses.StorageUnavailable())
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		sentry.CaptureException(err)
		ctx.Log.Error("Error sizing stored media: ", err)
		return responses.ErrorHttpResponse(responses.StorageUnavailable())
	}

	// Step 5: Headers and range handling
	headers := http.Header{}
	responses.SetSecurityHeaders(headers)
	headers.Set("Content-Type", artifact.ContentTypeFor(req.Variant))
	headers.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", s.conf.CacheMaxAgeSeconds))
	headers.Set("Accept-Ranges", "bytes")
	headers.Set("Content-Disposition", contentDisposition("inline", downloadName(artifact, req.Variant)))

	byteRange, satisfiable := parseRange(req.Range, size)
	if !satisfiable {
		_ = f.Close()
		headers.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		headers.Set("Content-Length", "0")
		return &responses.HttpResponse{
			StatusCode:    http.StatusRequestedRangeNotSatisfiable,
			Headers:       headers,
			ContentLength: -1,
		}
	}
	if byteRange == nil {
		return &responses.HttpResponse{
			StatusCode:    http.StatusOK,
			Headers:       headers,
			Body:          f,
			ContentLength: size,
		}
	}

	if _, err = f.Seek(byteRange.start, io.SeekStart); err != nil {
		_ = f.Close()
		sentry.CaptureException(err)
		ctx.Log.Error("Error seeking stored media: ", err)
		return responses.ErrorHttpResponse(responses.StorageUnavailable())
	}
	headers.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", byteRange.start, byteRange.end, size))
	return &responses.HttpResponse{
		StatusCode:    http.StatusPartialContent,
		Headers:       headers,
		Body:          &limitedReadCloser{Reader: io.LimitReader(f, byteRange.length()), Closer: f},
		ContentLength: byteRange.length(),
	}
}
