package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HttpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_http_requests_total",
}, []string{"action", "method"})
var HttpResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_http_responses_total",
}, []string{"action", "method", "statusCode"})
var HttpResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "media_http_response_time_seconds",
}, []string{"action", "method"})
var Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_uploads_total",
}, []string{"kind", "outcome"})
var Rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_upload_rejections_total",
}, []string{"reason"})
var DedupHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_dedup_hits_total",
}, []string{"kind"})
var Transcodes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_transcodes_total",
}, []string{"result"})
var TranscodeTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "media_transcode_time_seconds",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
})
var DerivativesGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_derivatives_generated_total",
}, []string{"label"})
var StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_store_operations_total",
}, []string{"backend", "operation"})
var MediaServed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "media_served_total",
}, []string{"variant", "statusCode"})
var FetchesLimited = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_fetches_rate_limited_total",
})

func init() {
	prometheus.MustRegister(HttpRequests)
	prometheus.MustRegister(HttpResponses)
	prometheus.MustRegister(HttpResponseTime)
	prometheus.MustRegister(Uploads)
	prometheus.MustRegister(Rejections)
	prometheus.MustRegister(DedupHits)
	prometheus.MustRegister(Transcodes)
	prometheus.MustRegister(TranscodeTime)
	prometheus.MustRegister(DerivativesGenerated)
	prometheus.MustRegister(StoreOperations)
	prometheus.MustRegister(MediaServed)
	prometheus.MustRegister(FetchesLimited)
}
