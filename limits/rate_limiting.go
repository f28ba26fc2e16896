package limits

import (
	"encoding/json"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/t2bot/patient-media-repo/api/responses"
	"github.com/t2bot/patient-media-repo/common/config"
)

var requestLimiter *limiter.Limiter

func init() {
	requestLimiter = tollbooth.NewLimiter(0, nil)
	requestLimiter.SetIPLookups([]string{"RemoteAddr"})
	requestLimiter.SetTokenBucketExpirationTTL(time.Hour)

	b, _ := json.Marshal(responses.RateLimitReached())
	requestLimiter.SetMessage(string(b))
	requestLimiter.SetMessageContentType("application/json")
}

// GetRequestLimiter applies c to the shared per-address limiter. Forwarding
// headers only identify the client when the proxies in front are trusted.
func GetRequestLimiter(c config.RateLimitConfig, trustForward bool) *limiter.Limiter {
	if trustForward {
		requestLimiter.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	} else {
		requestLimiter.SetIPLookups([]string{"RemoteAddr"})
	}
	requestLimiter.SetBurst(c.BurstCount)
	requestLimiter.SetMax(c.RequestsPerSecond)

	return requestLimiter
}
