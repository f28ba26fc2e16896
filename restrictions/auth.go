package restrictions

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
)

// Decision is the outcome of an authorization check for one artifact.
// The zero value denies.
type Decision struct {
	Allowed  bool
	Identity string
}

func Allow(identity string) Decision {
	return Decision{Allowed: true, Identity: identity}
}

func Deny(identity string) Decision {
	return Decision{Allowed: false, Identity: identity}
}

// Authorizer is the permission collaborator owning sessions and access
// rules. Implementations must fail closed.
type Authorizer interface {
	Authenticate(r *http.Request) (string, error)
	Authorize(ctx rcontext.RequestContext, identity string, artifactId string) Decision
}

func GetAccessTokenFromRequest(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token != "" {
		if !strings.HasPrefix(token, "Bearer ") {
			return ""
		}
		return strings.TrimPrefix(token, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

type sharedSecretAuthorizer struct {
	token []byte
}

// NewSharedSecretAuthorizer trusts a single configured token. It exists for
// running the repo standalone; every caller presenting the token may read
// every artifact.
func NewSharedSecretAuthorizer(c config.SharedSecretConfig) Authorizer {
	if !c.Enabled || c.Token == "" {
		return &denyAllAuthorizer{}
	}
	return &sharedSecretAuthorizer{token: []byte(c.Token)}
}

func (a *sharedSecretAuthorizer) Authenticate(r *http.Request) (string, error) {
	token := GetAccessTokenFromRequest(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), a.token) != 1 {
		return "", common.ErrNotAuthorized
	}
	return "@sharedsecret", nil
}

func (a *sharedSecretAuthorizer) Authorize(ctx rcontext.RequestContext, identity string, artifactId string) Decision {
	if identity != "@sharedsecret" {
		return Deny(identity)
	}
	return Allow(identity)
}

type denyAllAuthorizer struct{}

func (a *denyAllAuthorizer) Authenticate(r *http.Request) (string, error) {
	return "", common.ErrNotAuthorized
}

func (a *denyAllAuthorizer) Authorize(ctx rcontext.RequestContext, identity string, artifactId string) Decision {
	return Deny(identity)
}
