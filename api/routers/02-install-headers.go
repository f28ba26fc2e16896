package routers

import (
	"net/http"

	"github.com/t2bot/patient-media-repo/api/responses"
)

type InstallHeadersRouter struct {
	next http.Handler
}

func NewInstallHeadersRouter(next http.Handler) *InstallHeadersRouter {
	return &InstallHeadersRouter{next: next}
}

func (i *InstallHeadersRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	responses.SetSecurityHeaders(headers)
	headers.Set("Cross-Origin-Resource-Policy", "same-site")
	headers.Set("Server", "patient-media-repo")

	if i.next != nil {
		i.next.ServeHTTP(w, r)
	}
}
