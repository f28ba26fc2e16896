package routers

import (
	"net"
	"net/http"
	"strings"

	"github.com/sebest/xff"
)

// RemoteAddressRouter replaces RemoteAddr with the client address, taking
// X-Forwarded-For into account.
type RemoteAddressRouter struct {
	next            http.Handler
	trustAnyForward bool
}

func NewRemoteAddressRouter(trustAnyForward bool, next http.Handler) *RemoteAddressRouter {
	return &RemoteAddressRouter{next: next, trustAnyForward: trustAnyForward}
}

func (h *RemoteAddressRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raddr string
	if h.trustAnyForward {
		raddr = strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0])
	} else {
		raddr = xff.GetRemoteAddr(r)
	}
	if raddr == "" {
		raddr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(raddr)
	if err != nil {
		host = raddr
	}
	r.RemoteAddr = host

	if h.next != nil {
		h.next.ServeHTTP(w, r)
	}
}
