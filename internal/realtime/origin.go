package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// sameOriginOrLoopback admits browser upgrades from the serving host or from
// a loopback dev server. Non-browser clients send no Origin and are admitted.
func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := stripPort(u.Host)
	if strings.EqualFold(host, stripPort(r.Host)) {
		return true
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}
