// Package webproxy implements the Web Proxy Middleware (C8): prefix-based
// routing of hosted-link and static-asset paths to worker containers.
// Grounded on the original's src/hosted_link_proxy.py, reusing the
// reverse-proxy idiom from ingress/proxy.go.
package webproxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var webLog = log.With("webproxy")

// hostedLinkPrefixes are worker-bound: the last path segment encodes
// "{hostname}-{id}" so the middleware can resolve which worker to route to.
var hostedLinkPrefixes = []string{"/link", "/api/auth", "/api/link", "/dpage"}

// workerAgnosticPrefixes route to a random standby since no hostname can be
// derived from the path.
var workerAgnosticPrefixes = []string{"/__assets", "/__static"}

// Locator resolves worker addresses by hostname or at random, implemented
// by the container manager.
type Locator interface {
	AddressForHostname(hostname string) (string, bool)
	RandomAddress() (string, bool)
}

// Middleware wraps next, intercepting hosted-link and static-asset paths
// and forwarding everything else untouched (§4.6).
func Middleware(locator Locator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case matchesAny(path, hostedLinkPrefixes):
			host, hostname, err := hostForHostedLink(locator, path)
			if err != nil {
				webLog.Error("invalid hosted link url", "path", path, "error", err)
				http.Error(w, "invalid url", http.StatusBadRequest)
				return
			}
			webLog.Debug("routing hosted link", "path", path, "hostname", hostname)
			proxyTo(w, r, host)

		case matchesAny(path, workerAgnosticPrefixes) || path == "/":
			host, ok := locator.RandomAddress()
			if !ok {
				http.Error(w, "no workers available", http.StatusServiceUnavailable)
				return
			}
			proxyTo(w, r, host)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// hostForHostedLink extracts "{hostname}-{id}" from the trailing path
// segment and resolves it to a worker address (§4.6: "the last segment of
// the path encodes {hostname}-{id}").
func hostForHostedLink(locator Locator, path string) (host, hostname string, err error) {
	linkID := strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(linkID, "/"); idx >= 0 {
		linkID = linkID[idx+1:]
	}

	parts := strings.Split(linkID, "-")
	if len(parts) < 2 {
		return "", "", errInvalidLinkID(linkID)
	}
	hostname = strings.Join(parts[:len(parts)-1], "-")

	addr, ok := locator.AddressForHostname(hostname)
	if !ok {
		return "", "", errNoWorkerForHostname(hostname)
	}
	return addr, hostname, nil
}

func proxyTo(w http.ResponseWriter, r *http.Request, host string) {
	target, err := url.Parse("http://" + host)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		webLog.Error("proxy request failed", "target", host, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	proxy.ServeHTTP(w, r)
}
