package mcpproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var mcpLog = log.With("mcp_proxy")

// readTimeout is the long upstream read timeout MCP's long-lived streaming
// sessions need (§4.6 default 5 min).
const readTimeout = 5 * time.Minute

// docsRoute is the path every worker exposes describing the routes it
// serves, probed on any standby container at discovery time (§4.6).
const docsRoute = "/api/docs-mcp"

// forwardedHeaderPrefix marks custom headers forwarded verbatim upstream,
// notably x-location, x-proxy-type, x-signin-id (§4.6).
const forwardedHeaderPrefix = "x-"

// RouteSet is the set of backend routes discovered from a worker, used to
// register matching front-end routes on the gateway's mux.
type RouteSet struct {
	Routes []string `json:"routes"`
}

// DiscoverRoutes fetches docsRoute from host (ip:port) and parses the list
// of MCP routes that worker serves (§4.6: "discovered from a worker by
// HTTP GET /api/docs-mcp on any standby").
func DiscoverRoutes(ctx context.Context, host string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+docsRoute, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docs-mcp returned %d", resp.StatusCode)
	}

	var routes RouteSet
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return nil, err
	}
	return routes.Routes, nil
}

// ContainerResolver resolves which container a session should be proxied
// to, and exposes the egress-proxy configuration needed to pick and write
// a proxy entry before the upstream connection opens.
type ContainerResolver interface {
	// ResolveForSession returns the upstream container's IP and mount
	// directory for an MCP session (§4.4.2's get_user_container, or a
	// standby for unauthenticated routes).
	ResolveForSession(ctx context.Context, sessionID string) (ip, mountDir string, err error)
}

// EgressConfig bundles the static configuration needed to select an
// egress-proxy entry per request (§4.6).
type EgressConfig struct {
	Entries        map[string]ProxyEntry
	Order          []string
	DefaultType    string
}

// Proxy streams each incoming MCP session to the resolved worker container,
// optionally materializing an egress-proxy config first. Grounded on
// §4.6 and the reverse-proxy idiom in ingress/proxy.go.
type Proxy struct {
	resolver ContainerResolver
	egress   EgressConfig
	origin   string

	mu     sync.Mutex
	routes map[string]bool // routes discovered so far, for dedup
}

func New(resolver ContainerResolver, egress EgressConfig, origin string) *Proxy {
	return &Proxy{resolver: resolver, egress: egress, origin: origin, routes: make(map[string]bool)}
}

// SetEgressConfig swaps the egress-proxy configuration in place, used by the
// gateway's config-file watcher to pick up an edited PROXIES_CONFIG document
// without a restart.
func (p *Proxy) SetEgressConfig(egress EgressConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.egress = egress
}

// ServeRoute returns an http.Handler for one discovered MCP route, dialing
// the resolved upstream fresh for every request so each session gets its
// own streaming HTTP connection (§4.6).
func (p *Proxy) ServeRoute(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get("x-signin-id")
		if sessionID == "" {
			sessionID = r.Header.Get("mcp-session-id")
		}

		ip, mountDir, err := p.resolver.ResolveForSession(r.Context(), sessionID)
		if err != nil {
			mcpLog.Warn("failed to resolve container for session", "session", sessionID, "error", err)
			http.Error(w, "no backend container available", http.StatusServiceUnavailable)
			return
		}

		if err := p.prepareEgress(r, mountDir, sessionID); err != nil {
			mcpLog.Warn("egress proxy setup failed, proceeding without it", "error", err)
		}

		target, err := url.Parse(fmt.Sprintf("http://%s%s", ip, route))
		if err != nil {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = &http.Transport{ResponseHeaderTimeout: readTimeout}
		originalDirector := proxy.Director
		proxy.Director = func(req *http.Request) {
			originalDirector(req)
			req.Host = target.Host
			req.Header.Set("x-forwarded-proto", schemeOf(p.origin))
			req.Header.Set("x-forwarded-host", hostOf(p.origin))
			forwardCustomHeaders(r, req)
		}
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			mcpLog.Error("upstream mcp session failed", "route", route, "target", ip, "error", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}
		proxy.ServeHTTP(w, r)
	}
}

// prepareEgress picks and writes an egress-proxy config for this session
// if x-location-info was provided and an egress config document exists,
// else removes any stale file (§4.6).
func (p *Proxy) prepareEgress(r *http.Request, mountDir, sessionID string) error {
	if mountDir == "" {
		return nil
	}
	p.mu.Lock()
	egress := p.egress
	p.mu.Unlock()

	if len(egress.Entries) == 0 {
		return RemoveProxiesYAML(mountDir)
	}

	locHeader := r.Header.Get("x-location-info")
	if locHeader == "" {
		return RemoveProxiesYAML(mountDir)
	}

	loc := parseLocationHeader(locHeader)
	proxyType := r.Header.Get("x-proxy-type")

	resolved, ok := SelectProxy(r.Context(), egress.Entries, egress.Order, sessionID, proxyType, egress.DefaultType, &loc)
	if !ok {
		return RemoveProxiesYAML(mountDir)
	}
	return WriteProxiesYAML(mountDir, resolved)
}

// parseLocationHeader parses "country=us;state=ca;city=San Francisco"
// style x-location-info headers into a Location.
func parseLocationHeader(header string) Location {
	var loc Location
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "country":
			loc.Country = strings.TrimSpace(v)
		case "state":
			loc.State = strings.TrimSpace(v)
		case "city":
			loc.City = strings.TrimSpace(v)
		case "city_compacted":
			loc.CityCompacted = strings.TrimSpace(v)
		case "postal_code":
			loc.PostalCode = strings.TrimSpace(v)
		}
	}
	return loc
}

func forwardCustomHeaders(src *http.Request, dst *http.Request) {
	for name, values := range src.Header {
		if strings.HasPrefix(strings.ToLower(name), forwardedHeaderPrefix) {
			for _, v := range values {
				dst.Header.Add(name, v)
			}
		}
	}
}

func schemeOf(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Scheme != "" {
		return u.Scheme
	}
	return "https"
}

func hostOf(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}
