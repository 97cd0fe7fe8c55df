package mcpproxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var egressLog = log.With("egress_proxy")

// checkIPURL is probed through a candidate proxy to confirm it's reachable
// before committing to it (§4.6).
const checkIPURL = "http://checkip.amazonaws.com"

// checkIPRetries is how many times each hierarchy level is probed before
// falling back to the next, less-specific level.
const checkIPRetries = 3

// ProxyEntry is one [proxy-N] table from the egress-proxy TOML document.
// Grounded on residential_proxy_sessions.py's ProxyConfig, trimmed to the
// fields this gateway reads directly from TOML.
type ProxyEntry struct {
	Name              string   `toml:"name"`
	URL               string   `toml:"url"`
	URLTemplate       string   `toml:"url_template"`
	UsernameTemplate  string   `toml:"username_template"`
	Username          string   `toml:"username"`
	Password          string   `toml:"password"`
	HierarchyFields   []string `toml:"hierarchy_fields"`
}

// ResolvedProxy is what gets rendered to proxies.yaml: a concrete
// server/username/password triple for one worker's egress.
type ResolvedProxy struct {
	ProxyType string `yaml:"proxy_type"`
	Server    string `yaml:"server"`
	Username  string `yaml:"base_username,omitempty"`
	Password  string `yaml:"password,omitempty"`
}

// proxiesYAMLDoc is the top-level shape written to {mount_dir}/proxies.yaml,
// matching GetgatherProxies.dump()'s {"proxies": {"proxy-0": {...}}}.
type proxiesYAMLDoc struct {
	Proxies map[string]ResolvedProxy `yaml:"proxies"`
}

// ParseTOML parses the egress-proxy config document into its named entries,
// plus the table names in file order (so "use the first configured proxy"
// is deterministic; map iteration in Go is not).
func ParseTOML(doc []byte) (map[string]ProxyEntry, []string, error) {
	var entries map[string]ProxyEntry
	if err := toml.Unmarshal(doc, &entries); err != nil {
		return nil, nil, gatewayerr.ProxyValidationFailed(err)
	}
	return entries, tableOrder(doc), nil
}

var tableHeaderPattern = regexp.MustCompile(`(?m)^\s*\[([^.\]\s]+)\]\s*$`)

func tableOrder(doc []byte) []string {
	matches := tableHeaderPattern.FindAllSubmatch(doc, -1)
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		order = append(order, string(m[1]))
	}
	return order
}

// placeholderPattern matches "{name}" template placeholders.
var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// renderTemplate fills template with values, dropping any segment that
// contains an unresolved placeholder rather than leaving "{x}" literal
// (§4.6), matching _build_params's segment-by-segment reconstruction.
func renderTemplate(template string, values map[string]string) string {
	var out strings.Builder
	rest := template
	for {
		loc := placeholderPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}
		before := rest[:loc[0]]
		placeholder := rest[loc[2]:loc[3]]
		after := rest[loc[1]:]

		if v, ok := values[placeholder]; ok && v != "" {
			out.WriteString(before)
			out.WriteString(v)
		}
		rest = after
	}
	return strings.Trim(out.String(), "-_")
}

// selectEntry picks which proxy table to use: the x-proxy-type header, else
// the configured default, else the first table in document order. Go map
// iteration has no order, so the document order comes in as the names
// slice captured at parse time.
func selectEntry(entries map[string]ProxyEntry, order []string, proxyType, defaultType string) (string, ProxyEntry, bool) {
	for _, candidate := range []string{proxyType, defaultType} {
		if candidate == "" {
			continue
		}
		if e, ok := entries[candidate]; ok {
			return candidate, e, true
		}
	}
	if len(order) == 0 {
		return "", ProxyEntry{}, false
	}
	return order[0], entries[order[0]], true
}

// buildResolvedProxy renders entry's url_template or username_template
// against loc/sessionID, parsing the result into server/username/password.
// Returns ok=false for proxy_name "none" or an entry that renders empty.
func buildResolvedProxy(entry ProxyEntry, sessionID string, loc Location) (ResolvedProxy, bool) {
	if entry.Name == "none" {
		return ResolvedProxy{}, false
	}

	values := loc.templateValues()
	values["session_id"] = sessionID

	if entry.URLTemplate != "" {
		rendered := renderTemplate(entry.URLTemplate, values)
		if rendered == "" {
			return ResolvedProxy{}, false
		}
		u, err := parseProxyURL(rendered)
		if err != nil {
			egressLog.Warn("failed to parse rendered url_template", "error", err)
			return ResolvedProxy{}, false
		}
		return ResolvedProxy{ProxyType: entry.Name, Server: u.server, Username: u.username, Password: u.password}, true
	}

	if entry.URL != "" {
		u, err := parseProxyURL(entry.URL)
		if err != nil {
			egressLog.Warn("failed to parse proxy url", "error", err)
			return ResolvedProxy{}, false
		}
		username := entry.Username
		if entry.UsernameTemplate != "" {
			if rendered := renderTemplate(entry.UsernameTemplate, values); rendered != "" {
				username = rendered
			}
		}
		if username == "" {
			username = u.username
		}
		password := entry.Password
		if password == "" {
			password = u.password
		}
		return ResolvedProxy{ProxyType: entry.Name, Server: u.server, Username: username, Password: password}, true
	}

	return ResolvedProxy{}, false
}

type parsedProxyURL struct {
	server   string
	username string
	password string
}

func parseProxyURL(raw string) (parsedProxyURL, error) {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return parsedProxyURL{}, err
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	server := fmt.Sprintf("%s://%s", scheme, u.Host)
	username := u.User.Username()
	password, _ := u.User.Password()
	return parsedProxyURL{server: server, username: username, password: password}, nil
}

// ProbeReachable GETs checkIPURL through candidate, retrying up to
// checkIPRetries times, returning true the first time it sees a response
// body that looks like an IP address (§4.6).
func ProbeReachable(ctx context.Context, candidate ResolvedProxy) bool {
	proxyURL, err := url.Parse(candidate.Server)
	if err != nil {
		return false
	}
	if candidate.Username != "" {
		proxyURL.User = url.UserPassword(candidate.Username, candidate.Password)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	for attempt := 0; attempt < checkIPRetries; attempt++ {
		if probeOnce(ctx, client) {
			return true
		}
	}
	return false
}

func probeOnce(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkIPURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return false
	}
	return looksLikeIP(strings.TrimSpace(string(body)))
}

var ipPattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

func looksLikeIP(s string) bool { return ipPattern.MatchString(s) }

// SelectProxy chooses and renders the egress proxy to use for one MCP
// session, walking loc's hierarchy from most-specific to country-only and
// probing each candidate, per §4.6. It returns ok=false if no proxy config
// was supplied, the selected entry is "none", or every hierarchy level
// failed to probe as reachable.
func SelectProxy(ctx context.Context, entries map[string]ProxyEntry, order []string, sessionID, proxyType, defaultType string, loc *Location) (ResolvedProxy, bool) {
	if len(entries) == 0 {
		return ResolvedProxy{}, false
	}

	_, entry, ok := selectEntry(entries, order, proxyType, defaultType)
	if !ok {
		return ResolvedProxy{}, false
	}

	if loc == nil {
		resolved, ok := buildResolvedProxy(entry, sessionID, Location{})
		if !ok || !ProbeReachable(ctx, resolved) {
			return ResolvedProxy{}, false
		}
		return resolved, true
	}

	for _, level := range loc.hierarchy(entry.HierarchyFields) {
		resolved, ok := buildResolvedProxy(entry, sessionID, level)
		if !ok {
			continue
		}
		if ProbeReachable(ctx, resolved) {
			return resolved, true
		}
	}
	return ResolvedProxy{}, false
}

// WriteProxiesYAML writes resolved to "{mountDir}/proxies.yaml" (mode
// 0644), the file the worker reads to pick its egress proxy by mount.
func WriteProxiesYAML(mountDir string, resolved ResolvedProxy) error {
	doc := proxiesYAMLDoc{Proxies: map[string]ResolvedProxy{"proxy-0": resolved}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindProxyValidationFailed, "marshal proxies.yaml", err)
	}
	path := filepath.Join(mountDir, "proxies.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "write proxies.yaml", err)
	}
	return nil
}

// RemoveProxiesYAML deletes a stale proxies.yaml, matching §4.6: "A proxy
// type of none, or no config at all, results in no file written (and any
// stale file removed)".
func RemoveProxiesYAML(mountDir string) error {
	path := filepath.Join(mountDir, "proxies.yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "remove stale proxies.yaml", err)
	}
	return nil
}
