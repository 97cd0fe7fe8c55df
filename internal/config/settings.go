// Package config loads and validates the gateway's environment-driven
// settings, following the teacher's Config/Options struct pattern
// (cmd/docker-mcp/internal/gateway/config.go) but sourced from environment
// variables only (no CLI flag overrides) instead of catalog file paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Settings holds every environment-derived configuration value the gateway
// needs at startup. Fields are validated eagerly in Load so a missing
// required setting is ConfigInvalid and fatal before the listener binds.
type Settings struct {
	ContainerEngine      string `validate:"required,oneof=docker podman"`
	WorkerImageRef       string `validate:"required"`
	DataDir              string `validate:"required"`
	GatewayOrigin        string `validate:"required,url"`
	Port                 int    `validate:"gte=1"`
	AdminAPIToken        string `validate:"required"`
	AdminEmailDomain     string

	OAuthGitHubClientID     string
	OAuthGitHubClientSecret string
	OAuthGoogleClientID     string
	OAuthGoogleClientSecret string

	GetgatherApps map[string]string

	ContainerProjectName string `validate:"required"`
	ContainerSubnetPrefix string `validate:"required"`

	BrowserTimeoutSeconds int `validate:"gte=0"`

	DefaultProxyType string
	ProxiesConfig    string // inline TOML, see internal/mcpproxy

	NumStandbyContainers int `validate:"gte=1"`
	TTLActiveSeconds     int `validate:"gte=60"`
	MaxNumRunningContainers int `validate:"gte=0"`

	LogLevel string
}

const (
	defaultTTLActiveSeconds     = 600  // 10 minutes
	maxTTLActiveSeconds         = 1200 // 20 minutes
	defaultNumStandbyContainers = 2
	defaultBrowserTimeoutSeconds = 30
	defaultWorkerImage           = "ghcr.io/mcp-getgather/mcp-gateway-worker:latest"
	defaultPort                  = 8080
)

// Load reads Settings from the process environment and validates them.
// Returns a *gatewayerr.Error with Kind ConfigInvalid on any problem.
func Load() (*Settings, error) {
	s := &Settings{
		ContainerEngine:         getenv("CONTAINER_ENGINE", "docker"),
		WorkerImageRef:          getenv("WORKER_IMAGE", defaultWorkerImage),
		DataDir:                 getenv("DATA_DIR", "/data"),
		GatewayOrigin:           os.Getenv("GATEWAY_ORIGIN"),
		Port:                    getenvInt("PORT", defaultPort),
		AdminAPIToken:           os.Getenv("ADMIN_API_TOKEN"),
		AdminEmailDomain:        os.Getenv("ADMIN_EMAIL_DOMAIN"),
		OAuthGitHubClientID:     os.Getenv("OAUTH_GITHUB_CLIENT_ID"),
		OAuthGitHubClientSecret: os.Getenv("OAUTH_GITHUB_CLIENT_SECRET"),
		OAuthGoogleClientID:     os.Getenv("OAUTH_GOOGLE_CLIENT_ID"),
		OAuthGoogleClientSecret: os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET"),
		GetgatherApps:           parseKVList(os.Getenv("GETGATHER_APPS")),
		ContainerProjectName:    getenv("CONTAINER_PROJECT_NAME", "mcp-getgather"),
		ContainerSubnetPrefix:   getenv("CONTAINER_SUBNET_PREFIX", "172.28"),
		BrowserTimeoutSeconds:   getenvInt("BROWSER_TIMEOUT", defaultBrowserTimeoutSeconds),
		DefaultProxyType:        os.Getenv("DEFAULT_PROXY_TYPE"),
		ProxiesConfig:           os.Getenv("PROXIES_CONFIG"),
		NumStandbyContainers:    getenvInt("NUM_STANDBY_CONTAINERS", defaultNumStandbyContainers),
		TTLActiveSeconds:        clampTTL(getenvInt("TTL_ACTIVE_SECONDS", defaultTTLActiveSeconds)),
		MaxNumRunningContainers: getenvInt("MAX_NUM_RUNNING_CONTAINERS", 0),
		LogLevel:                getenv("LOG_LEVEL", "info"),
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConfigInvalid, "invalid settings", err)
	}

	return s, nil
}

func clampTTL(seconds int) int {
	if seconds > maxTTLActiveSeconds {
		return maxTTLActiveSeconds
	}
	return seconds
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseKVList parses a "key1=value1,key2=value2" list, as used by
// GETGATHER_APPS (app_key -> app_name).
func parseKVList(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// WorkerImage returns the worker container image reference to run.
func (s *Settings) WorkerImage() string { return s.WorkerImageRef }

// TTLActive returns the active-pool idle TTL as a time.Duration.
func (s *Settings) TTLActive() time.Duration {
	return time.Duration(s.TTLActiveSeconds) * time.Second
}

// WorkerEnv returns the extra environment variables every worker container
// gets, derived from settings rather than hardcoded in the container package.
func (s *Settings) WorkerEnv() map[string]string {
	env := map[string]string{
		"GATEWAY_ORIGIN": s.GatewayOrigin,
	}
	if s.AdminEmailDomain != "" {
		env["ADMIN_EMAIL_DOMAIN"] = s.AdminEmailDomain
	}
	return env
}

// ProxiesConfigHostPath materializes the inline ProxiesConfig TOML (if any)
// to a file under DataDir and returns its path, so the container package can
// bind-mount it read-only the same way it would a hand-authored file. Empty
// ProxiesConfig means no egress-proxy document at all.
func (s *Settings) ProxiesConfigHostPath() (string, error) {
	if s.ProxiesConfig == "" {
		return "", nil
	}
	path := filepath.Join(s.DataDir, "proxies.toml")
	if err := os.WriteFile(path, []byte(s.ProxiesConfig), 0o644); err != nil {
		return "", gatewayerr.Wrap(gatewayerr.KindConfigInvalid, "write proxies.toml", err)
	}
	return path, nil
}

func (s *Settings) String() string {
	return fmt.Sprintf("Settings{engine=%s dataDir=%s origin=%s standby=%d ttl=%ds}",
		s.ContainerEngine, s.DataDir, s.GatewayOrigin, s.NumStandbyContainers, s.TTLActiveSeconds)
}
