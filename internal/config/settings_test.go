package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTAINER_ENGINE", "docker")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("GATEWAY_ORIGIN", "https://gw.example.com")
	t.Setenv("ADMIN_API_TOKEN", "secret-token")
	t.Setenv("CONTAINER_PROJECT_NAME", "mcp-getgather")
	t.Setenv("CONTAINER_SUBNET_PREFIX", "172.28")
}

func TestLoadSucceedsWithRequiredEnv(t *testing.T) {
	setRequiredEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "docker", s.ContainerEngine)
	assert.Equal(t, defaultWorkerImage, s.WorkerImageRef)
	assert.Equal(t, defaultPort, s.Port)
	assert.Equal(t, defaultNumStandbyContainers, s.NumStandbyContainers)
}

func TestLoadFailsWhenGatewayOriginMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEWAY_ORIGIN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFailsWhenContainerEngineInvalid(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONTAINER_ENGINE", "vmware")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadClampsTTLActiveSeconds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TTL_ACTIVE_SECONDS", "99999")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, maxTTLActiveSeconds, s.TTLActiveSeconds)
	assert.Equal(t, time.Duration(maxTTLActiveSeconds)*time.Second, s.TTLActive())
}

func TestLoadFailsBelowMinimumTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TTL_ACTIVE_SECONDS", "5")

	_, err := Load()
	assert.Error(t, err, "a TTL below the 60s validator floor must be rejected")
}

func TestLoadParsesGetgatherApps(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GETGATHER_APPS", "app1=My App, app2=Other App")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "My App", s.GetgatherApps["app1"])
	assert.Equal(t, "Other App", s.GetgatherApps["app2"])
}

func TestWorkerEnvIncludesAdminEmailDomainOnlyWhenSet(t *testing.T) {
	s := &Settings{GatewayOrigin: "https://gw.example.com"}
	env := s.WorkerEnv()
	assert.Equal(t, "https://gw.example.com", env["GATEWAY_ORIGIN"])
	_, hasAdmin := env["ADMIN_EMAIL_DOMAIN"]
	assert.False(t, hasAdmin)

	s.AdminEmailDomain = "example.com"
	env = s.WorkerEnv()
	assert.Equal(t, "example.com", env["ADMIN_EMAIL_DOMAIN"])
}

func TestProxiesConfigHostPathEmptyWhenUnset(t *testing.T) {
	s := &Settings{DataDir: t.TempDir()}
	path, err := s.ProxiesConfigHostPath()
	require.NoError(t, err)
	assert.Equal(t, "", path)
}

func TestProxiesConfigHostPathMaterializesFile(t *testing.T) {
	dir := t.TempDir()
	s := &Settings{DataDir: dir, ProxiesConfig: "[none]\nname = \"none\"\n"}

	path, err := s.ProxiesConfigHostPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "proxies.toml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[none]")
}
