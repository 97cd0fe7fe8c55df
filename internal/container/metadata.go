package container

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Metadata is the persisted per-container record, written at assignment and
// read during startup recovery and re-create-from-mount-dir. Its absence
// means the container is standby (§3: ContainerMetadata).
type Metadata struct {
	User auth.User `json:"user"`
}

// MetadataStore reads and writes per-hostname metadata.json files under a
// mount root, matching the layout in §6: "{mount_root}/{hostname}/metadata.json".
type MetadataStore struct {
	MountRoot string
}

func (s MetadataStore) metadataPath(hostname string) string {
	return filepath.Join(s.MountRoot, hostname, "metadata.json")
}

// MountDir returns the mount directory for hostname.
func (s MetadataStore) MountDir(hostname string) string {
	return filepath.Join(s.MountRoot, hostname)
}

// QuarantineDir returns where a purged mount directory is moved to.
func (s MetadataStore) QuarantineDir(hostname string) string {
	return filepath.Join(s.MountRoot, "__cleanup", hostname)
}

// Read returns the metadata for hostname, or nil if no metadata file exists
// (i.e. the container is standby).
func (s MetadataStore) Read(hostname string) (*Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(hostname))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindEngineFailure, "read metadata", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindEngineInconsistent, "parse metadata", err)
	}
	return &meta, nil
}

// Write persists metadata for hostname, creating the mount directory if
// needed.
func (s MetadataStore) Write(hostname string, meta Metadata) error {
	dir := s.MountDir(hostname)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "create mount dir", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineInconsistent, "marshal metadata", err)
	}
	if err := os.WriteFile(s.metadataPath(hostname), data, 0o644); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "write metadata", err)
	}
	return nil
}

// Quarantine moves hostname's mount directory to the quarantine folder
// instead of deleting it, so an operator can investigate (§4.3:
// purge_container). A missing source directory is non-fatal (logged by the
// caller), matching "loss of mount directory during purge is non-fatal".
func (s MetadataStore) Quarantine(hostname string) error {
	src := s.MountDir(hostname)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "stat mount dir", err)
	}
	dst := s.QuarantineDir(hostname)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "create quarantine dir", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindEngineFailure, "quarantine mount dir", err)
	}
	return nil
}

// MountDirs lists the hostnames of every existing mount directory, used by
// hostname generation to reject collisions.
func (s MetadataStore) MountDirs() ([]string, error) {
	entries, err := os.ReadDir(s.MountRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindEngineFailure, "list mount dirs", err)
	}
	var hostnames []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "__cleanup" {
			hostnames = append(hostnames, e.Name())
		}
	}
	return hostnames, nil
}
