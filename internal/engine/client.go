// Package engine wraps the Docker/Podman CLI the way the original gateway
// does: every operation is a bounded subprocess invocation, never an SDK
// call, so the gateway works against either engine without a client library
// dependency. Grounded on the teacher's cmd/docker-mcp/internal/gateway/
// runtime/docker.go (subprocess + pipe plumbing) and the prior Python
// implementation's src/container/engine.py (exact CLI argument shapes).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Name identifies which CLI flavor a Client talks to.
type Name string

const (
	Docker Name = "docker"
	Podman Name = "podman"
)

// Client is a typed wrapper over the container-engine CLI, per §4.1.
type Client struct {
	engine      Name
	network     string
	socket      string
	env         []string
}

// New returns a Client bound to a given engine and internal network name.
func New(engine Name, network string) (*Client, error) {
	switch engine {
	case Docker, Podman:
	default:
		return nil, gatewayerr.UnsupportedEngine("engine selection", string(engine))
	}
	return &Client{
		engine:  engine,
		network: network,
		socket:  SocketFor(string(engine)),
	}, nil
}

// Engine returns the underlying engine name.
func (c *Client) Engine() Name { return c.engine }

// SupportsCheckpoint reports whether this engine/OS combination can
// checkpoint and restore containers: Podman on Linux only (§4.1, §4.4.3).
func (c *Client) SupportsCheckpoint() bool {
	return c.engine == Podman && runtime.GOOS == "linux"
}

func (c *Client) baseEnv() []string {
	env := os.Environ()
	if runtime.GOOS != "darwin" {
		env = append(env, "DOCKER_HOST="+c.socket)
		if c.engine == Podman {
			env = append(env, "CONTAINER_HOST="+c.socket)
		}
	}
	return env
}

func (c *Client) run(ctx context.Context, _ any, args ...string) (string, error) {
	return c.runTimeoutDuration(ctx, DefaultTimeout, false, args...)
}

func (c *Client) runTimeout(ctx context.Context, timeoutSeconds int64, asRoot bool, args ...string) (string, error) {
	return c.runTimeoutDuration(ctx, time.Duration(timeoutSeconds)*time.Second, asRoot, args...)
}

func (c *Client) runTimeoutDuration(ctx context.Context, timeout time.Duration, asRoot bool, args ...string) (string, error) {
	if c.engine == Podman {
		args = append([]string{"--remote"}, args...)
	}
	return runCLI(ctx, string(c.engine), args, c.baseEnv(), asRoot, timeout)
}

// ListBasic returns basic (id, name) info for containers matching the given
// filters, without paying for a full inspect.
func (c *Client) ListBasic(ctx context.Context, partialName string, labels map[string]string, all bool) ([]BasicInfo, error) {
	args := []string{"container", "ls"}
	if all {
		args = append(args, "--all")
	}
	if partialName != "" {
		args = append(args, "--filter", "name="+partialName)
	}
	for k, v := range labels {
		args = append(args, "--filter", fmt.Sprintf("label=%s=%s", k, v))
	}
	args = append(args, "--format", "{{.ID}} {{.Names}}")

	out, err := c.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}
	var infos []BasicInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		infos = append(infos, BasicInfo{ID: parts[0], Name: parts[1]})
	}
	return infos, nil
}

// List returns full Container records matching the given filters.
func (c *Client) List(ctx context.Context, partialName string, labels map[string]string, all bool) ([]Container, error) {
	basics, err := c.ListBasic(ctx, partialName, labels, all)
	if err != nil {
		return nil, err
	}
	if len(basics) == 0 {
		return nil, nil
	}
	ids := make([]string, len(basics))
	for i, b := range basics {
		ids[i] = b.ID
	}
	records, err := c.InspectMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]Container, 0, len(records))
	for _, r := range records {
		container, err := FromInspect(r, c.network)
		if err != nil {
			return nil, err
		}
		out = append(out, container)
	}
	return out, nil
}

// Get returns a single Container by id or by (possibly unique) name.
func (c *Client) Get(ctx context.Context, id, name string) (Container, error) {
	if id != "" {
		records, err := c.InspectMany(ctx, id)
		if err != nil {
			return Container{}, err
		}
		container, err := FromInspect(records[0], c.network)
		if err != nil {
			return Container{}, err
		}
		if name != "" && !strings.Contains(container.Name, name) {
			return Container{}, gatewayerr.EngineInconsistent("container id %s and name %s mismatch", id, name)
		}
		return container, nil
	}
	if name != "" {
		containers, err := c.List(ctx, name, nil, true)
		if err != nil {
			return Container{}, err
		}
		switch len(containers) {
		case 0:
			return Container{}, gatewayerr.NotFound(fmt.Sprintf("container %q", name))
		case 1:
			return containers[0], nil
		default:
			return Container{}, gatewayerr.AmbiguousName(name)
		}
	}
	return Container{}, gatewayerr.EngineInconsistent("either id or name must be provided")
}

// Inspect returns the raw inspect record for a single container id.
func (c *Client) Inspect(ctx context.Context, id string) (map[string]any, error) {
	records, err := c.InspectMany(ctx, id)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// InspectMany inspects multiple ids in one call; a returned-count mismatch
// is EngineInconsistent per §4.1.
func (c *Client) InspectMany(ctx context.Context, ids ...string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]string{"container", "inspect"}, ids...)
	args = append(args, "--format", "json")
	out, err := c.run(ctx, nil, args...)
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return nil, errdefs.NewNotFound(err)
		}
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindEngineInconsistent, "failed to parse inspect output", err)
	}
	if len(records) != len(ids) {
		return nil, gatewayerr.EngineInconsistent("failed to inspect containers: %v", ids)
	}
	return records, nil
}

// CreateSpec describes a container to create.
type CreateSpec struct {
	Name       string
	Hostname   string
	User       string
	Image      string
	Entrypoint string
	Cmd        []string
	Env        map[string]string
	Volumes    []string
	Labels     map[string]string
	CapAdds    []string
}

// Create starts a new detached container from spec and returns it.
func (c *Client) Create(ctx context.Context, spec CreateSpec) (Container, error) {
	args := []string{"run", "-d", "--restart", "on-failure:3",
		"--name", spec.Name,
		"--hostname", spec.Hostname,
		"--user", spec.User,
		"--dns", "8.8.8.8",
		"--dns", "1.1.1.1",
	}
	for k, v := range spec.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
	}
	for _, v := range spec.Volumes {
		args = append(args, "--volume", v)
	}
	for k, v := range spec.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	for _, cap := range spec.CapAdds {
		args = append(args, "--cap-add", cap)
	}
	args = append(args, "--network", c.network)
	if spec.Entrypoint != "" {
		args = append(args, "--entrypoint", spec.Entrypoint)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Cmd...)

	id, err := c.runTimeout(ctx, int64(CreateTimeout.Seconds()), false, args...)
	if err != nil {
		return Container{}, err
	}
	record, err := c.Inspect(ctx, id)
	if err != nil {
		return Container{}, err
	}
	return FromInspect(record, c.network)
}

// CreateOrReplace deletes any existing container with spec.Name (failing
// with AmbiguousName if more than one exists) and creates a fresh one.
func (c *Client) CreateOrReplace(ctx context.Context, spec CreateSpec) (Container, error) {
	existing, err := c.List(ctx, spec.Name, nil, true)
	if err != nil {
		return Container{}, err
	}
	if len(existing) > 1 {
		return Container{}, gatewayerr.AmbiguousName(spec.Name)
	}
	if len(existing) == 1 {
		if err := c.Delete(ctx, existing[0].ID); err != nil {
			return Container{}, err
		}
	}
	return c.Create(ctx, spec)
}

// Start starts a stopped container.
func (c *Client) Start(ctx context.Context, id string) error {
	_, err := c.run(ctx, nil, "container", "start", id)
	return err
}

// Checkpoint checkpoints a container. Only supported on Podman/Linux.
func (c *Client) Checkpoint(ctx context.Context, id string) error {
	if !c.SupportsCheckpoint() {
		return gatewayerr.UnsupportedEngine("checkpoint", string(c.engine))
	}
	_, err := c.runTimeout(ctx, int64(DefaultTimeout.Seconds()), true, "container", "checkpoint", id)
	return err
}

// Restore restores a checkpointed container. Only supported on Podman/Linux.
func (c *Client) Restore(ctx context.Context, id string) error {
	if !c.SupportsCheckpoint() {
		return gatewayerr.UnsupportedEngine("restore", string(c.engine))
	}
	_, err := c.runTimeout(ctx, int64(DefaultTimeout.Seconds()), true, "container", "restore", id)
	return err
}

// ConnectNetwork attaches id to networkName. Defensively idempotent: if the
// call fails but the container already has an IP, the failure is logged and
// swallowed (§4.1).
func (c *Client) ConnectNetwork(ctx context.Context, networkName, id string) error {
	_, err := c.run(ctx, nil, "network", "connect", networkName, id)
	if err == nil {
		return nil
	}
	container, getErr := c.Get(ctx, id, "")
	if getErr != nil || !container.HasIP() {
		return err
	}
	runnerLog.Warn("connect_network failed but container already has an ip, skipping",
		"container", id, "network", networkName)
	return nil
}

// DisconnectNetwork detaches id from networkName. Defensively idempotent
// the same way ConnectNetwork is, in the opposite direction.
func (c *Client) DisconnectNetwork(ctx context.Context, networkName, id string) error {
	_, err := c.run(ctx, nil, "network", "disconnect", networkName, id)
	if err == nil {
		return nil
	}
	container, getErr := c.Get(ctx, id, "")
	if getErr != nil || container.HasIP() {
		return err
	}
	runnerLog.Warn("disconnect_network failed but container already has no ip, skipping",
		"container", id, "network", networkName)
	return nil
}

// Delete force-removes one or more containers by id.
func (c *Client) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []string{"container", "rm", "--force"}
	if c.engine == Podman {
		args = append(args, "--time", "0")
	}
	args = append(args, ids...)
	_, err := c.run(ctx, nil, args...)
	return err
}

// Rename renames a container. This is the only mutation the engine client
// performs on names/hostnames directly, since they carry routing semantics.
func (c *Client) Rename(ctx context.Context, id, newName string) error {
	_, err := c.run(ctx, nil, "container", "rename", id, newName)
	return err
}

// PullImage pulls source and optionally retags it as tag.
func (c *Client) PullImage(ctx context.Context, source, tag string) error {
	if _, err := c.runTimeout(ctx, int64(PullTimeout.Seconds()), false, "image", "pull", source); err != nil {
		return err
	}
	if tag != "" {
		_, err := c.run(ctx, nil, "image", "tag", source, tag)
		return err
	}
	return nil
}

// DeleteImage force-removes an image.
func (c *Client) DeleteImage(ctx context.Context, image string) error {
	_, err := c.run(ctx, nil, "image", "rm", "--force", image)
	return err
}

// Exec runs cmd detached inside container id.
func (c *Client) Exec(ctx context.Context, id, cmd string, args []string, env map[string]string) error {
	full := append([]string{"exec", "-d", id, cmd}, args...)
	for k, v := range env {
		full = append(full, fmt.Sprintf("%s=%s", k, v))
	}
	_, err := c.runTimeout(ctx, int64(ExecTimeout.Seconds()), false, full...)
	return err
}
