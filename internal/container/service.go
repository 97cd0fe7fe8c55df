package container

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/containerd/errdefs"
	"github.com/google/shlex"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	eng "github.com/mcp-getgather/mcp-gateway/internal/engine"
	"github.com/mcp-getgather/mcp-gateway/internal/enginelock"
	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var serviceLog = log.With("container")

// NetworkName is the internal docker/podman network every worker container
// joins, so the gateway can reach it by IP.
const NetworkName = "mcp-getgather-net"

// tailscaleRouterOctet is the router address suffix appended to the
// configured subnet prefix, matching engine.py's hard-coded "{prefix}.2".
const tailscaleRouterOctet = ".2"

// Options configures a Service: everything needed to build a worker
// container spec, sourced from the gateway's Settings.
type Options struct {
	Image                 string
	HostMountRoot         string
	ProxiesConfigHostPath string // read-only bind source for the egress proxy file, may be empty
	ProjectName           string
	SubnetPrefix          string
	ExtraEnv              map[string]string
}

// Service implements the Container Service (C3): stateless single-container
// operations used by the Container Manager (C4). Grounded on
// src/container/service.py's ContainerService.
type Service struct {
	Engine  *eng.Client
	Lock    *enginelock.Lock
	Meta    MetadataStore
	Options Options
}

func New(client *eng.Client, lock *enginelock.Lock, meta MetadataStore, opts Options) *Service {
	return &Service{Engine: client, Lock: lock, Meta: meta, Options: opts}
}

// CreateOrReplace creates a fresh standby container (mountDir == "") or
// recreates one from an existing mount directory, preserving its assigned
// user if any (§4.3).
func (s *Service) CreateOrReplace(ctx context.Context, parent *enginelock.Session, mountDir string) (eng.Container, error) {
	var result eng.Container
	err := enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		var hostname string
		var user *auth.User

		if mountDir == "" {
			existing, err := s.Meta.MountDirs()
			if err != nil {
				return err
			}
			hostname, err = GenerateHostname(existing)
			if err != nil {
				return err
			}
		} else {
			hostname = filepath.Base(mountDir)
			meta, err := s.Meta.Read(hostname)
			if err != nil {
				return err
			}
			if meta != nil {
				user = &meta.User
			}
		}

		name := NameFor(hostname, user)
		spec, err := s.buildSpec(name, hostname, user)
		if err != nil {
			return err
		}

		c, err := s.Engine.CreateOrReplace(ctx, spec)
		if err != nil {
			return err
		}
		result = c
		return nil
	})
	return result, err
}

// buildSpec fixes the image tag, env (HOSTNAME, PORT=80 and
// Options.ExtraEnv), the /app/data bind mount, the optional read-only
// proxies-config bind, and compose-style project/service labels; the
// internal network and DNS servers are added by engine.Client.Create, not
// here. On non-Darwin hosts, it rewrites
// the entrypoint to first add a Tailscale-router static route and grants
// NET_ADMIN (§4.3).
func (s *Service) buildSpec(name, hostname string, user *auth.User) (eng.CreateSpec, error) {
	env := map[string]string{
		"HOSTNAME": hostname,
		"PORT":     "80",
	}
	for k, v := range s.Options.ExtraEnv {
		env[k] = v
	}

	volumes := []string{
		fmt.Sprintf("%s:/app/data", s.Meta.MountDir(hostname)),
	}
	if s.Options.ProxiesConfigHostPath != "" {
		volumes = append(volumes, fmt.Sprintf("%s:/app/proxies.yaml:ro", s.Options.ProxiesConfigHostPath))
	}

	labels := map[string]string{
		"com.docker.compose.project": s.Options.ProjectName,
		"com.docker.compose.service": "worker",
		"mcp-getgather.hostname":     hostname,
		"mcp-getgather.project":      s.Options.ProjectName,
	}
	if user != nil {
		labels["mcp-getgather.user-id"] = user.UserID()
	}

	spec := eng.CreateSpec{
		Name:     name,
		Hostname: hostname,
		User:     "1000:1000",
		Image:    s.Options.Image,
		Env:      env,
		Volumes:  volumes,
		Labels:   labels,
	}

	if runtime.GOOS != "darwin" {
		routerIP := s.Options.SubnetPrefix + tailscaleRouterOctet
		script := fmt.Sprintf("ip route add 100.64.0.0/10 via %s; exec \"$@\"", routerIP)
		args, err := shlex.Split(fmt.Sprintf("sh -c %q --", script))
		if err != nil {
			return eng.CreateSpec{}, gatewayerr.Wrap(gatewayerr.KindEngineFailure, "build entrypoint", err)
		}
		if len(args) < 2 {
			return eng.CreateSpec{}, gatewayerr.New(gatewayerr.KindEngineFailure, "malformed entrypoint script")
		}
		spec.Entrypoint = args[0]
		spec.Cmd = args[1:]
		spec.CapAdds = []string{"NET_ADMIN"}
	}

	return spec, nil
}

// Assign picks a random standby (caller-supplied via pickStandby), renames
// it to the user's container, re-inspects, and writes metadata.json.
// NoStandbyAvailable if pickStandby returns none.
func (s *Service) Assign(ctx context.Context, parent *enginelock.Session, user auth.User, pickStandby func(ctx context.Context, sess *enginelock.Session) (eng.Container, bool, error)) (eng.Container, error) {
	var result eng.Container
	err := enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		standby, ok, err := pickStandby(ctx, sess)
		if err != nil {
			return err
		}
		if !ok {
			return gatewayerr.NoStandbyAvailable()
		}

		newName := NameFor(standby.Hostname, &user)
		if err := s.Engine.Rename(ctx, standby.ID, newName); err != nil {
			return err
		}

		refreshed, err := s.Engine.Get(ctx, standby.ID, "")
		if err != nil {
			return err
		}

		if err := s.Meta.Write(standby.Hostname, Metadata{User: user}); err != nil {
			return err
		}

		result = refreshed
		return nil
	})
	return result, err
}

// Purge deletes the container and quarantines its mount directory (moved,
// not deleted, so an operator can investigate) — §4.3.
func (s *Service) Purge(ctx context.Context, parent *enginelock.Session, c eng.Container) error {
	return enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		if err := s.Engine.Delete(ctx, c.ID); err != nil {
			return err
		}
		if err := s.Meta.Quarantine(c.Hostname); err != nil {
			serviceLog.Warn("failed to quarantine mount dir, continuing", "hostname", c.Hostname, "error", err)
		}
		return nil
	})
}

// Checkpoint disconnects the internal network first (so restore gets a
// fresh IP), then checkpoints, then re-inspects (§4.3).
func (s *Service) Checkpoint(ctx context.Context, parent *enginelock.Session, c eng.Container) (eng.Container, error) {
	var result eng.Container
	err := enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		if err := s.Engine.DisconnectNetwork(ctx, NetworkName, c.ID); err != nil {
			return err
		}
		if err := s.Engine.Checkpoint(ctx, c.ID); err != nil {
			return err
		}
		refreshed, err := s.Engine.Get(ctx, c.ID, "")
		if err != nil {
			return err
		}
		result = refreshed
		return nil
	})
	return result, err
}

// Restore restores the container, then reconnects the internal network, so
// the caller receives a container with a fresh IP attached (§4.3).
func (s *Service) Restore(ctx context.Context, parent *enginelock.Session, c eng.Container) (eng.Container, error) {
	var result eng.Container
	err := enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		if err := s.Engine.Restore(ctx, c.ID); err != nil {
			return err
		}
		if err := s.Engine.ConnectNetwork(ctx, NetworkName, c.ID); err != nil {
			return err
		}
		refreshed, err := s.Engine.Get(ctx, c.ID, "")
		if err != nil {
			return err
		}
		result = refreshed
		return nil
	})
	return result, err
}

// ReadMetadata exposes the metadata store's Read for callers that need raw
// metadata rather than a derived Identity.
func (s *Service) ReadMetadata(hostname string) (*Metadata, error) {
	return s.Meta.Read(hostname)
}

// PullImage pulls the upstream image and retags it to the local image name
// used by CreateOrReplace.
func (s *Service) PullImage(ctx context.Context, parent *enginelock.Session, source string) error {
	return enginelock.Run(ctx, s.Lock, parent, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		return s.Engine.PullImage(ctx, source, s.Options.Image)
	})
}

// GetContainers lists containers, optionally scoped by a partial name
// filter, under a read lock.
func (s *Service) GetContainers(ctx context.Context, parent *enginelock.Session, partialName string) ([]eng.Container, error) {
	var result []eng.Container
	err := enginelock.Run(ctx, s.Lock, parent, enginelock.Read, func(ctx context.Context, sess *enginelock.Session) error {
		containers, err := s.Engine.List(ctx, partialName, nil, true)
		if err != nil {
			if errdefs.IsNotFound(err) {
				// A container the initial listing saw was removed before we
				// could inspect it; treat the race as "not currently there"
				// rather than failing the whole lookup.
				return nil
			}
			return err
		}
		result = containers
		return nil
	})
	return result, err
}

// GetContainer finds the single container whose name contains needle (a
// user_id or hostname substring scan, per §4.4.2 step 1), returning ok=false
// if none matches.
func (s *Service) GetContainer(ctx context.Context, parent *enginelock.Session, needle string) (eng.Container, bool, error) {
	containers, err := s.GetContainers(ctx, parent, needle)
	if err != nil {
		return eng.Container{}, false, err
	}
	if len(containers) == 0 {
		return eng.Container{}, false, nil
	}
	return containers[0], true, nil
}
