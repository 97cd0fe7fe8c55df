package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the running state of a container as reported by the engine.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// Container is the gateway's view of a single container, derived from an
// engine inspect record. Hostname is globally unique and immutable for the
// container's whole life; Name encodes ownership as "{user_id}-{hostname}"
// or "UNASSIGNED-{hostname}".
type Container struct {
	ID           string
	Name         string
	Hostname     string
	IP           string // empty iff not attached to the internal network
	Status       Status
	Checkpointed bool
	StartedAt    time.Time

	// raw is the unmarshalled `docker inspect` record, kept for callers that
	// need fields this struct doesn't surface (e.g. mount points).
	raw map[string]any
	// networkName is the internal network this container's IP is resolved
	// against; excluded from serialization like the Python original.
	networkName string
}

// HasIP reports whether the container currently has an IP on the internal
// network.
func (c Container) HasIP() bool { return c.IP != "" }

// inspectRecord is the subset of `docker/podman container inspect --format
// json` this package reads. Field names follow Docker's inspect schema.
type inspectRecord struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
		Status    string `json:"Status"`
	} `json:"State"`
	Config struct {
		Hostname string `json:"Hostname"`
	} `json:"Config"`
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// FromInspect builds a Container from a raw inspect record, resolving IP
// against networkName the way the Python Container.from_inspect does.
func FromInspect(raw map[string]any, networkName string) (Container, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Container{}, fmt.Errorf("re-marshal inspect record: %w", err)
	}
	var rec inspectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Container{}, fmt.Errorf("parse inspect record: %w", err)
	}

	name := strings.TrimPrefix(rec.Name, "/")

	status := StatusExited
	checkpointed := false
	if rec.State.Running {
		status = StatusRunning
	} else if strings.EqualFold(rec.State.Status, "checkpointed") {
		checkpointed = true
	}

	var ip string
	if net, ok := rec.NetworkSettings.Networks[networkName]; ok {
		ip = net.IPAddress
	}

	var startedAt time.Time
	if rec.State.StartedAt != "" {
		startedAt, _ = time.Parse(time.RFC3339Nano, rec.State.StartedAt)
	}

	return Container{
		ID:           rec.ID,
		Name:         name,
		Hostname:     rec.Config.Hostname,
		IP:           ip,
		Status:       status,
		Checkpointed: checkpointed,
		StartedAt:    startedAt,
		raw:          raw,
		networkName:  networkName,
	}, nil
}

// BasicInfo is the (id, name) pair returned by a lightweight `container ls`,
// used before paying for a full inspect.
type BasicInfo struct {
	ID   string
	Name string
}
