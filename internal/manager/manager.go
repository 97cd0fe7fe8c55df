package manager

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	"github.com/mcp-getgather/mcp-gateway/internal/container"
	eng "github.com/mcp-getgather/mcp-gateway/internal/engine"
	"github.com/mcp-getgather/mcp-gateway/internal/enginelock"
	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var managerLog = log.With("manager")

// Config is the Container Manager's tunable policy, per §4.4.
type Config struct {
	NStandby                int
	TTLActive               time.Duration
	MaxNumRunningContainers int // 0 means unconfigured
}

// Manager owns the standby and active-assigned pools and the maintenance
// loop (C4). Grounded on src/container/manager.py's ContainerManager plus
// its module-level _active_assigned_pool singleton, made an explicit field
// here instead of module global state per §9 ("process-wide state with
// lifecycle").
type Manager struct {
	service *container.Service
	cfg     Config
	active  *TTLCache[string, eng.Container]

	releaseMu sync.Mutex
	releases  *errgroup.Group

	assignGroup singleflight.Group

	rand *rand.Rand

	assignments metric.Int64Counter
}

// New builds a Manager. The active pool's callbacks both schedule an async
// ReleaseContainer the way the original's on_expire/on_pop both call
// _cleanup_container (§4.4.1: "Both callbacks are identical").
func New(service *container.Service, cfg Config) *Manager {
	assignments, err := otel.Meter("manager").Int64Counter("containers_assigned_total",
		metric.WithDescription("count of get_user_container calls that assigned a brand-new container"))
	if err != nil {
		managerLog.Warn("failed to create containers_assigned_total counter", "error", err)
	}

	m := &Manager{
		service:     service,
		cfg:         cfg,
		releases:    &errgroup.Group{},
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		assignments: assignments,
	}
	release := func(hostname string, c eng.Container) {
		m.scheduleRelease(c)
	}
	m.active = NewTTLCache[string, eng.Container](0, cfg.TTLActive, release, release)
	return m
}

// SetActivePoolSize finalizes the active pool's capacity, called once at
// startup after ActivePoolSize() has computed it from system memory (§3).
func (m *Manager) SetActivePoolSize(n int) {
	m.active.maxSize = n
}

// scheduleRelease queues c for release on the current errgroup batch, so
// perform_maintenance's next awaitReleaseTasks call waits on every release
// triggered since the last tick (§4.4.2).
func (m *Manager) scheduleRelease(c eng.Container) {
	m.releaseMu.Lock()
	defer m.releaseMu.Unlock()
	m.releases.Go(func() error {
		return m.ReleaseContainer(context.Background(), c)
	})
}

// GetUserContainer is the central routing primitive (§4.4.2).
func (m *Manager) GetUserContainer(ctx context.Context, user auth.User) (eng.Container, error) {
	c, found, err := m.service.GetContainer(ctx, nil, user.UserID())
	if err != nil {
		return eng.Container{}, err
	}

	if found {
		switch {
		case c.Status == eng.StatusRunning:
			if !m.active.Contains(c.Hostname) {
				managerLog.Warn("running container is not in the active pool, adding it",
					"hostname", c.Hostname, "user", user.UserID())
			}
		case c.Checkpointed:
			restored, err := m.restoreMakingRoom(ctx, c)
			if err != nil {
				return eng.Container{}, err
			}
			c = restored
		default:
			managerLog.Warn("container is in an error state, a new container will be assigned",
				"hostname", c.Hostname, "user", user.UserID())
			if err := m.service.Purge(ctx, nil, c); err != nil {
				return eng.Container{}, err
			}
			found = false
		}
	}

	if !found {
		// singleflight collapses concurrent assignment requests for the same
		// brand-new user onto one call, so the second caller never even
		// enters the write-lock queue for a container it would get anyway
		// (§4.4.2 E7: concurrent assignment for the same user is
		// serialized).
		v, err, _ := m.assignGroup.Do(user.UserID(), func() (any, error) {
			assigned, err := m.service.Assign(ctx, nil, user, m.pickRandomStandby)
			if err == nil && m.assignments != nil {
				m.assignments.Add(ctx, 1)
			}
			return assigned, err
		})
		if err != nil {
			return eng.Container{}, err
		}
		c = v.(eng.Container)
		go func() {
			if err := m.RefreshStandbyPool(context.Background()); err != nil {
				managerLog.Warn("failed to refresh standby pool after assignment", "error", err)
			}
		}()
	}

	m.active.Set(c.Hostname, c)
	return c, nil
}

// restoreMakingRoom purges a random standby first, then restores c, to
// preserve the running-count invariant the way §4.4.3 requires: "A restore
// requires first purging a standby; the order matters because the restore
// itself allocates resources."
func (m *Manager) restoreMakingRoom(ctx context.Context, c eng.Container) (eng.Container, error) {
	standby, ok, err := m.pickRandomStandby(ctx, nil)
	if err != nil {
		return eng.Container{}, err
	}
	if ok {
		if err := m.service.Purge(ctx, nil, standby); err != nil {
			return eng.Container{}, err
		}
	}
	return m.service.Restore(ctx, nil, c)
}

func (m *Manager) pickRandomStandby(ctx context.Context, sess *enginelock.Session) (eng.Container, bool, error) {
	standbys, err := m.service.GetContainers(ctx, sess, container.UnassignedUserID)
	if err != nil {
		return eng.Container{}, false, err
	}
	if len(standbys) == 0 {
		return eng.Container{}, false, nil
	}
	return standbys[m.rand.Intn(len(standbys))], true, nil
}

// GetContainerByHostname returns a container by hostname, NotFound if absent.
func (m *Manager) GetContainerByHostname(ctx context.Context, hostname string) (eng.Container, error) {
	c, found, err := m.service.GetContainer(ctx, nil, hostname)
	if err != nil {
		return eng.Container{}, err
	}
	if !found {
		return eng.Container{}, gatewayerr.NotFound("container " + hostname)
	}
	return c, nil
}

// GetUnassignedContainer returns a random standby container.
func (m *Manager) GetUnassignedContainer(ctx context.Context) (eng.Container, error) {
	c, ok, err := m.pickRandomStandby(ctx, nil)
	if err != nil {
		return eng.Container{}, err
	}
	if !ok {
		return eng.Container{}, gatewayerr.NoStandbyAvailable()
	}
	return c, nil
}

// RefreshStandbyPool starts any exited standby containers and sequentially
// creates new ones to backfill the deficit, under a single write lock
// session so creations never race on hostname generation (§4.4.2,
// §5 "Standby-pool refill is sequential by design").
func (m *Manager) RefreshStandbyPool(ctx context.Context) error {
	return enginelock.Run(ctx, m.service.Lock, nil, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		containers, err := m.service.GetContainers(ctx, sess, container.UnassignedUserID)
		if err != nil {
			return err
		}

		for _, c := range containers {
			if c.Status == eng.StatusExited {
				if err := m.service.Engine.Start(ctx, c.ID); err != nil {
					return err
				}
			}
		}

		deficit := m.cfg.NStandby - len(containers)
		if deficit <= 0 {
			return nil
		}
		managerLog.Info("backfilling standby pool", "count", deficit)

		for i := 0; i < deficit; i++ {
			if _, err := m.service.CreateOrReplace(ctx, sess, ""); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecreateAllContainers rolls an image update across every known container,
// preserving persistent users' running-or-checkpointed status and purging
// one-time app containers outright, then refills the standby pool. Callers
// are warned this terminates active sessions (§4.4.2).
func (m *Manager) RecreateAllContainers(ctx context.Context) error {
	if err := enginelock.Run(ctx, m.service.Lock, nil, enginelock.Write, func(ctx context.Context, sess *enginelock.Session) error {
		containers, err := m.service.GetContainers(ctx, sess, "")
		if err != nil {
			return err
		}

		for _, c := range containers {
			identity, err := container.IdentityFromHostname(m.service.Meta, c.Hostname)
			if err != nil {
				return err
			}
			if identity.IsAssignedToGetgatherApp() {
				if err := m.service.Purge(ctx, sess, c); err != nil {
					return err
				}
				continue
			}

			keepRunning := c.Status == eng.StatusRunning
			reloaded, err := m.service.CreateOrReplace(ctx, sess, m.service.Meta.MountDir(c.Hostname))
			if err != nil {
				return err
			}

			if identity.IsAssignedToAuthenticatedUser() {
				if keepRunning {
					m.active.Set(reloaded.Hostname, reloaded)
				} else if _, err := m.service.Checkpoint(ctx, sess, reloaded); err != nil {
					return err
				}
			}
			// else: keep UNASSIGNED container running regardless of previous status.
		}
		return nil
	}); err != nil {
		return err
	}
	return m.RefreshStandbyPool(ctx)
}

// InitActiveAssignedPool re-seeds the active pool from every currently
// running non-standby container at gateway startup, so their TTL clock
// restarts rather than the gateway forgetting them (§4.4.2).
func (m *Manager) InitActiveAssignedPool(ctx context.Context) error {
	containers, err := m.service.GetContainers(ctx, nil, "")
	if err != nil {
		return err
	}
	for _, c := range containers {
		if c.Status == eng.StatusRunning && !strings.HasPrefix(c.Name, container.UnassignedUserID+"-") {
			m.active.Set(c.Hostname, c)
		}
	}
	return nil
}

// PerformMaintenance awaits outstanding release tasks, then advances the
// TTL clock, returning the TTL so the caller can sleep exactly that
// interval before the next tick (§4.4.2).
func (m *Manager) PerformMaintenance(ctx context.Context) (time.Duration, error) {
	if err := m.awaitReleaseTasks(); err != nil {
		return m.active.TTL(), err
	}
	m.active.Expire()
	return m.active.TTL(), nil
}

func (m *Manager) awaitReleaseTasks() error {
	m.releaseMu.Lock()
	batch := m.releases
	m.releases = &errgroup.Group{}
	m.releaseMu.Unlock()

	return batch.Wait()
}

// ReleaseContainer frees the resources used by a container: checkpoint for
// persistent users (left running when the engine cannot checkpoint), purge
// for one-time app users, then kicks a standby refill to hold the
// running-count invariant (§4.4.2).
func (m *Manager) ReleaseContainer(ctx context.Context, c eng.Container) error {
	identity, err := container.IdentityFromHostname(m.service.Meta, c.Hostname)
	if err != nil {
		return err
	}

	if identity.IsAssignedToAuthenticatedUser() && identity.IsAssignedToPersistentUser() {
		if m.service.Engine.SupportsCheckpoint() {
			if _, err := m.service.Checkpoint(ctx, nil, c); err != nil {
				return err
			}
		}
		m.active.Pop(c.Hostname)
	} else {
		if err := m.service.Purge(ctx, nil, c); err != nil {
			return err
		}
	}

	return m.RefreshStandbyPool(ctx)
}

// ActiveLen reports the current size of the active-assigned pool (used by
// admin/manager-info endpoints and tests).
func (m *Manager) ActiveLen() int { return m.active.Len() }

// AddressForHostname implements webproxy.Locator: it resolves a hostname to
// its container's "ip:80" address, the port every worker listens on
// (§4.3's buildSpec fixes PORT=80).
func (m *Manager) AddressForHostname(hostname string) (string, bool) {
	c, err := m.GetContainerByHostname(context.Background(), hostname)
	if err != nil || !c.HasIP() {
		return "", false
	}
	return c.IP + ":80", true
}

// RandomAddress implements webproxy.Locator: it resolves a random standby
// to an "ip:80" address.
func (m *Manager) RandomAddress() (string, bool) {
	c, ok, err := m.pickRandomStandby(context.Background(), nil)
	if err != nil || !ok || !c.HasIP() {
		return "", false
	}
	return c.IP + ":80", true
}
