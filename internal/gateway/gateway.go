// Package gateway implements the Gateway Host (C9): process boot, the HTTP
// surface wiring together the token router, OAuth proxy, MCP proxy, and web
// proxy middleware, and the maintenance loop. Grounded on the teacher's
// cmd/docker-mcp/internal/gateway/run.go NewGateway/Run shape, re-purposed
// around container pools instead of MCP server capability registration.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	"github.com/mcp-getgather/mcp-gateway/internal/config"
	"github.com/mcp-getgather/mcp-gateway/internal/container"
	eng "github.com/mcp-getgather/mcp-gateway/internal/engine"
	"github.com/mcp-getgather/mcp-gateway/internal/enginelock"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
	"github.com/mcp-getgather/mcp-gateway/internal/manager"
	"github.com/mcp-getgather/mcp-gateway/internal/mcpproxy"
	"github.com/mcp-getgather/mcp-gateway/internal/oauthproxy"
	"github.com/mcp-getgather/mcp-gateway/internal/webproxy"
)

var gatewayLog = log.With("gateway")

// Gateway owns every gateway-level component's lifecycle: the engine client,
// the container service and manager, the auth router, the OAuth and MCP
// proxies, and the HTTP server itself (§9: "process-wide state with
// lifecycle").
type Gateway struct {
	settings *config.Settings

	engine  *eng.Client
	lock    *enginelock.Lock
	service *container.Service
	manager *manager.Manager

	authRouter *auth.Router
	oauth      *oauthproxy.Proxy
	mcp        *mcpproxy.Proxy
	httpServer *http.Server

	proxiesHostPath string
}

// New wires every component from settings but performs no I/O; callers
// invoke Run to boot and serve.
func New(settings *config.Settings) (*Gateway, error) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	client, err := eng.New(eng.Name(settings.ContainerEngine), container.NetworkName)
	if err != nil {
		return nil, err
	}

	proxiesHostPath, err := settings.ProxiesConfigHostPath()
	if err != nil {
		return nil, err
	}

	lock := enginelock.New()
	meta := container.MetadataStore{MountRoot: settings.DataDir}
	service := container.New(client, lock, meta, container.Options{
		Image:                 settings.WorkerImage(),
		HostMountRoot:         settings.DataDir,
		ProxiesConfigHostPath: proxiesHostPath,
		ProjectName:           settings.ContainerProjectName,
		SubnetPrefix:          settings.ContainerSubnetPrefix,
		ExtraEnv:              settings.WorkerEnv(),
	})

	mgr := manager.New(service, manager.Config{
		NStandby:                settings.NumStandbyContainers,
		TTLActive:               settings.TTLActive(),
		MaxNumRunningContainers: settings.MaxNumRunningContainers,
	})

	oauth := oauthproxy.New(
		oauthproxy.NewGitHubProvider(settings.OAuthGitHubClientID, settings.OAuthGitHubClientSecret, settings.GatewayOrigin+"/callback"),
		oauthproxy.NewGoogleProvider(settings.OAuthGoogleClientID, settings.OAuthGoogleClientSecret, settings.GatewayOrigin+"/callback"),
	)

	router := auth.NewRouter(
		&auth.StaticTokenVerifier{Apps: settings.GetgatherApps},
		auth.NewGitHubVerifier(thirdPartyVerify(oauth, "github")),
		auth.NewGoogleVerifier(thirdPartyVerify(oauth, "google")),
	)

	g := &Gateway{
		settings:        settings,
		engine:          client,
		lock:            lock,
		service:         service,
		manager:         mgr,
		authRouter:      router,
		oauth:           oauth,
		proxiesHostPath: proxiesHostPath,
	}

	entries, order, err := loadEgressConfig(proxiesHostPath)
	if err != nil {
		gatewayLog.Warn("failed to load egress proxy config, continuing without it", "error", err)
	}
	g.mcp = mcpproxy.New(&sessionResolver{gateway: g}, mcpproxy.EgressConfig{
		Entries:     entries,
		Order:       order,
		DefaultType: settings.DefaultProxyType,
	}, settings.GatewayOrigin)

	return g, nil
}

func loadEgressConfig(path string) (map[string]mcpproxy.ProxyEntry, []string, error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return mcpproxy.ParseTOML(data)
}

// thirdPartyVerify adapts Proxy.VerifyToken (which is keyed by provider
// name) into the per-provider closure auth.NewGitHubVerifier/
// NewGoogleVerifier expect (§4.5's MultiOAuthTokenVerifier.verify_token:
// a bearer token minted directly by the upstream provider, not through
// this gateway's own authorization-code exchange).
func thirdPartyVerify(oauth *oauthproxy.Proxy, provider string) func(ctx context.Context, token string) (auth.User, error) {
	return func(ctx context.Context, token string) (auth.User, error) {
		return oauth.VerifyToken(ctx, provider, token)
	}
}

// sessionResolver adapts Manager to mcpproxy.ContainerResolver, resolving
// a session's bearer-authenticated user to their running container.
type sessionResolver struct {
	gateway *Gateway
}

func (r *sessionResolver) ResolveForSession(ctx context.Context, sessionID string) (string, string, error) {
	u, ok := auth.UserFromContext(ctx)
	var c eng.Container
	var err error
	if ok {
		c, err = r.gateway.manager.GetUserContainer(ctx, u)
	} else {
		c, err = r.gateway.manager.GetUnassignedContainer(ctx)
	}
	if err != nil {
		return "", "", err
	}
	return c.IP, r.gateway.service.Meta.MountDir(c.Hostname), nil
}

// Run performs the full boot sequence (standby pool seed, active pool
// sizing and re-seed from running containers), starts the HTTP server, and
// blocks until ctx is cancelled or a termination signal arrives, then drains
// gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !g.engine.SupportsCheckpoint() {
		gatewayLog.Warn("engine does not support checkpoint/restore; persistent containers will remain running across TTL expiry only while this gateway process is up")
	}

	activeSize, err := manager.ActivePoolSize(ctx, g.settings.NumStandbyContainers, g.settings.MaxNumRunningContainers)
	if err != nil {
		return fmt.Errorf("computing active pool size: %w", err)
	}
	g.manager.SetActivePoolSize(activeSize)
	gatewayLog.Info("active pool sized", "n_active", activeSize, "n_standby", g.settings.NumStandbyContainers)

	if err := g.manager.InitActiveAssignedPool(ctx); err != nil {
		return fmt.Errorf("seeding active pool: %w", err)
	}
	if err := g.manager.RefreshStandbyPool(ctx); err != nil {
		return fmt.Errorf("seeding standby pool: %w", err)
	}

	if g.proxiesHostPath != "" {
		go g.watchEgressConfig(ctx)
	}
	go g.periodicMetricExport(ctx)

	mux := g.buildMux(ctx)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.settings.Port))
	if err != nil {
		return fmt.Errorf("listen :%d: %w", g.settings.Port, err)
	}
	g.httpServer = &http.Server{Handler: mux}

	go g.maintenanceLoop(ctx)

	serveErr := make(chan error, 1)
	go func() {
		gatewayLog.Info("gateway listening", "port", g.settings.Port)
		serveErr <- g.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		gatewayLog.Info("shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return g.httpServer.Shutdown(shutdownCtx)
}

// maintenanceLoop ticks perform_maintenance at exactly the TTL interval it
// reports back, per §4.4.2.
func (g *Gateway) maintenanceLoop(ctx context.Context) {
	for {
		ttl, err := g.manager.PerformMaintenance(ctx)
		if err != nil {
			gatewayLog.Warn("maintenance tick reported errors", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(ttl):
		}
	}
}

// periodicMetricExport force-flushes the ManualReader-backed meter provider
// on an interval, since a ManualReader otherwise only exports at shutdown
// (§9's telemetry boot step).
func (g *Gateway) periodicMetricExport(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	mp := otel.GetMeterProvider()
	flusher, ok := mp.(interface{ ForceFlush(context.Context) error })
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := flusher.ForceFlush(flushCtx); err != nil {
				gatewayLog.Warn("periodic metric flush failed", "error", err)
			}
			cancel()
		}
	}
}

// watchEgressConfig reloads the egress-proxy document into the running MCP
// proxy whenever an operator edits the PROXIES_CONFIG-backing file on disk,
// mirroring the teacher's config-watcher goroutine in run.go.
func (g *Gateway) watchEgressConfig(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		gatewayLog.Warn("egress config watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(g.proxiesHostPath); err != nil {
		gatewayLog.Warn("failed to watch egress config file", "path", g.proxiesHostPath, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			entries, order, err := loadEgressConfig(g.proxiesHostPath)
			if err != nil {
				gatewayLog.Warn("failed to reload egress config", "error", err)
				continue
			}
			g.mcp.SetEgressConfig(mcpproxy.EgressConfig{
				Entries:     entries,
				Order:       order,
				DefaultType: g.settings.DefaultProxyType,
			})
			gatewayLog.Info("reloaded egress proxy config")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			gatewayLog.Warn("egress config watcher error", "error", err)
		}
	}
}

func (g *Gateway) buildMux(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	if err := g.RegisterMCPRoutes(ctx, mux); err != nil {
		gatewayLog.Warn("failed to register MCP routes", "error", err)
	}

	mux.HandleFunc("/authorize", g.oauth.ServeAuthorize(g.settings.GatewayOrigin))
	mux.HandleFunc("/callback", g.oauth.ServeCallback())
	mux.HandleFunc("/register", g.oauth.RegisterClient)
	mux.HandleFunc("/.well-known/oauth-authorization-server", g.oauth.ServeAppMetadata(g.settings.GatewayOrigin))

	mux.HandleFunc("/account/", g.handleAccount)

	var handler http.Handler = mux
	handler = webproxy.Middleware(g.manager, handler)
	handler = auth.RequireAuth(g.authRouter, "/mcp", g.settings.AdminEmailDomain, handler)
	return handler
}

// handleAccount is the test/admin OAuth flow from §9's supplemented
// features: GET /account/{mcp_name} returns the caller's resolved identity,
// useful for operators validating a provider is wired correctly.
func (g *Gateway) handleAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		user, err := g.authRouter.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		u = user.WithAdminEmailDomain(g.settings.AdminEmailDomain)
	}
	fmt.Fprintf(w, "%s\n", u.String())
}

// RegisterMCPRoutes discovers a standby worker's routes and mounts each one
// on mux, called once at startup after the standby pool has been seeded.
func (g *Gateway) RegisterMCPRoutes(ctx context.Context, mux *http.ServeMux) error {
	c, err := g.manager.GetUnassignedContainer(ctx)
	if err != nil {
		return err
	}
	if !c.HasIP() {
		return fmt.Errorf("standby container %s has no IP yet", c.Hostname)
	}

	routes, err := mcpproxy.DiscoverRoutes(ctx, c.IP+":80")
	if err != nil {
		return err
	}
	for _, route := range routes {
		mux.HandleFunc(route, g.mcp.ServeRoute(route))
	}
	return nil
}
