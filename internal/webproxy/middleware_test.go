package webproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	byHostname map[string]string
	random     string
	hasRandom  bool
}

func (f *fakeLocator) AddressForHostname(hostname string) (string, bool) {
	addr, ok := f.byHostname[hostname]
	return addr, ok
}

func (f *fakeLocator) RandomAddress() (string, bool) {
	return f.random, f.hasRandom
}

func TestMiddlewarePassesThroughUnmatchedPaths(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	handler := Middleware(&fakeLocator{}, next)
	req := httptest.NewRequest(http.MethodGet, "/mcp/foo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestMiddlewareRoutesHostedLinkToResolvedWorker(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer backend.Close()

	locator := &fakeLocator{byHostname: map[string]string{"abc123": backend.Listener.Addr().String()}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called for hosted link paths")
	})

	handler := Middleware(locator, next)
	req := httptest.NewRequest(http.MethodGet, "/link/abc123-linkid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddlewareHostedLinkUnresolvableHostnameIs400(t *testing.T) {
	locator := &fakeLocator{byHostname: map[string]string{}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	handler := Middleware(locator, next)
	req := httptest.NewRequest(http.MethodGet, "/link/unknown-linkid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareHostedLinkMalformedPathIs400(t *testing.T) {
	locator := &fakeLocator{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	handler := Middleware(locator, next)
	req := httptest.NewRequest(http.MethodGet, "/link/nodash", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareWorkerAgnosticPrefixUsesRandomAddress(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer backend.Close()

	locator := &fakeLocator{random: backend.Listener.Addr().String(), hasRandom: true}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	handler := Middleware(locator, next)
	req := httptest.NewRequest(http.MethodGet, "/__assets/app.js", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMiddlewareRootPathWithNoWorkersIs503(t *testing.T) {
	locator := &fakeLocator{hasRandom: false}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	handler := Middleware(locator, next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHostForHostedLinkJoinsHostnameWithInternalDashes(t *testing.T) {
	locator := &fakeLocator{byHostname: map[string]string{"my-host-name": "1.2.3.4:80"}}
	host, hostname, err := hostForHostedLink(locator, "/link/my-host-name-linkid/")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:80", host)
	assert.Equal(t, "my-host-name", hostname)
}
