// Package gatewayerr defines the typed error kinds surfaced distinctly by
// the gateway, following the containerd/errdefs idiom of classifying errors
// into sentinel categories that callers can test with errors.Is/errors.As
// instead of comparing error strings.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse error category from the error handling design.
type Kind string

const (
	KindConfigInvalid            Kind = "config_invalid"
	KindEngineTimeout             Kind = "engine_timeout"
	KindEngineFailure             Kind = "engine_failure"
	KindEngineInconsistent        Kind = "engine_inconsistent"
	KindAmbiguousName             Kind = "ambiguous_name"
	KindUnsupportedEngine         Kind = "unsupported_engine"
	KindLockUpgrade               Kind = "lock_upgrade"
	KindAuthTokenInvalid          Kind = "auth_token_invalid"
	KindAuthProviderUnconfigured  Kind = "auth_provider_unconfigured"
	KindNoStandbyAvailable        Kind = "no_standby_available"
	KindProxyValidationFailed     Kind = "proxy_validation_failed"
	KindUpstreamProxyError        Kind = "upstream_proxy_error"
	KindNotFound                  Kind = "not_found"
	KindRouteInvalid              Kind = "route_invalid"
)

// Error is the concrete error type carrying a Kind plus context, wrapping an
// optional cause via the standard Unwrap chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is match any *Error target of the same Kind, whatever its
// message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel constructors, one per kind, to keep call sites readable and to
// give IDE-discoverable names matching §7 of the requirements document.

func ConfigInvalid(format string, args ...any) *Error {
	return New(KindConfigInvalid, fmt.Sprintf(format, args...))
}

func EngineTimeout(format string, args ...any) *Error {
	return New(KindEngineTimeout, fmt.Sprintf(format, args...))
}

func EngineFailure(cause error, format string, args ...any) *Error {
	return Wrap(KindEngineFailure, fmt.Sprintf(format, args...), cause)
}

func EngineInconsistent(format string, args ...any) *Error {
	return New(KindEngineInconsistent, fmt.Sprintf(format, args...))
}

func AmbiguousName(name string) *Error {
	return New(KindAmbiguousName, fmt.Sprintf("multiple containers found for name %q", name))
}

func UnsupportedEngine(op, engine string) *Error {
	return New(KindUnsupportedEngine, fmt.Sprintf("%s is not supported by engine %q", op, engine))
}

func LockUpgrade() *Error {
	return New(KindLockUpgrade, "cannot upgrade read lock to write lock in nested scope")
}

func AuthTokenInvalid(reason string) *Error {
	return New(KindAuthTokenInvalid, reason)
}

func AuthProviderUnconfigured(provider string) *Error {
	return New(KindAuthProviderUnconfigured, fmt.Sprintf("provider %q is not configured", provider))
}

func NoStandbyAvailable() *Error {
	return New(KindNoStandbyAvailable, "no standby container available")
}

func ProxyValidationFailed(cause error) *Error {
	return Wrap(KindProxyValidationFailed, "egress proxy configuration could not be validated", cause)
}

func UpstreamProxyError(cause error) *Error {
	return Wrap(KindUpstreamProxyError, "upstream request failed", cause)
}

func NotFound(what string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", what))
}

func RouteInvalid(reason string) *Error {
	return New(KindRouteInvalid, reason)
}

// Is reports whether err (or any error in its chain) has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Group collects multiple errors captured during a nested engine session and
// reports them together, mirroring the Python original's ExceptionGroup used
// at the outermost scope of engine_client (§4.2, §7).
type Group struct {
	Message string
	Errs    []error
}

func (g *Group) Error() string {
	if len(g.Errs) == 1 {
		return g.Errs[0].Error()
	}
	msg := g.Message
	for i, e := range g.Errs {
		msg += fmt.Sprintf("\n  [%d] %v", i+1, e)
	}
	return msg
}

func (g *Group) Unwrap() []error { return g.Errs }

// NewGroup returns a single error representing errs: nil if empty, the bare
// error if there's exactly one, or a *Group otherwise.
func NewGroup(message string, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &Group{Message: message, Errs: errs}
	}
}
