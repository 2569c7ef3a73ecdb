// Package providers - uniform completion adapters and ordered failover routing.
//
// DESIGN: Each upstream generative-text provider is wrapped in an Adapter
// with a single Complete(prompt) -> text contract. Failures are classified
// into a closed error taxonomy at the adapter boundary:
//   - quota:         429 / rate-limit signals (triggers pipeline cooldown)
//   - http_<code>:   any other non-2xx upstream status
//   - transport_*:   timeout, connection reset, DNS failure
//   - unknown:       anything unclassifiable
//
// Nothing outside this package pattern-matches provider-specific error shapes.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Adapter is the uniform completion capability.
type Adapter interface {
	// Name identifies the provider ("anthropic", "openai", "bedrock").
	Name() string

	// Complete generates text for a prompt. Failures are returned as *Error.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Kind is the classified failure category.
type Kind string

const (
	KindQuota   Kind = "quota"
	KindUnknown Kind = "unknown"
)

// HTTPKind builds the http_<code> kind for an upstream status.
func HTTPKind(status int) Kind {
	return Kind(fmt.Sprintf("http_%d", status))
}

// Transport sub-kinds.
const (
	KindTransportTimeout Kind = "transport_timeout"
	KindTransportReset   Kind = "transport_reset"
	KindTransportDNS     Kind = "transport_dns"
	KindTransportError   Kind = "transport_error"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Status   int // upstream HTTP status when applicable
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is eligible for retry/failover
// within the same router call: timeouts, 5xx, 429, resets, DNS failures.
func (e *Error) Transient() bool {
	if e.Kind == KindQuota {
		return true
	}
	if strings.HasPrefix(string(e.Kind), "transport_") {
		return true
	}
	return e.Status >= 500
}

// IsQuota reports whether err is a quota/rate-limit provider failure.
func IsQuota(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindQuota
}

// classifyStatus maps an upstream HTTP status to an error kind.
func classifyStatus(status int) Kind {
	if status == 429 {
		return KindQuota
	}
	return HTTPKind(status)
}

// classifyTransport maps a network-level error to a transport_* kind.
// Context deadline expiry counts as a timeout: the per-call deadline is the
// only deadline an adapter sees.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransportTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransportDNS
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		strings.Contains(err.Error(), "connection reset") {
		return KindTransportReset
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransportError
	}
	return KindUnknown
}

// wrapErr normalizes any adapter failure into *Error.
func wrapErr(provider string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		if perr.Provider == "" {
			perr.Provider = provider
		}
		return perr
	}
	return &Error{Kind: classifyTransport(err), Provider: provider, Err: err}
}
