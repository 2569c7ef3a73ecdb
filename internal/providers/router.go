package providers

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RouteOptions selects the routing depth for one call.
type RouteOptions struct {
	// FastPath skips retry backoff: one attempt per provider.
	FastPath bool
	// CriticalPath tries every configured provider in order; otherwise
	// only the primary is attempted.
	CriticalPath bool
}

// Result is a successful routed completion.
type Result struct {
	Provider string
	Text     string
}

// Router executes completions against an ordered provider list with
// bounded retry and failover.
type Router struct {
	adapters       []Adapter
	maxRetries     int
	callTimeout    time.Duration
	backoffCeiling time.Duration
}

// NewRouter creates a router. Adapter order is the priority order.
func NewRouter(adapters []Adapter, maxRetries int, callTimeout, backoffCeiling time.Duration) *Router {
	return &Router{
		adapters:       adapters,
		maxRetries:     maxRetries,
		callTimeout:    callTimeout,
		backoffCeiling: backoffCeiling,
	}
}

// Providers returns the configured provider names in priority order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

var errNoProviders = errors.New("no providers configured")

// Route tries providers in priority order and returns the first success.
// If every provider fails, the error reported is the FIRST one encountered.
func (r *Router) Route(ctx context.Context, prompt string, opts RouteOptions) (Result, error) {
	candidates := r.adapters
	if !opts.CriticalPath && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	if len(candidates) == 0 {
		return Result{}, &Error{Kind: KindUnknown, Provider: "router", Err: errNoProviders}
	}

	var firstErr error
	for _, adapter := range candidates {
		text, err := r.attempt(ctx, adapter, prompt, opts.FastPath)
		if err == nil {
			return Result{Provider: adapter.Name(), Text: text}, nil
		}
		log.Warn().
			Str("provider", adapter.Name()).
			Str("kind", string(wrapErr(adapter.Name(), err).Kind)).
			Msg("provider attempt failed, failing over")
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, firstErr
}

// attempt runs one provider with retry/backoff. Only transient
// classifications are retried; everything else propagates immediately.
func (r *Router) attempt(ctx context.Context, adapter Adapter, prompt string, fastPath bool) (string, error) {
	var text string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()

		out, err := adapter.Complete(callCtx, prompt)
		if err != nil {
			perr := wrapErr(adapter.Name(), err)
			if !perr.Transient() {
				return backoff.Permanent(perr)
			}
			return perr
		}
		text = out
		return nil
	}

	retries := r.maxRetries
	if fastPath {
		retries = 0
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	expo.MaxInterval = r.backoffCeiling
	expo.MaxElapsedTime = 0 // retry count is the bound, not elapsed time

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return text, nil
}
