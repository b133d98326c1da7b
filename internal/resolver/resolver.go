// Package resolver sequences the provider chain for one resolution request:
// cache first, then each adapter under its own deadline, first success wins.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"time"

	"moray/internal/media"
	"moray/internal/provider"
)

// Store is the persistence surface the resolver needs. Write failures are
// swallowed: persistence never fails a resolution.
type Store interface {
	Lookup(key media.ResolutionKey) (*media.CacheEntry, error)
	Put(entry media.CacheEntry) error
	AppendLog(entry media.LogEntry) error
}

// Options tune one resolution request.
type Options struct {
	// ForceProvider runs exactly one adapter and bypasses the cache.
	ForceProvider string
	// SkipProviders removes adapters from the sweep by id.
	SkipProviders []string
	// Refresh skips the cache read so a stale or dead URL gets re-resolved.
	// A fresh success still overwrites the cache row.
	Refresh bool
}

// Resolver orchestrates the ranked provider chain.
type Resolver struct {
	providers []provider.Provider
	store     Store
	ttl       time.Duration

	// Debugf receives operational telemetry (swallowed persistence errors,
	// per-adapter misses). Optional.
	Debugf func(format string, args ...any)

	now func() time.Time
}

// New creates a Resolver over a ranked provider chain.
func New(providers []provider.Provider, store Store, ttl time.Duration) *Resolver {
	return &Resolver{
		providers: providers,
		store:     store,
		ttl:       ttl,
		Debugf:    func(string, ...any) {},
		now:       time.Now,
	}
}

// Resolve runs the pipeline for one key.
//
// Side effects are exactly: one cache write on a direct success, one log
// write on any completed sweep, zero writes on a cache hit.
func (r *Resolver) Resolve(ctx context.Context, key media.ResolutionKey, opts Options) (*media.Result, error) {
	if opts.ForceProvider == "" && !opts.Refresh {
		if result := r.fromCache(key); result != nil {
			return result, nil
		}
	}

	run, err := r.selectProviders(opts)
	if err != nil {
		return nil, err
	}

	var proxyURL, proxyProvider string

	for _, p := range run {
		outcome := r.attempt(ctx, p, key)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch outcome.Status {
		case media.StatusFound:
			r.commit(key, p.ID(), outcome)
			return &media.Result{
				URL:        outcome.URL,
				Kind:       outcome.Kind,
				ProviderID: p.ID(),
			}, nil

		case media.StatusProxyFallback:
			// A direct hit from any later adapter beats any proxy; a forced
			// proxy is terminal.
			if opts.ForceProvider != "" {
				r.logProxy(key, p.ID(), outcome.EmbedURL)
				return &media.Result{
					URL:        outcome.EmbedURL,
					Kind:       media.EmbeddedProxy,
					ProviderID: p.ID(),
				}, nil
			}
			if proxyURL == "" {
				proxyURL = outcome.EmbedURL
				proxyProvider = p.ID()
			}

		default:
			r.Debugf("provider %s: no stream for %s", p.ID(), key)
		}
	}

	if proxyURL != "" {
		r.logProxy(key, proxyProvider, proxyURL)
		return &media.Result{
			URL:        proxyURL,
			Kind:       media.EmbeddedProxy,
			ProviderID: proxyProvider,
		}, nil
	}

	// Total exhaustion: terminal null result, plus a synthesized embed the
	// consumer can still drive the interception fallback against.
	message := fmt.Sprintf("no provider yielded a stream for %s", key)
	r.logFailure(key, message)

	result := &media.Result{
		ProviderID: "none",
		Message:    message,
	}
	if len(r.providers) > 0 {
		result.FallbackEmbed = r.providers[0].EmbedURL(key)
	}
	return result, nil
}

// fromCache returns a cached result when a fresh entry exists. No network
// calls happen on a hit.
func (r *Resolver) fromCache(key media.ResolutionKey) *media.Result {
	entry, err := r.store.Lookup(key)
	if err != nil {
		r.Debugf("cache lookup failed for %s: %v", key, err)
		return nil
	}
	if entry == nil || !entry.Fresh(r.now()) {
		return nil
	}
	return &media.Result{
		URL:        entry.URL,
		Kind:       entry.Kind,
		ProviderID: entry.ProviderID,
		WasCached:  true,
	}
}

// selectProviders applies force/skip overrides to the ranked chain.
func (r *Resolver) selectProviders(opts Options) ([]provider.Provider, error) {
	if opts.ForceProvider != "" {
		for _, p := range r.providers {
			if p.ID() == opts.ForceProvider {
				return []provider.Provider{p}, nil
			}
		}
		return nil, fmt.Errorf("unknown provider %q", opts.ForceProvider)
	}

	var run []provider.Provider
	for _, p := range r.providers {
		if slices.Contains(opts.SkipProviders, p.ID()) {
			continue
		}
		run = append(run, p)
	}
	return run, nil
}

// attempt runs one adapter under its own deadline. The deadline cancels the
// adapter's context, aborting its in-flight requests; a straggler's eventual
// result is discarded either way.
func (r *Resolver) attempt(ctx context.Context, p provider.Provider, key media.ResolutionKey) media.Outcome {
	actx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	done := make(chan media.Outcome, 1)
	go func() {
		outcome, err := p.Resolve(actx, key)
		if err != nil {
			r.Debugf("provider %s: %v", p.ID(), err)
			done <- media.NotFound()
			return
		}
		done <- outcome
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-actx.Done():
		r.Debugf("provider %s: deadline %s elapsed", p.ID(), p.Timeout())
		return media.NotFound()
	}
}

// commit persists a direct success: overwrite the cache row, append a
// success log entry. Failures here never reach the caller.
func (r *Resolver) commit(key media.ResolutionKey, providerID string, outcome media.Outcome) {
	now := r.now()
	err := r.store.Put(media.CacheEntry{
		Key:        key,
		URL:        outcome.URL,
		Kind:       outcome.Kind,
		ProviderID: providerID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	})
	if err != nil {
		r.Debugf("cache write failed for %s: %v", key, err)
	}

	err = r.store.AppendLog(media.LogEntry{
		Key:        key,
		ProviderID: providerID,
		Success:    true,
		URL:        outcome.URL,
		CreatedAt:  now,
	})
	if err != nil {
		r.Debugf("log write failed for %s: %v", key, err)
	}
}

func (r *Resolver) logProxy(key media.ResolutionKey, providerID, embedURL string) {
	err := r.store.AppendLog(media.LogEntry{
		Key:        key,
		ProviderID: providerID,
		Success:    true,
		URL:        embedURL,
		CreatedAt:  r.now(),
	})
	if err != nil {
		r.Debugf("log write failed for %s: %v", key, err)
	}
}

func (r *Resolver) logFailure(key media.ResolutionKey, message string) {
	err := r.store.AppendLog(media.LogEntry{
		Key:          key,
		ProviderID:   "all",
		Success:      false,
		ErrorMessage: message,
		CreatedAt:    r.now(),
	})
	if err != nil {
		r.Debugf("log write failed for %s: %v", key, err)
	}
}
