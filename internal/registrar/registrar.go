package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/models"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

// LookupFunc returns the raw WHOIS text for domain.
type LookupFunc func(domain string) (string, error)

type Resolver struct {
	lookup    LookupFunc
	telemetry *telemetry.Registry

	mu    sync.Mutex
	cache map[string]*models.RegistrarInfo
}

type Option func(*Resolver)

func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) { r.lookup = fn }
}

func WithTelemetry(reg *telemetry.Registry) Option {
	return func(r *Resolver) { r.telemetry = reg }
}

func New(timeout time.Duration, opts ...Option) *Resolver {
	client := whois.NewClient().SetTimeout(timeout)
	r := &Resolver{
		lookup: func(domain string) (string, error) {
			return client.Whois(domain)
		},
		cache: make(map[string]*models.RegistrarInfo),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Lookup resolves the registrable domain of domain and reports its registrar. Failures are
// carried in the Error field; a nil result is never returned.
func (r *Resolver) Lookup(ctx context.Context, domain string) *models.RegistrarInfo {
	apex, err := publicsuffix.EffectiveTLDPlusOne(dnsclient.CanonicalName(domain))
	if err != nil {
		return &models.RegistrarInfo{Domain: domain, Error: err.Error()}
	}

	r.mu.Lock()
	if cached, ok := r.cache[apex]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	info := r.fetch(ctx, apex)
	if ctx.Err() == nil {
		r.mu.Lock()
		r.cache[apex] = info
		r.mu.Unlock()
	}
	return info
}

func (r *Resolver) fetch(ctx context.Context, apex string) *models.RegistrarInfo {
	start := time.Now()
	raw, err := r.query(ctx, apex)
	r.telemetry.Observe(telemetry.LookupRegistrar, start, err)
	if err != nil {
		slog.Debug("WHOIS lookup failed", "domain", apex, "error", err)
		return &models.RegistrarInfo{Domain: apex, Error: err.Error()}
	}
	return Parse(apex, raw)
}

// query runs the blocking WHOIS client under ctx. On cancellation it returns at once, but
// the WHOIS call keeps running in the background until the client timeout set in New
// elapses; done is buffered so that goroutine always exits.
func (r *Resolver) query(ctx context.Context, apex string) (string, error) {
	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := r.lookup(apex)
		done <- result{raw, err}
	}()

	select {
	case res := <-done:
		return res.raw, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Parse extracts registrar name and registration dates from raw WHOIS text.
func Parse(apex, raw string) *models.RegistrarInfo {
	info := &models.RegistrarInfo{Domain: apex}
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, whoisparser.ErrNotFoundDomain):
			info.Error = "domain not found in WHOIS"
		default:
			info.Error = fmt.Sprintf("parsing WHOIS response: %v", err)
		}
		return info
	}
	if parsed.Registrar != nil {
		info.Name = strings.TrimSpace(parsed.Registrar.Name)
	}
	if parsed.Domain != nil {
		info.Created = parsed.Domain.CreatedDate
		info.Expires = parsed.Domain.ExpirationDate
	}
	return info
}
