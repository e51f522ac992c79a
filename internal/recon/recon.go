// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/identity"
	"github.com/wavvs/aadrecon/internal/models"
)

type TenantLookup interface {
	ResolveTenantID(ctx context.Context, domain string) (*identity.Tenant, error)
	CheckDesktopSSO(ctx context.Context, domain string) (bool, error)
	ClassifyRealm(ctx context.Context, domain string) (*identity.Realm, error)
	EnumerateTenantDomains(ctx context.Context, domain string) ([]string, error)
}

type DomainProber interface {
	Probe(ctx context.Context, domains []string) (map[string]*models.DomainRecord, error)
}

type RegistrarLookup interface {
	Lookup(ctx context.Context, domain string) *models.RegistrarInfo
}

type Summary struct {
	Inputs  int `json:"inputs"`
	Tenants int `json:"tenants"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
	Probed  int `json:"probed"`
}

// Runner walks input domains one at a time and writes one JSON line per tenant found.
// A Runner keeps its seen sets across calls to Run and is not safe for concurrent use.
type Runner struct {
	identity  TenantLookup
	prober    DomainProber
	registrar RegistrarLookup
	out       *json.Encoder

	roots  map[string]struct{}
	probed map[string]struct{}
}

type Option func(*Runner)

// WithRegistrar attaches registrar details to every tenant line.
func WithRegistrar(r RegistrarLookup) Option {
	return func(rn *Runner) { rn.registrar = r }
}

func New(id TenantLookup, p DomainProber, w io.Writer, opts ...Option) *Runner {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	r := &Runner{
		identity: id,
		prober:   p,
		out:      enc,
		roots:    make(map[string]struct{}),
		probed:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type outcome int

const (
	outcomeTenant outcome = iota
	outcomeError
	outcomeSkipped
)

// Run processes domains in order. It returns early with ctx.Err() on cancellation; a tenant
// interrupted mid-way is not written.
func (r *Runner) Run(ctx context.Context, domains []string) (Summary, error) {
	var sum Summary
	for _, raw := range domains {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		sum.Inputs++

		rec, oc, err := r.process(ctx, raw)
		if err != nil {
			return sum, err
		}
		switch oc {
		case outcomeSkipped:
			sum.Skipped++
			continue
		case outcomeError:
			sum.Errors++
		case outcomeTenant:
			sum.Tenants++
			sum.Probed += len(rec.Domains)
		}
		if err := r.out.Encode(rec); err != nil {
			return sum, fmt.Errorf("writing result for %s: %w", rec.Domain, err)
		}
	}
	return sum, nil
}

func (r *Runner) process(ctx context.Context, raw string) (*models.TenantRecord, outcome, error) {
	domain, err := dnsclient.Normalize(raw)
	if err != nil {
		return models.TenantError(raw, err.Error()), outcomeError, nil
	}
	if r.seen(domain) {
		slog.Debug("Skipping domain already covered", "domain", domain)
		return nil, outcomeSkipped, nil
	}
	r.roots[domain] = struct{}{}

	fail := func(step string, err error) (*models.TenantRecord, outcome, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, outcomeError, ctxErr
		}
		slog.Warn("Tenant lookup failed", "domain", domain, "step", step, "error", err)
		return models.TenantError(domain, err.Error()), outcomeError, nil
	}

	tenant, err := r.identity.ResolveTenantID(ctx, domain)
	if err != nil {
		return fail("tenant_id", err)
	}
	if tenant.ID == "" {
		slog.Debug("No tenant for domain", "domain", domain)
		return nil, outcomeSkipped, nil
	}

	rec := models.NewTenantRecord(domain)
	rec.TenantID = tenant.ID
	rec.TenantRegion = tenant.RegionScope

	if rec.DesktopSSO, err = r.identity.CheckDesktopSSO(ctx, domain); err != nil {
		return fail("desktop_sso", err)
	}

	realm, err := r.identity.ClassifyRealm(ctx, domain)
	if err != nil {
		return fail("realm", err)
	}
	rec.TenantBrand = realm.FederationBrandName

	members, err := r.identity.EnumerateTenantDomains(ctx, domain)
	if err != nil {
		return fail("tenant_domains", err)
	}

	if r.registrar != nil {
		rec.Registrar = r.registrar.Lookup(ctx, domain)
	}

	pending := make([]string, 0, len(members))
	for _, m := range members {
		if _, done := r.probed[dnsclient.CanonicalName(m)]; !done {
			pending = append(pending, m)
		}
	}

	records, err := r.prober.Probe(ctx, pending)
	if err != nil {
		return nil, outcomeError, err
	}
	for k, v := range records {
		rec.Domains[k] = v
	}
	for _, m := range members {
		r.probed[dnsclient.CanonicalName(m)] = struct{}{}
	}

	slog.Info("Tenant resolved",
		"domain", domain,
		"tenant_id", rec.TenantID,
		"members", len(members),
		"probed", len(records),
	)
	return rec, outcomeTenant, nil
}

func (r *Runner) seen(domain string) bool {
	if _, ok := r.roots[domain]; ok {
		return true
	}
	_, ok := r.probed[domain]
	return ok
}
