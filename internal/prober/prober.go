// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package prober

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/identity"
	"github.com/wavvs/aadrecon/internal/models"
	"github.com/wavvs/aadrecon/internal/posture"
)

type RealmClassifier interface {
	ClassifyRealm(ctx context.Context, domain string) (*identity.Realm, error)
}

type SignalChecker interface {
	Check(ctx context.Context, domain string) posture.Bundle
}

const DefaultThreads = 10

// Prober evaluates member domains on a bounded pool of workers.
type Prober struct {
	realms   RealmClassifier
	signals  SignalChecker
	threads  int
	progress func(domain string, rec *models.DomainRecord)
}

type Option func(*Prober)

// WithProgress registers fn to run on the collecting goroutine as each domain completes.
func WithProgress(fn func(domain string, rec *models.DomainRecord)) Option {
	return func(p *Prober) { p.progress = fn }
}

func New(realms RealmClassifier, signals SignalChecker, threads int, opts ...Option) *Prober {
	if threads <= 0 {
		threads = DefaultThreads
	}
	p := &Prober{realms: realms, signals: signals, threads: threads}
	for _, o := range opts {
		o(p)
	}
	return p
}

type namedRecord struct {
	domain string
	record *models.DomainRecord
}

// Probe evaluates every distinct domain with at most p.threads in flight and returns one
// record per domain, merged in completion order. If ctx ends first, the partial result is
// discarded and ctx.Err() is returned.
func (p *Prober) Probe(ctx context.Context, domains []string) (map[string]*models.DomainRecord, error) {
	keys := dedupe(domains)
	results := make(chan namedRecord, len(keys))

	var g errgroup.Group
	g.SetLimit(p.threads)

	go func() {
		for _, d := range keys {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- namedRecord{domain: d, record: p.probeOne(ctx, d)}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	out := make(map[string]*models.DomainRecord, len(keys))
	for nr := range results {
		out[nr.domain] = nr.record
		slog.Debug("Probed domain", "domain", nr.domain, "completed", len(out), "total", len(keys))
		if p.progress != nil {
			p.progress(nr.domain, nr.record)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Prober) probeOne(ctx context.Context, domain string) *models.DomainRecord {
	rec := &models.DomainRecord{}

	realm, err := p.realms.ClassifyRealm(ctx, domain)
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Type = realm.Namespace()
		rec.STS = realm.STSHost()
	}

	b := p.signals.Check(ctx, domain)
	rec.DNS = b.DNS
	rec.MX = b.MX
	rec.SPF = b.SPF
	rec.DMARC = b.DMARC
	return rec
}

// dedupe drops empty names and later spellings of a name already listed. The first
// spelling is kept as the record key.
func dedupe(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		key := dnsclient.CanonicalName(d)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
