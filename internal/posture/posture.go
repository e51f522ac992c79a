// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package posture

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/models"
	"github.com/wavvs/aadrecon/internal/providers"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

type Resolver interface {
	Resolve(ctx context.Context, name string, qtype uint16) (*dns.Msg, error)
}

// Bundle holds the four DNS signals for one domain.
type Bundle struct {
	DNS   models.Signal
	MX    models.Signal
	SPF   models.Signal
	DMARC models.Signal
}

type Checker struct {
	dns       Resolver
	telemetry *telemetry.Registry
}

type Option func(*Checker)

func WithTelemetry(r *telemetry.Registry) Option {
	return func(c *Checker) { c.telemetry = r }
}

func NewChecker(r Resolver, opts ...Option) *Checker {
	c := &Checker{dns: r}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check runs every signal in turn. Negative DNS outcomes (NXDOMAIN, no usable
// nameserver, lifetime exceeded) read as false; any other failure becomes an error payload.
func (c *Checker) Check(ctx context.Context, domain string) Bundle {
	return Bundle{
		DNS:   toSignal(c.HasDNS(ctx, domain)),
		MX:    toSignal(c.HasCloudMX(ctx, domain)),
		SPF:   toSignal(c.HasCloudSPF(ctx, domain)),
		DMARC: toSignal(c.HasDMARC(ctx, domain)),
	}
}

// HasDNS reports whether the name resolves at all. An empty answer still counts.
func (c *Checker) HasDNS(ctx context.Context, domain string) (bool, error) {
	if _, err := c.resolve(ctx, domain, dns.TypeA); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Checker) HasCloudMX(ctx context.Context, domain string) (bool, error) {
	msg, err := c.resolve(ctx, domain, dns.TypeMX)
	if err != nil {
		return false, err
	}
	for _, rr := range msg.Answer {
		if mx, ok := rr.(*dns.MX); ok && providers.IsCloudMX(mx.Mx) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) HasCloudSPF(ctx context.Context, domain string) (bool, error) {
	return c.anyTXT(ctx, domain, providers.IsCloudSPF)
}

func (c *Checker) HasDMARC(ctx context.Context, domain string) (bool, error) {
	return c.anyTXT(ctx, providers.DMARCPrefix+domain, providers.IsDMARC)
}

func (c *Checker) anyTXT(ctx context.Context, name string, match func(string) bool) (bool, error) {
	msg, err := c.resolve(ctx, name, dns.TypeTXT)
	if err != nil {
		return false, err
	}
	for _, rr := range msg.Answer {
		if txt, ok := rr.(*dns.TXT); ok && match(strings.Join(txt.Txt, "")) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) resolve(ctx context.Context, name string, qtype uint16) (msg *dns.Msg, err error) {
	start := time.Now()
	msg, err = c.dns.Resolve(ctx, name, qtype)
	if err != nil && dnsclient.IsNegative(err) {
		c.telemetry.Observe(telemetry.LookupDNS, start, nil)
	} else {
		c.telemetry.Observe(telemetry.LookupDNS, start, err)
	}
	return msg, err
}

func toSignal(ok bool, err error) models.Signal {
	switch {
	case err == nil:
		return models.SignalOf(ok)
	case dnsclient.IsNegative(err):
		return models.SignalOf(false)
	default:
		return models.SignalError(err.Error())
	}
}
