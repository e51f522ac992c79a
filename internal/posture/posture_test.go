// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package posture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/dnsclient/dnstest"
	"github.com/wavvs/aadrecon/internal/models"
	"github.com/wavvs/aadrecon/internal/posture"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

func newChecker(t *testing.T, srv *dnstest.Server, opts ...posture.Option) *posture.Checker {
	t.Helper()
	client, err := dnsclient.New([]string{srv.Addr}, dnsclient.WithTimeout(time.Second), dnsclient.WithLifetime(2*time.Second))
	require.NoError(t, err)
	return posture.NewChecker(client, opts...)
}

func TestCheck_MicrosoftHostedDomain(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddRR(t,
		"contoso.com. 300 IN A 192.0.2.10",
		"contoso.com. 300 IN MX 0 contoso-com.mail.protection.outlook.com.",
		`contoso.com. 300 IN TXT "v=spf1 include:spf.protection.outlook.com -all"`,
		`_dmarc.contoso.com. 300 IN TXT "v=DMARC1; p=reject"`,
	)

	got := newChecker(t, srv).Check(context.Background(), "contoso.com")
	assert.Equal(t, posture.Bundle{
		DNS:   models.SignalOf(true),
		MX:    models.SignalOf(true),
		SPF:   models.SignalOf(true),
		DMARC: models.SignalOf(true),
	}, got)
}

func TestCheck_ThirdPartyMail(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddRR(t,
		"fabrikam.com. 300 IN A 192.0.2.20",
		"fabrikam.com. 300 IN MX 10 aspmx.l.google.com.",
		`fabrikam.com. 300 IN TXT "v=spf1 include:_spf.google.com ~all"`,
		`_dmarc.fabrikam.com. 300 IN TXT "not a policy"`,
	)

	got := newChecker(t, srv).Check(context.Background(), "fabrikam.com")
	assert.Equal(t, models.SignalOf(true), got.DNS)
	assert.Equal(t, models.SignalOf(false), got.MX)
	assert.Equal(t, models.SignalOf(false), got.SPF)
	assert.Equal(t, models.SignalOf(false), got.DMARC)
}

func TestCheck_NXDomainIsFalse(t *testing.T) {
	srv := dnstest.NewServer(t)
	reg := telemetry.NewRegistry()

	got := newChecker(t, srv, posture.WithTelemetry(reg)).Check(context.Background(), "missing.example")
	assert.Equal(t, posture.Bundle{
		DNS:   models.SignalOf(false),
		MX:    models.SignalOf(false),
		SPF:   models.SignalOf(false),
		DMARC: models.SignalOf(false),
	}, got)

	stats := reg.GetStats(telemetry.LookupDNS)
	assert.Equal(t, int64(4), stats.SuccessCount)
	assert.Equal(t, int64(0), stats.FailureCount)
}

func TestHasDNS_EmptyAnswerStillResolves(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddRR(t, "mx-only.example. 300 IN MX 10 mail.mx-only.example.")

	ok, err := newChecker(t, srv).HasDNS(context.Background(), "mx-only.example")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasCloudSPF_SplitStrings(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddRR(t, `split.example. 300 IN TXT "v=spf1 include:spf.protection." "outlook.com -all"`)

	ok, err := newChecker(t, srv).HasCloudSPF(context.Background(), "split.example")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasCloudMX_CaseInsensitive(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddRR(t, "upper.example. 300 IN MX 0 UPPER-EXAMPLE.MAIL.PROTECTION.OUTLOOK.COM.")

	ok, err := newChecker(t, srv).HasCloudMX(context.Background(), "upper.example")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_ServerFailureIsNegative(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.SetRcode("broken.example", dns.RcodeServerFailure)
	srv.AddRR(t, `_dmarc.broken.example. 300 IN TXT "v=DMARC1; p=none"`)

	got := newChecker(t, srv).Check(context.Background(), "broken.example")
	assert.Equal(t, models.SignalOf(false), got.DNS)
	assert.Equal(t, models.SignalOf(true), got.DMARC)
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, string, uint16) (*dns.Msg, error) {
	return nil, f.err
}

func TestCheck_UnexpectedErrorBecomesPayload(t *testing.T) {
	reg := telemetry.NewRegistry()
	c := posture.NewChecker(failingResolver{err: errors.New("malformed response")}, posture.WithTelemetry(reg))

	got := c.Check(context.Background(), "contoso.com")
	for _, s := range []models.Signal{got.DNS, got.MX, got.SPF, got.DMARC} {
		assert.True(t, s.IsError())
		assert.Equal(t, "malformed response", s.Err)
	}
	assert.Equal(t, int64(4), reg.GetStats(telemetry.LookupDNS).FailureCount)
}

func TestCheck_NegativeSentinelFromResolver(t *testing.T) {
	c := posture.NewChecker(failingResolver{err: dnsclient.ErrLifetimeTimeout})

	got := c.Check(context.Background(), "slow.example")
	assert.Equal(t, models.SignalOf(false), got.MX)
	assert.False(t, got.DNS.IsError())
}
