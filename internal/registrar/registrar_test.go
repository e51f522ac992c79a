package registrar

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verisignResponse = `   Domain Name: CONTOSO.COM
   Registry Domain ID: 1234567_DOMAIN_COM-VRSN
   Registrar WHOIS Server: whois.markmonitor.com
   Registrar URL: http://www.markmonitor.com
   Updated Date: 2023-08-08T20:30:08Z
   Creation Date: 1991-05-01T04:00:00Z
   Registry Expiry Date: 2027-05-02T04:00:00Z
   Registrar: MarkMonitor Inc.
   Registrar IANA ID: 292
   Registrar Abuse Contact Email: abusecomplaints@markmonitor.com
   Registrar Abuse Contact Phone: +1.2086851750
   Domain Status: clientDeleteProhibited https://icann.org/epp#clientDeleteProhibited
   Name Server: NS1-39.AZURE-DNS.COM
   Name Server: NS2-39.AZURE-DNS.NET
   DNSSEC: unsigned
`

func TestParse(t *testing.T) {
	info := Parse("contoso.com", verisignResponse)
	assert.Empty(t, info.Error)
	assert.Equal(t, "contoso.com", info.Domain)
	assert.Equal(t, "MarkMonitor Inc.", info.Name)
	assert.Contains(t, info.Created, "1991")
	assert.Contains(t, info.Expires, "2027")
}

func TestParse_NotFound(t *testing.T) {
	info := Parse("nope-nope.com", "No match for \"NOPE-NOPE.COM\".\r\n>>> Last update of whois database: 2026-01-01T00:00:00Z <<<\r\n")
	assert.NotEmpty(t, info.Error)
	assert.Empty(t, info.Name)
}

func TestLookup_UsesRegistrableDomainAndCaches(t *testing.T) {
	var calls atomic.Int32
	var asked atomic.Value
	r := New(time.Second, WithLookup(func(domain string) (string, error) {
		calls.Add(1)
		asked.Store(domain)
		return verisignResponse, nil
	}))

	first := r.Lookup(context.Background(), "mail.contoso.com")
	second := r.Lookup(context.Background(), "Contoso.com.")

	assert.Equal(t, "contoso.com", asked.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "MarkMonitor Inc.", first.Name)
	assert.Same(t, first, second)
}

func TestLookup_TransportError(t *testing.T) {
	r := New(time.Second, WithLookup(func(string) (string, error) {
		return "", errors.New("connection refused")
	}))

	info := r.Lookup(context.Background(), "contoso.com")
	assert.Equal(t, "contoso.com", info.Domain)
	assert.Equal(t, "connection refused", info.Error)
}

func TestLookup_PublicSuffixOnly(t *testing.T) {
	r := New(time.Second, WithLookup(func(string) (string, error) {
		t.Error("lookup must not run for a bare suffix")
		return "", nil
	}))

	info := r.Lookup(context.Background(), "co.uk")
	assert.NotEmpty(t, info.Error)
}

func TestLookup_CanceledIsNotCached(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r := New(time.Second, WithLookup(func(string) (string, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return verisignResponse, nil
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	info := r.Lookup(ctx, "contoso.com")
	require.NotEmpty(t, info.Error)

	again := r.Lookup(context.Background(), "contoso.com")
	assert.Empty(t, again.Error)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookup_CanceledReturnsWhileWHOISRuns(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	r := New(time.Second, WithLookup(func(string) (string, error) {
		defer close(finished)
		<-release
		return verisignResponse, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	info := r.Lookup(ctx, "contoso.com")
	assert.Equal(t, context.Canceled.Error(), info.Error)

	select {
	case <-finished:
		t.Fatal("WHOIS call finished before it was released")
	default:
	}
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("background WHOIS call did not exit")
	}
}
