// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultLifetime = 30 * time.Second
)

// Failure conditions that posture checks treat as a negative answer rather than an error.
var (
	ErrNXDomain        = errors.New("the DNS query name does not exist")
	ErrNoNameservers   = errors.New("all nameservers failed to answer the query")
	ErrLifetimeTimeout = errors.New("the resolution lifetime expired")
)

// IsNegative reports whether err is NXDOMAIN, no usable nameserver, or a lifetime timeout.
func IsNegative(err error) bool {
	return errors.Is(err, ErrNXDomain) || errors.Is(err, ErrNoNameservers) || errors.Is(err, ErrLifetimeTimeout)
}

type Client struct {
	resolvers []string
	timeout   time.Duration
	lifetime  time.Duration
	next      atomic.Uint32
}

type Option func(*Client)

func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.timeout = t }
}

func WithLifetime(t time.Duration) Option {
	return func(c *Client) { c.lifetime = t }
}

// New binds a client to a fixed resolver list. Entries without a port get port 53.
func New(resolvers []string, opts ...Option) (*Client, error) {
	if len(resolvers) == 0 {
		return nil, errors.New("dnsclient: empty resolver list")
	}
	addrs := make([]string, 0, len(resolvers))
	for _, r := range resolvers {
		addrs = append(addrs, withPort(r))
	}
	c := &Client{
		resolvers: addrs,
		timeout:   defaultTimeout,
		lifetime:  defaultLifetime,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Resolvers() []string {
	out := make([]string, len(c.resolvers))
	copy(out, c.resolvers)
	return out
}

// Resolve sends one recursive query, walking the resolver list until a resolver gives a
// definitive answer. A NOERROR response with no matching records is returned as-is.
func (c *Client) Resolve(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		return nil, fmt.Errorf("invalid query name %q", name)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	lctx, cancel := context.WithTimeout(ctx, c.lifetime)
	defer cancel()

	n := len(c.resolvers)
	start := int(c.next.Add(1)-1) % n
	var lastErr error
	for i := 0; i < n; i++ {
		if lctx.Err() != nil {
			break
		}
		addr := c.resolvers[(start+i)%n]
		r, err := c.exchangeWithFallback(lctx, msg, addr)
		if err != nil {
			slog.Debug("DNS exchange failed", "resolver", addr, "name", name, "type", dns.TypeToString[qtype], "error", err)
			lastErr = err
			continue
		}
		switch r.Rcode {
		case dns.RcodeSuccess:
			return r, nil
		case dns.RcodeNameError:
			return nil, ErrNXDomain
		default:
			lastErr = fmt.Errorf("%s answered %s", addr, dns.RcodeToString[r.Rcode])
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lctx.Err() != nil {
		return nil, ErrLifetimeTimeout
	}
	return nil, fmt.Errorf("%w: %v", ErrNoNameservers, lastErr)
}

// exchangeWithFallback bounds each attempt by the per-query timeout; miekg/dns takes the
// context deadline over Client.Timeout when both are set.
func (c *Client) exchangeWithFallback(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := newDNSClient("udp", c.timeout)
	r, _, err := client.ExchangeContext(ctx, msg, addr)
	if err != nil {
		return nil, err
	}
	if !r.Truncated {
		return r, nil
	}

	slog.Debug("Truncated UDP answer, retrying over TCP", "resolver", addr)
	r, _, err = newDNSClient("tcp", c.timeout).ExchangeContext(ctx, msg, addr)
	return r, err
}

func newDNSClient(network string, timeout time.Duration) *dns.Client {
	return &dns.Client{
		Net:     network,
		Timeout: timeout,
	}
}

func withPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "53")
}
