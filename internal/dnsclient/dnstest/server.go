// Package dnstest runs an in-process authoritative-looking DNS server for tests.
package dnstest

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/phayes/freeport"
)

type Server struct {
	Addr string

	srv     *dns.Server
	mu      sync.RWMutex
	records map[string][]dns.RR
	rcodes  map[string]int
	delays  map[string]time.Duration
	queries map[string]int
}

// NewServer starts a UDP server on a free loopback port and stops it on test cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()

	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("dnstest: no free port: %v", err)
	}

	s := &Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		records: make(map[string][]dns.RR),
		rcodes:  make(map[string]int),
		delays:  make(map[string]time.Duration),
		queries: make(map[string]int),
	}

	started := make(chan struct{})
	s.srv = &dns.Server{
		Addr:              s.Addr,
		Net:               "udp",
		Handler:           dns.HandlerFunc(s.handle),
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-started:
	case err := <-errCh:
		t.Fatalf("dnstest: server failed to start: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("dnstest: server did not start")
	}

	t.Cleanup(func() { _ = s.srv.Shutdown() })
	return s
}

// AddRR registers records in zone-file syntax, e.g. "example.com. 300 IN MX 10 mx.example.com.".
func (s *Server) AddRR(t testing.TB, records ...string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		rr, err := dns.NewRR(rec)
		if err != nil {
			t.Fatalf("dnstest: bad record %q: %v", rec, err)
		}
		name := strings.ToLower(rr.Header().Name)
		s.records[name] = append(s.records[name], rr)
	}
}

// SetRcode makes every query for name answer with rcode.
func (s *Server) SetRcode(name string, rcode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcodes[strings.ToLower(dns.Fqdn(name))] = rcode
}

// SetDelay holds every answer for name back by d.
func (s *Server) SetDelay(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[strings.ToLower(dns.Fqdn(name))] = d
}

func (s *Server) Queries(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries[strings.ToLower(dns.Fqdn(name))]
}

func (s *Server) handle(w dns.ResponseWriter, r *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	if len(r.Question) == 0 {
		msg.SetRcode(r, dns.RcodeFormatError)
		_ = w.WriteMsg(msg)
		return
	}
	q := r.Question[0]
	name := strings.ToLower(q.Name)

	s.mu.Lock()
	s.queries[name]++
	delay := s.delays[name]
	rcode, hasRcode := s.rcodes[name]
	rrs, known := s.records[name]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	switch {
	case hasRcode:
		msg.SetRcode(r, rcode)
	case !known:
		msg.SetRcode(r, dns.RcodeNameError)
	default:
		for _, rr := range rrs {
			if rr.Header().Rrtype == q.Qtype {
				msg.Answer = append(msg.Answer, dns.Copy(rr))
			}
		}
	}
	_ = w.WriteMsg(msg)
}
