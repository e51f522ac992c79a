// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wavvs/aadrecon/internal/providers"
)

type Config struct {
	ResolversURL  string
	ResolversFile string
	DNSTimeout    time.Duration
	DNSLifetime   time.Duration
	HTTPTimeout   time.Duration
	UserAgent     string
	Threads       int
	AppVersion    string
}

const (
	defaultThreads     = 10
	defaultDNSTimeout  = 5 * time.Second
	defaultDNSLifetime = 30 * time.Second
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "aadrecon/1.0"
)

func Load() (*Config, error) {
	resolversURL := os.Getenv("AADRECON_RESOLVERS_URL")
	if resolversURL == "" {
		resolversURL = providers.ResolverListURL
	}

	resolversFile := os.Getenv("AADRECON_RESOLVERS_FILE")
	if resolversFile == "" {
		resolversFile = defaultResolversFile()
	}

	dnsTimeout, err := durationEnv("AADRECON_DNS_TIMEOUT", defaultDNSTimeout)
	if err != nil {
		return nil, err
	}
	dnsLifetime, err := durationEnv("AADRECON_DNS_LIFETIME", defaultDNSLifetime)
	if err != nil {
		return nil, err
	}
	if dnsLifetime < dnsTimeout {
		return nil, fmt.Errorf("AADRECON_DNS_LIFETIME (%s) must not be shorter than AADRECON_DNS_TIMEOUT (%s)", dnsLifetime, dnsTimeout)
	}
	httpTimeout, err := durationEnv("AADRECON_HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	threads := defaultThreads
	if v := os.Getenv("AADRECON_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("AADRECON_THREADS must be a positive integer, got %q", v)
		}
		threads = n
	}

	userAgent := os.Getenv("AADRECON_USER_AGENT")
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Config{
		ResolversURL:  resolversURL,
		ResolversFile: resolversFile,
		DNSTimeout:    dnsTimeout,
		DNSLifetime:   dnsLifetime,
		HTTPTimeout:   httpTimeout,
		UserAgent:     userAgent,
		Threads:       threads,
		AppVersion:    "1.0.0",
	}, nil
}

// durationEnv accepts Go duration strings ("5s") or a bare number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", key, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

func defaultResolversFile() string {
	exe, err := os.Executable()
	if err != nil {
		return providers.ResolverListFile
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), providers.ResolverListFile)
}
