// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package resolvers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wavvs/aadrecon/internal/dnsclient"
)

const maxListBytes = 4 << 20

var ErrEmptyList = errors.New("resolver list is empty")

type ProvisionOptions struct {
	Path string
	URL  string
	HTTP *dnsclient.HTTPClient
}

// Provision returns the resolver list cached at opts.Path, fetching and persisting it from
// opts.URL first when the file does not exist. There is no fallback list.
func Provision(ctx context.Context, opts ProvisionOptions) ([]string, error) {
	if _, err := os.Stat(opts.Path); errors.Is(err, fs.ErrNotExist) {
		slog.Info("Resolver list not cached, fetching", "url", opts.URL, "path", opts.Path)
		if err := fetch(ctx, opts); err != nil {
			return nil, fmt.Errorf("provisioning resolver list: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking resolver cache: %w", err)
	}

	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening resolver list: %w", err)
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", opts.Path, err)
	}
	slog.Debug("Resolver list loaded", "path", opts.Path, "count", len(list))
	return list, nil
}

func fetch(ctx context.Context, opts ProvisionOptions) error {
	if opts.HTTP == nil {
		return errors.New("no HTTP client configured")
	}
	resp, err := opts.HTTP.Get(ctx, opts.URL)
	if err != nil {
		return err
	}
	body, err := opts.HTTP.ReadBody(resp, maxListBytes)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, opts.URL)
	}
	if _, err := Parse(bytes.NewReader(body)); err != nil {
		return fmt.Errorf("downloaded list unusable: %w", err)
	}
	return writeAtomic(opts.Path, body)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".resolvers-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Parse reads one resolver per line, skipping blanks, comments and entries that are not IP
// addresses. Entries are returned as host:port.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, ok := normalize(line)
		if !ok {
			slog.Warn("Skipping invalid resolver entry", "line", lineNo, "entry", line)
			continue
		}
		out = append(out, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyList
	}
	return out, nil
}

func normalize(entry string) (string, bool) {
	if ip := net.ParseIP(entry); ip != nil {
		return net.JoinHostPort(ip.String(), "53"), true
	}
	host, port, err := net.SplitHostPort(entry)
	if err != nil || net.ParseIP(host) == nil || port == "" {
		return "", false
	}
	return net.JoinHostPort(host, port), true
}
