// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package resolvers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wavvs/aadrecon/internal/dnsclient"
)

func TestParse(t *testing.T) {
	in := "# comment\n8.8.8.8\n\n 1.1.1.1 \n9.9.9.9:5353\nnot-an-ip\n2001:4860:4860::8888\n"
	got, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"8.8.8.8:53", "1.1.1.1:53", "9.9.9.9:5353", "[2001:4860:4860::8888]:53"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader("# only comments\n\n"))
	if !errors.Is(err, ErrEmptyList) {
		t.Errorf("expected ErrEmptyList, got %v", err)
	}
}

func newListServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestProvision_FetchesAndPersistsOnFirstUse(t *testing.T) {
	srv, hits := newListServer(t, http.StatusOK, "8.8.8.8\n1.1.1.1\n")
	path := filepath.Join(t.TempDir(), "resolvers-actions.txt")
	opts := ProvisionOptions{Path: path, URL: srv.URL, HTTP: dnsclient.NewHTTPClient(5*time.Second, "test")}

	list, err := Provision(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 resolvers, got %v", list)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file to be written: %v", err)
	}

	if _, err := Provision(context.Background(), opts); err != nil {
		t.Fatalf("unexpected error on cached load: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("expected exactly one fetch, got %d", n)
	}
}

func TestProvision_UsesExistingCache(t *testing.T) {
	srv, hits := newListServer(t, http.StatusOK, "8.8.8.8\n")
	path := filepath.Join(t.TempDir(), "resolvers.txt")
	if err := os.WriteFile(path, []byte("9.9.9.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := Provision(context.Background(), ProvisionOptions{Path: path, URL: srv.URL, HTTP: dnsclient.NewHTTPClient(5*time.Second, "test")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0] != "9.9.9.9:53" {
		t.Errorf("expected cached resolver, got %v", list)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("expected no fetch, got %d", n)
	}
}

func TestProvision_FetchFailureIsFatal(t *testing.T) {
	srv, _ := newListServer(t, http.StatusNotFound, "404: Not Found")
	path := filepath.Join(t.TempDir(), "resolvers.txt")

	_, err := Provision(context.Background(), ProvisionOptions{Path: path, URL: srv.URL, HTTP: dnsclient.NewHTTPClient(5*time.Second, "test")})
	if err == nil {
		t.Fatal("expected error when resolver list cannot be fetched")
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("expected no cache file after failed fetch, stat err: %v", statErr)
	}
}

func TestProvision_RejectsUnusableDownload(t *testing.T) {
	srv, _ := newListServer(t, http.StatusOK, "<html>captive portal</html>\n")
	path := filepath.Join(t.TempDir(), "resolvers.txt")

	_, err := Provision(context.Background(), ProvisionOptions{Path: path, URL: srv.URL, HTTP: dnsclient.NewHTTPClient(5*time.Second, "test")})
	if err == nil {
		t.Fatal("expected error for a list without resolvers")
	}
}
