// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/wavvs/aadrecon/internal/config"
	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/identity"
	"github.com/wavvs/aadrecon/internal/posture"
	"github.com/wavvs/aadrecon/internal/prober"
	"github.com/wavvs/aadrecon/internal/recon"
	"github.com/wavvs/aadrecon/internal/registrar"
	"github.com/wavvs/aadrecon/internal/resolvers"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("aadrecon failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "aadrecon",
		Usage:     "Azure AD reconnaissance as outsider",
		UsageText: "aadrecon [-d domain1,...,domainN | -f file | --stdin] [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "domains",
				Aliases: []string{"d"},
				Usage:   "Domains to search (domain1,...,domainN)",
			},
			&cli.PathFlag{
				Name:      "fdomains",
				Aliases:   []string{"f"},
				Usage:     "File with new-line delimited domains",
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "Read new-line delimited domains from standard input",
			},
			&cli.IntFlag{
				Name:    "threads",
				Aliases: []string{"t"},
				Usage:   "Concurrent member-domain probes per tenant",
				Value:   prober.DefaultThreads,
			},
			&cli.PathFlag{
				Name:      "resolvers",
				Aliases:   []string{"r"},
				Usage:     "Resolver list cache file (fetched on first use when missing)",
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:  "whois",
				Usage: "Attach registrar details to each tenant",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging on stderr",
			},
		},
		HideVersion: true,
		Action:      run,
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func run(c *cli.Context) error {
	setupLogging(c.Bool("verbose"))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var stdin io.Reader
	if c.Bool("stdin") {
		stdin = os.Stdin
	}
	domains, err := collectInputs(c.String("domains"), c.Path("fdomains"), stdin)
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("no input domains: use --domains, --fdomains or --stdin", 2)
	}

	threads := cfg.Threads
	if c.IsSet("threads") {
		threads = c.Int("threads")
	}
	if threads < 1 {
		return cli.Exit(fmt.Sprintf("--threads must be a positive integer, got %d", threads), 2)
	}

	resolversFile := cfg.ResolversFile
	if c.IsSet("resolvers") {
		resolversFile = c.Path("resolvers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := telemetry.NewRegistry()
	httpClient := dnsclient.NewHTTPClient(cfg.HTTPTimeout, cfg.UserAgent)

	list, err := resolvers.Provision(ctx, resolvers.ProvisionOptions{
		Path: resolversFile,
		URL:  cfg.ResolversURL,
		HTTP: httpClient,
	})
	if err != nil {
		return fmt.Errorf("provisioning resolvers: %w", err)
	}
	dnsClient, err := dnsclient.New(list,
		dnsclient.WithTimeout(cfg.DNSTimeout),
		dnsclient.WithLifetime(cfg.DNSLifetime),
	)
	if err != nil {
		return err
	}

	idClient := identity.New(cfg.HTTPTimeout, cfg.UserAgent,
		identity.WithHTTPClient(httpClient),
		identity.WithTelemetry(reg),
	)
	checker := posture.NewChecker(dnsClient, posture.WithTelemetry(reg))

	var opts []recon.Option
	if c.Bool("whois") {
		opts = append(opts, recon.WithRegistrar(registrar.New(cfg.HTTPTimeout, registrar.WithTelemetry(reg))))
	}
	runner := recon.New(idClient, prober.New(idClient, checker, threads), os.Stdout, opts...)

	slog.Info("Starting aadrecon",
		"version", cfg.AppVersion,
		"inputs", len(domains),
		"threads", threads,
		"resolvers", len(list),
	)

	sum, err := runner.Run(ctx, domains)
	reg.LogSummary()
	if errors.Is(err, context.Canceled) {
		slog.Warn("Interrupted", "tenants", sum.Tenants, "errors", sum.Errors)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Finished",
		"inputs", sum.Inputs,
		"tenants", sum.Tenants,
		"errors", sum.Errors,
		"skipped", sum.Skipped,
		"probed", sum.Probed,
	)
	return nil
}
