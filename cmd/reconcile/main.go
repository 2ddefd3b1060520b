// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound-system/axon/internal/reconcile"
	"github.com/northbound-system/axon/internal/settings"
	"github.com/northbound-system/axon/internal/vectorstore"
)

var (
	domain           = flag.String("domain", "", "domain to reconcile (required)")
	seenFlag         = flag.String("seen", "", "comma-separated list of URLs currently seen; omit to read one per line from stdin")
	collection       = flag.String("collection", "web", "collection to delete stale points from")
	sourceCommand    = flag.String("source-command", "crawl", "source command scope for deletion")
	hardSync         = flag.Bool("hard-sync", false, "delete every tracked URL not in -seen immediately, bypassing the grace period")
	dryRun           = flag.Bool("dry-run", false, "report what would be deleted without writing state or deleting points")
	reconcileDir     = flag.String("reconcile-dir", "", "reconciliation state directory; defaults to <home>/reconcile")
	missingThreshold = flag.Int("missing-threshold", 0, "override the default consecutive-miss threshold")
	gracePeriod      = flag.Duration("grace-period", 0, "override the default grace period before a stale URL is deleted")
)

func main() {
	flag.Parse()
	if *domain == "" {
		fmt.Fprintln(os.Stderr, "usage: reconcile -domain example.com [-seen url1,url2,...] [-hard-sync] [-dry-run]")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file found, using environment variables: %v\n", err)
	}
	env := settings.LoadEnvOverrides()

	home := env.ConfigRoot
	if home == "" {
		h, err := settings.Home()
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve home directory: %v\n", err)
			os.Exit(1)
		}
		home = h
	}

	rDir := *reconcileDir
	if rDir == "" {
		rDir = filepath.Join(home, "reconcile")
	}

	store, err := reconcile.NewStore(rDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open reconciliation store at %s: %v\n", rDir, err)
		os.Exit(1)
	}

	seen, err := resolveSeen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve seen URLs: %v\n", err)
		os.Exit(1)
	}

	result, err := store.Reconcile(*domain, seen, reconcile.Options{
		HardSync:         *hardSync,
		DryRun:           *dryRun,
		MissingThreshold: *missingThreshold,
		GracePeriod:      *gracePeriod,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile %s: %v\n", *domain, err)
		os.Exit(1)
	}

	fmt.Printf("domain %s: tracked %d -> %d, seen %d, %d marked for deletion\n",
		*domain, result.TrackedBefore, result.TrackedAfter, result.Seen, len(result.URLsToDelete))
	for _, u := range result.URLsToDelete {
		fmt.Printf("  - %s\n", u)
	}

	if *dryRun || len(result.URLsToDelete) == 0 {
		return
	}

	conn, err := grpc.NewClient(env.VectorStoreURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial vector store at %s: %v\n", env.VectorStoreURL, err)
		os.Exit(1)
	}
	defer conn.Close()
	vstore := vectorstore.New(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, u := range result.URLsToDelete {
		if err := vstore.DeleteByUrlAndSourceCommand(ctx, *collection, u, *sourceCommand); err != nil {
			fmt.Fprintf(os.Stderr, "delete %s: %v\n", u, err)
			os.Exit(1)
		}
	}
	fmt.Printf("deleted %d stale point(s) from %q\n", len(result.URLsToDelete), *collection)
}

func resolveSeen() ([]string, error) {
	if *seenFlag != "" {
		parts := strings.Split(*seenFlag, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}

	info, err := os.Stdin.Stat()
	if err != nil || (info.Mode()&os.ModeCharDevice) != 0 {
		return nil, nil
	}

	var out []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}
