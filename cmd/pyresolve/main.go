/*
pyresolve resolves a set of PEP 508 requirements (plus, optionally, an
interpreter project) against a PyPI-style package index, fetches and
verifies the chosen artifacts into a local content-addressed store, and
prints the resulting blueprint.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"pyresolve/artifact"
	"pyresolve/config"
	"pyresolve/httpcache"
	"pyresolve/pepmarker"
	"pyresolve/pkgdb"
	"pyresolve/resolve"
	"pyresolve/store"
)

const usage = `Usage: pyresolve [flags] <requirement>...

Each <requirement> is a PEP 508 requirement string, e.g. "requests>=2.31".
`

func main() {
	log.SetFlags(0)

	configPath := flag.String("config", "", "path to a TOML configuration file")
	indexURL := flag.String("index", "", "package index base URL (overrides the config file)")
	cacheDir := flag.String("cache-dir", "", "HTTP cache directory (overrides the config file)")
	storeDir := flag.String("store-dir", "", "artifact store directory (overrides the config file)")
	pythonProject := flag.String("python-project", "", "name under which the index lists interpreter bundles; resolves @python when set")
	tagsFlag := flag.String("tags", "py3-none-any", "comma-separated python-abi-platform compatibility tags, most preferred first")
	prereleaseFlag := flag.String("prerelease", "", "comma-separated package names for which pre-release versions are admitted")
	unpackPython := flag.Bool("unpack-python", false, "extract the resolved interpreter bundle into the store")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 && *pythonProject == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if *indexURL != "" {
		cfg.IndexURL = *indexURL
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *storeDir != "" {
		cfg.StoreDir = *storeDir
	}
	if *prereleaseFlag != "" {
		cfg.PrereleaseAllowlist = append(cfg.PrereleaseAllowlist, strings.Split(*prereleaseFlag, ",")...)
	}

	tags, err := parseTags(*tagsFlag)
	if err != nil {
		log.Fatalf("Parsing -tags: %v", err)
	}

	reqs := make([]*pepmarker.Requirement, 0, flag.NArg())
	for _, arg := range flag.Args() {
		req, err := pepmarker.ParseRequirement(arg)
		if err != nil {
			log.Fatalf("Parsing requirement %q: %v", arg, err)
		}
		reqs = append(reqs, req)
	}

	db, client, err := newDatabase(cfg)
	if err != nil {
		log.Fatalf("Setting up package database: %v", err)
	}

	r := resolve.New(db, pepmarker.DefaultEnv(), tags)
	r.PythonProject = *pythonProject
	for _, name := range cfg.PrereleaseAllowlist {
		r.PrereleaseAllowlist[pepmarker.CanonName(name)] = true
	}

	ctx := context.Background()
	blueprint, err := r.Resolve(ctx, reqs)
	if err != nil {
		if ce, ok := err.(*resolve.ConflictError); ok {
			log.Fatalf("No solution:\n%v", ce)
		}
		log.Fatalf("Resolving: %v", err)
	}

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		log.Fatalf("Opening artifact store: %v", err)
	}
	if err := materialize(ctx, st, client, blueprint, *pythonProject, *unpackPython); err != nil {
		log.Fatalf("Materializing blueprint: %v", err)
	}
}

func newDatabase(cfg *config.Config) (*pkgdb.Database, *http.Client, error) {
	base, err := url.Parse(cfg.IndexURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing index URL %q: %w", cfg.IndexURL, err)
	}
	cache, err := httpcache.Open(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	transport := &httpcache.Transport{
		Cache:     cache,
		Transport: &http.Transport{MaxIdleConnsPerHost: cfg.Concurrency},
	}
	client := &http.Client{Transport: transport, Timeout: cfg.NetworkTimeout}
	return &pkgdb.Database{HTTPClient: client, BaseURL: base, Logger: log.Default()}, client, nil
}

// parseTags parses a comma-separated list of "python-abi-platform"
// compatibility triples into a Preference, most preferred first.
func parseTags(s string) (artifact.Preference, error) {
	var pref artifact.Preference
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, "-", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("tag %q: want python-abi-platform", raw)
		}
		pref = append(pref, artifact.Tag{Python: parts[0], ABI: parts[1], Platform: parts[2]})
	}
	return pref, nil
}

// materialize fetches and verifies every pinned artifact into st, prints
// the resulting blueprint, and optionally unpacks the interpreter bundle.
func materialize(ctx context.Context, st *store.Store, client *http.Client, bp *resolve.Blueprint, pythonProject string, unpackPython bool) error {
	names := make([]string, 0, len(bp.Pins))
	for name := range bp.Pins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pin := bp.Pins[name]
		artifactURL := pin.Artifact.URL.String()
		hash, err := st.FetchOrBuild(ctx, client, artifactURL, pin.ContentHash)
		if err != nil {
			return fmt.Errorf("fetching %s %s: %w", name, pin.Version, err)
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", displayName(name), pin.Version, pin.Artifact.Filename, hash)
	}

	if unpackPython && pythonProject != "" {
		pin, ok := bp.Pins[resolve.PythonPackage]
		if !ok {
			return fmt.Errorf("blueprint has no %s pin to unpack", resolve.PythonPackage)
		}
		root, err := st.Unpack(pin.ContentHash, artifact.KindPyBundle)
		if err != nil {
			return fmt.Errorf("unpacking interpreter bundle: %w", err)
		}
		fmt.Printf("interpreter unpacked at %s\n", root)
	}
	return nil
}

func displayName(name string) string {
	if name == resolve.PythonPackage {
		return "python"
	}
	return name
}
