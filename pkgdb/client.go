package pkgdb

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"pyresolve/artifact"
	"pyresolve/pepmarker"
	"pyresolve/pepver"
)

// Database is a read-only view of a PEP 503/691 package index, fronted by an
// http.Client whose Transport is normally an *httpcache.Transport so that
// repeated lookups reuse cached index pages and metadata documents.
type Database struct {
	HTTPClient *http.Client
	BaseURL    *url.URL // e.g. https://pypi.org/simple/
	Logger     *log.Logger
}

func (d *Database) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d *Database) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// projectURL returns the index URL for a project's page, using its
// PEP 503 canonical name.
func (d *Database) projectURL(name string) *url.URL {
	u := *d.BaseURL
	u.Path = path.Join(u.Path, pepmarker.CanonName(name)) + "/"
	return &u
}

// fetchIndex retrieves and parses the project page for name, dispatching on
// the response's Content-Type between the HTML (PEP 503) and JSON (PEP 691)
// representations.
func (d *Database) fetchIndex(ctx context.Context, name string) ([]ArtifactRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.projectURL(name).String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json, text/html;q=0.9")
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("pkgdb: fetching index for %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, indexErrorf("no project named %q on the index", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, indexErrorf("unexpected status %s fetching index for %s", resp.Status, name)
	}

	contentType := resp.Header.Get("Content-Type")
	base := resp.Request.URL
	switch {
	case strings.Contains(contentType, "application/vnd.pypi.simple.v1+json"):
		return ParseJSONIndex(resp.Body, base)
	default:
		return ParseHTMLIndex(resp.Body, base)
	}
}

// artifactName classifies a filename as a wheel, sdist, or interpreter
// bundle and extracts its version, tolerating files the resolver has no use
// for (signatures, stray non-artifact links) by skipping them.
func artifactName(canonName, filename string) (*artifact.Name, bool) {
	switch {
	case strings.HasSuffix(filename, ".whl"):
		n, err := artifact.ParseWheelName(filename)
		return n, err == nil
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"), strings.HasSuffix(filename, ".zip"):
		n, err := artifact.ParseSdistName(canonName, filename)
		return n, err == nil
	case strings.HasSuffix(filename, ".pybundle"):
		n, err := artifact.ParsePyBundleName(filename)
		return n, err == nil
	default:
		return nil, false
	}
}

// AvailableVersions returns every version of name for which the index lists
// at least one usable artifact, sorted descending per §4.1.
func (d *Database) AvailableVersions(ctx context.Context, name string) ([]*pepver.Version, error) {
	refs, err := d.fetchIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	canonName := pepmarker.CanonName(name)
	seen := map[string]*pepver.Version{}
	for _, ref := range refs {
		n, ok := artifactName(canonName, ref.Filename)
		if !ok {
			continue
		}
		seen[n.Version.String()] = n.Version
	}
	versions := make([]*pepver.Version, 0, len(seen))
	for _, v := range seen {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return pepver.Compare(versions[i], versions[j]) > 0
	})
	return versions, nil
}

// Artifacts returns every artifact listed for (name, version).
func (d *Database) Artifacts(ctx context.Context, name string, version *pepver.Version) ([]ArtifactRef, error) {
	refs, err := d.fetchIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	canonName := pepmarker.CanonName(name)
	var matches []ArtifactRef
	for _, ref := range refs {
		n, ok := artifactName(canonName, ref.Filename)
		if !ok {
			continue
		}
		if pepver.Compare(n.Version, version) == 0 {
			matches = append(matches, ref)
		}
	}
	return matches, nil
}

// Yanked reports whether the index marks version as yanked (PEP 592):
// true if any artifact listed for it carries the yanked flag, along with
// the first reason given.
func (d *Database) Yanked(ctx context.Context, name string, version *pepver.Version) (bool, string, error) {
	refs, err := d.Artifacts(ctx, name, version)
	if err != nil {
		return false, "", err
	}
	for _, ref := range refs {
		if ref.Yanked {
			return true, ref.YankedReason, nil
		}
	}
	return false, "", nil
}

// Metadata fetches and parses the core metadata for (name, version),
// preferring a PEP 658/691 sidecar document when the index advertises one
// and falling back to extracting METADATA/PKG-INFO from the artifact itself.
func (d *Database) Metadata(ctx context.Context, name string, version *pepver.Version) (*CoreMetadata, error) {
	refs, err := d.Artifacts(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, indexErrorf("no artifacts for %s %s", name, version)
	}

	// Prefer a wheel: its METADATA file is a fixed, predictable archive
	// member, unlike an sdist which may require a build backend (§6).
	var chosen *ArtifactRef
	for i := range refs {
		if strings.HasSuffix(refs[i].Filename, ".whl") {
			chosen = &refs[i]
			break
		}
	}
	if chosen == nil {
		chosen = &refs[0]
	}

	if chosen.DistInfoMetadata.Available {
		md, err := d.fetchSidecarMetadata(ctx, chosen)
		if err == nil {
			return md, nil
		}
		d.logger().Printf("pkgdb: sidecar metadata for %s failed, falling back to artifact: %v", chosen.Filename, err)
	}
	return d.fetchArtifactMetadata(ctx, chosen)
}

func (d *Database) fetchSidecarMetadata(ctx context.Context, ref *ArtifactRef) (*CoreMetadata, error) {
	metadataURL := *ref.URL
	metadataURL.Path += ".metadata"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, indexErrorf("unexpected status %s fetching metadata sidecar", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := verifyHashes(body, ref.DistInfoMetadata.Hashes); err != nil {
		return nil, err
	}
	return ParseCoreMetadata(string(body), d.logger())
}

func (d *Database) fetchArtifactMetadata(ctx context.Context, ref *ArtifactRef) (*CoreMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, indexErrorf("unexpected status %s fetching %s", resp.Status, ref.Filename)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := verifyHashes(body, ref.Hashes); err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(ref.Filename, ".whl"):
		return extractWheelMetadata(body, d.logger())
	case strings.HasSuffix(ref.Filename, ".tar.gz"), strings.HasSuffix(ref.Filename, ".tgz"):
		return extractSdistMetadata(ref.Filename, body, d.logger())
	default:
		return nil, indexErrorf("don't know how to extract metadata from %q", ref.Filename)
	}
}

// extractWheelMetadata streams the .dist-info/METADATA member out of a wheel
// zip archive, the same traversal the teacher uses for wheel metadata.
func extractWheelMetadata(body []byte, logger *log.Logger) (*CoreMetadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("pkgdb: opening wheel: %w", err)
	}
	for _, f := range zr.File {
		dir, name, ok := strings.Cut(f.Name, "/")
		if !ok || !strings.HasSuffix(dir, ".dist-info") || name != "METADATA" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return ParseCoreMetadata(string(data), logger)
	}
	return nil, indexErrorf("wheel has no .dist-info/METADATA member")
}

// extractSdistMetadata streams the root-level PKG-INFO member out of a
// gzipped tarball, mirroring the teacher's walkTarFiles traversal.
func extractSdistMetadata(filename string, body []byte, logger *log.Logger) (*CoreMetadata, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pkgdb: opening sdist: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		_, name, ok := strings.Cut(h.Name, "/")
		if !ok || name != "PKG-INFO" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		md, err := ParseCoreMetadata(string(data), logger)
		if err != nil {
			return nil, err
		}
		if !md.TrustedSdistMetadata() {
			return md, indexErrorf("%s: sdist metadata is not trustworthy (Metadata-Version %s, Dynamic %v)", filename, md.MetadataVersion, md.Dynamic)
		}
		return md, nil
	}
	return nil, indexErrorf("sdist has no top-level PKG-INFO")
}
