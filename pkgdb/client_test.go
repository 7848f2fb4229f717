package pkgdb

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"pyresolve/pepver"
)

func buildTestWheel(t *testing.T, metadata string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("example_pkg-1.0.dist-info/METADATA")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(metadata)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, indexBody, wheelBody []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/example-pkg/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(indexBody)
	})
	mux.HandleFunc("/packages/example_pkg-1.0-py3-none-any.whl", func(w http.ResponseWriter, r *http.Request) {
		w.Write(wheelBody)
	})
	return httptest.NewServer(mux)
}

func TestDatabaseAvailableVersionsAndMetadata(t *testing.T) {
	metadata := "Metadata-Version: 2.3\nName: example-pkg\nVersion: 1.0\nRequires-Dist: six\n"
	wheel := buildTestWheel(t, metadata)

	indexHTML := []byte(fmt.Sprintf(
		`<html><body><a href="/packages/example_pkg-1.0-py3-none-any.whl">example_pkg-1.0-py3-none-any.whl</a></body></html>`,
	))
	srv := newTestServer(t, indexHTML, wheel)
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/simple/")
	db := &Database{BaseURL: base}

	versions, err := db.AvailableVersions(context.Background(), "example-pkg")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0].String() != "1.0" {
		t.Fatalf("AvailableVersions = %v, want [1.0]", versions)
	}

	md, err := db.Metadata(context.Background(), "example-pkg", versions[0])
	if err != nil {
		t.Fatal(err)
	}
	if md.Name != "example-pkg" || len(md.Dependencies) != 1 || md.Dependencies[0].Name != "six" {
		t.Fatalf("Metadata = %+v", md)
	}
}

func TestDatabaseAvailableVersionsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/missing/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/simple/")
	db := &Database{BaseURL: base}
	if _, err := db.AvailableVersions(context.Background(), "missing"); err == nil {
		t.Error("expected an error for a 404 project page")
	}
}

func TestDatabaseArtifactsFiltersByVersion(t *testing.T) {
	indexHTML := []byte(`<html><body>
<a href="/packages/example_pkg-1.0-py3-none-any.whl">example_pkg-1.0-py3-none-any.whl</a>
<a href="/packages/example_pkg-2.0-py3-none-any.whl">example_pkg-2.0-py3-none-any.whl</a>
</body></html>`)
	srv := newTestServer(t, indexHTML, nil)
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/simple/")
	db := &Database{BaseURL: base}
	v, err := pepver.Parse("2.0")
	if err != nil {
		t.Fatal(err)
	}
	refs, err := db.Artifacts(context.Background(), "example-pkg", v)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Filename != "example_pkg-2.0-py3-none-any.whl" {
		t.Fatalf("Artifacts = %+v", refs)
	}
}

func TestDatabaseYanked(t *testing.T) {
	indexHTML := []byte(`<html><body>
<a href="/packages/example_pkg-1.0-py3-none-any.whl" data-yanked="broken build">example_pkg-1.0-py3-none-any.whl</a>
<a href="/packages/example_pkg-2.0-py3-none-any.whl">example_pkg-2.0-py3-none-any.whl</a>
</body></html>`)
	srv := newTestServer(t, indexHTML, nil)
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/simple/")
	db := &Database{BaseURL: base}

	v1, _ := pepver.Parse("1.0")
	yanked, reason, err := db.Yanked(context.Background(), "example-pkg", v1)
	if err != nil {
		t.Fatal(err)
	}
	if !yanked || reason != "broken build" {
		t.Errorf("Yanked(1.0) = %v %q, want true %q", yanked, reason, "broken build")
	}

	v2, _ := pepver.Parse("2.0")
	yanked, _, err = db.Yanked(context.Background(), "example-pkg", v2)
	if err != nil {
		t.Fatal(err)
	}
	if yanked {
		t.Error("Yanked(2.0) = true, want false")
	}
}
