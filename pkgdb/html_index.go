package pkgdb

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTMLIndex parses a PEP 503 project page: an HTML document whose <a>
// elements, one per artifact, carry an href and optional data-requires-python,
// data-dist-info-metadata and data-yanked attributes. base resolves relative
// hrefs and is typically the final (post-redirect) request URL.
func ParseHTMLIndex(r io.Reader, base *url.URL) ([]ArtifactRef, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, indexErrorf("parsing HTML index: %v", err)
	}

	apiVersion := "1.0"
	var refs []ArtifactRef
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "name") == "pypi:repository-version" {
					if v := attr(n, "content"); v != "" {
						apiVersion = v
					}
				}
			case "a":
				if ref, ok := artifactFromAnchor(n, base); ok {
					refs = append(refs, ref)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if major, _, ok := strings.Cut(apiVersion, "."); ok {
		if n, err := strconv.Atoi(major); err == nil && n > 1 {
			return nil, indexErrorf("unsupported simple API repository-version %q", apiVersion)
		}
	}
	return refs, nil
}

func artifactFromAnchor(n *html.Node, base *url.URL) (ArtifactRef, bool) {
	href := attr(n, "href")
	if href == "" {
		return ArtifactRef{}, false
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return ArtifactRef{}, false
	}
	ref := ArtifactRef{
		Filename:       linkText(n),
		URL:            resolved,
		RequiresPython: attr(n, "data-requires-python"),
	}
	if ref.Filename == "" {
		ref.Filename = lastPathSegment(resolved.Path)
	}
	if h := resolved.Fragment; h != "" {
		ref.Hashes = hashesFromFragment(h)
	}
	if v, ok := attrOK(n, "data-dist-info-metadata"); ok {
		ref.DistInfoMetadata = distInfoMetadataFromAttr(v)
	}
	if v, ok := attrOK(n, "data-yanked"); ok {
		ref.Yanked = true
		ref.YankedReason = v
	}
	return ref, true
}

// distInfoMetadataFromAttr interprets data-dist-info-metadata, whose value is
// either "true" (sidecar present, no declared hash) or "sha256=<hex>" style
// hash pairs separated by spaces.
func distInfoMetadataFromAttr(v string) DistInfoMetadata {
	if v == "" || v == "true" {
		return DistInfoMetadata{Available: true}
	}
	if v == "false" {
		return DistInfoMetadata{}
	}
	hashes := map[string]string{}
	for _, pair := range strings.Fields(v) {
		algo, digest, ok := strings.Cut(pair, "=")
		if ok {
			hashes[algo] = digest
		}
	}
	return DistInfoMetadata{Available: true, Hashes: hashes}
}

func hashesFromFragment(fragment string) map[string]string {
	algo, digest, ok := strings.Cut(fragment, "=")
	if !ok {
		return nil
	}
	return map[string]string{algo: digest}
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func linkText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func lastPathSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
