package pkgdb

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"
)

// jsonIndex mirrors the PEP 691 "application/vnd.pypi.simple.v1+json"
// response body for a single project.
type jsonIndex struct {
	Meta struct {
		APIVersion string `json:"api-version"`
	} `json:"meta"`
	Files []jsonFile `json:"files"`
}

type jsonFile struct {
	Filename         string            `json:"filename"`
	URL              string            `json:"url"`
	Hashes           map[string]string `json:"hashes"`
	RequiresPython   *string           `json:"requires-python"`
	DistInfoMetadata json.RawMessage   `json:"dist-info-metadata"`
	Yanked           json.RawMessage   `json:"yanked"`
}

// ParseJSONIndex parses a PEP 691 JSON project page.
func ParseJSONIndex(r io.Reader, base *url.URL) ([]ArtifactRef, error) {
	var idx jsonIndex
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, indexErrorf("parsing JSON index: %v", err)
	}
	if major, _, ok := strings.Cut(idx.Meta.APIVersion, "."); ok {
		if major != "1" {
			return nil, indexErrorf("unsupported simple API repository-version %q", idx.Meta.APIVersion)
		}
	}

	refs := make([]ArtifactRef, 0, len(idx.Files))
	for _, f := range idx.Files {
		resolved, err := base.Parse(f.URL)
		if err != nil {
			return nil, indexErrorf("resolving artifact URL %q: %v", f.URL, err)
		}
		ref := ArtifactRef{
			Filename: f.Filename,
			URL:      resolved,
			Hashes:   f.Hashes,
		}
		if f.RequiresPython != nil {
			ref.RequiresPython = *f.RequiresPython
		}
		ref.DistInfoMetadata = parseJSONDistInfoMetadata(f.DistInfoMetadata)
		ref.Yanked, ref.YankedReason = parseJSONYanked(f.Yanked)
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseJSONDistInfoMetadata handles the PEP 714/691 union type for
// dist-info-metadata: absent, a bare bool, or a map of algorithm->hash.
func parseJSONDistInfoMetadata(raw json.RawMessage) DistInfoMetadata {
	if len(raw) == 0 {
		return DistInfoMetadata{}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return DistInfoMetadata{Available: b}
	}
	var hashes map[string]string
	if err := json.Unmarshal(raw, &hashes); err == nil {
		return DistInfoMetadata{Available: true, Hashes: hashes}
	}
	return DistInfoMetadata{}
}

// parseJSONYanked handles the union type for yanked: absent/false, true, or
// a string giving the yank reason.
func parseJSONYanked(raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return false, ""
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, ""
	}
	var reason string
	if err := json.Unmarshal(raw, &reason); err == nil {
		return true, reason
	}
	return false, ""
}
