package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// symlinkMode is the Info-Zip convention for marking a zip entry as a
// symlink: the Unix file type bits, stored in the top 16 bits of
// ExternalAttrs, equal S_IFLNK.
const symlinkMode = 0xA000

// symlink is a zip entry whose body is a link target rather than file
// content, already validated against the rules in validateSymlinkTarget.
type symlink struct {
	source string // slash-separated path, relative to the unpack root
	target string // relative target, safe to pass to os.Symlink
}

// validateSymlinkTarget checks a candidate symlink per the interpreter
// bundle format's rules: the target must be a relative path, and it must
// not resolve outside the tree once joined to source's parent directory.
// Symlinks are resolved relative to their own parent, so they get one
// ".." for free; beyond that, each ".." in the target must be matched by
// a path component already present in source.
func validateSymlinkTarget(source string, targetBytes []byte) (string, error) {
	if source == "" || source == "." {
		return "", fmt.Errorf("symlink source can't be %q", source)
	}
	target := string(targetBytes)
	if path.IsAbs(target) || strings.HasPrefix(target, "/") {
		return "", fmt.Errorf("symlink %s: target %q must be a relative path", source, target)
	}

	depth := len(strings.Split(path.Clean(source), "/"))
	dotdots := 1

	var sanitized []string
	for _, c := range strings.Split(target, "/") {
		switch c {
		case "", ".":
			// skip
		case "..":
			if len(sanitized) > 0 && sanitized[len(sanitized)-1] != ".." {
				sanitized = sanitized[:len(sanitized)-1]
			} else {
				sanitized = append(sanitized, "..")
				dotdots++
			}
		default:
			sanitized = append(sanitized, c)
		}
	}
	if depth < dotdots {
		return "", fmt.Errorf("symlink %s -> %s escapes confinement", source, target)
	}
	if len(sanitized) == 0 {
		return ".", nil
	}
	return strings.Join(sanitized, "/"), nil
}

// UnpackBundle extracts a zip-format interpreter bundle into destDir,
// materialising symlinks per the Info-Zip convention after validating
// every one of them. Regular files are written with their archived
// permission bits; directories are created as needed. No entry may
// write outside destDir, and no symlink may appear under pybi-info/ or
// shadow a path used by another entry.
func UnpackBundle(r *zip.Reader, destDir string) error {
	var symlinks []symlink
	seen := make(map[string]bool, len(r.File))

	for _, f := range r.File {
		name := path.Clean(f.Name)
		if name == "." || strings.HasPrefix(name, "../") || name == ".." {
			return fmt.Errorf("unpack: entry %q escapes the bundle root", f.Name)
		}
		seen[name] = true

		mode := (f.ExternalAttrs >> 16) & 0xF000
		if mode == symlinkMode {
			if strings.HasPrefix(name, "pybi-info/") {
				return fmt.Errorf("unpack: symlink %q not permitted inside pybi-info/", name)
			}
			body, err := readZipFile(f)
			if err != nil {
				return fmt.Errorf("unpack: reading symlink target for %q: %w", name, err)
			}
			target, err := validateSymlinkTarget(name, body)
			if err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			symlinks = append(symlinks, symlink{source: name, target: target})
			continue
		}

		if strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(path.Join(destDir, name), 0o755); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			continue
		}
		if err := extractRegularFile(f, destDir, name); err != nil {
			return fmt.Errorf("unpack: %w", err)
		}
	}

	for _, s := range symlinks {
		for other := range seen {
			if other != s.source && strings.HasPrefix(other, s.source+"/") {
				return fmt.Errorf("unpack: symlink %q is a prefix of archive entry %q", s.source, other)
			}
		}
	}

	// Longest source path first. No archive entry lies beneath a symlink's
	// source path (that was rejected above), so nothing is created through
	// a symlink.
	sort.Slice(symlinks, func(i, j int) bool { return len(symlinks[i].source) > len(symlinks[j].source) })
	for _, s := range symlinks {
		full := path.Join(destDir, s.source)
		if err := os.MkdirAll(path.Dir(full), 0o755); err != nil {
			return fmt.Errorf("unpack: %w", err)
		}
		os.Remove(full)
		if err := os.Symlink(s.target, full); err != nil {
			return fmt.Errorf("unpack: symlinking %s -> %s: %w", s.source, s.target, err)
		}
	}
	return nil
}

func extractRegularFile(f *zip.File, destDir, name string) error {
	full := path.Join(destDir, name)
	if err := os.MkdirAll(path.Dir(full), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	w, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return err
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
