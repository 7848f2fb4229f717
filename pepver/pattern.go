package pepver

import "regexp"

// buildPattern compiles the PEP 440 version grammar. The group names and
// structure follow the canonical regular expression published with the
// standard (and vendored by pip's own packaging library); Go's RE2 engine
// requires each named group to be unique, which the reference pattern
// already satisfies.
func buildPattern() *regexp.Regexp {
	const pattern = `(?i)^v?` +
		`(?:(?P<epoch>[0-9]+)!)?` +
		`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
		`(?:[-_.]?(?P<pre_l>alpha|a|beta|b|preview|pre|c|rc)[-_.]?(?P<pre_n>[0-9]+)?)?` +
		`(?:(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
		`(?:[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
		`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`
	return regexp.MustCompile(pattern)
}
