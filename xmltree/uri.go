package xmltree

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ResolveURI resolves ref against base. base may be a URL or a local file
// path; an absolute ref is returned unchanged. For URL bases the resolution
// follows RFC 3986; for path bases the ref is joined onto the base directory.
func ResolveURI(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		bu, err := url.Parse(base)
		if err != nil {
			return ref
		}
		ru, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return bu.ResolveReference(ru).String()
	}

	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	dir := base
	if strings.Contains(filepath.Base(base), ".") {
		dir = filepath.Dir(base)
	}
	return filepath.Clean(filepath.Join(dir, ref))
}

// NormalizeURI reduces a URI to a comparison key: the scheme is dropped and
// every non-alphanumeric character removed, so http/https variants and
// path-separator differences compare equal. Regulator filings routinely
// reference one schema under both schemes.
func NormalizeURI(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		uri = uri[i+3:]
	}
	return nonAlnum.ReplaceAllString(uri, "")
}

// EqualURI reports whether two URIs are considered the same document.
func EqualURI(a, b string) bool {
	return NormalizeURI(a) == NormalizeURI(b)
}
