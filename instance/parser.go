package instance

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/xbrl/cache"
	"github.com/sells-group/xbrl/linkbase"
	"github.com/sells-group/xbrl/taxonomy"
	"github.com/sells-group/xbrl/xmltree"
)

// Options tunes instance parsing.
type Options struct {
	// LenientTransforms degrades transform and numeric-parse failures on a
	// fact to warnings, keeping the display text.
	LenientTransforms bool
}

// Parser is the library entry point: it owns a cache and parses instances,
// taxonomies, and linkbases through it. A Parser is safe for concurrent use;
// each parse call builds its own graph.
type Parser struct {
	cache *cache.Cache
	opts  Options
}

// NewParser creates a Parser over the given cache. The cache is required;
// use cache.NewEphemeral for throwaway parses.
func NewParser(c *cache.Cache, opts Options) (*Parser, error) {
	if c == nil {
		return nil, eris.New("instance: nil cache")
	}
	return &Parser{cache: c, opts: opts}, nil
}

// Cache returns the parser's cache.
func (p *Parser) Cache() *cache.Cache { return p.cache }

// ParseInstance parses an XBRL or Inline XBRL instance from a URL or local
// path, autodetecting the format from the content.
func (p *Parser) ParseInstance(ctx context.Context, uri string) (*Instance, error) {
	var path string
	if isRemote(uri) {
		var err error
		path, err = p.cache.Get(ctx, uri)
		if err != nil {
			return nil, err
		}
	} else {
		path = uri
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "instance: read %s", path)
	}
	return p.parseBytes(ctx, data, uri)
}

// ParseInstanceLocally parses an instance file already on disk; relative
// schema references resolve against the file's directory, so a cache-warmed
// filing parses without any network request.
func (p *Parser) ParseInstanceLocally(ctx context.Context, path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "instance: read %s", path)
	}
	return p.parseBytes(ctx, data, path)
}

// ParseTaxonomy resolves the DTS from an entry-point schema URL or path.
func (p *Parser) ParseTaxonomy(ctx context.Context, url string) (*taxonomy.DTS, error) {
	return taxonomy.Resolve(ctx, p.cache, url)
}

// ParseLinkbase parses a single linkbase; hint may be linkbase.Generic to
// guess the type from the filename.
func (p *Parser) ParseLinkbase(ctx context.Context, url string, hint linkbase.Type) (*linkbase.Linkbase, error) {
	return taxonomy.ParseLinkbaseURL(ctx, p.cache, url, hint)
}

func (p *Parser) parseBytes(ctx context.Context, data []byte, sourceURL string) (*Instance, error) {
	if looksLikeHTML(data) {
		return parseIXBRL(ctx, data, sourceURL, p.cache, p.opts)
	}

	doc, err := xmltree.Parse(bytes.NewReader(data), sourceURL)
	if err != nil {
		return nil, err
	}

	schemaRef := doc.Root.Find(NSLink, "schemaRef")
	if schemaRef == nil {
		return nil, &ValidationError{URL: sourceURL, Message: "no link:schemaRef found"}
	}
	href := schemaRef.Attr(NSXLink, "href")
	if href == "" {
		return nil, &ValidationError{URL: sourceURL, Message: "link:schemaRef without href"}
	}

	dts, err := taxonomy.Resolve(ctx, p.cache, xmltree.ResolveURI(sourceURL, href))
	if err != nil {
		return nil, err
	}
	return parseXBRL(ctx, doc, dts, p.opts)
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// looksLikeHTML sniffs the document format from the first bytes: iXBRL
// filings are HTML documents, classic instances are XML with an xbrl root.
func looksLikeHTML(data []byte) bool {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<!doctype html")) ||
		bytes.Contains(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("xmlns:ix="))
}
