// Package xmltree builds a namespace-aware element tree from XBRL documents.
//
// XBRL linkbases and instances carry QName values inside attribute text
// (substitutionGroup="xbrli:item", dimension="us-gaap:SegmentAxis"), so every
// element keeps the prefix map that was in scope where it was declared.
package xmltree

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// XMLNamespace is the namespace bound to the reserved "xml" prefix.
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
)

// QName is a namespace-qualified name.
type QName struct {
	Space string
	Local string
}

// String renders the QName in Clark notation for logs and error messages.
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Attr is a single attribute with a resolved qualified name.
type Attr struct {
	Name  QName
	Value string
}

// Element is one node of the parsed tree.
type Element struct {
	Name     QName
	Attrs    []Attr
	Children []*Element

	// Text is the concatenated character data directly inside the element,
	// in document order, excluding descendant text.
	Text string

	// Scope maps namespace prefixes to URIs as visible at this element.
	// The empty prefix holds the default namespace.
	Scope map[string]string

	Base string
	Lang string

	// SourceURL is the URL (or local path) the document was read from.
	SourceURL string
}

// Document is a parsed XML document.
type Document struct {
	Root      *Element
	SourceURL string
}

// WellFormednessError reports malformed XML input.
type WellFormednessError struct {
	SourceURL string
	Err       error
}

func (e *WellFormednessError) Error() string {
	return "xmltree: malformed document " + e.SourceURL + ": " + e.Err.Error()
}

func (e *WellFormednessError) Unwrap() error { return e.Err }

// Parse reads a complete XML document from r. sourceURL is recorded on every
// element for locator resolution and error reporting.
func Parse(r io.Reader, sourceURL string) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xmltree: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	// DTDs are not resolved and entities are not expanded beyond the
	// predefined five (security: no external entity fetches).
	dec.Strict = true
	dec.Entity = map[string]string{}

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &WellFormednessError{SourceURL: sourceURL, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var parent *Element
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			el := newElement(t, parent, sourceURL)
			if parent == nil {
				if root != nil {
					return nil, &WellFormednessError{SourceURL: sourceURL, Err: eris.New("multiple root elements")}
				}
				root = el
			} else {
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, &WellFormednessError{SourceURL: sourceURL, Err: eris.New("unbalanced end element")}
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, &WellFormednessError{SourceURL: sourceURL, Err: eris.New("no root element")}
	}
	if len(stack) != 0 {
		return nil, &WellFormednessError{SourceURL: sourceURL, Err: eris.New("unexpected end of document")}
	}
	return &Document{Root: root, SourceURL: sourceURL}, nil
}

// ParseFile reads and parses a local file.
func ParseFile(path, sourceURL string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xmltree: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if sourceURL == "" {
		sourceURL = path
	}
	return Parse(f, sourceURL)
}

func newElement(t xml.StartElement, parent *Element, sourceURL string) *Element {
	el := &Element{
		Name:      QName{Space: t.Name.Space, Local: t.Name.Local},
		SourceURL: sourceURL,
	}

	if parent != nil {
		el.Scope = parent.Scope
		el.Base = parent.Base
		el.Lang = parent.Lang
	}

	// Copy-on-write: only fork the scope when this element declares bindings.
	declares := false
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			declares = true
			break
		}
	}
	if declares || el.Scope == nil {
		scope := make(map[string]string, len(el.Scope)+2)
		for k, v := range el.Scope {
			scope[k] = v
		}
		scope["xml"] = XMLNamespace
		el.Scope = scope
	}

	for _, a := range t.Attr {
		switch {
		case a.Name.Space == "xmlns":
			el.Scope[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			el.Scope[""] = a.Value
		case isXMLAttr(a.Name.Space) && a.Name.Local == "base":
			el.Base = a.Value
			el.Attrs = append(el.Attrs, Attr{Name: QName{Space: XMLNamespace, Local: "base"}, Value: a.Value})
		case isXMLAttr(a.Name.Space) && a.Name.Local == "lang":
			el.Lang = a.Value
			el.Attrs = append(el.Attrs, Attr{Name: QName{Space: XMLNamespace, Local: "lang"}, Value: a.Value})
		case isXMLAttr(a.Name.Space):
			el.Attrs = append(el.Attrs, Attr{Name: QName{Space: XMLNamespace, Local: a.Name.Local}, Value: a.Value})
		default:
			el.Attrs = append(el.Attrs, Attr{Name: QName{Space: a.Name.Space, Local: a.Name.Local}, Value: a.Value})
		}
	}
	return el
}

func isXMLAttr(space string) bool {
	return space == "xml" || space == XMLNamespace
}

// Attr returns the value of the named attribute. Lookup is exact first; a
// case-insensitive pass on the local name covers elements reconstructed from
// HTML, where the parser lowercases names.
func (e *Element) Attr(space, local string) string {
	for _, a := range e.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	for _, a := range e.Attrs {
		if a.Name.Space == space && strings.EqualFold(a.Name.Local, local) {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the named attribute is present, even when empty.
func (e *Element) HasAttr(space, local string) bool {
	for _, a := range e.Attrs {
		if a.Name.Space == space && strings.EqualFold(a.Name.Local, local) {
			return true
		}
	}
	return false
}

// Find returns the first direct child with the given name, or nil.
func (e *Element) Find(space, local string) *Element {
	for _, c := range e.Children {
		if c.Name.Space == space && strings.EqualFold(c.Name.Local, local) {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given name.
func (e *Element) FindAll(space, local string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Space == space && strings.EqualFold(c.Name.Local, local) {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits e and every descendant in document order. Returning false from
// fn stops the walk.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// InnerText returns the concatenated text of the element and all descendants
// in document order.
func (e *Element) InnerText() string {
	var b strings.Builder
	e.collectText(&b)
	return b.String()
}

func (e *Element) collectText(b *strings.Builder) {
	b.WriteString(e.Text)
	for _, c := range e.Children {
		c.collectText(b)
	}
}

// ResolveQName resolves a prefixed name from attribute text ("xbrli:item")
// against the element's namespace scope. An unprefixed name resolves to the
// default namespace.
func (e *Element) ResolveQName(value string) (QName, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return QName{}, eris.New("xmltree: empty qname")
	}
	prefix, local := "", value
	if i := strings.Index(value, ":"); i >= 0 {
		prefix, local = value[:i], value[i+1:]
	}
	uri, ok := e.Scope[prefix]
	if !ok {
		// HTML-derived scopes are keyed by lowercased prefixes.
		uri, ok = e.Scope[strings.ToLower(prefix)]
	}
	if !ok {
		if prefix == "" {
			return QName{Local: local}, nil
		}
		return QName{}, eris.Errorf("xmltree: undeclared namespace prefix %q in %q", prefix, value)
	}
	return QName{Space: uri, Local: local}, nil
}

// Prefixes returns a namespace URI -> prefix map from the element's scope.
// When several prefixes bind one URI the shortest wins.
func (e *Element) Prefixes() map[string]string {
	out := make(map[string]string, len(e.Scope))
	for p, uri := range e.Scope {
		if cur, ok := out[uri]; !ok || len(p) < len(cur) {
			out[uri] = p
		}
	}
	return out
}
