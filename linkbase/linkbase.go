// Package linkbase parses XBRL linkbases: XLink documents that relate
// concepts to concepts (presentation, calculation, definition) or to
// resources (labels, references).
//
// Parsing stays local to one file: locators keep their absolute hrefs and
// arcs keep their xlink labels. Cross-file resolution to concepts — and the
// prohibition/override algorithm — happens in the taxonomy resolver, which
// needs the whole DTS. Prohibited arcs are therefore kept here, not dropped.
package linkbase

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/xmltree"
)

// Namespaces used throughout linkbase and schema parsing.
const (
	NSLink   = "http://www.xbrl.org/2003/linkbase"
	NSXLink  = "http://www.w3.org/1999/xlink"
	NSXBRLDT = "http://xbrl.org/2005/xbrldt"
)

// Type tags the linkbase flavor; arcs are one struct and Type dispatches how
// their payload is interpreted.
type Type int

const (
	Generic Type = iota
	Label
	Presentation
	Calculation
	Definition
	Reference
)

func (t Type) String() string {
	switch t {
	case Label:
		return "label"
	case Presentation:
		return "presentation"
	case Calculation:
		return "calculation"
	case Definition:
		return "definition"
	case Reference:
		return "reference"
	}
	return "generic"
}

// TypeFromRole maps a linkbaseRef xlink:role to the linkbase type.
func TypeFromRole(role string) (Type, bool) {
	switch role {
	case "http://www.xbrl.org/2003/role/labelLinkbaseRef":
		return Label, true
	case "http://www.xbrl.org/2003/role/presentationLinkbaseRef":
		return Presentation, true
	case "http://www.xbrl.org/2003/role/calculationLinkbaseRef":
		return Calculation, true
	case "http://www.xbrl.org/2003/role/definitionLinkbaseRef":
		return Definition, true
	case "http://www.xbrl.org/2003/role/referenceLinkbaseRef":
		return Reference, true
	}
	return Generic, false
}

// GuessTypeFromHref guesses the type from the conventional filename suffix
// (_lab.xml, _pre.xml, ...). Filings omit the role often enough that this
// fallback is load-bearing in practice.
func GuessTypeFromHref(href string) Type {
	switch {
	case strings.Contains(href, "_lab"):
		return Label
	case strings.Contains(href, "_pre"):
		return Presentation
	case strings.Contains(href, "_cal"):
		return Calculation
	case strings.Contains(href, "_def"):
		return Definition
	case strings.Contains(href, "_ref"):
		return Reference
	}
	return Generic
}

// Use is the xlink use attribute of an arc.
type Use int

const (
	UseOptional Use = iota
	UseProhibited
)

// Locator points from the linkbase to a concept in a schema file by
// URL#fragment. Href is always absolute.
type Locator struct {
	Label string
	Href  string
}

// Part is one component of a reference resource (e.g. ref:Publisher).
type Part struct {
	Name  xmltree.QName
	Value string
}

// Resource is a label, reference, or footnote payload inside an extended
// link.
type Resource struct {
	Label string
	Role  string
	Lang  string
	Text  string
	Parts []Part
}

// Arc relates a from-label to a to-label within one extended link. Labels
// are link-local; they may address locators or resources.
type Arc struct {
	From           string
	To             string
	Arcrole        string
	Order          float64
	Priority       int
	Use            Use
	Weight         *float64
	PreferredLabel string

	// Attrs carries dimensional arc attributes (xbrldt:closed,
	// xbrldt:contextElement, xbrldt:targetRole) and any extension attrs.
	Attrs map[xmltree.QName]string
}

// ExtendedLink is a container of locators, resources, and arcs sharing a
// role URI.
type ExtendedLink struct {
	Role      string
	RoleRef   string
	Locators  []Locator
	Resources []Resource
	Arcs      []Arc
}

// Linkbase is one parsed linkbase file.
type Linkbase struct {
	SourceURL string
	Type      Type
	Links     []*ExtendedLink

	// RoleRefs maps a role URI to the schema fragment that declares it.
	RoleRefs map[string]string
}

// Parse parses one linkbase document. typ may be Generic; the element names
// drive parsing, the type only tags the result for the resolver.
func Parse(doc *xmltree.Document, typ Type) (*Linkbase, error) {
	root := doc.Root
	if root.Name.Space != NSLink || root.Name.Local != "linkbase" {
		return nil, eris.Errorf("linkbase: %s: unexpected root element %s", doc.SourceURL, root.Name)
	}

	lb := &Linkbase{
		SourceURL: doc.SourceURL,
		Type:      typ,
		RoleRefs:  map[string]string{},
	}

	for _, rr := range root.FindAll(NSLink, "roleRef") {
		lb.RoleRefs[rr.Attr("", "roleURI")] = rr.Attr(NSXLink, "href")
	}

	for _, child := range root.Children {
		if child.Attr(NSXLink, "type") != "extended" {
			continue
		}
		link, err := parseExtendedLink(child, doc.SourceURL)
		if err != nil {
			return nil, err
		}
		link.RoleRef = lb.RoleRefs[link.Role]
		lb.Links = append(lb.Links, link)
	}

	zap.L().Debug("linkbase: parsed",
		zap.String("url", doc.SourceURL),
		zap.String("type", typ.String()),
		zap.Int("links", len(lb.Links)),
	)
	return lb, nil
}

func parseExtendedLink(el *xmltree.Element, sourceURL string) (*ExtendedLink, error) {
	link := &ExtendedLink{Role: el.Attr(NSXLink, "role")}

	for _, child := range el.Children {
		switch child.Attr(NSXLink, "type") {
		case "locator":
			href := child.Attr(NSXLink, "href")
			if href == "" {
				return nil, eris.Errorf("linkbase: %s: locator without href", sourceURL)
			}
			link.Locators = append(link.Locators, Locator{
				Label: child.Attr(NSXLink, "label"),
				Href:  xmltree.ResolveURI(sourceURL, href),
			})

		case "resource":
			res := Resource{
				Label: child.Attr(NSXLink, "label"),
				Role:  child.Attr(NSXLink, "role"),
				Lang:  child.Lang,
				Text:  strings.TrimSpace(child.InnerText()),
			}
			// Reference resources carry their payload as part elements.
			for _, part := range child.Children {
				res.Parts = append(res.Parts, Part{
					Name:  part.Name,
					Value: strings.TrimSpace(part.InnerText()),
				})
			}
			link.Resources = append(link.Resources, res)

		case "arc":
			arc, err := parseArc(child, sourceURL)
			if err != nil {
				return nil, err
			}
			link.Arcs = append(link.Arcs, arc)
		}
	}
	return link, nil
}

func parseArc(el *xmltree.Element, sourceURL string) (Arc, error) {
	arc := Arc{
		From:    el.Attr(NSXLink, "from"),
		To:      el.Attr(NSXLink, "to"),
		Arcrole: el.Attr(NSXLink, "arcrole"),
		Order:   1,
	}
	if arc.From == "" || arc.To == "" {
		return arc, eris.Errorf("linkbase: %s: arc missing from/to", sourceURL)
	}

	if v := el.Attr("", "order"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return arc, eris.Wrapf(err, "linkbase: %s: bad arc order %q", sourceURL, v)
		}
		arc.Order = f
	}
	if v := el.Attr("", "priority"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return arc, eris.Wrapf(err, "linkbase: %s: bad arc priority %q", sourceURL, v)
		}
		arc.Priority = n
	}
	if el.Attr("", "use") == "prohibited" {
		arc.Use = UseProhibited
	}
	if v := el.Attr("", "weight"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return arc, eris.Wrapf(err, "linkbase: %s: bad arc weight %q", sourceURL, v)
		}
		arc.Weight = &f
	}
	arc.PreferredLabel = el.Attr("", "preferredLabel")

	for _, a := range el.Attrs {
		if a.Name.Space == NSXBRLDT {
			if arc.Attrs == nil {
				arc.Attrs = map[xmltree.QName]string{}
			}
			arc.Attrs[a.Name] = a.Value
		}
	}
	return arc, nil
}
