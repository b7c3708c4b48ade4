package taxonomy

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/linkbase"
	"github.com/sells-group/xbrl/xmltree"
)

// LinkbaseRef is a linkbase referenced from a schema's annotation block.
type LinkbaseRef struct {
	URL  string
	Type linkbase.Type
}

// RoleType declares an extended-link role (an ELR): one logical chunk of a
// report, e.g. "1003000 - Statement - Consolidated Balance Sheets".
type RoleType struct {
	ID         string
	URI        string
	Definition string
}

// Schema is one parsed taxonomy schema file.
type Schema struct {
	SourceURL       string
	TargetNamespace string

	// Concepts in declaration order. Local names are unique within one
	// schema.
	Concepts []*Concept

	// Imports holds xs:import and xs:include schema locations resolved to
	// absolute URLs, in document order.
	Imports []string

	LinkbaseRefs []LinkbaseRef
	RoleTypes    []RoleType
}

// ParseSchema parses one taxonomy schema document into concepts, discovery
// edges, and role declarations.
func ParseSchema(doc *xmltree.Document) (*Schema, error) {
	root := doc.Root
	if root.Name.Space != NSXSD || root.Name.Local != "schema" {
		return nil, eris.Errorf("taxonomy: %s: unexpected root element %s", doc.SourceURL, root.Name)
	}

	s := &Schema{
		SourceURL:       doc.SourceURL,
		TargetNamespace: root.Attr("", "targetNamespace"),
	}

	seen := map[string]string{}
	for _, el := range root.Children {
		switch {
		case el.Name.Space == NSXSD && (el.Name.Local == "import" || el.Name.Local == "include"):
			loc := el.Attr("", "schemaLocation")
			if loc == "" {
				continue
			}
			s.Imports = append(s.Imports, xmltree.ResolveURI(doc.SourceURL, loc))

		case el.Name.Space == NSXSD && el.Name.Local == "element":
			c, err := parseConceptElement(el, s.TargetNamespace, doc.SourceURL)
			if err != nil {
				return nil, err
			}
			if c == nil {
				continue
			}
			if prev, ok := seen[c.Name.Local]; ok {
				return nil, &DuplicateConceptError{Name: c.Name, First: prev, Second: doc.SourceURL}
			}
			seen[c.Name.Local] = doc.SourceURL
			s.Concepts = append(s.Concepts, c)

		case el.Name.Space == NSXSD && el.Name.Local == "annotation":
			if err := s.parseAnnotation(el, doc.SourceURL); err != nil {
				return nil, err
			}
		}
	}

	zap.L().Debug("taxonomy: parsed schema",
		zap.String("url", doc.SourceURL),
		zap.String("namespace", s.TargetNamespace),
		zap.Int("concepts", len(s.Concepts)),
		zap.Int("imports", len(s.Imports)),
	)
	return s, nil
}

func (s *Schema) parseAnnotation(annotation *xmltree.Element, sourceURL string) error {
	for _, appinfo := range annotation.FindAll(NSXSD, "appinfo") {
		for _, ref := range appinfo.FindAll(linkbase.NSLink, "linkbaseRef") {
			href := ref.Attr(linkbase.NSXLink, "href")
			if href == "" {
				continue
			}
			typ, ok := linkbase.TypeFromRole(ref.Attr(linkbase.NSXLink, "role"))
			if !ok {
				typ = linkbase.GuessTypeFromHref(href)
			}
			s.LinkbaseRefs = append(s.LinkbaseRefs, LinkbaseRef{
				URL:  xmltree.ResolveURI(sourceURL, href),
				Type: typ,
			})
		}

		for _, rt := range appinfo.FindAll(linkbase.NSLink, "roleType") {
			def := ""
			if d := rt.Find(linkbase.NSLink, "definition"); d != nil {
				def = strings.TrimSpace(d.InnerText())
			}
			s.RoleTypes = append(s.RoleTypes, RoleType{
				ID:         rt.Attr("", "id"),
				URI:        rt.Attr("", "roleURI"),
				Definition: def,
			})
		}
	}
	return nil
}

// knownAttrs are the element attributes consumed into Concept fields; the
// rest land in Concept.Attrs.
var knownAttrs = map[xmltree.QName]bool{
	{Local: "id"}:                                true,
	{Local: "name"}:                              true,
	{Local: "type"}:                              true,
	{Local: "substitutionGroup"}:                 true,
	{Local: "nillable"}:                          true,
	{Local: "abstract"}:                          true,
	{Space: NSXBRLI, Local: "periodType"}:        true,
	{Space: NSXBRLI, Local: "balance"}:           true,
}

func parseConceptElement(el *xmltree.Element, targetNS, sourceURL string) (*Concept, error) {
	name := el.Attr("", "name")
	if name == "" {
		// Anonymous local elements cannot be referenced by anything.
		return nil, nil
	}

	c := &Concept{
		ID:        el.Attr("", "id"),
		Name:      xmltree.QName{Space: targetNS, Local: name},
		SourceURL: sourceURL,
		Nillable:  isTrue(el.Attr("", "nillable")),
		Abstract:  isTrue(el.Attr("", "abstract")),
	}

	if v := el.Attr("", "type"); v != "" {
		q, err := el.ResolveQName(v)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: %s: element %s type", sourceURL, name)
		}
		c.Type = q
	}
	if v := el.Attr("", "substitutionGroup"); v != "" {
		q, err := el.ResolveQName(v)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: %s: element %s substitutionGroup", sourceURL, name)
		}
		c.SubstitutionGroup = q
	}

	switch el.Attr(NSXBRLI, "periodType") {
	case "instant":
		c.PeriodType = PeriodInstant
	case "duration":
		c.PeriodType = PeriodDuration
	}
	switch el.Attr(NSXBRLI, "balance") {
	case "debit":
		c.Balance = BalanceDebit
	case "credit":
		c.Balance = BalanceCredit
	}

	for _, a := range el.Attrs {
		if knownAttrs[a.Name] {
			continue
		}
		if c.Attrs == nil {
			c.Attrs = map[xmltree.QName]string{}
		}
		c.Attrs[a.Name] = a.Value
	}
	return c, nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}
