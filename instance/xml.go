package instance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/xbrl/taxonomy"
	"github.com/sells-group/xbrl/xmltree"
)

// parseXBRL parses a classic XML instance document against a resolved DTS.
func parseXBRL(ctx context.Context, doc *xmltree.Document, dts *taxonomy.DTS, opts Options) (*Instance, error) {
	root := doc.Root
	inst := &Instance{
		SourceURL: doc.SourceURL,
		DTS:       dts,
		Contexts:  map[string]*Context{},
		Units:     map[string]*Unit{},
		Prefixes:  root.Prefixes(),
	}

	for _, el := range root.FindAll(NSXBRLI, "context") {
		c, err := parseContext(ctx, el, dts, doc.SourceURL)
		if err != nil {
			return nil, err
		}
		inst.Contexts[c.ID] = c
	}
	for _, el := range root.FindAll(NSXBRLI, "unit") {
		u, err := parseUnit(el, doc.SourceURL)
		if err != nil {
			return nil, err
		}
		inst.Units[u.ID] = u
	}

	for _, el := range root.Children {
		if isStructural(el) {
			continue
		}
		fact, err := parseNativeFact(ctx, el, inst, opts)
		if err != nil {
			return nil, err
		}
		if fact != nil {
			inst.Facts = append(inst.Facts, fact)
		}
	}

	if err := parseFootnoteLinks(root, inst); err != nil {
		return nil, err
	}

	zap.L().Info("instance: parsed",
		zap.String("url", doc.SourceURL),
		zap.Int("facts", len(inst.Facts)),
		zap.Int("contexts", len(inst.Contexts)),
		zap.Int("units", len(inst.Units)),
	)
	return inst, nil
}

func isStructural(el *xmltree.Element) bool {
	if el.Name.Space == NSXBRLI && (el.Name.Local == "context" || el.Name.Local == "unit") {
		return true
	}
	if el.Name.Space == NSLink {
		return true
	}
	return false
}

// conceptFor resolves a fact's qualified name to a concept, late-loading
// well-known taxonomies for namespaces the schemaRef closure missed.
func conceptFor(ctx context.Context, dts *taxonomy.DTS, q xmltree.QName, url string) (*taxonomy.Concept, error) {
	if c, ok := dts.ConceptByQName(q); ok {
		return c, nil
	}
	loaded, err := dts.ResolveNamespace(ctx, q.Space)
	if err != nil {
		return nil, err
	}
	if loaded {
		if c, ok := dts.ConceptByQName(q); ok {
			return c, nil
		}
	}
	return nil, &UnknownConceptError{URL: url, Name: q.String()}
}

// parseNativeFact parses one fact element in native XBRL form (classic
// instances and the iXBRL hidden section share this shape). A nil fact with
// no error means the element is not a fact.
func parseNativeFact(ctx context.Context, el *xmltree.Element, inst *Instance, opts Options) (*Fact, error) {
	concept, err := conceptFor(ctx, inst.DTS, el.Name, inst.SourceURL)
	if err != nil {
		return nil, err
	}

	// Tuples group child facts and carry no contextRef themselves.
	if concept.Kind() == taxonomy.KindTuple {
		tuple := &Fact{Concept: concept, ID: el.Attr("", "id")}
		for _, child := range el.Children {
			f, err := parseNativeFact(ctx, child, inst, opts)
			if err != nil {
				return nil, err
			}
			if f != nil {
				tuple.Children = append(tuple.Children, f)
			}
		}
		return tuple, nil
	}

	if !el.HasAttr("", "contextRef") {
		return nil, nil
	}

	fact := &Fact{
		Concept:   concept,
		ID:        el.Attr("", "id"),
		Lang:      el.Lang,
		Nil:       el.Attr(NSXSI, "nil") == "true",
		Precision: strings.TrimSpace(el.Attr("", "precision")),
	}

	ctxRef := strings.TrimSpace(el.Attr("", "contextRef"))
	c, ok := inst.Contexts[ctxRef]
	if !ok {
		return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "dangling contextRef " + ctxRef}
	}
	fact.Context = c

	if !c.Period.Matches(concept.PeriodType) {
		return nil, &ValidationError{
			URL: inst.SourceURL, FactID: fact.ID,
			Message: "context period does not match periodType " + concept.PeriodType.String() + " of " + concept.Name.Local,
		}
	}

	unitRef := strings.TrimSpace(el.Attr("", "unitRef"))
	switch {
	case concept.IsNumeric() && unitRef == "":
		return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "numeric fact without unitRef: " + concept.Name.Local}
	case !concept.IsNumeric() && unitRef != "" && concept.Type.Local != "":
		return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "non-numeric fact with unitRef: " + concept.Name.Local}
	}
	if unitRef != "" {
		u, ok := inst.Units[unitRef]
		if !ok {
			return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "dangling unitRef " + unitRef}
		}
		fact.Unit = u
	}

	fact.Decimals = normalizeDecimals(el.Attr("", "decimals"))

	if !fact.Nil {
		value := strings.TrimSpace(el.InnerText())
		if value == "" {
			// Self-closed facts without xsi:nil carry no information.
			return nil, nil
		}
		fact.Value = value
	}
	return fact, nil
}

// normalizeDecimals keeps decimals verbatim except for canonicalizing the
// INF spelling.
func normalizeDecimals(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "inf") {
		return "INF"
	}
	return v
}

func parseContext(ctx context.Context, el *xmltree.Element, dts *taxonomy.DTS, url string) (*Context, error) {
	c := &Context{ID: el.Attr("", "id")}

	entity := el.Find(NSXBRLI, "entity")
	if entity == nil {
		return nil, &ValidationError{URL: url, Message: "context " + c.ID + " without entity"}
	}
	if ident := entity.Find(NSXBRLI, "identifier"); ident != nil {
		c.Entity = Entity{
			Scheme:     ident.Attr("", "scheme"),
			Identifier: strings.TrimSpace(ident.InnerText()),
		}
	}

	period := el.Find(NSXBRLI, "period")
	if period == nil {
		return nil, &ValidationError{URL: url, Message: "context " + c.ID + " without period"}
	}
	switch {
	case period.Find(NSXBRLI, "instant") != nil:
		c.Period = Period{Kind: PeriodInstant, Instant: dateText(period.Find(NSXBRLI, "instant"))}
	case period.Find(NSXBRLI, "forever") != nil:
		c.Period = Period{Kind: PeriodForever}
	default:
		start := period.Find(NSXBRLI, "startDate")
		end := period.Find(NSXBRLI, "endDate")
		if start == nil || end == nil {
			return nil, &ValidationError{URL: url, Message: "context " + c.ID + " with incomplete duration period"}
		}
		c.Period = Period{Kind: PeriodDuration, Start: dateText(start), End: dateText(end)}
	}

	if segment := entity.Find(NSXBRLI, "segment"); segment != nil {
		members, err := parseMembers(ctx, segment, dts, url)
		if err != nil {
			return nil, err
		}
		c.Segment = members
	}
	if scenario := el.Find(NSXBRLI, "scenario"); scenario != nil {
		members, err := parseMembers(ctx, scenario, dts, url)
		if err != nil {
			return nil, err
		}
		c.Scenario = members
	}
	return c, nil
}

// dateText trims a period date to its date part; filings occasionally write
// full timestamps.
func dateText(el *xmltree.Element) string {
	t := strings.TrimSpace(el.InnerText())
	if len(t) > 10 {
		t = t[:10]
	}
	return t
}

func parseMembers(ctx context.Context, container *xmltree.Element, dts *taxonomy.DTS, url string) ([]Member, error) {
	var out []Member
	for _, el := range container.Children {
		switch {
		case el.Name.Space == NSXBRLDI && strings.EqualFold(el.Name.Local, "explicitMember"):
			dimQ, err := el.ResolveQName(el.Attr("", "dimension"))
			if err != nil {
				return nil, &ValidationError{URL: url, Message: "bad dimension qname: " + err.Error()}
			}
			memQ, err := el.ResolveQName(strings.TrimSpace(el.InnerText()))
			if err != nil {
				return nil, &ValidationError{URL: url, Message: "bad member qname: " + err.Error()}
			}
			dim, err := conceptFor(ctx, dts, dimQ, url)
			if err != nil {
				return nil, err
			}
			mem, err := conceptFor(ctx, dts, memQ, url)
			if err != nil {
				return nil, err
			}
			out = append(out, Member{Dimension: dim, Explicit: true, Member: mem})

		case el.Name.Space == NSXBRLDI && strings.EqualFold(el.Name.Local, "typedMember"):
			dimQ, err := el.ResolveQName(el.Attr("", "dimension"))
			if err != nil {
				return nil, &ValidationError{URL: url, Message: "bad dimension qname: " + err.Error()}
			}
			dim, err := conceptFor(ctx, dts, dimQ, url)
			if err != nil {
				return nil, err
			}
			out = append(out, Member{Dimension: dim, Typed: typedValue(el)})
		}
	}
	return out, nil
}

// typedValue renders a typed member's literal: the first child element's
// name and text, or the container text when the literal is bare.
func typedValue(el *xmltree.Element) string {
	if len(el.Children) > 0 {
		c := el.Children[0]
		return c.Name.Local + "=" + strings.TrimSpace(c.InnerText())
	}
	return strings.TrimSpace(el.InnerText())
}

func parseUnit(el *xmltree.Element, url string) (*Unit, error) {
	u := &Unit{ID: el.Attr("", "id")}

	if divide := el.Find(NSXBRLI, "divide"); divide != nil {
		num := divide.Find(NSXBRLI, "unitNumerator")
		den := divide.Find(NSXBRLI, "unitDenominator")
		if num == nil || den == nil {
			return nil, &ValidationError{URL: url, Message: "unit " + u.ID + " with incomplete divide"}
		}
		var err error
		if u.Numerator, err = measures(num); err != nil {
			return nil, &ValidationError{URL: url, Message: "unit " + u.ID + ": " + err.Error()}
		}
		if u.Denominator, err = measures(den); err != nil {
			return nil, &ValidationError{URL: url, Message: "unit " + u.ID + ": " + err.Error()}
		}
		return u, nil
	}

	var err error
	if u.Measures, err = measures(el); err != nil {
		return nil, &ValidationError{URL: url, Message: "unit " + u.ID + ": " + err.Error()}
	}
	if len(u.Measures) == 0 {
		return nil, &ValidationError{URL: url, Message: "unit " + u.ID + " without measure"}
	}
	return u, nil
}

func measures(el *xmltree.Element) ([]xmltree.QName, error) {
	var out []xmltree.QName
	for _, m := range el.FindAll(NSXBRLI, "measure") {
		q, err := m.ResolveQName(strings.TrimSpace(m.InnerText()))
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func parseFootnoteLinks(root *xmltree.Element, inst *Instance) error {
	factsByID := map[string]*Fact{}
	var index func(fs []*Fact)
	index = func(fs []*Fact) {
		for _, f := range fs {
			if f.ID != "" {
				factsByID[f.ID] = f
			}
			index(f.Children)
		}
	}
	index(inst.Facts)

	for _, link := range root.FindAll(NSLink, "footnoteLink") {
		locs := map[string]string{} // xlink label -> fact id
		notes := map[string]*Footnote{}

		for _, child := range link.Children {
			switch child.Attr(NSXLink, "type") {
			case "locator":
				href := child.Attr(NSXLink, "href")
				if i := strings.Index(href, "#"); i >= 0 {
					locs[child.Attr(NSXLink, "label")] = href[i+1:]
				}
			case "resource":
				fn := &Footnote{
					ID:   child.Attr("", "id"),
					Lang: child.Lang,
					Text: strings.TrimSpace(child.InnerText()),
				}
				notes[child.Attr(NSXLink, "label")] = fn
				inst.Footnotes = append(inst.Footnotes, fn)
			}
		}

		for _, child := range link.Children {
			if child.Attr(NSXLink, "type") != "arc" {
				continue
			}
			factID := locs[child.Attr(NSXLink, "from")]
			note := notes[child.Attr(NSXLink, "to")]
			if note == nil {
				continue
			}
			if fact, ok := factsByID[factID]; ok {
				fact.Footnotes = append(fact.Footnotes, note)
			} else {
				zap.L().Warn("instance: footnote arc to unknown fact",
					zap.String("url", inst.SourceURL),
					zap.String("fact", factID),
				)
			}
		}
	}
	return nil
}
