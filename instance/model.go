// Package instance parses XBRL instance documents — classic XML and Inline
// XBRL — into a unified fact model, and emits xBRL-JSON.
package instance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/xbrl/taxonomy"
	"github.com/sells-group/xbrl/xmltree"
)

// Instance namespaces.
const (
	NSXBRLI  = "http://www.xbrl.org/2003/instance"
	NSXBRLDI = "http://xbrl.org/2006/xbrldi"
	NSLink   = "http://www.xbrl.org/2003/linkbase"
	NSXLink  = "http://www.w3.org/1999/xlink"
	NSXSI    = "http://www.w3.org/2001/XMLSchema-instance"
	NSIX     = "http://www.xbrl.org/2013/inlineXBRL"
)

// ValidationError reports an XBRL structural violation: dangling refs,
// missing units on numeric facts, period-type mismatches.
type ValidationError struct {
	URL     string
	FactID  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.FactID != "" {
		return fmt.Sprintf("instance: %s: fact %s: %s", e.URL, e.FactID, e.Message)
	}
	return fmt.Sprintf("instance: %s: %s", e.URL, e.Message)
}

// UnknownConceptError reports a fact whose qualified name resolves to no
// concept in the DTS.
type UnknownConceptError struct {
	URL  string
	Name string
}

func (e *UnknownConceptError) Error() string {
	return fmt.Sprintf("instance: %s: unknown concept %s", e.URL, e.Name)
}

// PeriodKind discriminates context periods.
type PeriodKind int

const (
	PeriodInstant PeriodKind = iota
	PeriodDuration
	PeriodForever
)

// Period is a context's reporting period. Dates are kept as the document's
// YYYY-MM-DD text.
type Period struct {
	Kind    PeriodKind
	Instant string
	Start   string
	End     string
}

// String renders the period the way xBRL-JSON does.
func (p Period) String() string {
	switch p.Kind {
	case PeriodInstant:
		return p.Instant
	case PeriodDuration:
		return p.Start + "/" + p.End
	}
	return ""
}

// Matches reports whether the period kind satisfies a concept's period type.
func (p Period) Matches(pt taxonomy.PeriodType) bool {
	switch pt {
	case taxonomy.PeriodInstant:
		return p.Kind == PeriodInstant
	case taxonomy.PeriodDuration:
		return p.Kind == PeriodDuration || p.Kind == PeriodForever
	}
	return true
}

// Entity identifies the reporting entity.
type Entity struct {
	Scheme     string
	Identifier string
}

// Member is one dimensional qualifier: explicit (dimension concept, member
// concept) or typed (dimension concept, value). A typed value is the first
// child element's local name and trimmed text joined by "=" (for example
// "RegionCode=EU-27"); the child's markup, namespace and attributes are not
// kept.
type Member struct {
	Dimension *taxonomy.Concept
	Explicit  bool
	Member    *taxonomy.Concept
	Typed     string
}

func (m Member) valueString() string {
	if m.Explicit {
		return m.Member.Name.String()
	}
	return m.Typed
}

// Context is the entity, period, and dimensional qualifiers of a fact.
type Context struct {
	ID       string
	Entity   Entity
	Period   Period
	Segment  []Member
	Scenario []Member
}

// Key returns the comparison key: two contexts with equal entity, period,
// and normalized members are the same context. Members sort by dimension
// name so declaration order does not matter.
func (c *Context) Key() string {
	var b strings.Builder
	b.WriteString(c.Entity.Scheme)
	b.WriteString("|")
	b.WriteString(c.Entity.Identifier)
	b.WriteString("|")
	b.WriteString(c.Period.String())
	for _, ms := range [][]Member{c.Segment, c.Scenario} {
		keys := make([]string, 0, len(ms))
		for _, m := range ms {
			keys = append(keys, m.Dimension.Name.String()+"="+m.valueString())
		}
		sort.Strings(keys)
		b.WriteString("|")
		b.WriteString(strings.Join(keys, ","))
	}
	return b.String()
}

// Members returns segment then scenario members.
func (c *Context) Members() []Member {
	out := make([]Member, 0, len(c.Segment)+len(c.Scenario))
	out = append(out, c.Segment...)
	return append(out, c.Scenario...)
}

// Unit is a measure or a ratio of measure lists. Immutable once parsed.
type Unit struct {
	ID          string
	Measures    []xmltree.QName
	Numerator   []xmltree.QName
	Denominator []xmltree.QName
}

// IsDivide reports whether the unit is a ratio.
func (u *Unit) IsDivide() bool { return len(u.Numerator) > 0 }

// String renders the unit with prefixes resolved through the given
// namespace->prefix map ("iso4217:USD", "iso4217:USD/xbrli:shares").
func (u *Unit) String(prefixes map[string]string) string {
	join := func(qs []xmltree.QName) string {
		parts := make([]string, len(qs))
		for i, q := range qs {
			parts[i] = prefixed(q, prefixes)
		}
		return strings.Join(parts, "*")
	}
	if u.IsDivide() {
		return join(u.Numerator) + "/" + join(u.Denominator)
	}
	return join(u.Measures)
}

func prefixed(q xmltree.QName, prefixes map[string]string) string {
	if p, ok := prefixes[q.Space]; ok && p != "" {
		return p + ":" + q.Local
	}
	return q.Local
}

// InlineSource records the iXBRL presentation coordinates of a fact.
type InlineSource struct {
	Scale  int
	Sign   string
	Format string
}

// Fact is a value tagged with a concept and context, plus a unit for
// numeric items.
type Fact struct {
	Concept *taxonomy.Concept
	Context *Context
	Unit    *Unit

	// Value holds the canonical value text: verbatim for strings, a decimal
	// string for numerics (transform/scale/sign already applied for iXBRL).
	Value string

	// Decimals is "" when absent, "INF", or a base-10 integer string.
	Decimals  string
	Precision string

	ID   string
	Nil  bool
	Lang string

	// Children holds the member facts of a tuple: in document order for XML
	// instances, and sorted by the order attribute for iXBRL tuples.
	Children []*Fact

	Footnotes []*Footnote
	Source    *InlineSource
}

// IsTuple reports whether the fact is a tuple grouping child facts.
func (f *Fact) IsTuple() bool { return len(f.Children) > 0 }

// Footnote is a text resource attached to facts through the instance's
// footnote link.
type Footnote struct {
	ID   string
	Lang string
	Text string
}

// Instance is the parsed filing: the fact set with its contexts, units, and
// footnotes, bound to the resolved DTS.
type Instance struct {
	SourceURL string
	DTS       *taxonomy.DTS

	Contexts map[string]*Context
	Units    map[string]*Unit
	Facts    []*Fact
	Footnotes []*Footnote

	// Prefixes maps namespace URIs to the document's preferred prefixes,
	// used when rendering qualified names.
	Prefixes map[string]string
}

func (i *Instance) String() string {
	name := i.SourceURL
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return fmt.Sprintf("%s with %d facts", name, len(i.Facts))
}

// FactsFor returns every fact of the named concept.
func (i *Instance) FactsFor(name xmltree.QName) []*Fact {
	var out []*Fact
	for _, f := range i.Facts {
		if f.Concept != nil && f.Concept.Name == name {
			out = append(out, f)
		}
	}
	return out
}
