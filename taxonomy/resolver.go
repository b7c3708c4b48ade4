package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/cache"
	"github.com/sells-group/xbrl/linkbase"
	"github.com/sells-group/xbrl/xmltree"
)

// WarningKind tags non-fatal findings accumulated during resolution.
type WarningKind int

const (
	WarnBrokenLocator WarningKind = iota
	WarnCalculationCycle
	WarnPresentationCycle
	WarnAmbiguousOverride
)

// Warning is a non-fatal finding attached to the resolved DTS. Regulator
// filings contain broken locators and calculation cycles often enough that
// failing the parse on them would reject real-world documents.
type Warning struct {
	Kind    WarningKind
	URL     string
	Message string
}

// Relationship is the post-override product of an arc between two concepts.
type Relationship struct {
	Source         *Concept
	Target         *Concept
	Arcrole        string
	Role           string
	Order          float64
	Weight         float64
	PreferredLabel string
}

// ConceptLabel is one resolved label of a concept.
type ConceptLabel struct {
	Role string
	Lang string
	Text string
}

type relKey struct {
	concept *Concept
	arcrole string
	role    string
}

type labelKey struct {
	concept *Concept
	role    string
	lang    string
}

// DTS is the Discoverable Taxonomy Set: every schema and linkbase reachable
// from the entry point, with cross-file references resolved and arc
// prohibition/override applied.
type DTS struct {
	EntryURLs []string
	Schemas   []*Schema
	Linkbases []*linkbase.Linkbase
	Warnings  []Warning

	// DefaultLang is the filing's reporting language, used as the label
	// lookup fallback.
	DefaultLang string

	byQName map[xmltree.QName]*Concept
	byFold  map[xmltree.QName]*Concept
	byHref  map[string]*Concept

	rels     []*Relationship
	children map[relKey][]*Relationship
	parents  map[relKey][]*Relationship

	labels    map[labelKey]string
	byConcept map[*Concept][]ConceptLabel
	refs      map[*Concept][]linkbase.Resource

	resolver *Resolver
}

// SchemaURLs returns every schema URL in discovery order.
func (d *DTS) SchemaURLs() []string {
	return lo.Map(d.Schemas, func(s *Schema, _ int) string { return s.SourceURL })
}

// ConceptByQName resolves a concept by (namespace, local name). Lookup is
// exact first, then case-insensitive on the local name: facts reconstructed
// from iXBRL HTML arrive with lowercased element names.
func (d *DTS) ConceptByQName(q xmltree.QName) (*Concept, bool) {
	if c, ok := d.byQName[q]; ok {
		return c, true
	}
	c, ok := d.byFold[xmltree.QName{Space: q.Space, Local: strings.ToLower(q.Local)}]
	return c, ok
}

// ConceptByHref resolves a concept the way a linkbase locator does: by
// schema URL and xml id.
func (d *DTS) ConceptByHref(url, id string) (*Concept, bool) {
	c, ok := d.byHref[xmltree.NormalizeURI(url)+"#"+id]
	return c, ok
}

// Relationships returns every resolved concept-to-concept relationship in
// deterministic order.
func (d *DTS) Relationships() []*Relationship { return d.rels }

// Children returns the relationships leaving source under (arcrole, role),
// ordered by arc order with discovery-order tiebreak.
func (d *DTS) Children(source *Concept, arcrole, role string) []*Relationship {
	return d.children[relKey{source, arcrole, role}]
}

// Parents returns the relationships arriving at target under (arcrole, role).
func (d *DTS) Parents(target *Concept, arcrole, role string) []*Relationship {
	return d.parents[relKey{target, arcrole, role}]
}

// LabelsFor returns every label attached to the concept.
func (d *DTS) LabelsFor(c *Concept) []ConceptLabel { return d.byConcept[c] }

// ReferencesFor returns the reference-linkbase resources attached to the
// concept. Their parts are exposed as parsed; no semantics are attached.
func (d *DTS) ReferencesFor(c *Concept) []linkbase.Resource { return d.refs[c] }

// Label retrieves a label by (role, lang) with the standard fallback chain:
// exact (role, lang), then (standard label, lang), then any label in lang,
// then the standard label in the default language, then the first label.
// The exact lookup is a single map read.
func (d *DTS) Label(c *Concept, role, lang string) (string, bool) {
	if t, ok := d.labels[labelKey{c, role, lang}]; ok {
		return t, true
	}
	if t, ok := d.labels[labelKey{c, RoleStandardLabel, lang}]; ok {
		return t, true
	}
	for _, l := range d.byConcept[c] {
		if l.Lang == lang {
			return l.Text, true
		}
	}
	if t, ok := d.labels[labelKey{c, RoleStandardLabel, d.DefaultLang}]; ok {
		return t, true
	}
	if ls := d.byConcept[c]; len(ls) > 0 {
		return ls[0].Text, true
	}
	return "", false
}

func (d *DTS) warn(kind WarningKind, url, format string, args ...any) {
	w := Warning{Kind: kind, URL: url, Message: fmt.Sprintf(format, args...)}
	d.Warnings = append(d.Warnings, w)
	zap.L().Warn("taxonomy: "+w.Message, zap.String("url", url))
}

// nsSchemaMap maps well-known namespaces to their schema locations. SEC
// filings reference these namespaces without always declaring a schemaRef
// for them.
var nsSchemaMap = map[string]string{
	"http://fasb.org/srt/2018-01-31": "http://xbrl.fasb.org/srt/2018/elts/srt-2018-01-31.xsd",
	"http://fasb.org/srt/2019-01-31": "http://xbrl.fasb.org/srt/2019/elts/srt-2019-01-31.xsd",
	"http://fasb.org/srt/2020-01-31": "http://xbrl.fasb.org/srt/2020/elts/srt-2020-01-31.xsd",

	"http://xbrl.sec.gov/stpr/2018-01-31": "https://xbrl.sec.gov/stpr/2018/stpr-2018-01-31.xsd",

	"http://xbrl.sec.gov/country/2017-01-31": "https://xbrl.sec.gov/country/2017/country-2017-01-31.xsd",
	"http://xbrl.sec.gov/country/2020-01-31": "https://xbrl.sec.gov/country/2020/country-2020-01-31.xsd",

	"http://xbrl.sec.gov/invest/2011-01-31": "https://xbrl.sec.gov/invest/2011/invest-2011-01-31.xsd",
	"http://xbrl.sec.gov/invest/2012-01-31": "https://xbrl.sec.gov/invest/2012/invest-2012-01-31.xsd",
	"http://xbrl.sec.gov/invest/2013-01-31": "https://xbrl.sec.gov/invest/2013/invest-2013-01-31.xsd",

	"http://xbrl.sec.gov/dei/2014-01-31": "https://xbrl.sec.gov/dei/2014/dei-2014-01-31.xsd",
	"http://xbrl.sec.gov/dei/2018-01-31": "https://xbrl.sec.gov/dei/2018/dei-2018-01-31.xsd",
	"http://xbrl.sec.gov/dei/2019-01-31": "https://xbrl.sec.gov/dei/2019/dei-2019-01-31.xsd",
	"http://xbrl.sec.gov/dei/2020-01-31": "https://xbrl.sec.gov/dei/2020/dei-2020-01-31.xsd",
	"http://xbrl.sec.gov/dei/2021":       "https://xbrl.sec.gov/dei/2021/dei-2021.xsd",

	"http://fasb.org/us-gaap/2017-01-31": "http://xbrl.fasb.org/us-gaap/2017/elts/us-gaap-2017-01-31.xsd",
	"http://fasb.org/us-gaap/2018-01-31": "http://xbrl.fasb.org/us-gaap/2018/elts/us-gaap-2018-01-31.xsd",
	"http://fasb.org/us-gaap/2019-01-31": "http://xbrl.fasb.org/us-gaap/2019/elts/us-gaap-2019-01-31.xsd",
	"http://fasb.org/us-gaap/2020-01-31": "http://xbrl.fasb.org/us-gaap/2020/elts/us-gaap-2020-01-31.xsd",
	"http://fasb.org/us-gaap/2021-01-31": "http://xbrl.fasb.org/us-gaap/2021/elts/us-gaap-2021-01-31.xsd",
}

// Resolver drives DTS discovery: it fetches each schema and linkbase through
// the cache, follows import/include/linkbaseRef edges breadth-first, and
// finalizes the cross-file indices.
type Resolver struct {
	cache   *cache.Cache
	dts     *DTS
	visited map[string]bool
}

type workItem struct {
	url      string
	hint     linkbase.Type
	linkbase bool
}

// Resolve computes the DTS reachable from the entry-point schemas. Entries
// may be URLs or local paths; http references inside local documents are
// fetched through the cache.
func Resolve(ctx context.Context, c *cache.Cache, entries ...string) (*DTS, error) {
	if c == nil {
		return nil, eris.New("taxonomy: nil cache")
	}
	if len(entries) == 0 {
		return nil, eris.New("taxonomy: no entry point")
	}

	r := &Resolver{
		cache:   c,
		visited: map[string]bool{},
		dts: &DTS{
			EntryURLs:   entries,
			DefaultLang: "en-US",
			byQName:     map[xmltree.QName]*Concept{},
			byHref:      map[string]*Concept{},
		},
	}
	r.dts.resolver = r

	for _, entry := range entries {
		if err := r.discover(ctx, workItem{url: entry}); err != nil {
			return nil, err
		}
	}
	if err := r.finalize(); err != nil {
		return nil, err
	}
	return r.dts, nil
}

// AddEntry merges another entry-point schema into the DTS (iXBRL documents
// can contribute extra schemaRefs via ix:references) and rebuilds the
// indices.
func (d *DTS) AddEntry(ctx context.Context, url string) error {
	if d.resolver.visited[xmltree.NormalizeURI(url)] {
		return nil
	}
	d.EntryURLs = append(d.EntryURLs, url)
	if err := d.resolver.discover(ctx, workItem{url: url}); err != nil {
		return err
	}
	return d.resolver.finalize()
}

// ResolveNamespace late-loads a well-known taxonomy by namespace. It reports
// whether the namespace is known and newly loaded.
func (d *DTS) ResolveNamespace(ctx context.Context, namespace string) (bool, error) {
	url, ok := nsSchemaMap[namespace]
	if !ok {
		return false, nil
	}
	if d.resolver.visited[xmltree.NormalizeURI(url)] {
		return false, nil
	}
	if err := d.resolver.discover(ctx, workItem{url: url}); err != nil {
		return false, err
	}
	return true, d.resolver.finalize()
}

func (r *Resolver) discover(ctx context.Context, root workItem) error {
	queue := []workItem{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "taxonomy: cancelled")
		}
		item := queue[0]
		queue = queue[1:]

		key := xmltree.NormalizeURI(item.url)
		if r.visited[key] {
			// Import cycles are expected: namespace aliasing makes schemas
			// reachable along several paths.
			continue
		}
		r.visited[key] = true

		doc, err := r.load(ctx, item.url)
		if err != nil {
			if item.linkbase {
				return eris.Wrapf(err, "taxonomy: load linkbase %s", item.url)
			}
			return eris.Wrapf(err, "taxonomy: load schema %s", item.url)
		}

		switch {
		case doc.Root.Name.Space == NSXSD && doc.Root.Name.Local == "schema":
			schema, err := ParseSchema(doc)
			if err != nil {
				return err
			}
			r.dts.Schemas = append(r.dts.Schemas, schema)

			// Enqueue order is discovery order; override ties break on it.
			for _, imp := range schema.Imports {
				queue = append(queue, workItem{url: imp})
			}
			for _, ref := range schema.LinkbaseRefs {
				queue = append(queue, workItem{url: ref.URL, hint: ref.Type, linkbase: true})
			}

		case doc.Root.Name.Space == linkbase.NSLink && doc.Root.Name.Local == "linkbase":
			typ := item.hint
			if typ == linkbase.Generic {
				typ = linkbase.GuessTypeFromHref(item.url)
			}
			lb, err := linkbase.Parse(doc, typ)
			if err != nil {
				return err
			}
			r.dts.Linkbases = append(r.dts.Linkbases, lb)

		default:
			return eris.Errorf("taxonomy: %s: unexpected root element %s", item.url, doc.Root.Name)
		}
	}
	return nil
}

func (r *Resolver) load(ctx context.Context, url string) (*xmltree.Document, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return r.cache.GetDocument(ctx, url)
	}
	return xmltree.ParseFile(url, url)
}

// ParseLinkbaseURL fetches and parses one linkbase outside of DTS discovery.
func ParseLinkbaseURL(ctx context.Context, c *cache.Cache, url string, hint linkbase.Type) (*linkbase.Linkbase, error) {
	var doc *xmltree.Document
	var err error
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		doc, err = c.GetDocument(ctx, url)
	} else {
		doc, err = xmltree.ParseFile(url, url)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: load linkbase %s", url)
	}
	if hint == linkbase.Generic {
		hint = linkbase.GuessTypeFromHref(url)
	}
	return linkbase.Parse(doc, hint)
}

// finalize (re)builds every cross-file index: the concept registries, the
// resolved relationship set, the children/parents adjacency, and the label
// index. It runs once per discovery pass so lookups stay O(1) afterwards.
func (r *Resolver) finalize() error {
	d := r.dts
	d.byQName = map[xmltree.QName]*Concept{}
	d.byFold = map[xmltree.QName]*Concept{}
	d.byHref = map[string]*Concept{}

	for _, s := range d.Schemas {
		for _, c := range s.Concepts {
			if prev, ok := d.byQName[c.Name]; ok {
				if !sameDeclaration(prev, c) {
					return &DuplicateConceptError{Name: c.Name, First: prev.SourceURL, Second: c.SourceURL}
				}
				continue
			}
			d.byQName[c.Name] = c
			fold := xmltree.QName{Space: c.Name.Space, Local: strings.ToLower(c.Name.Local)}
			if _, ok := d.byFold[fold]; !ok {
				d.byFold[fold] = c
			}
			if c.ID != "" {
				d.byHref[xmltree.NormalizeURI(s.SourceURL)+"#"+c.ID] = c
			}
		}
	}

	r.classifyKinds()
	if err := r.materialize(); err != nil {
		return err
	}
	r.detectCycles()
	return nil
}

func (r *Resolver) classifyKinds() {
	d := r.dts
	for _, s := range d.Schemas {
		for _, c := range s.Concepts {
			c.kind = r.kindOf(c, map[*Concept]bool{})
		}
	}
}

func (r *Resolver) kindOf(c *Concept, seen map[*Concept]bool) Kind {
	if seen[c] {
		return KindUnknown
	}
	seen[c] = true

	sg := c.SubstitutionGroup
	switch {
	case sg.Space == NSXBRLDT && sg.Local == "hypercubeItem":
		return KindHypercube
	case sg.Space == NSXBRLDT && sg.Local == "dimensionItem":
		return KindDimension
	case sg.Space == NSXBRLI && sg.Local == "item":
		return KindItem
	case sg.Space == NSXBRLI && sg.Local == "tuple":
		return KindTuple
	}
	if parent, ok := r.dts.byQName[sg]; ok {
		return r.kindOf(parent, seen)
	}
	return KindUnknown
}

// tentative is an arc after locator resolution but before the
// prohibition/override pass.
type tentative struct {
	source   *Concept
	target   *Concept           // concept-to-concept arcs
	resource *linkbase.Resource // concept-to-resource arcs
	arcrole  string
	role     string
	order    float64
	priority int
	use      linkbase.Use
	weight   float64
	prefLbl  string
	seq      int
}

// equivalence key per XBRL 2.1 3.5.3.9: relationships with equal
// (source, target, arcrole, role) compete for override/prohibition.
func (t tentative) key() string {
	tgt := ""
	if t.target != nil {
		tgt = t.target.SourceURL + "#" + t.target.ID + "/" + t.target.Name.String()
	} else if t.resource != nil {
		tgt = t.resource.Role + "|" + t.resource.Lang + "|" + t.resource.Text
	}
	return fmt.Sprintf("%s#%s|%s|%s|%s", t.source.SourceURL, t.source.ID, tgt, t.arcrole, t.role)
}

func (r *Resolver) materialize() error {
	d := r.dts
	d.rels = nil
	d.children = map[relKey][]*Relationship{}
	d.parents = map[relKey][]*Relationship{}
	d.labels = map[labelKey]string{}
	d.byConcept = map[*Concept][]ConceptLabel{}
	d.refs = map[*Concept][]linkbase.Resource{}

	var tentatives []tentative
	seq := 0

	for _, lb := range d.Linkbases {
		for li := range lb.Links {
			link := lb.Links[li]
			locs := map[string][]linkbase.Locator{}
			for _, loc := range link.Locators {
				locs[loc.Label] = append(locs[loc.Label], loc)
			}
			res := map[string][]*linkbase.Resource{}
			for i := range link.Resources {
				res[link.Resources[i].Label] = append(res[link.Resources[i].Label], &link.Resources[i])
			}

			for _, arc := range link.Arcs {
				sources := r.resolveLocators(lb.SourceURL, locs[arc.From])
				if len(sources) == 0 {
					d.warn(WarnBrokenLocator, lb.SourceURL, "arc from %q has no resolvable locator", arc.From)
					continue
				}

				targets := r.resolveLocators(lb.SourceURL, locs[arc.To])
				resources := res[arc.To]
				if len(targets) == 0 && len(resources) == 0 {
					d.warn(WarnBrokenLocator, lb.SourceURL, "arc to %q has no resolvable locator or resource", arc.To)
					continue
				}

				weight := 0.0
				if arc.Weight != nil {
					weight = *arc.Weight
				}
				for _, src := range sources {
					for _, tgt := range targets {
						tentatives = append(tentatives, tentative{
							source: src, target: tgt,
							arcrole: arc.Arcrole, role: link.Role,
							order: arc.Order, priority: arc.Priority, use: arc.Use,
							weight: weight, prefLbl: arc.PreferredLabel, seq: seq,
						})
						seq++
					}
					for _, rs := range resources {
						tentatives = append(tentatives, tentative{
							source: src, resource: rs,
							arcrole: arc.Arcrole, role: link.Role,
							order: arc.Order, priority: arc.Priority, use: arc.Use,
							seq: seq,
						})
						seq++
					}
				}
			}
		}
	}

	survivors := r.applyOverrides(tentatives)

	for _, t := range survivors {
		switch {
		case t.target != nil:
			rel := &Relationship{
				Source: t.source, Target: t.target,
				Arcrole: t.arcrole, Role: t.role,
				Order: t.order, Weight: t.weight, PreferredLabel: t.prefLbl,
			}
			d.rels = append(d.rels, rel)
			d.children[relKey{t.source, t.arcrole, t.role}] = append(d.children[relKey{t.source, t.arcrole, t.role}], rel)
			d.parents[relKey{t.target, t.arcrole, t.role}] = append(d.parents[relKey{t.target, t.arcrole, t.role}], rel)

		case t.resource != nil && t.arcrole == ArcroleConceptReference:
			d.refs[t.source] = append(d.refs[t.source], *t.resource)

		case t.resource != nil:
			lk := labelKey{t.source, t.resource.Role, t.resource.Lang}
			if _, ok := d.labels[lk]; !ok {
				d.labels[lk] = t.resource.Text
			}
			d.byConcept[t.source] = append(d.byConcept[t.source], ConceptLabel{
				Role: t.resource.Role,
				Lang: t.resource.Lang,
				Text: t.resource.Text,
			})
		}
	}

	// Siblings order by arc order ascending, discovery order tiebreak. The
	// slices were appended in discovery order, so a stable sort preserves
	// the tiebreak.
	for k := range d.children {
		sort.SliceStable(d.children[k], func(i, j int) bool {
			return d.children[k][i].Order < d.children[k][j].Order
		})
	}
	for k := range d.parents {
		sort.SliceStable(d.parents[k], func(i, j int) bool {
			return d.parents[k][i].Order < d.parents[k][j].Order
		})
	}
	return nil
}

func (r *Resolver) resolveLocators(lbURL string, locs []linkbase.Locator) []*Concept {
	var out []*Concept
	for _, loc := range locs {
		url, frag, ok := strings.Cut(loc.Href, "#")
		if !ok {
			r.dts.warn(WarnBrokenLocator, lbURL, "locator %q href %q has no fragment", loc.Label, loc.Href)
			continue
		}
		c, found := r.dts.ConceptByHref(url, frag)
		if !found {
			r.dts.warn(WarnBrokenLocator, lbURL, "locator %q points at unknown concept %s#%s", loc.Label, url, frag)
			continue
		}
		out = append(out, c)
	}
	return out
}

// applyOverrides groups tentative relationships by equivalence key and
// applies XBRL 2.1 prohibition/override: the highest priority wins; if any
// surviving member is prohibited the whole group is discarded; several
// surviving optional members is a warning, not an error, and the earliest
// discovered wins.
func (r *Resolver) applyOverrides(tentatives []tentative) []tentative {
	groups := lo.GroupBy(tentatives, func(t tentative) string { return t.key() })

	// Deterministic group processing order: by first discovery.
	keys := lo.Keys(groups)
	sort.Slice(keys, func(i, j int) bool {
		return groups[keys[i]][0].seq < groups[keys[j]][0].seq
	})

	var out []tentative
	for _, k := range keys {
		group := groups[k]
		maxPriority := lo.MaxBy(group, func(a, b tentative) bool { return a.priority > b.priority }).priority

		var survivors []tentative
		prohibited := false
		for _, t := range group {
			if t.priority != maxPriority {
				continue
			}
			if t.use == linkbase.UseProhibited {
				prohibited = true
				continue
			}
			survivors = append(survivors, t)
		}
		if prohibited {
			continue
		}
		if len(survivors) == 0 {
			continue
		}
		if len(survivors) > 1 {
			r.dts.warn(WarnAmbiguousOverride, survivors[0].source.SourceURL,
				"%d equivalent relationships from %s at priority %d; keeping the first discovered",
				len(survivors), survivors[0].source.Name, maxPriority)
		}
		best := lo.MinBy(survivors, func(a, b tentative) bool { return a.seq < b.seq })
		out = append(out, best)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// detectCycles flags cycles in the calculation and presentation networks.
// The data is kept as-is; consumers decide what a cycle means for them.
func (r *Resolver) detectCycles() {
	d := r.dts
	for _, spec := range []struct {
		arcrole string
		kind    WarningKind
		label   string
	}{
		{ArcroleSummationItem, WarnCalculationCycle, "calculation"},
		{ArcroleParentChild, WarnPresentationCycle, "presentation"},
	} {
		adj := map[*Concept][]*Relationship{}
		for _, rel := range d.rels {
			if rel.Arcrole == spec.arcrole {
				adj[rel.Source] = append(adj[rel.Source], rel)
			}
		}
		if cycleAt := findCycle(adj); cycleAt != nil {
			d.warn(spec.kind, cycleAt.SourceURL, "%s cycle through %s", spec.label, cycleAt.Name)
		}
	}
}

func findCycle(adj map[*Concept][]*Relationship) *Concept {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[*Concept]int{}

	var visit func(c *Concept) *Concept
	visit = func(c *Concept) *Concept {
		color[c] = gray
		for _, rel := range adj[c] {
			switch color[rel.Target] {
			case gray:
				return rel.Target
			case white:
				if hit := visit(rel.Target); hit != nil {
					return hit
				}
			}
		}
		color[c] = black
		return nil
	}

	for c := range adj {
		if color[c] == white {
			if hit := visit(c); hit != nil {
				return hit
			}
		}
	}
	return nil
}
