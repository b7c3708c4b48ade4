package instance

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/xbrl/cache"
	"github.com/sells-group/xbrl/taxonomy"
	"github.com/sells-group/xbrl/transform"
	"github.com/sells-group/xbrl/xmltree"
)

// NumericParseError reports a numeric fact whose value is not a decimal
// number after transform and scale.
type NumericParseError struct {
	URL    string
	FactID string
	Value  string
}

func (e *NumericParseError) Error() string {
	return fmt.Sprintf("instance: %s: fact %s: malformed numeric value %q", e.URL, e.FactID, e.Value)
}

// Filings embed megabytes of JavaScript; it can contain markup fragments
// that confuse extraction, so it goes before parsing.
var scriptRe = regexp.MustCompile(`(?is)<\s*script.*?/\s*script\s*>`)

// parseIXBRL extracts facts from an Inline XBRL HTML document.
func parseIXBRL(ctx context.Context, data []byte, sourceURL string, c *cache.Cache, opts Options) (*Instance, error) {
	cleaned := scriptRe.ReplaceAll(data, nil)

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(cleaned))
	if err != nil {
		return nil, &xmltree.WellFormednessError{SourceURL: sourceURL, Err: err}
	}

	// Every link:schemaRef — in ix:header and in ix:references — feeds the
	// DTS entry set.
	var entries []string
	gq.Find(`link\:schemaref`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := attrFold(s, "xlink:href"); ok && href != "" {
			entries = append(entries, xmltree.ResolveURI(sourceURL, href))
		}
	})
	if len(entries) == 0 {
		return nil, &ValidationError{URL: sourceURL, Message: "no link:schemaRef found"}
	}

	dts, err := taxonomy.Resolve(ctx, c, entries...)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		SourceURL: sourceURL,
		DTS:       dts,
		Contexts:  map[string]*Context{},
		Units:     map[string]*Unit{},
		Prefixes:  map[string]string{},
	}

	// Contexts and units live in the header's resources; parse them through
	// the same code path as classic instances.
	var parseErr error
	gq.Find(`xbrli\:context`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		el := htmlToElement(s.Nodes[0], nsScope(s.Nodes[0]), sourceURL)
		cx, err := parseContext(ctx, el, dts, sourceURL)
		if err != nil {
			parseErr = err
			return false
		}
		inst.Contexts[cx.ID] = cx
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	gq.Find(`xbrli\:unit`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		el := htmlToElement(s.Nodes[0], nsScope(s.Nodes[0]), sourceURL)
		u, err := parseUnit(el, sourceURL)
		if err != nil {
			parseErr = err
			return false
		}
		inst.Units[u.ID] = u
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	// Collect the document's prefix bindings for rendering qualified names.
	if root := gq.Find("html"); len(root.Nodes) > 0 {
		inst.Prefixes = invertScope(nsScope(root.Nodes[0]))
	}

	// Hidden facts are native XBRL elements inside ix:hidden.
	gq.Find(`ix\:hidden`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for n := s.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
			if n.Type != html.ElementNode {
				continue
			}
			el := htmlToElement(n, nsScope(n), sourceURL)
			if el.Name.Space == NSXBRLI || el.Name.Space == NSIX {
				continue
			}
			fact, err := parseNativeFact(ctx, el, inst, opts)
			if err != nil {
				parseErr = err
				return false
			}
			if fact != nil {
				inst.Facts = append(inst.Facts, fact)
			}
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	continuations := map[string]*html.Node{}
	gq.Find(`ix\:continuation`).Each(func(_ int, s *goquery.Selection) {
		if id, ok := attrFold(s, "id"); ok {
			continuations[id] = s.Nodes[0]
		}
	})

	footnotes := map[string]*Footnote{}
	gq.Find(`ix\:footnote`).Each(func(_ int, s *goquery.Selection) {
		id, _ := attrFold(s, "id")
		lang, _ := attrFold(s, "xml:lang")
		fn := &Footnote{ID: id, Lang: lang, Text: strings.TrimSpace(s.Text())}
		if id != "" {
			footnotes[id] = fn
		}
		inst.Footnotes = append(inst.Footnotes, fn)
	})

	// Displayed facts and tuples, in document order.
	tuples := map[string]*Fact{}
	type pending struct {
		fact     *Fact
		tupleRef string
		order    float64
	}
	var ordered []pending

	gq.Find(`ix\:nonfraction, ix\:nonnumeric, ix\:tuple`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Nodes[0]
		scope := nsScope(n)

		fact, err := parseInlineFact(ctx, n, scope, inst, continuations, opts)
		if err != nil {
			parseErr = err
			return false
		}
		if fact == nil {
			return true
		}

		if tupleID, ok := attrFold(s, "tupleid"); ok && tupleID != "" {
			tuples[tupleID] = fact
		}
		ref, _ := attrFold(s, "tupleref")
		order := 0.0
		if o, ok := attrFold(s, "order"); ok {
			order, _ = strconv.ParseFloat(strings.TrimSpace(o), 64)
		}
		ordered = append(ordered, pending{fact: fact, tupleRef: ref, order: order})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	childOrder := map[*Fact]float64{}
	for _, p := range ordered {
		if p.tupleRef != "" {
			if parent, ok := tuples[p.tupleRef]; ok {
				parent.Children = append(parent.Children, p.fact)
				childOrder[p.fact] = p.order
				continue
			}
			zap.L().Warn("instance: tupleRef to unknown tuple",
				zap.String("url", sourceURL),
				zap.String("tuple", p.tupleRef),
			)
		}
		inst.Facts = append(inst.Facts, p.fact)
	}
	for _, tuple := range tuples {
		sort.SliceStable(tuple.Children, func(i, j int) bool {
			return childOrder[tuple.Children[i]] < childOrder[tuple.Children[j]]
		})
	}

	// ix:relationship attaches footnotes to facts by id.
	factsByID := map[string]*Fact{}
	for _, f := range inst.Facts {
		if f.ID != "" {
			factsByID[f.ID] = f
		}
	}
	gq.Find(`ix\:relationship`).Each(func(_ int, s *goquery.Selection) {
		from, _ := attrFold(s, "fromrefs")
		to, _ := attrFold(s, "torefs")
		for _, factID := range strings.Fields(from) {
			fact, ok := factsByID[factID]
			if !ok {
				continue
			}
			for _, noteID := range strings.Fields(to) {
				if fn, ok := footnotes[noteID]; ok {
					fact.Footnotes = append(fact.Footnotes, fn)
				}
			}
		}
	})

	zap.L().Info("instance: parsed inline",
		zap.String("url", sourceURL),
		zap.Int("facts", len(inst.Facts)),
		zap.Int("contexts", len(inst.Contexts)),
	)
	return inst, nil
}

func parseInlineFact(ctx context.Context, n *html.Node, scope map[string]string, inst *Instance,
	continuations map[string]*html.Node, opts Options) (*Fact, error) {

	name := nodeAttr(n, "name")
	local := localName(n)
	isTuple := local == "tuple"
	if name == "" && !isTuple {
		return nil, &ValidationError{URL: inst.SourceURL, Message: "ix:" + local + " without name"}
	}

	fact := &Fact{
		ID:  nodeAttr(n, "id"),
		Nil: strings.EqualFold(nodeAttr(n, "xsi:nil"), "true"),
	}

	if name != "" {
		q, err := resolvePrefixed(name, scope)
		if err != nil {
			return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: err.Error()}
		}
		concept, err := conceptFor(ctx, inst.DTS, q, inst.SourceURL)
		if err != nil {
			return nil, err
		}
		fact.Concept = concept
	}

	if isTuple {
		// Children attach later through their tupleRef.
		return fact, nil
	}

	ctxRef := strings.TrimSpace(nodeAttr(n, "contextref"))
	cx, ok := inst.Contexts[ctxRef]
	if !ok {
		return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "dangling contextRef " + ctxRef}
	}
	fact.Context = cx
	if !cx.Period.Matches(fact.Concept.PeriodType) {
		return nil, &ValidationError{
			URL: inst.SourceURL, FactID: fact.ID,
			Message: "context period does not match periodType " + fact.Concept.PeriodType.String() + " of " + fact.Concept.Name.Local,
		}
	}

	value, err := chainedText(n, continuations)
	if err != nil {
		return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: err.Error()}
	}
	value = strings.TrimSpace(value)

	format := nodeAttr(n, "format")
	src := &InlineSource{Format: format, Sign: nodeAttr(n, "sign")}
	if v := nodeAttr(n, "scale"); v != "" {
		scale, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "bad scale " + v}
		}
		src.Scale = scale
	}
	fact.Source = src
	fact.Decimals = normalizeDecimals(nodeAttr(n, "decimals"))
	fact.Precision = strings.TrimSpace(nodeAttr(n, "precision"))

	if format != "" && !fact.Nil {
		transformed, err := applyFormat(format, value, scope)
		if err != nil {
			if !opts.LenientTransforms {
				return nil, err
			}
			zap.L().Warn("instance: transform failed, keeping display text",
				zap.String("url", inst.SourceURL),
				zap.String("fact", fact.ID),
				zap.Error(err),
			)
		} else {
			value = transformed
		}
	}

	if localName(n) == "nonfraction" {
		unitRef := strings.TrimSpace(nodeAttr(n, "unitref"))
		if unitRef == "" {
			return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "numeric fact without unitRef: " + fact.Concept.Name.Local}
		}
		u, ok := inst.Units[unitRef]
		if !ok {
			return nil, &ValidationError{URL: inst.SourceURL, FactID: fact.ID, Message: "dangling unitRef " + unitRef}
		}
		fact.Unit = u

		if !fact.Nil {
			scaled, err := applyScaleSign(value, src.Scale, src.Sign)
			if err != nil {
				if !opts.LenientTransforms {
					return nil, &NumericParseError{URL: inst.SourceURL, FactID: fact.ID, Value: value}
				}
				zap.L().Warn("instance: malformed numeric, keeping display text",
					zap.String("url", inst.SourceURL),
					zap.String("fact", fact.ID),
					zap.String("value", value),
				)
				scaled = value
			}
			fact.Value = scaled
		}
		return fact, nil
	}

	if lang, ok := langFor(n); ok {
		fact.Lang = lang
	}
	if !fact.Nil {
		fact.Value = value
	}
	return fact, nil
}

func applyFormat(format, value string, scope map[string]string) (string, error) {
	prefix, local := "", format
	if i := strings.Index(format, ":"); i >= 0 {
		prefix, local = format[:i], format[i+1:]
	}
	ns, ok := scope[strings.ToLower(prefix)]
	if !ok {
		return "", &transform.UnknownFormatError{Registry: prefix, Format: local}
	}
	return transform.Apply(ns, local, value)
}

// chainedText concatenates the element's descendant text with its
// continuation chain. Continuation cycles are an error.
func chainedText(n *html.Node, continuations map[string]*html.Node) (string, error) {
	var b strings.Builder
	inlineText(n, &b)

	seen := map[string]bool{}
	next := nodeAttr(n, "continuedat")
	for next != "" {
		if seen[next] {
			return "", eris.Errorf("continuation cycle at %q", next)
		}
		seen[next] = true
		cont, ok := continuations[next]
		if !ok {
			return "", eris.Errorf("continuation %q not found", next)
		}
		inlineText(cont, &b)
		next = nodeAttr(cont, "continuedat")
	}
	return b.String(), nil
}

// inlineText collects descendant text in document order, skipping
// ix:exclude subtrees.
func inlineText(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if c.Data == "ix:exclude" {
				continue
			}
			inlineText(c, b)
		}
	}
}

func localName(n *html.Node) string {
	if i := strings.Index(n.Data, ":"); i >= 0 {
		return n.Data[i+1:]
	}
	return n.Data
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func attrFold(s *goquery.Selection, key string) (string, bool) {
	return s.Attr(strings.ToLower(key))
}

func langFor(n *html.Node) (string, bool) {
	for cur := n; cur != nil; cur = cur.Parent {
		if v := nodeAttr(cur, "xml:lang"); v != "" {
			return v, true
		}
		if v := nodeAttr(cur, "lang"); v != "" {
			return v, true
		}
	}
	return "", false
}

func resolvePrefixed(value string, scope map[string]string) (xmltree.QName, error) {
	prefix, local := "", value
	if i := strings.Index(value, ":"); i >= 0 {
		prefix, local = value[:i], value[i+1:]
	}
	uri, ok := scope[strings.ToLower(prefix)]
	if !ok {
		return xmltree.QName{}, eris.Errorf("undeclared namespace prefix %q in %q", prefix, value)
	}
	return xmltree.QName{Space: uri, Local: local}, nil
}

// nsScope walks from the node to the document root collecting xmlns
// declarations; the nearest declaration of a prefix wins.
func nsScope(n *html.Node) map[string]string {
	scope := map[string]string{"xml": xmltree.XMLNamespace}
	for cur := n; cur != nil; cur = cur.Parent {
		for _, a := range cur.Attr {
			switch {
			case a.Key == "xmlns":
				if _, ok := scope[""]; !ok {
					scope[""] = a.Val
				}
			case strings.HasPrefix(a.Key, "xmlns:"):
				prefix := a.Key[len("xmlns:"):]
				if _, ok := scope[prefix]; !ok {
					scope[prefix] = a.Val
				}
			}
		}
	}
	return scope
}

func invertScope(scope map[string]string) map[string]string {
	out := make(map[string]string, len(scope))
	for p, uri := range scope {
		if cur, ok := out[uri]; !ok || len(p) < len(cur) {
			out[uri] = p
		}
	}
	return out
}

// htmlToElement reconstructs an xmltree.Element from an HTML node so the
// header's contexts, units, and hidden facts run through the same parsing
// as classic instances. The HTML parser lowercases names; Element lookups
// fall back to case-insensitive matching to compensate.
func htmlToElement(n *html.Node, scope map[string]string, sourceURL string) *xmltree.Element {
	// Fork the scope when this node declares bindings.
	declares := false
	for _, a := range n.Attr {
		if a.Key == "xmlns" || strings.HasPrefix(a.Key, "xmlns:") {
			declares = true
			break
		}
	}
	if declares {
		fork := make(map[string]string, len(scope)+2)
		for k, v := range scope {
			fork[k] = v
		}
		for _, a := range n.Attr {
			if a.Key == "xmlns" {
				fork[""] = a.Val
			} else if strings.HasPrefix(a.Key, "xmlns:") {
				fork[a.Key[len("xmlns:"):]] = a.Val
			}
		}
		scope = fork
	}

	prefix, local := "", n.Data
	if i := strings.Index(n.Data, ":"); i >= 0 {
		prefix, local = n.Data[:i], n.Data[i+1:]
	}

	el := &xmltree.Element{
		Name:      xmltree.QName{Space: scope[prefix], Local: local},
		Scope:     scope,
		SourceURL: sourceURL,
	}

	for _, a := range n.Attr {
		if a.Key == "xmlns" || strings.HasPrefix(a.Key, "xmlns:") {
			continue
		}
		ap, al := "", a.Key
		if i := strings.Index(a.Key, ":"); i >= 0 {
			ap, al = a.Key[:i], a.Key[i+1:]
		}
		space := ""
		if ap != "" {
			space = scope[ap]
		}
		if space == xmltree.XMLNamespace && al == "lang" {
			el.Lang = a.Val
		}
		el.Attrs = append(el.Attrs, xmltree.Attr{
			Name:  xmltree.QName{Space: space, Local: al},
			Value: a.Val,
		})
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			el.Text += c.Data
		case html.ElementNode:
			el.Children = append(el.Children, htmlToElement(c, scope, sourceURL))
		}
	}
	return el
}
