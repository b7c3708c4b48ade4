package instance

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
)

// DocumentTypeJSON is the fixed xBRL-JSON 2021 REC document type.
const DocumentTypeJSON = "https://xbrl.org/2021/xbrl-json"

// JSONOptions controls xBRL-JSON serialization.
type JSONOptions struct {
	// OverrideFactIDs replaces document fact ids with f1..fN in fact order.
	OverrideFactIDs bool

	// Indent, when non-empty, pretty-prints with the given indent.
	Indent string
}

// JSONDocument is the xBRL-JSON 2021 object.
type JSONDocument struct {
	DocumentInfo JSONDocumentInfo    `json:"documentInfo"`
	Facts        map[string]JSONFact `json:"facts"`
}

// JSONDocumentInfo describes the document and its taxonomy entry points in
// discovery order.
type JSONDocumentInfo struct {
	DocumentType string   `json:"documentType"`
	Taxonomy     []string `json:"taxonomy"`
	BaseURL      string   `json:"baseUrl,omitempty"`
}

// JSONFact is one fact in xBRL-JSON form.
type JSONFact struct {
	Value      string            `json:"value"`
	Decimals   *int              `json:"decimals,omitempty"`
	Dimensions map[string]string `json:"dimensions"`
}

// JSON serializes the instance as xBRL-JSON.
func (i *Instance) JSON(opts JSONOptions) ([]byte, error) {
	doc := i.jsonDocument(opts)
	if opts.Indent != "" {
		return json.MarshalIndent(doc, "", opts.Indent)
	}
	return json.Marshal(doc)
}

func (i *Instance) jsonDocument(opts JSONOptions) *JSONDocument {
	doc := &JSONDocument{
		DocumentInfo: JSONDocumentInfo{
			DocumentType: DocumentTypeJSON,
			Taxonomy:     i.DTS.SchemaURLs(),
			BaseURL:      i.SourceURL,
		},
		Facts: map[string]JSONFact{},
	}

	// Tuples are flattened: xBRL-JSON has no tuple construct, so member
	// facts surface individually.
	flat := flatten(i.Facts)

	for n, f := range flat {
		id := f.ID
		if id == "" || opts.OverrideFactIDs {
			id = "f" + strconv.Itoa(n+1)
		}
		doc.Facts[id] = i.jsonFact(f)
	}
	return doc
}

func flatten(facts []*Fact) []*Fact {
	var out []*Fact
	for _, f := range facts {
		if f.IsTuple() {
			out = append(out, flatten(f.Children)...)
			continue
		}
		out = append(out, f)
	}
	return out
}

func (i *Instance) jsonFact(f *Fact) JSONFact {
	dims := map[string]string{}
	if f.Concept != nil {
		dims["concept"] = prefixed(f.Concept.Name, i.Prefixes)
	}
	if f.Context != nil {
		dims["entity"] = f.Context.Entity.Identifier
		if p := f.Context.Period.String(); p != "" {
			dims["period"] = p
		}
		for _, m := range f.Context.Members() {
			key := "dim:" + prefixed(m.Dimension.Name, i.Prefixes)
			if m.Explicit {
				dims[key] = prefixed(m.Member.Name, i.Prefixes)
			} else {
				dims[key] = m.Typed
			}
		}
	}
	if f.Unit != nil {
		dims["unit"] = f.Unit.String(i.Prefixes)
	}
	if f.Lang != "" {
		dims["language"] = f.Lang
	}

	jf := JSONFact{Value: f.Value, Dimensions: dims}
	// INF means exact; xBRL-JSON expresses that by omitting decimals.
	if f.Decimals != "" && f.Decimals != "INF" {
		if d, err := strconv.Atoi(f.Decimals); err == nil {
			jf.Decimals = &d
		}
	}
	return jf
}

// ReadJSON parses an xBRL-JSON document produced by JSON. It validates the
// document type and returns the raw object for consumers and round-trip
// checks.
func ReadJSON(data []byte) (*JSONDocument, error) {
	var doc JSONDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "instance: parse xbrl-json")
	}
	if doc.DocumentInfo.DocumentType != DocumentTypeJSON {
		return nil, eris.Errorf("instance: unsupported document type %q", doc.DocumentInfo.DocumentType)
	}
	return &doc, nil
}

// FactIDs returns the document's fact ids in stable iteration order:
// numeric-suffix aware, so f2 sorts before f10.
func (d *JSONDocument) FactIDs() []string {
	numeric := func(s string) (int, bool) {
		if len(s) < 2 || s[0] != 'f' {
			return 0, false
		}
		n, err := strconv.Atoi(s[1:])
		return n, err == nil
	}

	keys := lo.Keys(d.Facts)
	sort.Slice(keys, func(i, j int) bool {
		na, oka := numeric(keys[i])
		nb, okb := numeric(keys[j])
		if oka && okb {
			return na < nb
		}
		if oka != okb {
			return oka
		}
		return keys[i] < keys[j]
	})
	return keys
}
