// Package taxonomy parses XBRL taxonomy schemas and resolves the DTS: the
// transitive closure of schemas and linkbases reachable from a filing's
// entry-point schema, stitched into one navigable concept graph.
package taxonomy

import (
	"fmt"

	"github.com/sells-group/xbrl/xmltree"
)

// Namespaces used by schema parsing.
const (
	NSXSD    = "http://www.w3.org/2001/XMLSchema"
	NSXBRLI  = "http://www.xbrl.org/2003/instance"
	NSXBRLDT = "http://xbrl.org/2005/xbrldt"
)

// Standard label roles.
const (
	RoleStandardLabel = "http://www.xbrl.org/2003/role/label"
	RoleTerseLabel    = "http://www.xbrl.org/2003/role/terseLabel"
	RoleDocumentation = "http://www.xbrl.org/2003/role/documentation"
)

// Standard arcroles.
const (
	ArcroleConceptLabel     = "http://www.xbrl.org/2003/arcrole/concept-label"
	ArcroleConceptReference = "http://www.xbrl.org/2003/arcrole/concept-reference"
	ArcroleParentChild      = "http://www.xbrl.org/2003/arcrole/parent-child"
	ArcroleSummationItem    = "http://www.xbrl.org/2003/arcrole/summation-item"
	ArcroleFactFootnote     = "http://www.xbrl.org/2003/arcrole/fact-footnote"
)

// PeriodType is the xbrli:periodType of a concept.
type PeriodType int

const (
	PeriodNone PeriodType = iota
	PeriodInstant
	PeriodDuration
)

func (p PeriodType) String() string {
	switch p {
	case PeriodInstant:
		return "instant"
	case PeriodDuration:
		return "duration"
	}
	return "none"
}

// Balance is the xbrli:balance of a concept.
type Balance int

const (
	BalanceNone Balance = iota
	BalanceDebit
	BalanceCredit
)

func (b Balance) String() string {
	switch b {
	case BalanceDebit:
		return "debit"
	case BalanceCredit:
		return "credit"
	}
	return "none"
}

// Kind classifies a concept by its substitution-group chain.
type Kind int

const (
	KindUnknown Kind = iota
	KindItem
	KindTuple
	KindDimension
	KindHypercube
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindTuple:
		return "tuple"
	case KindDimension:
		return "dimension"
	case KindHypercube:
		return "hypercube"
	}
	return "unknown"
}

// Concept is a declared reportable element. Concepts are immutable once
// their schema is parsed; the resolver classifies Kind at finalize when the
// whole substitution-group chain is known.
type Concept struct {
	// ID is the xml id within the declaring schema; linkbase locators
	// address concepts by SourceURL#ID.
	ID string

	// Name is the globally unique (namespace, local name) pair.
	Name xmltree.QName

	SourceURL         string
	Type              xmltree.QName
	SubstitutionGroup xmltree.QName
	PeriodType        PeriodType
	Balance           Balance
	Nillable          bool
	Abstract          bool

	// Attrs carries extension-taxonomy attributes verbatim.
	Attrs map[xmltree.QName]string

	kind Kind
}

func (c *Concept) String() string {
	return c.Name.Local
}

// Kind returns the substitution-group classification. Valid after the DTS
// is resolved.
func (c *Concept) Kind() Kind { return c.kind }

// numericTypes lists the xbrli item types whose facts carry units.
var numericTypes = map[string]bool{
	"monetaryItemType":         true,
	"sharesItemType":           true,
	"decimalItemType":          true,
	"integerItemType":          true,
	"intItemType":              true,
	"longItemType":             true,
	"shortItemType":            true,
	"floatItemType":            true,
	"doubleItemType":           true,
	"pureItemType":             true,
	"percentItemType":          true,
	"perShareItemType":         true,
	"nonNegativeIntegerItemType": true,
	"positiveIntegerItemType":  true,
	"nonNegativeMonetaryItemType": true,
	"energyItemType":           true,
	"powerItemType":            true,
	"massItemType":             true,
	"volumeItemType":           true,
	"areaItemType":             true,
}

// IsNumeric reports whether facts of this concept are numeric items and
// therefore require a unit.
func (c *Concept) IsNumeric() bool {
	return numericTypes[c.Type.Local]
}

// sameDeclaration reports whether two declarations of one (namespace, name)
// are consistent; inconsistent redeclaration is an error.
func sameDeclaration(a, b *Concept) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		a.SubstitutionGroup == b.SubstitutionGroup &&
		a.PeriodType == b.PeriodType &&
		a.Balance == b.Balance &&
		a.Abstract == b.Abstract
}

// DuplicateConceptError reports an inconsistent redeclaration of one
// qualified name across the DTS.
type DuplicateConceptError struct {
	Name   xmltree.QName
	First  string
	Second string
}

func (e *DuplicateConceptError) Error() string {
	return fmt.Sprintf("taxonomy: concept %s declared inconsistently in %s and %s", e.Name, e.First, e.Second)
}
