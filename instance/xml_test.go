package instance

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/xbrl/xmltree"
)

func TestParseInstanceXML(t *testing.T) {
	srv := filingServer(t, nil)
	p := newTestParser(t, Options{})

	inst, err := p.ParseInstance(context.Background(), srv.URL+"/filing/inst.xml")
	require.NoError(t, err)

	require.Len(t, inst.Facts, 3)
	assert.Len(t, inst.Contexts, 2)
	assert.Len(t, inst.Units, 2)

	assets := inst.Facts[0]
	assert.Equal(t, "Assets", assets.Concept.Name.Local)
	assert.Equal(t, "323888000000", assets.Value)
	assert.Equal(t, "-6", assets.Decimals)
	assert.Equal(t, "F1", assets.ID)
	require.NotNil(t, assets.Unit)
	assert.Equal(t, "iso4217:USD", assets.Unit.String(inst.Prefixes))

	ctx := assets.Context
	assert.Equal(t, "0000320193", ctx.Entity.Identifier)
	assert.Equal(t, "http://www.sec.gov/CIK", ctx.Entity.Scheme)
	assert.Equal(t, PeriodInstant, ctx.Period.Kind)
	assert.Equal(t, "2020-09-26", ctx.Period.Instant)

	require.Len(t, ctx.Segment, 1)
	member := ctx.Segment[0]
	assert.True(t, member.Explicit)
	assert.Equal(t, "SegmentAxis", member.Dimension.Name.Local)
	assert.Equal(t, "EuropeMember", member.Member.Name.Local)

	revenues := inst.Facts[1]
	assert.Equal(t, "INF", revenues.Decimals)
	assert.Equal(t, PeriodDuration, revenues.Context.Period.Kind)
	assert.Equal(t, "2019-09-29/2020-09-26", revenues.Context.Period.String())

	doc := inst.Facts[2]
	assert.Equal(t, "10-K", doc.Value)
	assert.Nil(t, doc.Unit)

	// Footnote reached the Assets fact through the footnote link.
	require.Len(t, assets.Footnotes, 1)
	assert.Equal(t, "Includes goodwill.", assets.Footnotes[0].Text)
	assert.Equal(t, "en-US", assets.Footnotes[0].Lang)

	// Divide unit parsed into numerator/denominator.
	ps := inst.Units["usdPerShare"]
	require.NotNil(t, ps)
	assert.True(t, ps.IsDivide())
	assert.Equal(t, "iso4217:USD/xbrli:shares", ps.String(inst.Prefixes))
}

func TestParseInstanceLocallyWithoutNetwork(t *testing.T) {
	path := writeLocalFiling(t, filingInstance)
	p := newTestParser(t, Options{})

	// No server exists at all: everything resolves from disk.
	inst, err := p.ParseInstanceLocally(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, inst.Facts, 3)
}

func TestContextKeyNormalization(t *testing.T) {
	srv := filingServer(t, nil)
	p := newTestParser(t, Options{})

	inst, err := p.ParseInstance(context.Background(), srv.URL+"/filing/inst.xml")
	require.NoError(t, err)

	a := inst.Contexts["AsOf2020"]
	b := inst.Contexts["FY2020"]
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), a.Key())
	assert.Contains(t, a.Key(), "0000320193")
}

func TestTypedMemberParsing(t *testing.T) {
	body := strings.Replace(filingInstance,
		`<xbrldi:explicitMember dimension="ex:SegmentAxis">ex:EuropeMember</xbrldi:explicitMember>`,
		`<xbrldi:typedMember dimension="ex:SegmentAxis"><ex:RegionCode>EU-27</ex:RegionCode></xbrldi:typedMember>`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	inst, err := p.ParseInstanceLocally(context.Background(), path)
	require.NoError(t, err)

	ctx := inst.Contexts["AsOf2020"]
	require.Len(t, ctx.Segment, 1)
	member := ctx.Segment[0]
	assert.False(t, member.Explicit)
	assert.Equal(t, "SegmentAxis", member.Dimension.Name.Local)
	assert.Equal(t, "RegionCode=EU-27", member.Typed)

	// Typed members participate in the context comparison key.
	assert.Contains(t, ctx.Key(), "RegionCode=EU-27")
}

func TestNumericFactWithoutUnitFails(t *testing.T) {
	body := strings.Replace(filingInstance,
		`<ex:Assets contextRef="AsOf2020" unitRef="usd" decimals="-6" id="F1">`,
		`<ex:Assets contextRef="AsOf2020" decimals="-6" id="F1">`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "without unitRef")
}

func TestDanglingContextRefFails(t *testing.T) {
	body := strings.Replace(filingInstance, `contextRef="AsOf2020" unitRef="usd"`, `contextRef="Nope" unitRef="usd"`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "dangling contextRef")
}

func TestDanglingUnitRefFails(t *testing.T) {
	body := strings.Replace(filingInstance, `unitRef="usd" decimals="-6"`, `unitRef="nope" decimals="-6"`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "dangling unitRef")
}

func TestUnknownConceptFails(t *testing.T) {
	body := strings.Replace(filingInstance,
		`<ex:DocumentType contextRef="FY2020" id="F3">10-K</ex:DocumentType>`,
		`<ex:Mystery contextRef="FY2020" id="F3">10-K</ex:Mystery>`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var uce *UnknownConceptError
	require.ErrorAs(t, err, &uce)
	assert.Contains(t, uce.Name, "Mystery")
}

func TestPeriodTypeMismatchFails(t *testing.T) {
	// Assets is an instant concept; pointing it at the duration context
	// violates the fact-consistency invariant.
	body := strings.Replace(filingInstance, `<ex:Assets contextRef="AsOf2020"`, `<ex:Assets contextRef="FY2020"`, 1)
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "periodType")
}

func TestMissingSchemaRefFails(t *testing.T) {
	body := `<?xml version="1.0"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"/>`
	path := writeLocalFiling(t, body)
	p := newTestParser(t, Options{})

	_, err := p.ParseInstanceLocally(context.Background(), path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "schemaRef")
}

func TestFactsFor(t *testing.T) {
	srv := filingServer(t, nil)
	p := newTestParser(t, Options{})

	inst, err := p.ParseInstance(context.Background(), srv.URL+"/filing/inst.xml")
	require.NoError(t, err)

	facts := inst.FactsFor(xmltree.QName{Space: "http://example.com/ex", Local: "Assets"})
	require.Len(t, facts, 1)
	assert.Equal(t, "323888000000", facts[0].Value)
}
