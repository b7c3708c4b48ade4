package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/xbrl/linkbase"
	"github.com/sells-group/xbrl/xmltree"
)

const extensionSchema = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    xmlns:link="http://www.xbrl.org/2003/linkbase"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:xbrldt="http://xbrl.org/2005/xbrldt"
    xmlns:ex="http://example.com/ext"
    targetNamespace="http://example.com/ext">
  <xs:annotation>
    <xs:appinfo>
      <link:linkbaseRef xlink:type="simple" xlink:role="http://www.xbrl.org/2003/role/labelLinkbaseRef" xlink:href="ext_lab.xml"/>
      <link:linkbaseRef xlink:type="simple" xlink:href="ext_pre.xml"/>
      <link:roleType id="BalanceSheet" roleURI="http://example.com/role/BalanceSheet">
        <link:definition>1001000 - Statement - Balance Sheet</link:definition>
        <link:usedOn>link:presentationLink</link:usedOn>
      </link:roleType>
    </xs:appinfo>
  </xs:annotation>
  <xs:import namespace="http://example.com/base" schemaLocation="../base/base.xsd"/>
  <xs:element id="ex_Assets" name="Assets" nillable="true" abstract="false"
      substitutionGroup="xbrli:item" type="xbrli:monetaryItemType"
      xbrli:balance="debit" xbrli:periodType="instant" ex:source="extension"/>
  <xs:element id="ex_SegmentAxis" name="SegmentAxis" substitutionGroup="xbrldt:dimensionItem"
      type="xbrli:stringItemType" xbrli:periodType="duration" abstract="true"/>
  <xs:element id="ex_Disclosure" name="Disclosure" substitutionGroup="xbrli:tuple"/>
</xs:schema>`

func TestParseSchema(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(extensionSchema), "http://example.com/ext/ext.xsd")
	require.NoError(t, err)

	s, err := ParseSchema(doc)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/ext", s.TargetNamespace)
	assert.Equal(t, []string{"http://example.com/base/base.xsd"}, s.Imports)

	require.Len(t, s.LinkbaseRefs, 2)
	assert.Equal(t, "http://example.com/ext/ext_lab.xml", s.LinkbaseRefs[0].URL)
	assert.Equal(t, linkbase.Label, s.LinkbaseRefs[0].Type)
	// No role: type guessed from the filename.
	assert.Equal(t, linkbase.Presentation, s.LinkbaseRefs[1].Type)

	require.Len(t, s.RoleTypes, 1)
	assert.Equal(t, "BalanceSheet", s.RoleTypes[0].ID)
	assert.Equal(t, "http://example.com/role/BalanceSheet", s.RoleTypes[0].URI)
	assert.Equal(t, "1001000 - Statement - Balance Sheet", s.RoleTypes[0].Definition)

	require.Len(t, s.Concepts, 3)
	assets := s.Concepts[0]
	assert.Equal(t, "ex_Assets", assets.ID)
	assert.Equal(t, xmltree.QName{Space: "http://example.com/ext", Local: "Assets"}, assets.Name)
	assert.Equal(t, xmltree.QName{Space: NSXBRLI, Local: "monetaryItemType"}, assets.Type)
	assert.Equal(t, xmltree.QName{Space: NSXBRLI, Local: "item"}, assets.SubstitutionGroup)
	assert.Equal(t, PeriodInstant, assets.PeriodType)
	assert.Equal(t, BalanceDebit, assets.Balance)
	assert.True(t, assets.Nillable)
	assert.False(t, assets.Abstract)
	assert.True(t, assets.IsNumeric())
	// Extension attributes survive as raw attrs.
	assert.Equal(t, "extension", assets.Attrs[xmltree.QName{Space: "http://example.com/ext", Local: "source"}])

	axis := s.Concepts[1]
	assert.Equal(t, xmltree.QName{Space: NSXBRLDT, Local: "dimensionItem"}, axis.SubstitutionGroup)
	assert.True(t, axis.Abstract)
	assert.False(t, axis.IsNumeric())
}

func TestParseSchemaDuplicateLocalName(t *testing.T) {
	dup := `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:x">
  <xs:element id="a" name="Assets"/>
  <xs:element id="b" name="Assets"/>
</xs:schema>`
	doc, err := xmltree.Parse(strings.NewReader(dup), "urn.xsd")
	require.NoError(t, err)

	_, err = ParseSchema(doc)
	var dce *DuplicateConceptError
	require.ErrorAs(t, err, &dce)
	assert.Equal(t, "Assets", dce.Name.Local)
}

func TestParseSchemaRejectsWrongRoot(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(`<not-a-schema/>`), "x.xsd")
	require.NoError(t, err)
	_, err = ParseSchema(doc)
	assert.Error(t, err)
}
