package instance

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/xbrl/cache"
)

// filingSchema declares the concepts the instance fixtures tag against.
const filingSchema = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:xbrldt="http://xbrl.org/2005/xbrldt"
    targetNamespace="http://example.com/ex">
  <xs:element id="ex_Assets" name="Assets" substitutionGroup="xbrli:item"
      type="xbrli:monetaryItemType" xbrli:periodType="instant" xbrli:balance="debit" nillable="true"/>
  <xs:element id="ex_Revenues" name="Revenues" substitutionGroup="xbrli:item"
      type="xbrli:monetaryItemType" xbrli:periodType="duration" xbrli:balance="credit" nillable="true"/>
  <xs:element id="ex_DocumentType" name="DocumentType" substitutionGroup="xbrli:item"
      type="xbrli:stringItemType" xbrli:periodType="duration"/>
  <xs:element id="ex_AcquisitionDate" name="AcquisitionDate" substitutionGroup="xbrli:item"
      type="xbrli:dateItemType" xbrli:periodType="duration"/>
  <xs:element id="ex_SegmentAxis" name="SegmentAxis" substitutionGroup="xbrldt:dimensionItem"
      type="xbrli:stringItemType" xbrli:periodType="duration" abstract="true"/>
  <xs:element id="ex_EuropeMember" name="EuropeMember" substitutionGroup="xbrli:item"
      type="xbrli:stringItemType" xbrli:periodType="duration" abstract="true"/>
  <xs:element id="ex_Disclosure" name="Disclosure" substitutionGroup="xbrli:tuple"/>
</xs:schema>`

const filingInstance = `<?xml version="1.0"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:link="http://www.xbrl.org/2003/linkbase"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:xbrldi="http://xbrl.org/2006/xbrldi"
    xmlns:iso4217="http://www.xbrl.org/2003/iso4217"
    xmlns:ex="http://example.com/ex">
  <link:schemaRef xlink:type="simple" xlink:href="ext.xsd"/>
  <xbrli:context id="AsOf2020">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier>
      <xbrli:segment>
        <xbrldi:explicitMember dimension="ex:SegmentAxis">ex:EuropeMember</xbrldi:explicitMember>
      </xbrli:segment>
    </xbrli:entity>
    <xbrli:period><xbrli:instant>2020-09-26</xbrli:instant></xbrli:period>
  </xbrli:context>
  <xbrli:context id="FY2020">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier>
    </xbrli:entity>
    <xbrli:period>
      <xbrli:startDate>2019-09-29</xbrli:startDate>
      <xbrli:endDate>2020-09-26</xbrli:endDate>
    </xbrli:period>
  </xbrli:context>
  <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
  <xbrli:unit id="usdPerShare">
    <xbrli:divide>
      <xbrli:unitNumerator><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unitNumerator>
      <xbrli:unitDenominator><xbrli:measure>xbrli:shares</xbrli:measure></xbrli:unitDenominator>
    </xbrli:divide>
  </xbrli:unit>
  <ex:Assets contextRef="AsOf2020" unitRef="usd" decimals="-6" id="F1">323888000000</ex:Assets>
  <ex:Revenues contextRef="FY2020" unitRef="usd" decimals="INF" id="F2">274515000000</ex:Revenues>
  <ex:DocumentType contextRef="FY2020" id="F3">10-K</ex:DocumentType>
  <link:footnoteLink xlink:type="extended" xlink:role="http://www.xbrl.org/2003/role/link">
    <link:loc xlink:type="locator" xlink:href="#F1" xlink:label="fact1"/>
    <link:footnote id="fn1" xlink:type="resource" xlink:label="note1"
        xlink:role="http://www.xbrl.org/2003/role/footnote" xml:lang="en-US">Includes goodwill.</link:footnote>
    <link:footnoteArc xlink:type="arc" xlink:arcrole="http://www.xbrl.org/2003/arcrole/fact-footnote"
        xlink:from="fact1" xlink:to="note1"/>
  </link:footnoteLink>
</xbrli:xbrl>`

func filingServer(t *testing.T, extra map[string]string) *httptest.Server {
	t.Helper()
	files := map[string]string{
		"/filing/ext.xsd":  filingSchema,
		"/filing/inst.xml": filingInstance,
	}
	for k, v := range extra {
		files[k] = v
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := files[r.URL.Path]; ok {
			w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestParser(t *testing.T, opts Options) *Parser {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	p, err := NewParser(c, opts)
	require.NoError(t, err)
	return p
}

// writeLocalFiling writes the schema and an instance body to one directory
// so relative schemaRefs resolve from disk without network.
func writeLocalFiling(t *testing.T, instanceBody string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ext.xsd"), []byte(filingSchema), 0o644))
	path := filepath.Join(dir, "inst.xml")
	require.NoError(t, os.WriteFile(path, []byte(instanceBody), 0o644))
	return path
}
