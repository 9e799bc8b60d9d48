package ooxml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/redactor/model"
)

const chartRels = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/package" Target="../embeddings/Book1.xlsx"/>` +
	`</Relationships>`

const chartPart = `<c:chartSpace xmlns:c="urn:c" xmlns:a="urn:a" xmlns:r="urn:r"><c:chart>` +
	`<c:title><c:tx><c:rich><a:p><a:r><a:t xml:space="preserve">Pay for </a:t></a:r><a:r><a:t>jane.roe@example.com</a:t></a:r></a:p></c:rich></c:tx></c:title>` +
	`<c:plotArea><c:barChart><c:ser>` +
	`<c:tx><c:strRef><c:f>Sheet1!$B$1</c:f><c:strCache><c:ptCount val="1"/><c:pt idx="0"><c:v>jane.roe@example.com</c:v></c:pt></c:strCache></c:strRef></c:tx>` +
	`<c:val><c:numRef><c:f>Sheet1!$B$2</c:f><c:numCache><c:ptCount val="1"/><c:pt idx="0"><c:v>123456789</c:v></c:pt></c:numCache></c:numRef></c:val>` +
	`</c:ser></c:barChart></c:plotArea></c:chart>` +
	`<c:externalData r:id="rId1"/></c:chartSpace>`

const drawingPart = `<xdr:wsDr xmlns:xdr="urn:xdr" xmlns:a="urn:a"><xdr:twoCellAnchor><xdr:sp>` +
	`<xdr:nvSpPr><xdr:cNvPr id="2" name="Box" descr="photo of Jane Roe"/></xdr:nvSpPr>` +
	`<xdr:txBody><a:p><a:r><a:t>Call 555-0100</a:t></a:r><a:br/><a:r><a:t>today</a:t></a:r></a:p></xdr:txBody>` +
	`</xdr:sp></xdr:twoCellAnchor></xdr:wsDr>`

func graphicPackage(t *testing.T) *Package {
	t.Helper()
	docRels := `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart" Target="charts/chart1.xml"/>` +
		`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/drawing" Target="drawings/drawing1.xml"/>` +
		`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart" Target="charts/chart1.xml"/>` +
		`</Relationships>`
	pkg, err := Open(buildZip(t,
		[2]string{ContentTypes, contentTypes},
		[2]string{"_rels/.rels", rootRels},
		[2]string{"word/document.xml", `<w:document xmlns:w="urn:w"><w:body/></w:document>`},
		[2]string{"word/_rels/document.xml.rels", docRels},
		[2]string{"word/charts/chart1.xml", chartPart},
		[2]string{"word/charts/_rels/chart1.xml.rels", chartRels},
		[2]string{"word/drawings/drawing1.xml", drawingPart},
		[2]string{"word/embeddings/Book1.xlsx", "PK\x03\x04embedded"},
	))
	require.NoError(t, err)
	return pkg
}

func graphicUnits(t *testing.T, pkg *Package) map[string]Unit {
	t.Helper()
	parts, err := pkg.GraphicParts("word/document.xml", make(map[string]bool))
	require.NoError(t, err)
	assert.Equal(t, []string{"word/charts/chart1.xml", "word/drawings/drawing1.xml"}, parts)

	out := make(map[string]Unit)
	for _, part := range parts {
		units, err := pkg.GraphicUnits(part, "")
		require.NoError(t, err)
		for _, u := range units {
			out[u.Unit.ID] = u
		}
	}
	return out
}

func neutralizeLiteral(t *testing.T, pkg *Package, u Unit, lit string, rep *model.Report) {
	t.Helper()
	i := strings.Index(u.Unit.Text, lit)
	require.GreaterOrEqual(t, i, 0)
	span := model.SensitiveSpan{Unit: u.Unit.ID, Start: i, End: i + len(lit), RuleID: "test"}
	u.Target.Neutralize(pkg, DefaultPlaceholder, u.Unit, []model.SensitiveSpan{span}, rep)
}

func TestGraphicUnits(t *testing.T) {
	units := graphicUnits(t, graphicPackage(t))

	tests := []struct {
		id   string
		text string
		prov model.Provenance
	}{
		{"word/charts/chart1.xml#p1", "Pay for jane.roe@example.com", model.Primary},
		{"word/charts/chart1.xml#v2", "jane.roe@example.com", model.Cache},
		{"word/charts/chart1.xml#v3", "123456789", model.Cache},
		{"word/drawings/drawing1.xml#a1", "photo of Jane Roe", model.Hidden},
		{"word/drawings/drawing1.xml#p2", "Call 555-0100\ntoday", model.Primary},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			u, ok := units[tt.id]
			require.True(t, ok)
			assert.Equal(t, tt.text, u.Unit.Text)
			assert.Equal(t, tt.prov, u.Unit.Provenance)
		})
	}
	assert.Len(t, units, len(tests))
}

func TestChartEditDetachesEmbeddedData(t *testing.T) {
	pkg := graphicPackage(t)
	units := graphicUnits(t, pkg)
	rep := &model.Report{}

	neutralizeLiteral(t, pkg, units["word/charts/chart1.xml#p1"], "jane.roe@example.com", rep)
	neutralizeLiteral(t, pkg, units["word/charts/chart1.xml#v2"], "jane.roe@example.com", rep)
	neutralizeLiteral(t, pkg, units["word/charts/chart1.xml#v3"], "123456789", rep)
	require.Len(t, rep.Neutralized, 3)
	assert.Equal(t, model.StrategyDelete, rep.Neutralized[2].Strategy)

	out, err := pkg.Write()
	require.NoError(t, err)
	files := readZip(t, out)
	chart := files["word/charts/chart1.xml"]
	assert.NotContains(t, chart, "jane.roe")
	assert.NotContains(t, chart, "123456789")
	assert.NotContains(t, chart, "externalData")
	assert.Contains(t, chart, "<a:t>[REDACTED]</a:t>")
	assert.Contains(t, chart, "<c:v>[REDACTED]</c:v>")
	assert.NotContains(t, files, "word/embeddings/Book1.xlsx")
	assert.NotContains(t, files["word/charts/_rels/chart1.xml.rels"], "Book1.xlsx")
}

func TestDrawingTextAcrossBreaks(t *testing.T) {
	pkg := graphicPackage(t)
	units := graphicUnits(t, pkg)
	rep := &model.Report{}

	neutralizeLiteral(t, pkg, units["word/drawings/drawing1.xml#p2"], "555-0100", rep)
	neutralizeLiteral(t, pkg, units["word/drawings/drawing1.xml#a1"], "Jane Roe", rep)
	require.Len(t, rep.Neutralized, 2)

	out, err := pkg.Write()
	require.NoError(t, err)
	files := readZip(t, out)
	drawing := files["word/drawings/drawing1.xml"]
	assert.Contains(t, drawing, "Call [REDACTED]")
	assert.Contains(t, drawing, "today")
	assert.Contains(t, drawing, `descr="photo of [REDACTED]"`)
	assert.Contains(t, files, "word/embeddings/Book1.xlsx")
}

func TestHyperlinkUnits(t *testing.T) {
	pkg, err := Open(testPackage(t))
	require.NoError(t, err)

	units, err := pkg.HyperlinkUnits("word/document.xml", "")
	require.NoError(t, err)
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, "word/document.xml#rel/rId2", u.Unit.ID)
	assert.Equal(t, "word/_rels/document.xml.rels", u.Unit.Location.Part)

	rep := &model.Report{}
	neutralizeLiteral(t, pkg, u, "jane", rep)
	require.Len(t, rep.Neutralized, 1)

	units, err = pkg.HyperlinkUnits("word/document.xml", "")
	require.NoError(t, err)
	assert.Empty(t, units)
}
