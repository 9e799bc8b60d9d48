package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/redactor/model"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

const relsNS = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`

const relType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"

const testContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Default Extension="jpeg" ContentType="image/jpeg"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/comments.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"/>` +
	`</Types>`

const testRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships ` + relsNS + `>` +
	`<Relationship Id="rId1" Type="` + relType + `officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail" Target="docProps/thumbnail.jpeg"/>` +
	`</Relationships>`

const testDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships ` + relsNS + `>` +
	`<Relationship Id="rId1" Type="` + relType + `styles" Target="styles.xml"/>` +
	`<Relationship Id="rId2" Type="` + relType + `comments" Target="comments.xml"/>` +
	`<Relationship Id="rId9" Type="` + relType + `hyperlink" Target="mailto:jane@example.com" TargetMode="External"/>` +
	`</Relationships>`

const testStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:styles ` + wordNS + `>` +
	`<w:style w:type="character" w:styleId="Base"><w:rPr><w:vanish/></w:rPr></w:style>` +
	`<w:style w:type="character" w:styleId="Secret"><w:basedOn w:val="Base"/></w:style>` +
	`</w:styles>`

const testDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document ` + wordNS + `><w:body>` +
	`<w:p><w:r><w:t xml:space="preserve">SSN: </w:t></w:r><w:r><w:t>123-45-</w:t></w:r><w:r><w:t>6789</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t xml:space="preserve">Call </w:t></w:r>` +
	`<w:del w:id="1" w:author="Jane Roe"><w:r><w:delText>555-0100</w:delText></w:r></w:del>` +
	`<w:ins w:id="2" w:author="Editor"><w:r><w:t>later</w:t></w:r></w:ins></w:p>` +
	`<w:p><w:r><w:rPr><w:rStyle w:val="Secret"/></w:rPr><w:t>hidden note</w:t></w:r></w:p>` +
	`<w:p><w:r><w:instrText xml:space="preserve"> HYPERLINK "mailto:jane@example.com" </w:instrText></w:r>` +
	`<w:hyperlink r:id="rId9" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:r><w:t>mail</w:t></w:r></w:hyperlink></w:p>` +
	`</w:body></w:document>`

const testComments = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:comments ` + wordNS + `>` +
	`<w:comment w:id="0" w:author="Jane Roe" w:initials="JR"><w:p><w:r><w:t>check the SSN</w:t></w:r></w:p></w:comment>` +
	`</w:comments>`

const testCore = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
	`<dc:title>Quarterly</dc:title><dc:creator>Jane Roe</dc:creator>` +
	`</cp:coreProperties>`

func buildPackage(t *testing.T, files ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testPackage(t *testing.T) []byte {
	return buildPackage(t,
		[2]string{"[Content_Types].xml", testContentTypes},
		[2]string{"_rels/.rels", testRootRels},
		[2]string{"docProps/core.xml", testCore},
		[2]string{"docProps/thumbnail.jpeg", "\xff\xd8thumb"},
		[2]string{"word/document.xml", testDocument},
		[2]string{"word/_rels/document.xml.rels", testDocumentRels},
		[2]string{"word/styles.xml", testStyles},
		[2]string{"word/comments.xml", testComments},
		[2]string{"customXml/item1.xml", `<root><owner>Jane Roe</owner></root>`},
		[2]string{"customXml/itemProps1.xml", `<ds:datastoreItem xmlns:ds="x" ds:itemID="{1}"/>`},
	)
}

func readPackage(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func openDocument(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := New("", nil).Open(context.Background(), data, model.JobOptions{})
	require.NoError(t, err)
	return doc.(*Document)
}

func unitsByID(t *testing.T, d *Document) map[string]model.ExtractedUnit {
	t.Helper()
	units, err := d.Units(context.Background())
	require.NoError(t, err)
	out := make(map[string]model.ExtractedUnit, len(units))
	for _, u := range units {
		out[u.ID] = u
	}
	return out
}

// findUnit returns the first unit with the given provenance and text.
func findUnit(t *testing.T, units map[string]model.ExtractedUnit, prov model.Provenance, text string) model.ExtractedUnit {
	t.Helper()
	for _, u := range units {
		if u.Provenance == prov && u.Text == text {
			return u
		}
	}
	t.Fatalf("no %s unit with the expected text", prov)
	return model.ExtractedUnit{}
}

// redact applies one span per entry, covering the first occurrence of the
// literal inside the unit, and returns the serialized output.
func redact(t *testing.T, d *Document, marks map[string]string) ([]byte, *model.Report) {
	t.Helper()
	units := unitsByID(t, d)
	var spans []model.SensitiveSpan
	for id, lit := range marks {
		u, ok := units[id]
		require.True(t, ok, "unit %s", id)
		i := strings.Index(u.Text, lit)
		require.GreaterOrEqual(t, i, 0, "literal in unit %s", id)
		spans = append(spans, model.SensitiveSpan{Unit: id, Start: i, End: i + len(lit), RuleID: "test"})
	}
	all := make([]model.ExtractedUnit, 0, len(units))
	for _, u := range units {
		all = append(all, u)
	}
	rep := &model.Report{}
	require.NoError(t, d.Apply(context.Background(), model.NewPlan(all, spans), rep))
	out, err := d.Serialize()
	require.NoError(t, err)
	return out, rep
}

func TestUnits(t *testing.T) {
	units := unitsByID(t, openDocument(t, testPackage(t)))

	tests := []struct {
		id   string
		text string
		prov model.Provenance
	}{
		{"word/document.xml#p1/current", "SSN: 123-45-6789", model.Primary},
		{"word/document.xml#p2/current", "Call later", model.Primary},
		{"word/document.xml#p2/original", "Call 555-0100", model.TrackedDelete},
		{"word/document.xml#p2/inserted", "later", model.TrackedInsert},
		{"word/document.xml#p3/hidden", "hidden note", model.Hidden},
		{"word/document.xml#p4/field", ` HYPERLINK "mailto:jane@example.com" `, model.Field},
		{"word/document.xml#p4/current", "mail", model.Primary},
		{"word/comments.xml#p1/current", "check the SSN", model.Annotation},
		{"word/document.xml#rel/rId9", "mailto:jane@example.com", model.Hyperlink},
		{"customXml/item1.xml#c1", "Jane Roe", model.Cache},
		{"props/core/1", "Jane Roe", model.Metadata},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			u, ok := units[tt.id]
			require.True(t, ok)
			assert.Equal(t, tt.text, u.Text)
			assert.Equal(t, tt.prov, u.Provenance)
		})
	}

	assert.NotContains(t, units, "word/document.xml#p1/original")
	assert.NotContains(t, units, "word/document.xml#p3/current")

	author := findUnit(t, units, model.Metadata, "Editor")
	assert.Equal(t, "author", author.Location.Field)
	initials := findUnit(t, units, model.Metadata, "JR")
	assert.Equal(t, "word/comments.xml", initials.Location.Part)
}

func TestRedactAcrossRuns(t *testing.T) {
	d := openDocument(t, testPackage(t))
	out, rep := redact(t, d, map[string]string{"word/document.xml#p1/current": "123-45-6789"})

	require.Len(t, rep.Neutralized, 1)
	assert.Empty(t, rep.Unresolved)
	assert.Equal(t, model.StrategyRewrite, rep.Neutralized[0].Strategy)

	files := readPackage(t, out)
	assert.NotContains(t, files["word/document.xml"], "6789")
	assert.NotContains(t, files["word/document.xml"], "123-45")
	assert.NotContains(t, files, "docProps/thumbnail.jpeg")
	assert.NotContains(t, files["_rels/.rels"], "thumbnail")
	assert.Equal(t, testStyles, files["word/styles.xml"])

	units := unitsByID(t, openDocument(t, out))
	assert.Equal(t, "SSN: [REDACTED]", units["word/document.xml#p1/current"].Text)
}

func TestRedactDeletedText(t *testing.T) {
	d := openDocument(t, testPackage(t))
	out, rep := redact(t, d, map[string]string{"word/document.xml#p2/original": "555-0100"})
	require.Len(t, rep.Neutralized, 1)
	assert.Equal(t, model.TrackedDelete, rep.Neutralized[0].Provenance)

	assert.NotContains(t, readPackage(t, out)["word/document.xml"], "555-0100")
	units := unitsByID(t, openDocument(t, out))
	assert.Equal(t, "Call [REDACTED]", units["word/document.xml#p2/original"].Text)
	assert.Equal(t, "Call later", units["word/document.xml#p2/current"].Text)
}

func TestViewsSharingTextMerge(t *testing.T) {
	d := openDocument(t, testPackage(t))
	out, rep := redact(t, d, map[string]string{
		"word/document.xml#p2/current":  "Call",
		"word/document.xml#p2/original": "Call",
	})
	assert.Len(t, rep.Neutralized, 2)

	units := unitsByID(t, openDocument(t, out))
	assert.Equal(t, "[REDACTED] later", units["word/document.xml#p2/current"].Text)
	assert.Equal(t, "[REDACTED] 555-0100", units["word/document.xml#p2/original"].Text)
}

func TestRedactOutOfBodyText(t *testing.T) {
	d := openDocument(t, testPackage(t))
	units := unitsByID(t, d)
	author := findUnit(t, units, model.Metadata, "Editor")

	out, rep := redact(t, d, map[string]string{
		"word/document.xml#rel/rId9":  "mailto:jane@example.com",
		author.ID:                     "Editor",
		"props/core/1":                "Jane Roe",
		"customXml/item1.xml#c1":      "Jane",
		"word/document.xml#p3/hidden": "hidden",
	})
	assert.Len(t, rep.Neutralized, 5)
	assert.Empty(t, rep.Unresolved)

	files := readPackage(t, out)
	rels := files["word/_rels/document.xml.rels"]
	assert.Contains(t, rels, `Id="rId9"`)
	assert.Contains(t, rels, `Target="about:blank"`)
	assert.NotContains(t, rels, "mailto:")
	assert.Contains(t, files["word/document.xml"], `w:author="[REDACTED]"`)
	assert.NotContains(t, files["docProps/core.xml"], "Jane Roe")
	assert.Contains(t, files["docProps/core.xml"], "Quarterly")
	assert.Equal(t, `<root><owner>[REDACTED] Roe</owner></root>`, files["customXml/item1.xml"])
	assert.Contains(t, files["word/document.xml"], "[REDACTED] note")

	after := unitsByID(t, openDocument(t, out))
	assert.NotContains(t, after, "word/document.xml#rel/rId9")
}

func TestEmptyPlanReturnsInput(t *testing.T) {
	data := testPackage(t)
	d := openDocument(t, data)
	_, err := d.Units(context.Background())
	require.NoError(t, err)

	rep := &model.Report{}
	require.NoError(t, d.Apply(context.Background(), model.NewPlan(nil, nil), rep))
	out, err := d.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"encrypted", append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 504)...), model.ErrEncryptedOrProtected},
		{"not a zip", []byte("plain text"), model.ErrCorruptInput},
		{"malformed body", buildPackage(t,
			[2]string{"[Content_Types].xml", testContentTypes},
			[2]string{"_rels/.rels", testRootRels},
			[2]string{"word/document.xml", `<w:document ` + wordNS + `><w:body>`},
		), model.ErrCorruptInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("", nil).Open(context.Background(), tt.data, model.JobOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCustomPlaceholder(t *testing.T) {
	doc, err := New("***", nil).Open(context.Background(), testPackage(t), model.JobOptions{})
	require.NoError(t, err)
	out, _ := redact(t, doc.(*Document), map[string]string{"word/comments.xml#p1/current": "SSN"})
	assert.Contains(t, readPackage(t, out)["word/comments.xml"], "check the ***")
}

func TestStyleResolver(t *testing.T) {
	sr := newStyleResolver([]byte(`<w:styles ` + wordNS + `>` +
		`<w:docDefaults><w:rPrDefault><w:rPr/></w:rPrDefault></w:docDefaults>` +
		`<w:style w:styleId="A"><w:rPr><w:vanish/></w:rPr></w:style>` +
		`<w:style w:styleId="B"><w:basedOn w:val="A"/></w:style>` +
		`<w:style w:styleId="C"><w:basedOn w:val="B"/><w:rPr><w:vanish w:val="0"/></w:rPr></w:style>` +
		`<w:style w:styleId="X"><w:basedOn w:val="Y"/></w:style>` +
		`<w:style w:styleId="Y"><w:basedOn w:val="X"/></w:style>` +
		`</w:styles>`))

	assert.True(t, sr.hidden("A"))
	assert.True(t, sr.hidden("B"))
	assert.False(t, sr.hidden("C"))
	assert.False(t, sr.hidden("X"))
	assert.False(t, sr.hidden("missing"))

	_, set := sr.lookup("X")
	assert.False(t, set)
}

func TestRedactChartText(t *testing.T) {
	docRels := strings.Replace(testDocumentRels, `</Relationships>`,
		`<Relationship Id="rId5" Type="`+relType+`chart" Target="charts/chart1.xml"/></Relationships>`, 1)
	chart := `<c:chartSpace xmlns:c="urn:c" xmlns:a="urn:a" xmlns:r="urn:r"><c:chart>` +
		`<c:title><c:tx><c:rich><a:p><a:r><a:t>Bonus for jane.roe@example.com</a:t></a:r></a:p></c:rich></c:tx></c:title>` +
		`<c:plotArea><c:barChart><c:ser><c:cat><c:strRef><c:f>Sheet1!$A$2</c:f><c:strCache><c:ptCount val="1"/>` +
		`<c:pt idx="0"><c:v>jane.roe@example.com</c:v></c:pt></c:strCache></c:strRef></c:cat></c:ser></c:barChart></c:plotArea>` +
		`</c:chart><c:externalData r:id="rId1"/></c:chartSpace>`
	chartRels := `<Relationships ` + relsNS + `>` +
		`<Relationship Id="rId1" Type="` + relType + `package" Target="../embeddings/Microsoft_Excel_Worksheet.xlsx"/>` +
		`</Relationships>`
	data := buildPackage(t,
		[2]string{"[Content_Types].xml", testContentTypes},
		[2]string{"_rels/.rels", testRootRels},
		[2]string{"word/document.xml", testDocument},
		[2]string{"word/_rels/document.xml.rels", docRels},
		[2]string{"word/styles.xml", testStyles},
		[2]string{"word/comments.xml", testComments},
		[2]string{"word/charts/chart1.xml", chart},
		[2]string{"word/charts/_rels/chart1.xml.rels", chartRels},
		[2]string{"word/embeddings/Microsoft_Excel_Worksheet.xlsx", "PK\x03\x04data"},
	)

	d := openDocument(t, data)
	units := unitsByID(t, d)
	title := units["word/charts/chart1.xml#p1"]
	assert.Equal(t, "Bonus for jane.roe@example.com", title.Text)
	assert.Equal(t, model.Primary, title.Provenance)
	assert.Equal(t, model.Cache, units["word/charts/chart1.xml#v2"].Provenance)

	out, rep := redact(t, d, map[string]string{
		"word/charts/chart1.xml#p1": "jane.roe@example.com",
		"word/charts/chart1.xml#v2": "jane.roe@example.com",
	})
	assert.Len(t, rep.Neutralized, 2)
	assert.Empty(t, rep.Unresolved)

	files := readPackage(t, out)
	assert.NotContains(t, files["word/charts/chart1.xml"], "jane.roe")
	assert.NotContains(t, files["word/charts/chart1.xml"], "externalData")
	assert.NotContains(t, files, "word/embeddings/Microsoft_Excel_Worksheet.xlsx")

	after := unitsByID(t, openDocument(t, out))
	assert.Equal(t, "Bonus for [REDACTED]", after["word/charts/chart1.xml#p1"].Text)
}
