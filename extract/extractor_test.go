package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/imagestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	output []byte
	err    error
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.args = append([]string{name}, args...)
	return m.output, m.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func createTestDOCX(t *testing.T, documentXML string, media map[string][]byte, rels string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))

	doc, err := w.Create(docxBody)
	require.NoError(t, err)
	_, _ = doc.Write([]byte(documentXML))

	if rels != "" {
		r, err := w.Create(docxRels)
		require.NoError(t, err)
		_, _ = r.Write([]byte(rels))
	}
	for name, data := range media {
		m, err := w.Create("word/media/" + name)
		require.NoError(t, err)
		_, _ = m.Write(data)
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

const docxWithBreak = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:r><w:t>Roof</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">Report</w:t></w:r></w:p>
<w:p><w:r><w:t>Shingles worn.</w:t></w:r></w:p>
<w:p><w:r><w:br w:type="page"/></w:r></w:p>
<w:p><w:r><w:t>Diagram below</w:t></w:r><w:r><w:drawing><a:blip r:embed="rId5"/></w:drawing></w:r></w:p>
</w:body>
</w:document>`

const docxRelsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
</Relationships>`

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New(map[string]string{".pdf": "ocr"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestExtractor_Extensions(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{".docx", ".md", ".pdf", ".txt"}, e.Extensions())
	assert.True(t, e.Supports("PDF"))
	assert.True(t, e.Supports(".Md"))
	assert.False(t, e.Supports(".pptx"))
}

func TestExtractor_UnsupportedFormat(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), writeFile(t, "deck.pptx", []byte("x")), "")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestExtractor_MissingFile(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestText_Pages(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	p := writeFile(t, "RoofReport-77.txt", []byte("\ufeffpage one\r\ntext\fpage two\f"))
	doc, err := e.Extract(context.Background(), p, "")
	require.NoError(t, err)

	assert.Equal(t, p, doc.ID)
	assert.Equal(t, "RoofReport-77.txt", doc.Name)
	assert.Equal(t, "77", doc.ReportID)
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, core.Page{Number: 1, Text: "page one\ntext"}, doc.Pages[0])
	assert.Equal(t, core.Page{Number: 2, Text: "page two"}, doc.Pages[1])
}

func TestText_InvalidUTF8(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), writeFile(t, "bad.txt", []byte{0xff, 0xfe, 0x00}), "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestText_DeclaredExtensionWins(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	doc, err := e.Extract(context.Background(), writeFile(t, "notes.log", []byte("hello")), ".txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Pages[0].Text)
}

func TestPDFToText(t *testing.T) {
	runner := &mockRunner{output: []byte("Page one\fPage two\f")}
	e, err := New(map[string]string{".pdf": StrategyPDFToText}, WithCommandRunner(runner))
	require.NoError(t, err)

	p := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))
	doc, err := e.Extract(context.Background(), p, "")
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "Page two", doc.Pages[1].Text)
	assert.Equal(t, []string{"pdftotext", "-layout", "-enc", "UTF-8", p, "-"}, runner.args)
}

func TestPDFToText_Errors(t *testing.T) {
	p := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))

	e, err := New(map[string]string{".pdf": StrategyPDFToText}, WithCommandRunner(&mockRunner{err: errors.New("crashed")}))
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), p, "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)

	e, err = New(map[string]string{".pdf": StrategyPDFToText}, WithCommandRunner(&mockRunner{err: ErrPDFToolNotFound}))
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), p, "")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestPDF_Corrupt(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), writeFile(t, "broken.pdf", []byte("this is not a pdf")), "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestDocx_TextAndPages(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	p := writeFile(t, "memo.docx", createTestDOCX(t, docxWithBreak, nil, ""))
	doc, err := e.Extract(context.Background(), p, "")
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "Roof\tReport\nShingles worn.", doc.Pages[0].Text)
	assert.Contains(t, doc.Pages[1].Text, "Diagram below")
	assert.Empty(t, doc.Pages[1].Images, "image extraction is off without a sink")
}

func TestDocx_Images(t *testing.T) {
	store, err := imagestore.New(t.TempDir())
	require.NoError(t, err)
	e, err := New(nil, WithImageSink(store))
	require.NoError(t, err)

	data := createTestDOCX(t, docxWithBreak, map[string][]byte{"image1.png": pngBytes(t, 30, 20)}, docxRelsXML)
	p := writeFile(t, "RoofReport-5.docx", data)

	doc, err := e.Extract(context.Background(), p, "")
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Empty(t, doc.Pages[0].Images)
	require.Len(t, doc.Pages[1].Images, 1)

	ref := doc.Pages[1].Images[0]
	assert.Equal(t, p, ref.DocumentID)
	assert.Equal(t, "5", ref.ReportID)
	assert.Equal(t, 2, ref.Page)
	assert.Equal(t, 30, ref.Width)
	assert.Equal(t, 20, ref.Height)
	assert.Equal(t, "report_5/page_2_image_0.png", ref.Path)

	_, err = os.Stat(filepath.Join(store.Dir(), "report_5", "page_2_image_0.png"))
	assert.NoError(t, err)
}

func TestDocx_Corrupt(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), writeFile(t, "x.docx", []byte("not a zip")), "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)

	noBody := new(bytes.Buffer)
	w := zip.NewWriter(noBody)
	_, _ = w.Create("other.xml")
	require.NoError(t, w.Close())
	_, err = e.Extract(context.Background(), writeFile(t, "y.docx", noBody.Bytes()), "")
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}
