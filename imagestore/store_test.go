package imagestore

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestReportID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"RoofReport-12345.pdf", "12345"},
		{"input/RoofReport-A7.final.pdf", "A7"},
		{"inspection.pdf", ""},
		{"RoofReport-", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportID(tt.name))
		})
	}
}

func TestRelativePath(t *testing.T) {
	withReport := &core.ImageRef{DocumentID: "in/RoofReport-9.pdf", ReportID: "9", Page: 3, Index: 1}
	assert.Equal(t, "report_9/page_3_image_1.png", RelativePath(withReport))

	withoutReport := &core.ImageRef{DocumentID: "in/survey.docx", Page: 1}
	assert.Equal(t, "survey/page_1_image_0.png", RelativePath(withoutReport))
}

func TestStore_SaveAndRead(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ref := &core.ImageRef{DocumentID: "RoofReport-1.pdf", ReportID: "1", Page: 2}
	require.NoError(t, s.Save(ref, testImage(20, 10)))

	assert.Equal(t, "report_1/page_2_image_0.png", ref.Path)
	assert.Equal(t, "png", ref.Format)
	assert.Equal(t, 20, ref.Width)
	assert.Equal(t, 10, ref.Height)

	f, err := s.Open(ref.Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)

	encoded, err := s.Base64(ref.Path)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(filepath.Join(s.Dir(), "report_1", "page_2_image_0.png"))
	require.NoError(t, err)
	assert.Equal(t, onDisk, raw)
}

func TestStore_DownscaleKeepsOriginalDimensions(t *testing.T) {
	s, err := New(t.TempDir(), WithMaxDimension(50))
	require.NoError(t, err)

	ref := &core.ImageRef{DocumentID: "plan.pdf", Page: 1}
	require.NoError(t, s.Save(ref, testImage(200, 100)))

	assert.Equal(t, 200, ref.Width)
	assert.Equal(t, 100, ref.Height)

	f, err := s.Open(ref.Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)
}

func TestStore_SaveEncoded(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(16, 8), nil))

	ref := &core.ImageRef{DocumentID: "memo.docx", Page: 1, Index: 2}
	require.NoError(t, s.SaveEncoded(ref, buf.Bytes()))
	assert.Equal(t, "memo/page_1_image_2.png", ref.Path)
	assert.Equal(t, 16, ref.Width)

	err = s.SaveEncoded(&core.ImageRef{DocumentID: "memo.docx", Page: 1}, []byte("not an image"))
	assert.Error(t, err)
}

func TestStore_Resolve(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, bad := range []string{"", "/etc/passwd", "../secret.png", "report_1/../../x.png", ".."} {
		_, err := s.Resolve(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", bad)
	}

	p, err := s.Resolve("report_1/page_1_image_0.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "report_1", "page_1_image_0.png"), p)

	_, err = s.Open("../outside.png")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestStore_ReportsAndListing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	refs := []*core.ImageRef{
		{DocumentID: "RoofReport-2.pdf", ReportID: "2", Page: 1},
		{DocumentID: "RoofReport-2.pdf", ReportID: "2", Page: 1, Index: 1},
		{DocumentID: "RoofReport-1.pdf", ReportID: "1", Page: 4},
		{DocumentID: "notes.pdf", Page: 1},
	}
	for _, r := range refs {
		require.NoError(t, s.Save(r, testImage(4, 4)))
	}

	reports, err := s.Reports()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, reports)

	paths, err := s.ListForReport("2")
	require.NoError(t, err)
	assert.Equal(t, []string{"report_2/page_1_image_0.png", "report_2/page_1_image_1.png"}, paths)

	none, err := s.ListForReport("404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_CleanupOrphans(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	keep := &core.ImageRef{DocumentID: "RoofReport-1.pdf", ReportID: "1", Page: 1}
	drop := &core.ImageRef{DocumentID: "RoofReport-1.pdf", ReportID: "1", Page: 2}
	require.NoError(t, s.Save(keep, testImage(2, 2)))
	require.NoError(t, s.Save(drop, testImage(2, 2)))

	removed, err := s.CleanupOrphans([]string{keep.Path})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Open(drop.Path)
	assert.True(t, os.IsNotExist(err))

	f, err := s.Open(keep.Path)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, f)
	f.Close()
}

func TestNew_Validation(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrDirectoryRequired)

	_, err = New(t.TempDir(), WithMaxDimension(-1))
	assert.ErrorIs(t, err, ErrInvalidMaxDimension)
}
