// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"slices"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/docqa/core"
)

// maxImagePixels bounds the decoded size of a single PDF image.
const maxImagePixels = 40_000_000

// PDF extracts text and image XObjects with a pure-Go PDF reader.
//
// Only 8-bit DeviceRGB and DeviceGray images stored with FlateDecode (or no
// filter) are decoded and stored. Other encodings, such as JPEG (DCTDecode),
// are recorded with their dimensions and an empty path.
type PDF struct {
	logger *slog.Logger
}

var _ Strategy = (*PDF)(nil)

// Extract implements Strategy.
func (p *PDF) Extract(ctx context.Context, doc *core.SourceDocument, images ImageSink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf reader: %v", core.ErrCorruptDocument, r)
		}
	}()

	f, r, err := pdf.Open(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	defer f.Close()

	n := r.NumPage()
	doc.Pages = make([]core.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		page := r.Page(i)
		out := core.Page{Number: i}
		if page.V.IsNull() {
			p.logger.Warn("page missing from page tree", "document", doc.ID, "page", i)
			doc.Unreadable = append(doc.Unreadable, i)
		} else {
			text, err := page.GetPlainText(nil)
			if err != nil {
				p.logger.Warn("page text unreadable", "document", doc.ID, "page", i, "err", err)
				doc.Unreadable = append(doc.Unreadable, i)
			}
			out.Text = text
			if images != nil {
				out.Images = p.pageImages(doc, page, i, images)
			}
		}
		doc.Pages = append(doc.Pages, out)
	}

	if n > 0 && len(doc.Unreadable) == n {
		return fmt.Errorf("%w: none of %d pages could be read", core.ErrCorruptDocument, n)
	}
	return nil
}

func (p *PDF) pageImages(doc *core.SourceDocument, page pdf.Page, number int, images ImageSink) []core.ImageRef {
	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil
	}

	names := xobjects.Keys()
	slices.Sort(names)

	var refs []core.ImageRef
	for _, name := range names {
		x := xobjects.Key(name)
		if x.Key("Subtype").Name() != "Image" {
			continue
		}

		ref := core.ImageRef{
			Page:   number,
			Index:  len(refs),
			Width:  int(x.Key("Width").Int64()),
			Height: int(x.Key("Height").Int64()),
		}
		img, format := decodeImage(x)
		ref.Format = format
		if img != nil {
			if err := images.Save(&ref, img); err != nil {
				p.logger.Warn("failed to store image", "document", doc.ID, "page", number, "index", ref.Index, "err", err)
				ref.Path = ""
			}
		} else {
			p.logger.Debug("image not decodable, keeping metadata", "document", doc.ID, "page", number, "format", format)
		}
		refs = append(refs, ref)
	}
	return refs
}

// decodeImage turns an image XObject into an image.Image when its encoding is
// supported. The second result names the stored encoding.
func decodeImage(x pdf.Value) (image.Image, string) {
	filter := filterName(x.Key("Filter"))
	switch filter {
	case "", "FlateDecode":
	case "DCTDecode":
		return nil, "jpeg"
	case "JPXDecode":
		return nil, "jpx"
	case "CCITTFaxDecode", "JBIG2Decode":
		return nil, "bilevel"
	default:
		return nil, "unknown"
	}
	if !x.Key("DecodeParms").IsNull() || x.Key("BitsPerComponent").Int64() != 8 {
		return nil, "raw"
	}

	w := int(x.Key("Width").Int64())
	h := int(x.Key("Height").Int64())
	if w <= 0 || h <= 0 || w*h > maxImagePixels {
		return nil, "raw"
	}

	var channels int
	switch x.Key("ColorSpace").Name() {
	case "DeviceRGB":
		channels = 3
	case "DeviceGray":
		channels = 1
	default:
		return nil, "raw"
	}

	data, ok := readStream(x, w*h*channels)
	if !ok {
		return nil, "raw"
	}

	if channels == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, data)
		return img, "png"
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(data); i, j = i+3, j+4 {
		img.Pix[j] = data[i]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, "png"
}

func filterName(v pdf.Value) string {
	switch v.Kind() {
	case pdf.Name:
		return v.Name()
	case pdf.Array:
		if v.Len() == 1 {
			return v.Index(0).Name()
		}
		return "chained"
	}
	return ""
}

// readStream decodes a stream and checks it holds exactly want bytes.
// The reader panics on filters it does not implement.
func readStream(v pdf.Value, want int) (data []byte, ok bool) {
	defer func() {
		if recover() != nil {
			data, ok = nil, false
		}
	}()
	rc := v.Reader()
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(want)+1))
	if err != nil || len(data) != want {
		return nil, false
	}
	return data, true
}
