package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/poiesic/docqa/core"
)

const (
	docxBody = "word/document.xml"
	docxRels = "word/_rels/document.xml.rels"

	// maxDocxPart bounds how much of a single archive member is read.
	maxDocxPart = 64 << 20
)

// Docx extracts Office Open XML word documents. Paragraphs become lines,
// explicit page breaks start a new page, and embedded pictures are attached
// to the page they appear on.
type Docx struct {
	logger *slog.Logger
}

var _ Strategy = (*Docx)(nil)

// Extract implements Strategy.
func (d *Docx) Extract(ctx context.Context, doc *core.SourceDocument, images ImageSink) error {
	zr, err := zip.OpenReader(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	body, ok := files[docxBody]
	if !ok {
		return fmt.Errorf("%w: missing %s", core.ErrCorruptDocument, docxBody)
	}
	content, err := readZipFile(body)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}

	pages, embeds, err := parseDocumentXML(content)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	doc.Pages = pages

	if images == nil || len(embeds) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	targets := map[string]string{}
	if rels, ok := files[docxRels]; ok {
		if data, err := readZipFile(rels); err == nil {
			targets = parseRelationships(data)
		}
	}

	for _, e := range embeds {
		target, ok := targets[e.relID]
		if !ok {
			continue
		}
		member, ok := files[path.Clean(path.Join("word", target))]
		if !ok {
			continue
		}
		data, err := readZipFile(member)
		if err != nil {
			d.logger.Warn("embedded image unreadable", "document", doc.ID, "target", target, "err", err)
			continue
		}

		page := &doc.Pages[e.page-1]
		ref := core.ImageRef{Page: e.page, Index: len(page.Images), Format: strings.TrimPrefix(path.Ext(target), ".")}
		if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			ref.Width, ref.Height, ref.Format = cfg.Width, cfg.Height, format
			if err := images.SaveEncoded(&ref, data); err != nil {
				d.logger.Warn("failed to store image", "document", doc.ID, "page", ref.Page, "index", ref.Index, "err", err)
				ref.Path = ""
			}
		}
		page.Images = append(page.Images, ref)
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocxPart+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDocxPart {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxDocxPart)
	}
	return data, nil
}

// embed is a picture reference found in the document body.
type embed struct {
	page  int
	relID string
}

// parseDocumentXML walks the body token by token. Only element local names
// are compared, so any namespace prefix works.
func parseDocumentXML(content []byte) ([]core.Page, []embed, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var (
		pages  []core.Page
		embeds []embed
		text   strings.Builder
		inText bool
	)
	flush := func() {
		pages = append(pages, core.Page{Number: len(pages) + 1, Text: strings.TrimRight(text.String(), "\n")})
		text.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				text.WriteByte('\t')
			case "br", "cr":
				if attr(t, "type") == "page" {
					flush()
				} else {
					text.WriteByte('\n')
				}
			case "blip":
				if id := attr(t, "embed"); id != "" {
					embeds = append(embeds, embed{page: len(pages) + 1, relID: id})
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	flush()
	return pages, embeds, nil
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func parseRelationships(data []byte) map[string]string {
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return map[string]string{}
	}
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = r.Target
	}
	return targets
}
