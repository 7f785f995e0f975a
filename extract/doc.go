// Package extract turns source files into ordered pages of text and images.
//
// An Extractor maps file extensions to one of a closed set of named
// strategies, chosen by configuration at startup:
//
//   - pdf: pure-Go PDF reader for text and image XObjects
//   - pdftotext: poppler's pdftotext in layout mode, text only
//   - docx: Office Open XML documents with embedded pictures
//   - text: UTF-8 plain text and markdown
//
// Unrecognised extensions fail with core.ErrUnsupportedFormat and unreadable
// files with core.ErrCorruptDocument. When an ImageSink is configured, images
// are written through it and the resulting ImageRef records the stored path
// along with the original pixel dimensions.
package extract
