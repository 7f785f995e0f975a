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


package imagestore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/docqa/core"
	"golang.org/x/image/draw"
)

const (
	reportDirPrefix = "report_"
	reportMarker    = "RoofReport-"
	imageExt        = ".png"
)

// Store writes and reads extracted images below a base directory.
// It is safe for concurrent use as long as callers do not write the same ImageRef twice.
type Store struct {
	dir          string
	maxDimension int
	logger       *slog.Logger
}

// Option is a functional option for configuring a Store.
type Option func(*Store) error

// WithMaxDimension caps the longer side of stored images. Zero keeps originals.
func WithMaxDimension(n int) Option {
	return func(s *Store) error {
		if n < 0 {
			return ErrInvalidMaxDimension
		}
		s.maxDimension = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, ErrDirectoryRequired
	}
	s := &Store{
		dir:    dir,
		logger: slog.Default().With("component", "imagestore"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return s, nil
}

// Dir returns the base directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxDimension returns the configured cap on the longer side of stored images.
func (s *Store) MaxDimension() int {
	return s.maxDimension
}

// ReportID extracts the report identifier from names such as
// "RoofReport-12345.pdf". It returns "" when the name carries none.
func ReportID(fileName string) string {
	base := filepath.Base(fileName)
	_, after, found := strings.Cut(base, reportMarker)
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, ".")
	return id
}

// RelativePath returns where the image described by ref is stored, relative
// to the base directory.
func RelativePath(ref *core.ImageRef) string {
	folder := reportDirPrefix + ref.ReportID
	if ref.ReportID == "" {
		base := filepath.Base(ref.DocumentID)
		folder = strings.TrimSuffix(base, filepath.Ext(base))
	}
	name := fmt.Sprintf("page_%d_image_%d%s", ref.Page, ref.Index, imageExt)
	return filepath.ToSlash(filepath.Join(folder, name))
}

// Save encodes img as PNG and records its relative path in ref.
// Width and Height are set from img when ref does not carry them yet.
func (s *Store) Save(ref *core.ImageRef, img image.Image) error {
	bounds := img.Bounds()
	if ref.Width == 0 && ref.Height == 0 {
		ref.Width, ref.Height = bounds.Dx(), bounds.Dy()
	}
	if err := core.ValidateImageRef(ref); err != nil {
		return err
	}

	img = s.downscale(img)

	rel := RelativePath(ref)
	full, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}

	ref.Path = rel
	ref.Format = "png"
	s.logger.Debug("stored image", "path", rel, "width", ref.Width, "height", ref.Height)
	return nil
}

// SaveEncoded decodes PNG, JPEG or GIF bytes and stores them like Save.
func (s *Store) SaveEncoded(ref *core.ImageRef, data []byte) error {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	s.logger.Debug("decoded embedded image", "format", format)
	return s.Save(ref, img)
}

func (s *Store) downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if s.maxDimension == 0 || longest <= s.maxDimension {
		return img
	}

	scale := float64(s.maxDimension) / float64(longest)
	nw := max(int(float64(w)*scale), 1)
	nh := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Resolve maps a relative image path to a file path inside the store.
// Absolute paths and paths leaving the base directory are rejected.
func (s *Store) Resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.dir, clean), nil
}

// Open opens a stored image for reading.
func (s *Store) Open(rel string) (io.ReadCloser, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Base64 returns the stored image bytes encoded as standard base64.
func (s *Store) Base64(rel string) (string, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Reports lists the report ids that have an image folder, sorted.
func (s *Store) Reports() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var reports []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), reportDirPrefix) {
			reports = append(reports, strings.TrimPrefix(e.Name(), reportDirPrefix))
		}
	}
	slices.Sort(reports)
	return reports, nil
}

// ListForReport returns the relative paths of a report's images, sorted.
// A report without images yields an empty list.
func (s *Store) ListForReport(reportID string) ([]string, error) {
	folder := reportDirPrefix + reportID
	full, err := s.Resolve(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == imageExt {
			paths = append(paths, folder+"/"+e.Name())
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// CleanupOrphans removes stored images whose relative path is not in valid.
// It returns the number of files removed.
func (s *Store) CleanupOrphans(valid []string) (int, error) {
	keep := make(map[string]struct{}, len(valid))
	for _, p := range valid {
		keep[filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))] = struct{}{}
	}

	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != imageExt {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		if _, ok := keep[filepath.ToSlash(rel)]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Error("failed to remove orphaned image", "path", rel, "err", err)
			return nil
		}
		removed++
		s.logger.Info("removed orphaned image", "path", rel)
		return nil
	})
	return removed, err
}
