// Package images stores snapshot photos: uploads are decoded, downscaled to
// a bounded long edge, re-encoded as JPEG and written under a
// content-addressed filename. Files are served back over HTTP by the server
// package; this package only knows the directory.
package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"nestling/internal/logging"
)

// URLPrefix is the path under which stored images are served.
const URLPrefix = "/images/"

// Storage writes and removes image files in a single directory.
type Storage struct {
	dir      string
	maxBytes int64
	maxEdge  int
	quality  int
}

// New creates the storage, ensuring the directory exists.
func New(dir string, maxBytes int64, maxEdge, quality int) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &Storage{dir: dir, maxBytes: maxBytes, maxEdge: maxEdge, quality: quality}, nil
}

// Dir returns the storage directory (for the HTTP file server).
func (s *Storage) Dir() string {
	return s.dir
}

// Save reads one uploaded image, compresses it and stores it. The returned
// URL path is stable for identical content, so re-uploads deduplicate.
func (s *Storage) Save(r io.Reader) (string, error) {
	timer := logging.StartTimer(logging.CategoryImages, "Save")
	defer timer.Stop()

	// The +1 lets us distinguish "exactly at cap" from "over cap".
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("upload exceeds %d bytes", s.maxBytes)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	scaled := s.downscale(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: s.quality}); err != nil {
		return "", fmt.Errorf("failed to encode jpeg: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	name := hex.EncodeToString(sum[:16]) + ".jpg"
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return "", fmt.Errorf("failed to write image: %w", err)
		}
		logging.Images("Stored image: %s (%s %dx%d -> %d bytes)",
			name, format, src.Bounds().Dx(), src.Bounds().Dy(), buf.Len())
	} else {
		logging.ImagesDebug("Image already stored: %s", name)
	}

	return URLPrefix + name, nil
}

// downscale bounds the long edge at maxEdge, preserving aspect ratio.
// Images already within bounds are re-encoded as-is.
func (s *Storage) downscale(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > w {
		long = h
	}
	if long <= s.maxEdge {
		return src
	}

	scale := float64(s.maxEdge) / float64(long)
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	logging.ImagesDebug("Downscaled %dx%d -> %dx%d", w, h, nw, nh)
	return dst
}

// Remove deletes the file behind an image URL previously returned by Save.
// Unknown or foreign URLs are ignored.
func (s *Storage) Remove(imageURL string) error {
	name, ok := fileNameFromURL(imageURL)
	if !ok {
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	if err == nil {
		logging.Images("Removed image: %s", name)
	}
	return nil
}

// Exists reports whether the file behind an image URL is present.
func (s *Storage) Exists(imageURL string) bool {
	name, ok := fileNameFromURL(imageURL)
	if !ok {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// fileNameFromURL extracts the bare file name and refuses anything that
// could escape the storage directory.
func fileNameFromURL(imageURL string) (string, bool) {
	if !strings.HasPrefix(imageURL, URLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(imageURL, URLPrefix)
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", false
	}
	return name, true
}
