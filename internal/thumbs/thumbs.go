// Package thumbs stores person thumbnails as JPEG files on disk, one file
// per person id. Images larger than the configured size are downscaled
// before writing.
package thumbs

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DefaultMaxSize is the longest edge of a stored thumbnail in pixels.
const DefaultMaxSize = 256

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Store keeps thumbnails under a single directory as <id>.jpg.
type Store struct {
	dir     string
	maxSize int
}

// New creates the thumbnail directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail directory: %w", err)
	}
	return &Store{dir: dir, maxSize: DefaultMaxSize}, nil
}

// Write decodes, downscales and stores the image under the given id.
// The input may be JPEG, PNG, GIF or BMP; the stored file is always JPEG.
func (s *Store) Write(id string, data []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	resized, err := resizeJPEG(data, s.maxSize)
	if err != nil {
		return fmt.Errorf("thumbnail for %s: %w", id, err)
	}
	if err := os.WriteFile(s.path(id), resized, 0o644); err != nil {
		return fmt.Errorf("write thumbnail %s: %w", id, err)
	}
	return nil
}

// Read returns the stored JPEG bytes, or os.ErrNotExist when the person has
// no thumbnail.
func (s *Store) Read(id string) ([]byte, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read thumbnail %s: %w", id, err)
	}
	return data, nil
}

// Has reports whether a thumbnail exists for the id.
func (s *Store) Has(id string) bool {
	if validID(id) != nil {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Remove deletes the thumbnail. Removing a missing thumbnail is not an error.
func (s *Store) Remove(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove thumbnail %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".jpg")
}

// validID rejects ids that could escape the thumbnail directory.
func validID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid thumbnail id %q", id)
	}
	return nil
}

// resizeJPEG downscales the image to fit within maxSize while keeping the
// aspect ratio and re-encodes it as JPEG.
func resizeJPEG(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			newHeight = maxSize
			newWidth = int(float64(width) * float64(maxSize) / float64(height))
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
