package thumbs

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func makeTestImage(t *testing.T, width, height int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(buf *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
}

func encodePNG(buf *bytes.Buffer, img image.Image) error {
	return png.Encode(buf, img)
}

func TestWriteAndRead(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data := makeTestImage(t, 100, 80, encodeJPEG)
	if err := store.Write("person-1", data); err != nil {
		t.Fatalf("Failed to write thumbnail: %v", err)
	}

	got, err := store.Read("person-1")
	if err != nil {
		t.Fatalf("Failed to read thumbnail: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("Stored thumbnail is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("Small image should keep its size, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	if !store.Has("person-1") {
		t.Error("Has returned false for existing thumbnail")
	}
	if store.Has("person-2") {
		t.Error("Has returned true for missing thumbnail")
	}
}

func TestLargeImageIsDownscaled(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data := makeTestImage(t, 1024, 512, encodeJPEG)
	if err := store.Write("person-1", data); err != nil {
		t.Fatalf("Failed to write thumbnail: %v", err)
	}

	got, err := store.Read("person-1")
	if err != nil {
		t.Fatalf("Failed to read thumbnail: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("Stored thumbnail is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != DefaultMaxSize {
		t.Errorf("Expected width %d, got %d", DefaultMaxSize, img.Bounds().Dx())
	}
	if img.Bounds().Dy() != DefaultMaxSize/2 {
		t.Errorf("Expected aspect ratio preserved, got height %d", img.Bounds().Dy())
	}
}

func TestPNGInputStoredAsJPEG(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data := makeTestImage(t, 64, 64, encodePNG)
	if err := store.Write("person-1", data); err != nil {
		t.Fatalf("Failed to write PNG thumbnail: %v", err)
	}

	got, err := store.Read("person-1")
	if err != nil {
		t.Fatalf("Failed to read thumbnail: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(got)); err != nil {
		t.Errorf("PNG input was not converted to JPEG: %v", err)
	}
}

func TestRemove(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data := makeTestImage(t, 32, 32, encodeJPEG)
	if err := store.Write("person-1", data); err != nil {
		t.Fatalf("Failed to write thumbnail: %v", err)
	}

	if err := store.Remove("person-1"); err != nil {
		t.Fatalf("Failed to remove thumbnail: %v", err)
	}
	if store.Has("person-1") {
		t.Error("Thumbnail still present after Remove")
	}

	// Removing a missing thumbnail is fine.
	if err := store.Remove("person-1"); err != nil {
		t.Errorf("Removing missing thumbnail should not error, got %v", err)
	}
}

func TestInvalidIDs(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data := makeTestImage(t, 32, 32, encodeJPEG)
	for _, id := range []string{"", "../escape", "a/b", "a.b"} {
		if err := store.Write(id, data); err == nil {
			t.Errorf("Expected error for id %q, got nil", id)
		}
		if _, err := store.Read(id); err == nil {
			t.Errorf("Expected read error for id %q, got nil", id)
		}
	}
}

func TestWriteRejectsGarbage(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Write("person-1", []byte("not an image")); err == nil {
		t.Error("Expected error for undecodable image data, got nil")
	}
}
