package preprocessing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-trainlog/tensor"
)

// createMockImage creates a simple gradient image for testing
func createMockImage(width, height int, baseColor color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			factor := float64(x+y) / float64(width+height)
			r := uint8(float64(baseColor.R) * factor)
			g := uint8(float64(baseColor.G) * factor)
			b := uint8(float64(baseColor.B) * factor)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

// createTestJPEGFile creates a JPEG file for testing
func createTestJPEGFile(path string, width, height int, baseColor color.RGBA) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createMockImage(width, height, baseColor), &jpeg.Options{Quality: 90}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func TestToImage(t *testing.T) {
	t.Run("RGB", func(t *testing.T) {
		chw, _ := tensor.New([]int{3, 1, 2}, []float32{1, 0, 0, 1, 0, 0.5})
		img, err := ToImage(chw)
		if err != nil {
			t.Fatalf("ToImage failed: %v", err)
		}
		if got := img.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
			t.Errorf("Expected red pixel, got %v", got)
		}
		if got := img.RGBAAt(1, 0); got != (color.RGBA{0, 255, 128, 255}) {
			t.Errorf("Expected {0 255 128 255}, got %v", got)
		}
	})

	t.Run("Grayscale", func(t *testing.T) {
		chw, _ := tensor.New([]int{1, 1, 1}, []float32{0.5})
		img, err := ToImage(chw)
		if err != nil {
			t.Fatalf("ToImage failed: %v", err)
		}
		if got := img.RGBAAt(0, 0); got != (color.RGBA{128, 128, 128, 255}) {
			t.Errorf("Expected gray pixel, got %v", got)
		}
	})

	t.Run("Clamps", func(t *testing.T) {
		chw, _ := tensor.New([]int{1, 1, 2}, []float32{-3, 7})
		img, err := ToImage(chw)
		if err != nil {
			t.Fatalf("ToImage failed: %v", err)
		}
		if img.RGBAAt(0, 0).R != 0 || img.RGBAAt(1, 0).R != 255 {
			t.Errorf("Expected values clamped to [0, 255], got %v %v", img.RGBAAt(0, 0), img.RGBAAt(1, 0))
		}
	})

	t.Run("BadChannels", func(t *testing.T) {
		chw, _ := tensor.Zeros([]int{2, 1, 1})
		if _, err := ToImage(chw); !errors.Is(err, ErrChannels) {
			t.Errorf("Expected ErrChannels, got %v", err)
		}
	})

	t.Run("BadRank", func(t *testing.T) {
		batch, _ := tensor.Zeros([]int{1, 3, 1, 1})
		if _, err := ToImage(batch); !errors.Is(err, tensor.ErrShape) {
			t.Errorf("Expected ErrShape, got %v", err)
		}
	})
}

func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.png")

	chw, _ := tensor.Full([]int{3, 4, 5}, 1)
	if err := SavePNG(path, chw); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open saved file: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Saved file is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 4 {
		t.Errorf("Expected 5x4 image, got %v", img.Bounds())
	}

	// Second save overwrites
	zeros, _ := tensor.Zeros([]int{3, 2, 2})
	if err := SavePNG(path, zeros); err != nil {
		t.Fatalf("Second SavePNG failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	img, err = png.Decode(bytes.NewReader(data))
	if err != nil || img.Bounds().Dx() != 2 {
		t.Errorf("Expected overwritten 2x2 image, got %v (err %v)", img.Bounds(), err)
	}
}

func TestEncodePNGBase64(t *testing.T) {
	chw, _ := tensor.Full([]int{3, 2, 2}, 0.25)
	encoded, err := EncodePNGBase64(chw)
	if err != nil {
		t.Fatalf("EncodePNGBase64 failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("Decoded payload is not a PNG: %v", err)
	}
}

func TestFromImageRoundTrip(t *testing.T) {
	src := createMockImage(6, 4, color.RGBA{255, 128, 64, 255})

	chw, err := FromImage(src)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if chw.Shape[0] != 3 || chw.Shape[1] != 4 || chw.Shape[2] != 6 {
		t.Fatalf("Expected shape [3 4 6], got %v", chw.Shape)
	}

	back, err := ToImage(chw)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			if back.RGBAAt(x, y) != src.RGBAAt(x, y) {
				t.Fatalf("Pixel (%d,%d) changed: %v vs %v", x, y, back.RGBAAt(x, y), src.RGBAAt(x, y))
			}
		}
	}
}

func TestFromImages(t *testing.T) {
	imgs := []image.Image{
		createMockImage(3, 3, color.RGBA{255, 0, 0, 255}),
		createMockImage(3, 3, color.RGBA{0, 255, 0, 255}),
	}
	batch, err := FromImages(imgs)
	if err != nil {
		t.Fatalf("FromImages failed: %v", err)
	}
	if batch.Shape[0] != 2 || batch.Shape[1] != 3 {
		t.Errorf("Expected [2 3 3 3], got %v", batch.Shape)
	}

	mixed := append(imgs, createMockImage(4, 3, color.RGBA{}))
	if _, err := FromImages(mixed); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("Expected ErrShape for mixed sizes, got %v", err)
	}
	if _, err := FromImages(nil); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("Expected ErrShape for no images, got %v", err)
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createMockImage(8, 8, color.RGBA{10, 20, 30, 255})); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	chw, err := DecodeImage(&buf)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if chw.Shape[1] != 8 || chw.Shape[2] != 8 {
		t.Errorf("Expected 8x8, got %v", chw.Shape)
	}

	if _, err := DecodeImage(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("Expected error for invalid data")
	}
}

func TestImageProcessorDecodeAndResize(t *testing.T) {
	processor := NewImageProcessor(16)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createMockImage(40, 30, color.RGBA{255, 128, 64, 255}), nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}

	chw, err := processor.DecodeAndResize(&buf)
	if err != nil {
		t.Fatalf("DecodeAndResize failed: %v", err)
	}
	if chw.Shape[0] != 3 || chw.Shape[1] != 16 || chw.Shape[2] != 16 {
		t.Errorf("Expected [3 16 16], got %v", chw.Shape)
	}
	for i, v := range chw.Data {
		if v < 0 || v > 1 {
			t.Fatalf("Value %d out of range: %f", i, v)
		}
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, c := range []color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}} {
		path := filepath.Join(dir, string(rune('a'+i))+".jpg")
		if err := createTestJPEGFile(path, 20, 20, c); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		paths = append(paths, path)
	}

	batch, err := LoadBatch(paths, 8, 2)
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	want := []int{3, 3, 8, 8}
	for i := range want {
		if batch.Shape[i] != want[i] {
			t.Fatalf("Expected shape %v, got %v", want, batch.Shape)
		}
	}

	if _, err := LoadBatch(append(paths, filepath.Join(dir, "missing.jpg")), 8, 2); err == nil {
		t.Error("Expected error for missing file")
	}
}
