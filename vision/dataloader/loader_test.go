package dataloader

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-trainlog/vision/dataset"
)

// createImageFolder writes solid grey 4x4 PNGs; class k, image i has grey level 10*k+i
func createImageFolder(t *testing.T, classes, perClass int) *dataset.ImageFolder {
	t.Helper()
	root := t.TempDir()
	for k := 0; k < classes; k++ {
		dir := filepath.Join(root, fmt.Sprintf("%d", k))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < perClass; i++ {
			img := image.NewGray(image.Rect(0, 0, 4, 4))
			for p := range img.Pix {
				img.Pix[p] = uint8(10*k + i)
			}
			f, err := os.Create(filepath.Join(dir, fmt.Sprintf("image_%d.png", i)))
			if err != nil {
				t.Fatal(err)
			}
			if err := png.Encode(f, img); err != nil {
				t.Fatal(err)
			}
			f.Close()
		}
	}

	d, err := dataset.NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func grey(level int) float32 {
	r, _, _, _ := color.Gray{Y: uint8(level)}.RGBA()
	return float32(r) / 65535.0
}

func TestNewLoaderRejectsBadConfig(t *testing.T) {
	d := createImageFolder(t, 1, 1)
	for _, cfg := range []Config{{BatchSize: 0, ImageSize: 2}, {BatchSize: 2, ImageSize: 0}} {
		if _, err := New(d, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig for %+v, got %v", cfg, err)
		}
	}
}

func TestLoaderBatches(t *testing.T) {
	d := createImageFolder(t, 2, 3)
	l, err := New(d, Config{BatchSize: 4, ImageSize: 2, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	if l.NumBatches() != 2 {
		t.Fatalf("Expected 2 batches, got %d", l.NumBatches())
	}

	tests := []struct {
		batch      int
		wantN      int
		wantLabels []int
		wantFirst  float32
	}{
		{0, 4, []int{0, 0, 0, 1}, grey(0)},
		{1, 2, []int{1, 1}, grey(11)},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("batch %d", tt.batch), func(t *testing.T) {
			images, labels, err := l.Batch(tt.batch)
			if err != nil {
				t.Fatalf("Batch failed: %v", err)
			}
			wantShape := []int{tt.wantN, 3, 2, 2}
			if fmt.Sprint(images.Shape) != fmt.Sprint(wantShape) {
				t.Errorf("Expected shape %v, got %v", wantShape, images.Shape)
			}
			if fmt.Sprint(labels) != fmt.Sprint(tt.wantLabels) {
				t.Errorf("Expected labels %v, got %v", tt.wantLabels, labels)
			}
			if images.At(0, 2, 1, 1) != tt.wantFirst {
				t.Errorf("Expected first pixel %v, got %v", tt.wantFirst, images.At(0, 2, 1, 1))
			}
		})
	}

	if _, _, err := l.Batch(2); err == nil {
		t.Error("Expected an error for an out of range batch")
	}
}

func TestLoaderUsesCache(t *testing.T) {
	d := createImageFolder(t, 1, 3)
	l, err := New(d, Config{BatchSize: 3, ImageSize: 2, CacheSize: 3, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	first, _, err := l.Batch(0)
	if err != nil {
		t.Fatal(err)
	}
	if stats := l.Stats(); stats.Misses != 3 || stats.Hits != 0 {
		t.Errorf("Unexpected stats after the first pass: %+v", stats)
	}

	// Batches are copies, so callers may scribble on them
	first.Data[0] = 42

	second, _, err := l.Batch(0)
	if err != nil {
		t.Fatal(err)
	}
	if stats := l.Stats(); stats.Hits != 3 {
		t.Errorf("Expected 3 hits, got %+v", stats)
	}
	if second.Data[0] != grey(0) {
		t.Errorf("Cached image was modified: %v", second.Data[0])
	}
}

func TestLoaderShuffle(t *testing.T) {
	d := createImageFolder(t, 2, 5)
	l, err := New(d, Config{BatchSize: 10, ImageSize: 1, Shuffle: true, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}

	_, labels, err := l.Batch(0)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[int]int{}
	for _, label := range labels {
		counts[label]++
	}
	if counts[0] != 5 || counts[1] != 5 {
		t.Errorf("Shuffling should keep every sample once, got %v", counts)
	}

	l.cfg.Shuffle = false
	l.Reset()
	_, labels, _ = l.Batch(0)
	want := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	if fmt.Sprint(labels) != fmt.Sprint(want) {
		t.Errorf("Expected the folder order %v, got %v", want, labels)
	}
}

func TestLoaderMissingFile(t *testing.T) {
	d := createImageFolder(t, 1, 2)
	s, _ := d.Sample(1)
	if err := os.Remove(s.Path); err != nil {
		t.Fatal(err)
	}

	l, err := New(d, Config{BatchSize: 2, ImageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Batch(0); err == nil {
		t.Error("Expected an error for a missing image file")
	}
}
