package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createTestFolder lays out root/<class>/image_<i>.png with empty files
func createTestFolder(t *testing.T, counts map[string]int) string {
	t.Helper()
	root := t.TempDir()
	for class, n := range counts {
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
		for i := 0; i < n; i++ {
			path := filepath.Join(dir, fmt.Sprintf("image_%d.png", i))
			if err := os.WriteFile(path, nil, 0644); err != nil {
				t.Fatalf("Failed to create %s: %v", path, err)
			}
		}
	}
	return root
}

func TestNewImageFolder(t *testing.T) {
	tests := []struct {
		name        string
		counts      map[string]int
		extras      []string
		extensions  []string
		wantLen     int
		wantClasses []string
		wantErr     error
	}{
		{
			name:        "digits",
			counts:      map[string]int{"0": 3, "1": 2, "2": 4},
			wantLen:     9,
			wantClasses: []string{"0", "1", "2"},
		},
		{
			name:        "ignores other files",
			counts:      map[string]int{"cat": 2},
			extras:      []string{"cat/notes.txt", "README.md"},
			wantLen:     2,
			wantClasses: []string{"cat"},
		},
		{
			name:        "uppercase extension",
			counts:      map[string]int{"a": 1},
			extras:      []string{"a/SCAN.PNG"},
			wantLen:     2,
			wantClasses: []string{"a"},
		},
		{
			name:       "extension filter",
			counts:     map[string]int{"a": 2},
			extensions: []string{".jpg"},
			wantErr:    ErrNoImages,
		},
		{
			name:    "empty classes",
			counts:  map[string]int{"a": 0, "b": 0},
			wantErr: ErrNoImages,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := createTestFolder(t, tt.counts)
			for _, extra := range tt.extras {
				if err := os.WriteFile(filepath.Join(root, extra), nil, 0644); err != nil {
					t.Fatal(err)
				}
			}

			d, err := NewImageFolder(root, tt.extensions...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewImageFolder failed: %v", err)
			}
			if d.Len() != tt.wantLen {
				t.Errorf("Expected %d samples, got %d", tt.wantLen, d.Len())
			}
			if strings.Join(d.ClassNames(), ",") != strings.Join(tt.wantClasses, ",") {
				t.Errorf("Expected classes %v, got %v", tt.wantClasses, d.ClassNames())
			}
		})
	}
}

func TestNewImageFolderMissingRoot(t *testing.T) {
	if _, err := NewImageFolder(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestImageFolderSample(t *testing.T) {
	root := createTestFolder(t, map[string]int{"0": 2, "1": 1})
	d, err := NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}

	s, err := d.Sample(2)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if s.Label != 1 || filepath.Base(filepath.Dir(s.Path)) != "1" {
		t.Errorf("Unexpected sample %+v", s)
	}

	for _, index := range []int{-1, 3} {
		if _, err := d.Sample(index); err == nil {
			t.Errorf("Expected an error for index %d", index)
		}
	}

	samples := d.Samples()
	samples[0].Label = 99
	if first, _ := d.Sample(0); first.Label == 99 {
		t.Error("Samples should return a copy")
	}
}

func TestImageFolderOnlyAndWithout(t *testing.T) {
	root := createTestFolder(t, map[string]int{"0": 3, "1": 2, "2": 4})
	d, err := NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}

	only, err := d.Only("2")
	if err != nil {
		t.Fatalf("Only failed: %v", err)
	}
	if only.Len() != 4 {
		t.Errorf("Expected 4 samples of class 2, got %d", only.Len())
	}
	for _, s := range only.Samples() {
		if s.Label != 2 {
			t.Errorf("Unexpected label %d", s.Label)
		}
	}

	without, err := d.Without("2")
	if err != nil {
		t.Fatalf("Without failed: %v", err)
	}
	if without.Len() != 5 {
		t.Errorf("Expected 5 samples, got %d", without.Len())
	}
	if len(without.ClassNames()) != 3 {
		t.Error("Filtering should keep the class index")
	}

	if _, err := d.Only("7"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass, got %v", err)
	}
	if _, err := d.Without("7"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass, got %v", err)
	}
}

func TestImageFolderAnomalyLabels(t *testing.T) {
	root := createTestFolder(t, map[string]int{"0": 2, "1": 3})
	d, err := NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}

	labels, err := d.AnomalyLabels("0")
	if err != nil {
		t.Fatalf("AnomalyLabels failed: %v", err)
	}
	want := []int{1, 1, 0, 0, 0}
	if fmt.Sprint(labels) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, labels)
	}

	if _, err := d.AnomalyLabels("9"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass, got %v", err)
	}
}

func TestImageFolderSplit(t *testing.T) {
	root := createTestFolder(t, map[string]int{"0": 5, "1": 5})
	d, err := NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		ratio     float64
		rng       *rand.Rand
		wantTrain int
	}{
		{"ordered", 0.8, nil, 8},
		{"shuffled", 0.5, rand.New(rand.NewSource(1)), 5},
		{"all train", 1.5, nil, 10},
		{"all test", -1, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test := d.Split(tt.ratio, tt.rng)
			if train.Len() != tt.wantTrain || test.Len() != d.Len()-tt.wantTrain {
				t.Fatalf("Expected %d/%d, got %d/%d", tt.wantTrain, d.Len()-tt.wantTrain, train.Len(), test.Len())
			}

			seen := make(map[string]bool)
			for _, s := range append(train.Samples(), test.Samples()...) {
				if seen[s.Path] {
					t.Errorf("Sample %s appears twice", s.Path)
				}
				seen[s.Path] = true
			}
			if len(seen) != d.Len() {
				t.Errorf("Expected %d distinct samples, got %d", d.Len(), len(seen))
			}
		})
	}

	train, _ := d.Split(0.8, nil)
	first, _ := d.Sample(0)
	if got, _ := train.Sample(0); got != first {
		t.Error("A nil rng should keep the sample order")
	}
}

func TestImageFolderSubsetAndString(t *testing.T) {
	root := createTestFolder(t, map[string]int{"0": 2, "1": 1})
	d, err := NewImageFolder(root)
	if err != nil {
		t.Fatal(err)
	}

	subset := d.Subset([]int{2, 0})
	if subset.Len() != 2 {
		t.Fatalf("Expected 2 samples, got %d", subset.Len())
	}
	if s, _ := subset.Sample(0); s.Label != 1 {
		t.Errorf("Expected the subset to follow the index order, got label %d", s.Label)
	}

	want := "ImageFolder: 3 samples, 2 classes\n  0: 2\n  1: 1\n"
	if d.String() != want {
		t.Errorf("Expected %q, got %q", want, d.String())
	}
}
