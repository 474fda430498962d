package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNoImages is returned when a directory tree holds no matching images
	ErrNoImages = errors.New("no images found")
	// ErrUnknownClass is returned when a class name is not a subdirectory of the root
	ErrUnknownClass = errors.New("unknown class")
)

// DefaultExtensions are the file extensions scanned when none are given
var DefaultExtensions = []string{".png", ".jpg", ".jpeg"}

// Sample is one image file and the index of its class
type Sample struct {
	Path  string
	Label int
}

// ImageFolder is a dataset laid out as root/<class>/<image>, e.g. an MNIST
// export with one directory per digit
type ImageFolder struct {
	samples    []Sample
	classNames []string
	classToIdx map[string]int
}

// NewImageFolder scans root for class subdirectories. Classes are indexed in
// lexical order and samples are ordered by class, then by file name.
func NewImageFolder(root string, extensions ...string) (*ImageFolder, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	d := &ImageFolder{classToIdx: make(map[string]int)}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		classDir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list class %s: %w", entry.Name(), err)
		}

		label := len(d.classNames)
		d.classNames = append(d.classNames, entry.Name())
		d.classToIdx[entry.Name()] = label

		for _, file := range files {
			if file.IsDir() || !allowed[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			d.samples = append(d.samples, Sample{Path: filepath.Join(classDir, file.Name()), Label: label})
		}
	}

	if len(d.samples) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, root)
	}
	return d, nil
}

// Len returns the number of samples
func (d *ImageFolder) Len() int {
	return len(d.samples)
}

// Sample returns the sample at index
func (d *ImageFolder) Sample(index int) (Sample, error) {
	if index < 0 || index >= len(d.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(d.samples))
	}
	return d.samples[index], nil
}

// Samples returns a copy of every sample in order
func (d *ImageFolder) Samples() []Sample {
	return append([]Sample(nil), d.samples...)
}

// ClassNames returns the class names in label order
func (d *ImageFolder) ClassNames() []string {
	return d.classNames
}

// ClassIndex returns the label of a class name
func (d *ImageFolder) ClassIndex(name string) (int, error) {
	idx, ok := d.classToIdx[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}
	return idx, nil
}

// ClassDistribution returns the number of samples per class
func (d *ImageFolder) ClassDistribution() map[string]int {
	dist := make(map[string]int, len(d.classNames))
	for _, s := range d.samples {
		dist[d.classNames[s.Label]]++
	}
	return dist
}

// Only keeps the samples of one class. Anomaly detectors train on a single
// normal class this way.
func (d *ImageFolder) Only(class string) (*ImageFolder, error) {
	label, err := d.ClassIndex(class)
	if err != nil {
		return nil, err
	}
	return d.filter(func(s Sample) bool { return s.Label == label }), nil
}

// Without drops the samples of one class, e.g. to hold an anomaly class out
// of the training set
func (d *ImageFolder) Without(class string) (*ImageFolder, error) {
	label, err := d.ClassIndex(class)
	if err != nil {
		return nil, err
	}
	return d.filter(func(s Sample) bool { return s.Label != label }), nil
}

func (d *ImageFolder) filter(keep func(Sample) bool) *ImageFolder {
	out := &ImageFolder{classNames: d.classNames, classToIdx: d.classToIdx}
	for _, s := range d.samples {
		if keep(s) {
			out.samples = append(out.samples, s)
		}
	}
	return out
}

// AnomalyLabels returns 1 for every sample of the abnormal class and 0 for
// the rest, in sample order, ready for training.ROCCurveFromScores
func (d *ImageFolder) AnomalyLabels(abnormal string) ([]int, error) {
	label, err := d.ClassIndex(abnormal)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(d.samples))
	for i, s := range d.samples {
		if s.Label == label {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Split partitions the samples into a train and a test set. A nil rng keeps
// the current order.
func (d *ImageFolder) Split(trainRatio float64, rng *rand.Rand) (*ImageFolder, *ImageFolder) {
	indices := make([]int, len(d.samples))
	for i := range indices {
		indices[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	n := int(float64(len(indices)) * trainRatio)
	if n < 0 {
		n = 0
	}
	if n > len(indices) {
		n = len(indices)
	}
	return d.Subset(indices[:n]), d.Subset(indices[n:])
}

// Subset returns the samples at the given indices, in that order
func (d *ImageFolder) Subset(indices []int) *ImageFolder {
	out := &ImageFolder{
		samples:    make([]Sample, len(indices)),
		classNames: d.classNames,
		classToIdx: d.classToIdx,
	}
	for i, idx := range indices {
		out.samples[i] = d.samples[idx]
	}
	return out
}

func (d *ImageFolder) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ImageFolder: %d samples, %d classes\n", len(d.samples), len(d.classNames))

	dist := d.ClassDistribution()
	names := append([]string(nil), d.classNames...)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "  %s: %d\n", name, dist[name])
	}
	return sb.String()
}
