package dataloader

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/vision/dataset"
	"github.com/tsawler/go-trainlog/vision/preprocessing"
)

// ErrInvalidConfig is returned for a non-positive batch or image size
var ErrInvalidConfig = errors.New("invalid loader config")

// Config controls batching and decoding
type Config struct {
	BatchSize int
	ImageSize int
	// Workers decoding cache misses concurrently, 1 when unset
	Workers int
	// CacheSize is the number of decoded images kept, 0 disables the cache
	CacheSize int
	// Shuffle reorders the samples on every Reset
	Shuffle bool
	Seed    int64
}

// Loader cuts an image folder into [N, 3, S, S] batches
type Loader struct {
	samples []dataset.Sample
	order   []int
	cfg     Config
	cache   *Cache
	rng     *rand.Rand
}

// New creates a loader over the samples of d
func New(d *dataset.ImageFolder, cfg Config) (*Loader, error) {
	if cfg.BatchSize < 1 || cfg.ImageSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d, image size %d", ErrInvalidConfig, cfg.BatchSize, cfg.ImageSize)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	l := &Loader{
		samples: d.Samples(),
		cfg:     cfg,
		cache:   NewCache(cfg.CacheSize),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
	l.order = make([]int, len(l.samples))
	l.Reset()
	return l, nil
}

// Reset restores the sample order for a new epoch, shuffling it when configured
func (l *Loader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// NumBatches returns the number of batches, counting a trailing partial one
func (l *Loader) NumBatches() int {
	return (len(l.samples) + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Batch decodes batch i and returns it with the class labels of its samples
func (l *Loader) Batch(i int) (*tensor.Tensor, []int, error) {
	if i < 0 || i >= l.NumBatches() {
		return nil, nil, fmt.Errorf("batch %d out of range [0, %d)", i, l.NumBatches())
	}

	start := i * l.cfg.BatchSize
	end := start + l.cfg.BatchSize
	if end > len(l.order) {
		end = len(l.order)
	}

	images := make([]*tensor.Tensor, end-start)
	labels := make([]int, end-start)
	var missing []int
	var missingPaths []string

	for j := range images {
		s := l.samples[l.order[start+j]]
		labels[j] = s.Label
		if img, ok := l.cache.Get(s.Path); ok {
			images[j] = img
			continue
		}
		missing = append(missing, j)
		missingPaths = append(missingPaths, s.Path)
	}

	if len(missingPaths) > 0 {
		decoded, err := preprocessing.LoadBatch(missingPaths, l.cfg.ImageSize, l.cfg.Workers)
		if err != nil {
			return nil, nil, err
		}
		for k, j := range missing {
			img, err := decoded.Index(k)
			if err != nil {
				return nil, nil, err
			}
			images[j] = img
			l.cache.Put(missingPaths[k], img)
		}
	}

	batch, err := tensor.Zeros([]int{len(images), 3, l.cfg.ImageSize, l.cfg.ImageSize})
	if err != nil {
		return nil, nil, err
	}
	size := 3 * l.cfg.ImageSize * l.cfg.ImageSize
	for j, img := range images {
		copy(batch.Data[j*size:], img.Data)
	}
	return batch, labels, nil
}

// Stats returns the decode cache statistics
func (l *Loader) Stats() CacheStats {
	return l.cache.Stats()
}
