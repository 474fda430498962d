// Package grid tiles image batches into a single image the way training
// dashboards expect: images laid out row-major with a pad border between them.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsawler/go-trainlog/tensor"
)

// ErrEmptyBatch is returned when a grid is requested for zero images
var ErrEmptyBatch = errors.New("image batch is empty")

// Options controls how a batch is tiled
type Options struct {
	// NRow is the number of images per row. Zero means 8.
	NRow int
	// Padding is the number of pad pixels around every image
	Padding int
	// Normalize shifts values into [0, 1] using the min and max of the data
	Normalize bool
	// ScaleEach normalizes every image by its own min and max instead of the batch's
	ScaleEach bool
	// PadValue fills the pad border
	PadValue float32
}

// DefaultOptions matches the usual grid defaults: 8 per row, 2 pixel padding
func DefaultOptions() Options {
	return Options{NRow: 8, Padding: 2}
}

// MakeGrid tiles an NCHW batch into one CHW image. Single channel batches are
// expanded to three channels. A batch of one image is returned unpadded.
func MakeGrid(batch *tensor.Tensor, opts Options) (*tensor.Tensor, error) {
	if batch == nil {
		return nil, ErrEmptyBatch
	}
	if batch.Rank() != 4 {
		return nil, fmt.Errorf("%w: grid input must be NCHW, got shape %v", tensor.ErrShape, batch.Shape)
	}
	if opts.NRow <= 0 {
		opts.NRow = 8
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}

	imgs := batch.Clone()
	if imgs.Shape[1] == 1 {
		var err error
		if imgs, err = expandChannels(imgs, 3); err != nil {
			return nil, err
		}
	}

	n, c, h, w := imgs.Shape[0], imgs.Shape[1], imgs.Shape[2], imgs.Shape[3]

	if opts.Normalize {
		if opts.ScaleEach {
			size := c * h * w
			for i := 0; i < n; i++ {
				normalizeRange(imgs.Data[i*size : (i+1)*size])
			}
		} else {
			normalizeRange(imgs.Data)
		}
	}

	if n == 1 {
		return imgs.Reshape([]int{c, h, w})
	}

	xmaps := opts.NRow
	if n < xmaps {
		xmaps = n
	}
	ymaps := int(math.Ceil(float64(n) / float64(xmaps)))
	cellH := h + opts.Padding
	cellW := w + opts.Padding

	out, err := tensor.Full([]int{c, cellH*ymaps + opts.Padding, cellW*xmaps + opts.Padding}, opts.PadValue)
	if err != nil {
		return nil, err
	}

	k := 0
	for y := 0; y < ymaps; y++ {
		for x := 0; x < xmaps; x++ {
			if k >= n {
				break
			}
			top := y*cellH + opts.Padding
			left := x*cellW + opts.Padding
			for ch := 0; ch < c; ch++ {
				for row := 0; row < h; row++ {
					for col := 0; col < w; col++ {
						out.Set(imgs.At(k, ch, row, col), ch, top+row, left+col)
					}
				}
			}
			k++
		}
	}
	return out, nil
}

// Horizontal lays every image of the batch out in a single row, each image
// scaled by its own range when normalize is set
func Horizontal(batch *tensor.Tensor, normalize bool) (*tensor.Tensor, error) {
	if batch == nil || batch.Rank() < 1 {
		return nil, ErrEmptyBatch
	}
	opts := DefaultOptions()
	opts.NRow = batch.Shape[0]
	opts.Normalize = normalize
	opts.ScaleEach = true
	return MakeGrid(batch, opts)
}

// Square lays count images out floor(sqrt(count)) per row, each image
// normalized by its own range
func Square(batch *tensor.Tensor, count int) (*tensor.Tensor, error) {
	if count < 1 {
		return nil, ErrEmptyBatch
	}
	opts := DefaultOptions()
	opts.NRow = int(math.Sqrt(float64(count)))
	opts.Normalize = true
	opts.ScaleEach = true
	return MakeGrid(batch, opts)
}

// MosaicLayout returns the subplot grid for n titled images: two per column,
// as many columns as needed
func MosaicLayout(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	rows = int(math.Ceil(float64(n) / 2))
	cols = int(math.Ceil(float64(n) / float64(rows)))
	return rows, cols
}

func expandChannels(t *tensor.Tensor, channels int) (*tensor.Tensor, error) {
	n, h, w := t.Shape[0], t.Shape[2], t.Shape[3]
	out, err := tensor.New([]int{n, channels, h, w}, nil)
	if err != nil {
		return nil, err
	}
	plane := h * w
	for i := 0; i < n; i++ {
		src := t.Data[i*plane : (i+1)*plane]
		for ch := 0; ch < channels; ch++ {
			copy(out.Data[(i*channels+ch)*plane:], src)
		}
	}
	return out, nil
}

// normalizeRange maps data onto [0, 1] in place
func normalizeRange(data []float32) {
	if len(data) == 0 {
		return
	}
	low, high := data[0], data[0]
	for _, v := range data[1:] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	span := high - low
	if span < 1e-5 {
		span = 1e-5
	}
	for i, v := range data {
		data[i] = (v - low) / span
	}
}
