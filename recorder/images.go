package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/vision/grid"
	"github.com/tsawler/go-trainlog/vision/preprocessing"
)

var (
	// ErrInvalidImageCount is returned when LogImages is asked for fewer than one image
	ErrInvalidImageCount = errors.New("image count must be at least 1")

	// ErrUnsupportedImages is returned for image batches of an unknown type
	ErrUnsupportedImages = errors.New("unsupported image batch")
)

// ImageOptions controls how LogImages reads and tiles a batch
type ImageOptions struct {
	// Layout of a rank 4 tensor batch. Empty means NCHW.
	Layout tensor.Layout
	// Normalize scales the horizontal grid per image. Nil means true.
	Normalize *bool
	// Title is part of the sink tag. Empty prints as None.
	Title string
}

func (o ImageOptions) normalize() bool {
	if o.Normalize == nil {
		return true
	}
	return *o.Normalize
}

// Bool returns a pointer to b, for ImageOptions.Normalize
func Bool(b bool) *bool {
	return &b
}

// ImageTag returns the sink tag an image batch is logged under
func ImageTag(comment, title string) string {
	if title == "" {
		title = "None"
	}
	return fmt.Sprintf("%s/images: *%s*", comment, title)
}

// ImageFileName returns the PNG name of a grid written at (epoch, batch)
func ImageFileName(prefix string, epoch, batch int) string {
	return fmt.Sprintf("%s_epoch_%d_batch_%d.png", prefix, epoch, batch)
}

// LogImages tiles a batch twice: one row holding every image, sent to the sink
// at the step of (epoch, batch), and a square grid with floor(sqrt(count))
// images per row. Both grids are written to the images directory as
// horizontal_epoch_{E}_batch_{B}.png and _epoch_{E}_batch_{B}.png.
//
// images may be a *tensor.Tensor (NCHW, NHWC or a single HWC image), an
// image.Image or a []image.Image.
func (r *Recorder) LogImages(ctx context.Context, images interface{}, count, epoch, batch, batchesPerEpoch int, opts ImageOptions) error {
	if count < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidImageCount, count)
	}

	nchw, err := toBatch(images, opts.Layout)
	if err != nil {
		return err
	}

	horizontal, err := grid.Horizontal(nchw, opts.normalize())
	if err != nil {
		return fmt.Errorf("failed to build horizontal grid: %w", err)
	}
	square, err := grid.Square(nchw, count)
	if err != nil {
		return fmt.Errorf("failed to build square grid: %w", err)
	}

	step := Step(epoch, batch, batchesPerEpoch)
	tag := ImageTag(r.comment, opts.Title)
	if err := r.sink.AddImage(ctx, tag, horizontal, step); err != nil {
		return fmt.Errorf("failed to log images at step %d: %w", step, err)
	}

	files := []struct {
		prefix string
		grid   *tensor.Tensor
	}{
		{"horizontal", horizontal},
		{"", square},
	}
	for _, f := range files {
		path := filepath.Join(r.imagesDir, ImageFileName(f.prefix, epoch, batch))
		if err := preprocessing.SavePNG(path, f.grid); err != nil {
			return err
		}
	}

	r.logger.Debug("images logged",
		zap.String("tag", tag),
		zap.Int("step", step),
		zap.Int("count", count),
		zap.Ints("grid_shape", horizontal.Shape),
	)
	return nil
}

// toBatch converts the supported image inputs to an NCHW tensor
func toBatch(images interface{}, layout tensor.Layout) (*tensor.Tensor, error) {
	switch v := images.(type) {
	case *tensor.Tensor:
		if v == nil {
			return nil, fmt.Errorf("%w: nil tensor", ErrUnsupportedImages)
		}
		return tensor.ToNCHW(v, layout)
	case []image.Image:
		return preprocessing.FromImages(v)
	case image.Image:
		return preprocessing.FromImages([]image.Image{v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedImages, images)
	}
}
