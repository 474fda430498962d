package preprocessing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"

	// Register decoders used by DecodeImage
	_ "image/jpeg"

	"github.com/tsawler/go-trainlog/tensor"
)

// ErrChannels is returned when a tensor cannot be rendered as an image
var ErrChannels = errors.New("unsupported channel count")

// ToImage renders a CHW tensor with values in [0, 1] as an RGBA image.
// One channel is drawn as gray, three as RGB and four as RGBA.
func ToImage(chw *tensor.Tensor) (*image.RGBA, error) {
	if chw == nil || chw.Rank() != 3 {
		return nil, fmt.Errorf("%w: expected CHW tensor", tensor.ErrShape)
	}
	c, h, w := chw.Shape[0], chw.Shape[1], chw.Shape[2]
	if c != 1 && c != 3 && c != 4 {
		return nil, fmt.Errorf("%w: %d", ErrChannels, c)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px color.RGBA
			px.A = 255
			switch c {
			case 1:
				v := toByte(chw.At(0, y, x))
				px.R, px.G, px.B = v, v, v
			default:
				px.R = toByte(chw.At(0, y, x))
				px.G = toByte(chw.At(1, y, x))
				px.B = toByte(chw.At(2, y, x))
				if c == 4 {
					px.A = toByte(chw.At(3, y, x))
				}
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img, nil
}

// toByte maps [0, 1] onto [0, 255] with rounding and clamping
func toByte(v float32) uint8 {
	f := v*255 + 0.5
	if f != f || f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}

// EncodePNG writes a CHW tensor to w as PNG
func EncodePNG(w io.Writer, chw *tensor.Tensor) error {
	img, err := ToImage(chw)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// EncodePNGBase64 returns the PNG encoding of chw as standard base64
func EncodePNGBase64(chw *tensor.Tensor) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, chw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SavePNG writes a CHW tensor to path, replacing any existing file
func SavePNG(path string, chw *tensor.Tensor) error {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, chw); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// FromImage converts img to a [3, H, W] tensor with values in [0, 1]
func FromImage(img image.Image) (*tensor.Tensor, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	t, err := tensor.Zeros([]int{3, height, width})
	if err != nil {
		return nil, err
	}
	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*width + x
			t.Data[idx] = float32(r) / 65535.0
			t.Data[plane+idx] = float32(g) / 65535.0
			t.Data[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return t, nil
}

// FromImages stacks equally sized images into an [N, 3, H, W] batch
func FromImages(images []image.Image) (*tensor.Tensor, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images", tensor.ErrShape)
	}

	first := images[0].Bounds()
	h, w := first.Dy(), first.Dx()
	batch, err := tensor.Zeros([]int{len(images), 3, h, w})
	if err != nil {
		return nil, err
	}

	size := 3 * h * w
	for i, img := range images {
		b := img.Bounds()
		if b.Dx() != w || b.Dy() != h {
			return nil, fmt.Errorf("%w: image %d is %dx%d, expected %dx%d", tensor.ErrShape, i, b.Dx(), b.Dy(), w, h)
		}
		chw, err := FromImage(img)
		if err != nil {
			return nil, err
		}
		copy(batch.Data[i*size:], chw.Data)
	}
	return batch, nil
}

// DecodeImage decodes a PNG or JPEG stream into a [3, H, W] tensor
func DecodeImage(r io.Reader) (*tensor.Tensor, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	t, err := FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s image: %w", format, err)
	}
	return t, nil
}

// ImageProcessor decodes images and resamples them to a square target size,
// reusing its scratch image between calls
type ImageProcessor struct {
	mu              sync.Mutex
	tempImageBuffer *image.RGBA
	targetSize      int
}

// NewImageProcessor creates a new image processor with the specified target size
func NewImageProcessor(targetSize int) *ImageProcessor {
	return &ImageProcessor{
		targetSize: targetSize,
	}
}

// DecodeAndResize decodes an image and nearest-neighbour resamples it to the
// target size. The result is a [3, S, S] tensor in [0, 1].
func (p *ImageProcessor) DecodeAndResize(reader io.Reader) (*tensor.Tensor, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tempImageBuffer == nil || p.tempImageBuffer.Bounds().Dx() != p.targetSize {
		p.tempImageBuffer = image.NewRGBA(image.Rect(0, 0, p.targetSize, p.targetSize))
	}
	target := p.tempImageBuffer

	scaleX := float64(width) / float64(p.targetSize)
	scaleY := float64(height) / float64(p.targetSize)

	for y := 0; y < p.targetSize; y++ {
		for x := 0; x < p.targetSize; x++ {
			srcX := int(float64(x) * scaleX)
			srcY := int(float64(y) * scaleY)
			if srcX >= width {
				srcX = width - 1
			}
			if srcY >= height {
				srcY = height - 1
			}
			target.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return FromImage(target)
}

// LoadBatch decodes and resizes image files concurrently and stacks them
// into an [N, 3, S, S] batch in path order
func LoadBatch(imagePaths []string, targetSize int, maxWorkers int) (*tensor.Tensor, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("%w: no images", tensor.ErrShape)
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*tensor.Tensor, len(imagePaths))
	errs := make([]error, len(imagePaths))

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(imagePaths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := NewImageProcessor(targetSize)

			for j := range jobs {
				file, err := os.Open(j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}

				img, err := processor.DecodeAndResize(file)
				file.Close()

				if err != nil {
					errs[j.index] = err
				} else {
					results[j.index] = img
				}
			}
		}()
	}

	for i, path := range imagePaths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process image %d: %w", i, err)
		}
	}

	batch, err := tensor.Zeros([]int{len(results), 3, targetSize, targetSize})
	if err != nil {
		return nil, err
	}
	size := 3 * targetSize * targetSize
	for i, t := range results {
		copy(batch.Data[i*size:], t.Data)
	}
	return batch, nil
}
