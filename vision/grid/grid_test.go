package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-trainlog/tensor"
)

func rampBatch(t *testing.T, shape []int) *tensor.Tensor {
	t.Helper()
	b, err := tensor.Zeros(shape)
	require.NoError(t, err)
	for i := range b.Data {
		b.Data[i] = float32(i)
	}
	return b
}

func TestHorizontalSingleRow(t *testing.T) {
	batch := rampBatch(t, []int{4, 3, 2, 2})

	out, err := Horizontal(batch, true)
	require.NoError(t, err)
	// one row of four 2x2 cells with 2px padding
	assert.Equal(t, []int{3, 6, 18}, out.Shape)

	// padding stays at zero
	assert.Equal(t, float32(0), out.At(0, 0, 0))
	assert.Equal(t, float32(0), out.At(2, 5, 17))
}

func TestHorizontalScalesEachImage(t *testing.T) {
	batch := rampBatch(t, []int{2, 1, 1, 2})

	out, err := Horizontal(batch, true)
	require.NoError(t, err)

	// every image spans [0, 1] on its own
	assert.InDelta(t, 0, out.At(0, 2, 2), 1e-6)
	assert.InDelta(t, 1, out.At(0, 2, 3), 1e-6)
	assert.InDelta(t, 0, out.At(0, 2, 6), 1e-6)
	assert.InDelta(t, 1, out.At(0, 2, 7), 1e-6)
}

func TestHorizontalWithoutNormalize(t *testing.T) {
	batch := rampBatch(t, []int{2, 1, 1, 2})

	out, err := Horizontal(batch, false)
	require.NoError(t, err)
	assert.Equal(t, float32(3), out.At(1, 2, 7))
}

func TestSquareGrid(t *testing.T) {
	batch := rampBatch(t, []int{4, 3, 2, 2})

	out, err := Square(batch, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 10, 10}, out.Shape)

	// first pixel of every image is its minimum, last is its maximum
	assert.InDelta(t, 1, out.At(2, 7, 7), 1e-6)
	assert.InDelta(t, 0, out.At(0, 2, 2), 1e-6)
}

func TestSquareGridScalesEachImage(t *testing.T) {
	batch, err := tensor.New([]int{2, 1, 1, 2}, []float32{0, 1, 0, 10})
	require.NoError(t, err)

	out, err := Square(batch, 2)
	require.NoError(t, err)
	// one image per row
	require.Equal(t, []int{3, 8, 6}, out.Shape)

	for _, top := range []int{2, 5} {
		assert.InDelta(t, 0, out.At(0, top, 2), 1e-6)
		assert.InDelta(t, 1, out.At(0, top, 3), 1e-6)
	}
}

func TestSquareGridNRow(t *testing.T) {
	batch := rampBatch(t, []int{5, 1, 2, 2})

	out, err := Square(batch, 5)
	require.NoError(t, err)
	// floor(sqrt(5)) = 2 per row, three rows
	assert.Equal(t, []int{3, 14, 10}, out.Shape)
}

func TestMakeGridSingleImage(t *testing.T) {
	batch := rampBatch(t, []int{1, 3, 2, 2})

	out, err := MakeGrid(batch, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, out.Shape)
	assert.Equal(t, batch.Data, out.Data)
}

func TestMakeGridExpandsGrayscale(t *testing.T) {
	batch := rampBatch(t, []int{2, 1, 2, 2})

	out, err := MakeGrid(batch, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, out.Shape[0])
	for ch := 0; ch < 3; ch++ {
		assert.Equal(t, float32(3), out.At(ch, 3, 3))
	}
}

func TestMakeGridDoesNotMutateInput(t *testing.T) {
	batch := rampBatch(t, []int{2, 3, 2, 2})
	before := append([]float32(nil), batch.Data...)

	_, err := Horizontal(batch, true)
	require.NoError(t, err)
	assert.Equal(t, before, batch.Data)
}

func TestMakeGridMatchesAcrossLayouts(t *testing.T) {
	nchw := rampBatch(t, []int{3, 3, 2, 4})
	nhwc, err := nchw.Permute(0, 2, 3, 1)
	require.NoError(t, err)

	back, err := tensor.ToNCHW(nhwc, tensor.NHWC)
	require.NoError(t, err)

	want, err := Horizontal(nchw, true)
	require.NoError(t, err)
	got, err := Horizontal(back, true)
	require.NoError(t, err)

	assert.Equal(t, want.Shape, got.Shape)
	assert.Equal(t, want.Data, got.Data)
}

func TestMakeGridErrors(t *testing.T) {
	_, err := MakeGrid(nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptyBatch))

	chw := rampBatch(t, []int{3, 2, 2})
	_, err = MakeGrid(chw, DefaultOptions())
	assert.True(t, errors.Is(err, tensor.ErrShape))

	_, err = Square(chw, 0)
	assert.True(t, errors.Is(err, ErrEmptyBatch))
}

func TestMosaicLayout(t *testing.T) {
	tests := []struct {
		n          int
		rows, cols int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 1, 2},
		{3, 2, 2},
		{4, 2, 2},
		{5, 3, 2},
		{7, 4, 2},
	}

	for _, tt := range tests {
		rows, cols := MosaicLayout(tt.n)
		assert.Equal(t, tt.rows, rows, "rows for n=%d", tt.n)
		assert.Equal(t, tt.cols, cols, "cols for n=%d", tt.n)
	}
}
