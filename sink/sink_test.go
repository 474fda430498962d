package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-trainlog/tensor"
)

type scalarCall struct {
	tag   string
	value float64
	step  int
}

// memorySink records calls for assertions
type memorySink struct {
	scalars []scalarCall
	images  []string
	closes  int
	err     error
}

func (m *memorySink) AddScalar(_ context.Context, tag string, value float64, step int) error {
	m.scalars = append(m.scalars, scalarCall{tag, value, step})
	return m.err
}

func (m *memorySink) AddImage(_ context.Context, tag string, _ *tensor.Tensor, _ int) error {
	m.images = append(m.images, tag)
	return m.err
}

func (m *memorySink) Close() error {
	m.closes++
	return m.err
}

func TestMultiFansOut(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)

	ctx := context.Background()
	require.NoError(t, m.AddScalar(ctx, "loss", 0.5, 3))
	img, _ := tensor.Zeros([]int{3, 2, 2})
	require.NoError(t, m.AddImage(ctx, "grid", img, 3))
	require.NoError(t, m.Close())

	for _, s := range []*memorySink{a, b} {
		assert.Equal(t, []scalarCall{{"loss", 0.5, 3}}, s.scalars)
		assert.Equal(t, []string{"grid"}, s.images)
		assert.Equal(t, 1, s.closes)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &memorySink{err: boom}
	healthy := &memorySink{}
	m := NewMulti(failing, healthy)

	err := m.AddScalar(context.Background(), "loss", 1, 0)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, healthy.scalars, 1, "healthy sink still receives the value")

	assert.ErrorIs(t, m.Close(), boom)
	assert.Equal(t, 1, healthy.closes)
}
