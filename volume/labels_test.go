package volume_test

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/volume"
)

func TestLabelsFromTensor(t *testing.T) {
	x := ts.MustOfSlice([]int64{0, 1, 2, 3, 4, 5, 6, 7}).MustView([]int64{1, 2, 2, 2}, true)
	defer x.MustDrop()

	l, err := volume.LabelsFromTensor(x)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Depth)
	assert.Equal(t, int64(7), l.At(1, 1, 1))

	back := l.Tensor()
	defer back.MustDrop()
	assert.Equal(t, []int64{1, 2, 2, 2}, back.MustSize())
	assert.Equal(t, x.Int64Values(), back.Int64Values())

	batch := ts.MustOfSlice([]int64{0, 1, 2, 3}).MustView([]int64{2, 1, 1, 2}, true)
	defer batch.MustDrop()
	_, err = volume.LabelsFromTensor(batch)
	assert.Error(t, err)
}

func TestLabelsCropAndCounts(t *testing.T) {
	l := &volume.Labels{Depth: 1, Height: 3, Width: 3, Data: []int64{
		1, 1, 0,
		2, 1, 0,
		0, 0, 0,
	}}

	c, err := l.Crop(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 1}, c.Data)
	assert.Equal(t, []int64{0, 3, 1}, c.Counts(3))
	assert.Equal(t, []int64{0, 3}, c.Counts(2))

	_, err = l.Crop(4, 1)
	assert.Error(t, err)
}

func TestLabelsSaveSlicesRoundTrip(t *testing.T) {
	l := &volume.Labels{Depth: 2, Height: 2, Width: 3, Data: []int64{
		0, 1, 2, 3, 4, 5,
		5, 4, 3, 2, 1, 0,
	}}

	for _, ext := range []string{"png", "tif"} {
		t.Run(ext, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "labels")
			require.NoError(t, l.SaveSlices(dir, ext))

			v, err := volume.Load(dir)
			require.NoError(t, err)

			assert.Equal(t, l.Data, volume.LabelsFromVolume(v).Data)
		})
	}

	assert.Error(t, l.SaveSlices(t.TempDir(), "bmp"))
}

func TestLabelsSliceRange(t *testing.T) {
	l := &volume.Labels{Depth: 1, Height: 1, Width: 3, Data: []int64{0, 255, 256}}

	_, err := l.Slice(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, volume.ErrLabelRange))
	assert.True(t, errors.Is(l.SaveSlices(t.TempDir(), "png"), volume.ErrLabelRange))

	l.Data[2] = 7
	img, err := l.Slice(0)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 7}, img.Pix)

	_, err = l.Slice(1)
	assert.Error(t, err)
}

func TestOverlay(t *testing.T) {
	v := volume.New(2, 4, 4)
	for i := range v.Data {
		v.Data[i] = float32(i)
	}
	l := &volume.Labels{Depth: 2, Height: 4, Width: 4, Data: make([]int64, 32)}
	l.Data[16] = 1

	img, err := volume.Overlay(v, l, 1, 3, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())

	// labelled voxel (1, 0, 0) is tinted red, background stays gray
	tinted := img.NRGBAAt(1, 1)
	assert.Greater(t, int(tinted.R), int(tinted.G))
	plain := img.NRGBAAt(10, 10)
	assert.Equal(t, plain.R, plain.G)

	_, err = volume.Overlay(v, l, 2, 1, 0.5)
	assert.Error(t, err)

	require.NoError(t, volume.SavePreview(filepath.Join(t.TempDir(), "p.png"), v, l, 0, 2))
}
