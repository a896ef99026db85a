package refinenet_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
	"github.com/sugarme/voxseg/refinenet"
)

func TestFuse(t *testing.T) {
	coarse := ts.MustOnes([]int64{1, 2, 3, 2, 2}, gotch.Float, gotch.CPU)
	defer coarse.MustDrop()
	fine := ts.MustOnes([]int64{1, 2, 3, 4, 4}, gotch.Float, gotch.CPU).MustMul1(ts.FloatScalar(2), true)
	defer fine.MustDrop()

	out, err := refinenet.Fuse(coarse, fine, 2)
	require.NoError(t, err)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 2, 3, 4, 4}, out.MustSize())
	for _, v := range out.Float64Values() {
		assert.InDelta(t, 3.0, v, 1e-6)
	}
}

func TestFuseShapeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		coarse []int64
		fine   []int64
	}{
		{"batch", []int64{1, 2, 3, 2, 2}, []int64{2, 2, 3, 4, 4}},
		{"channel", []int64{1, 2, 3, 2, 2}, []int64{1, 4, 3, 4, 4}},
		{"depth", []int64{1, 2, 3, 2, 2}, []int64{1, 2, 6, 4, 4}},
		{"height", []int64{1, 2, 3, 2, 2}, []int64{1, 2, 3, 5, 4}},
		{"width", []int64{1, 2, 3, 2, 3}, []int64{1, 2, 3, 4, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coarse := ts.MustRand(tt.coarse, gotch.Float, gotch.CPU)
			defer coarse.MustDrop()
			fine := ts.MustRand(tt.fine, gotch.Float, gotch.CPU)
			defer fine.MustDrop()

			_, err := refinenet.Fuse(coarse, fine, 2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, refinenet.ErrShapeMismatch))
		})
	}
}

func TestFuseInvalidScale(t *testing.T) {
	x := ts.MustRand([]int64{1, 1, 1, 2, 2}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	_, err := refinenet.Fuse(x, x, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, base.ErrInvalidScale))
}
