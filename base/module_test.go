package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
)

func TestDropout3dInference(t *testing.T) {
	x := ts.MustRand([]int64{2, 4, 2, 3, 3}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	d := base.NewDropout3d(0.5)
	out := d.ForwardT(x, false)
	defer out.MustDrop()

	assert.Equal(t, x.Float64Values(), out.Float64Values())
}

func TestDropout3dZeroesWholeChannels(t *testing.T) {
	var n, c, vox int64 = 2, 16, 2 * 2 * 2
	x := ts.MustOnes([]int64{n, c, 2, 2, 2}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	d := base.NewDropout3d(0.5)
	out := d.ForwardT(x, true)
	defer out.MustDrop()

	vals := out.Float64Values()
	for ch := int64(0); ch < n*c; ch++ {
		first := vals[ch*vox]
		assert.Contains(t, []float64{0, 2}, first)
		for _, v := range vals[ch*vox : (ch+1)*vox] {
			assert.Equal(t, first, v, "channel %v", ch)
		}
	}
}

func TestPredictionHead(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewPredictionHead(vs.Root().Sub("predict"), 8, 3)

	x := ts.MustRand([]int64{1, 8, 2, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := head.Forward(x)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 3, 2, 4, 4}, out.MustSize())
}

func TestBnReluConvStride(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewBnReluConv(vs.Root(), "bn", "conv", 4, 6, 3, 1, []int64{1, 2, 2})

	x := ts.MustRand([]int64{1, 4, 3, 8, 8}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := m.ForwardT(x, false)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 6, 3, 4, 4}, out.MustSize())
}

func TestPassThroughKeepsGraph(t *testing.T) {
	x := ts.MustRand([]int64{1, 2, 2, 4, 4}, gotch.Float, gotch.CPU).MustSetRequiresGrad(true, true)
	defer x.MustDrop()

	outputs := map[string]*ts.Tensor{
		"identity":      base.NewIdentity().ForwardT(x, true),
		"dropout off":   base.NewDropout3d(0.5).ForwardT(x, false),
		"dropout p=0":   base.NewDropout3d(0).ForwardT(x, true),
		"upsample by 1": base.MustUpsample3D(x, 1),
	}
	for name, out := range outputs {
		assert.True(t, out.MustRequiresGrad(), name)
		assert.Equal(t, x.MustSize(), out.MustSize(), name)
		out.MustDrop()
	}
}
