package base

import (
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Identity stands in for a disabled layer. It returns a new handle to the
// same storage, still attached to the autograd graph, so the caller can drop
// it like any other layer output.
type Identity struct{}

// Forward implements ts.Module for Identity.
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implements ts.ModuleT for Identity.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// Conv3d creates Conv3D module with the same kernel size, padding and stride
// along depth, height and width.
func Conv3d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv3D {
	return Conv3dStrided(p, cIn, cOut, ksize, padding, []int64{stride, stride, stride})
}

// Conv3dStrided creates Conv3D module with a per-axis stride [D H W].
func Conv3dStrided(p *nn.Path, cIn, cOut, ksize, padding int64, stride []int64) *nn.Conv3D {
	config := &nn.Conv3DConfig{
		Stride:   stride,
		Padding:  []int64{padding, padding, padding},
		Dilation: []int64{1, 1, 1},
		Groups:   1,
		Bias:     true,
		WsInit:   nn.NewKaimingUniformInit(),
		BsInit:   nn.NewConstInit(0),
	}

	return nn.NewConv3D(p, cIn, cOut, ksize, config)
}

// Pointwise creates a 1x1x1 Conv3D with bias.
func Pointwise(p *nn.Path, cIn, cOut int64) *nn.Conv3D {
	return Conv3d(p, cIn, cOut, 1, 0, 1)
}

// NewPredictionHead creates the 1x1x1 conv mapping features to class scores.
// No activation is applied.
func NewPredictionHead(p *nn.Path, cIn, numClasses int64) *nn.Conv3D {
	return Pointwise(p, cIn, numClasses)
}

// BnReluConv is a pre-activation unit: BatchNorm3D -> ReLU -> Conv3D.
type BnReluConv struct {
	Bn   *nn.BatchNorm
	Conv *nn.Conv3D
}

// ForwardT implements ts.ModuleT for BnReluConv.
func (m *BnReluConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	bn := m.Bn.ForwardT(x, train)
	relu := bn.MustRelu(true)
	out := m.Conv.Forward(relu)
	relu.MustDrop()

	return out
}

// NewBnReluConv creates BnReluConv. Variables are stored at `bnName` and
// `convName` under p.
func NewBnReluConv(p *nn.Path, bnName, convName string, cIn, cOut, ksize, padding int64, stride []int64) *BnReluConv {
	bnConfig := nn.DefaultBatchNormConfig()
	return &BnReluConv{
		Bn:   nn.BatchNorm3D(p.Sub(bnName), cIn, bnConfig),
		Conv: Conv3dStrided(p.Sub(convName), cIn, cOut, ksize, padding, stride),
	}
}

// Dropout3d zeroes whole channels of a [N C D H W] tensor with probability
// `Prob` in training mode and rescales the kept ones by 1/(1-Prob).
// In inference mode it is the identity.
type Dropout3d struct {
	Prob float64
}

// NewDropout3d creates Dropout3d.
func NewDropout3d(prob float64) *Dropout3d {
	return &Dropout3d{Prob: prob}
}

// ForwardT implements ts.ModuleT for Dropout3d.
func (d *Dropout3d) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	if !train || d.Prob == 0 {
		return x.MustShallowClone()
	}

	if d.Prob >= 1 {
		return x.MustMul1(ts.FloatScalar(0), false)
	}

	// one draw per [n, c]: [N C 1 1 1]
	size := x.MustSize()
	maskSize := make([]int64, len(size))
	for i := range maskSize {
		maskSize[i] = 1
	}
	maskSize[0], maskSize[1] = size[0], size[1]

	u := ts.MustRand(maskSize, gotch.Float, x.MustDevice())
	keep := u.MustGt(ts.FloatScalar(d.Prob), true).MustTotype(gotch.Float, true)
	scaled := keep.MustMul1(ts.FloatScalar(1/(1-d.Prob)), true)
	out := x.MustMul(scaled, false)
	scaled.MustDrop()

	return out
}
