package encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
)

// DefaultChannels are the stage widths of VoxResNet.
var DefaultChannels = []int64{32, 64, 128, 256}

// VoxResConfig configures VoxResNet.
type VoxResConfig struct {
	InChannels int64
	Channels   []int64
	// NumClasses > 0 adds a deep-supervision classifier per stage so the
	// backbone can be used on its own via ForwardT.
	NumClasses int64
}

// VoxRes is the residual module of VoxResNet:
// x + conv(relu(bn(conv(relu(bn(x)))))).
type VoxRes struct {
	Unit1 *base.BnReluConv
	Unit2 *base.BnReluConv
}

// NewVoxRes creates VoxRes with c channels.
func NewVoxRes(p *nn.Path, c int64) *VoxRes {
	return &VoxRes{
		Unit1: base.NewBnReluConv(p, "bn1", "conv1", c, c, 3, 1, []int64{1, 1, 1}),
		Unit2: base.NewBnReluConv(p, "bn2", "conv2", c, c, 3, 1, []int64{1, 1, 1}),
	}
}

// ForwardT implements ts.ModuleT for VoxRes.
func (m *VoxRes) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	u1 := m.Unit1.ForwardT(x, train)
	u2 := m.Unit2.ForwardT(u1, train)
	u1.MustDrop()

	return u2.MustAdd(x, true)
}

// stage is a downsampling pre-activation conv followed by VoxRes modules.
type stage struct {
	down *base.BnReluConv
	res  []*VoxRes
}

func newStage(p *nn.Path, idx int, cIn, cOut int64) *stage {
	// Stride [1 2 2]: only height and width are halved.
	down := base.NewBnReluConv(p, fmt.Sprintf("bn%d", idx), fmt.Sprintf("conv%d", idx), cIn, cOut, 3, 1, []int64{1, 2, 2})
	res := []*VoxRes{
		NewVoxRes(p.Sub(fmt.Sprintf("voxres%da", idx)), cOut),
		NewVoxRes(p.Sub(fmt.Sprintf("voxres%db", idx)), cOut),
	}

	return &stage{down, res}
}

func (s *stage) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := s.down.ForwardT(x, train)
	for _, r := range s.res {
		next := r.ForwardT(out, train)
		out.MustDrop()
		out = next
	}

	return out
}

// VoxResNet is a 3-D residual network for volumetric segmentation.
// Ref. https://arxiv.org/abs/1608.05895
type VoxResNet struct {
	channels []int64

	conv1a *nn.Conv3D
	unit1b *base.BnReluConv
	stages []*stage

	// deep supervision, nil unless NumClasses > 0
	classifiers []*nn.Conv3D
}

// NewVoxResNet creates VoxResNet. Variables are created directly under p.
func NewVoxResNet(p *nn.Path, cfg VoxResConfig) (*VoxResNet, error) {
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	if cfg.InChannels <= 0 {
		return nil, errors.Errorf("NewVoxResNet: invalid input channels %v", cfg.InChannels)
	}
	if len(channels) != 4 {
		return nil, errors.Errorf("NewVoxResNet: expected 4 stage channels, got %v", channels)
	}
	for _, c := range channels {
		if c <= 0 {
			return nil, errors.Errorf("NewVoxResNet: invalid stage channels %v", channels)
		}
	}
	if cfg.NumClasses < 0 {
		return nil, errors.Errorf("NewVoxResNet: invalid number of classes %v", cfg.NumClasses)
	}

	net := &VoxResNet{
		channels: append([]int64(nil), channels...),
		conv1a:   base.Conv3d(p.Sub("conv1a"), cfg.InChannels, channels[0], 3, 1, 1),
		unit1b:   base.NewBnReluConv(p, "bn1a", "conv1b", channels[0], channels[0], 3, 1, []int64{1, 1, 1}),
	}
	for i := 1; i < len(channels); i++ {
		net.stages = append(net.stages, newStage(p, i+1, channels[i-1], channels[i]))
	}
	if cfg.NumClasses > 0 {
		for i, c := range channels {
			net.classifiers = append(net.classifiers, base.Pointwise(p.Sub(fmt.Sprintf("classifier%d", i+1)), c, cfg.NumClasses))
		}
	}

	return net, nil
}

// Channels implements Encoder for VoxResNet.
func (n *VoxResNet) Channels() []int64 {
	return append([]int64(nil), n.channels...)
}

// ForwardStages implements Encoder for VoxResNet.
//
//	x:  [N in  D H   W  ]
//	h1: [N 32  D H   W  ]
//	h2: [N 64  D H/2 W/2]
//	h3: [N 128 D H/4 W/4]
//	h4: [N 256 D H/8 W/8]
func (n *VoxResNet) ForwardStages(x *ts.Tensor, train bool) []*ts.Tensor {
	c1a := n.conv1a.Forward(x)
	h1 := n.unit1b.ForwardT(c1a, train)
	c1a.MustDrop()

	features := []*ts.Tensor{h1}
	prev := h1
	for _, s := range n.stages {
		h := s.ForwardT(prev, train)
		features = append(features, h)
		prev = h
	}

	return features
}

// ForwardT implements ts.ModuleT for VoxResNet with deep supervision: the
// per-stage class scores are upsampled to the input resolution and summed.
// It panics if the network was built without classifiers.
func (n *VoxResNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	if len(n.classifiers) == 0 {
		panic(errors.New("VoxResNet: built without classifiers (NumClasses = 0)"))
	}

	features := n.ForwardStages(x, train)
	var out *ts.Tensor
	for i, f := range features {
		relu := f.MustRelu(false)
		score := n.classifiers[i].Forward(relu)
		relu.MustDrop()
		up := base.MustUpsample3D(score, int64(1)<<uint(i))
		score.MustDrop()
		if out == nil {
			out = up
			continue
		}
		out = out.MustAdd(up, true)
		up.MustDrop()
	}

	for _, f := range features {
		f.MustDrop()
	}

	return out
}
