package refinenet

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
	"github.com/sugarme/voxseg/encoder"
)

// RefineNet is a feature pyramid segmentation network on a 3-D backbone.
//
// Every backbone stage goes through ReLU and a 1x1x1 projection to a common
// width (plus optional Dropout3d). Levels are then merged top-down: the
// coarser map is upsampled x2 on height/width, added to the finer one and
// smoothed by a 3x3x3 conv. A 1x1x1 conv on the finest map gives class scores.
type RefineNet struct {
	cfg      Config
	backbone encoder.Encoder

	adaptive []*nn.Conv3D
	dropout  []ts.ModuleT
	smooth   []*nn.Conv3D // smooth[i] follows fusion into level i; the coarsest level has none
	predict  *nn.Conv3D

	// nonLocal is built on the deepest level but never called by forward.
	nonLocal *NonLocalBlock
}

// New creates RefineNet with a VoxResNet backbone. Backbone variables are
// stored at the root of p, head variables under their own names.
func New(p *nn.Path, cfg Config) (*RefineNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backbone, err := encoder.NewVoxResNet(p, encoder.VoxResConfig{
		InChannels: cfg.InChannels,
		Channels:   cfg.StageChannels,
	})
	if err != nil {
		return nil, errors.Wrap(err, "RefineNet backbone")
	}

	return NewWithEncoder(p, backbone, cfg)
}

// NewWithEncoder creates RefineNet on top of the given backbone, whose
// Channels must equal cfg.StageChannels.
func NewWithEncoder(p *nn.Path, backbone encoder.Encoder, cfg Config) (*RefineNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	channels := backbone.Channels()
	if len(channels) != len(cfg.StageChannels) {
		return nil, errors.Wrapf(ErrInvalidConfig, "backbone has %v stages, config expects %v", len(channels), len(cfg.StageChannels))
	}
	for i, c := range channels {
		if c != cfg.StageChannels[i] {
			return nil, errors.Wrapf(ErrInvalidConfig, "backbone stage channels %v, config expects %v", channels, cfg.StageChannels)
		}
	}

	nonLocal, err := NewNonLocalBlock(p.Sub("non_local"), channels[len(channels)-1])
	if err != nil {
		return nil, err
	}

	net := &RefineNet{
		cfg:      cfg,
		backbone: backbone,
		nonLocal: nonLocal,
		predict:  base.NewPredictionHead(p.Sub("predict"), cfg.FeatureSize, cfg.NumClasses),
	}
	for i, c := range channels {
		net.adaptive = append(net.adaptive, base.Pointwise(p.Sub(fmt.Sprintf("adaptive%d", i+1)), c, cfg.FeatureSize))

		var drop ts.ModuleT = base.NewIdentity()
		if cfg.Dropout {
			drop = base.NewDropout3d(cfg.DropoutProb)
		}
		net.dropout = append(net.dropout, drop)
	}
	for i := 0; i < len(channels)-1; i++ {
		net.smooth = append(net.smooth, base.Conv3d(p.Sub(fmt.Sprintf("smooth%d", i+1)), cfg.FeatureSize, cfg.FeatureSize, 3, 1, 1))
	}

	slog.Debug("RefineNet created",
		"in_channels", cfg.InChannels,
		"classes", cfg.NumClasses,
		"features", cfg.FeatureSize,
		"stages", channels,
		"dropout", cfg.Dropout)

	return net, nil
}

// Config returns the construction parameters.
func (n *RefineNet) Config() Config {
	return n.cfg
}

// NonLocal returns the (unused) non-local block.
func (n *RefineNet) NonLocal() *NonLocalBlock {
	return n.nonLocal
}

// Project maps backbone features to pyramid levels of FeatureSize channels:
// dropout(adaptive_i(relu(h_i))). The input tensors are not consumed.
func (n *RefineNet) Project(features []*ts.Tensor, train bool) ([]*ts.Tensor, error) {
	if len(features) != len(n.adaptive) {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %v feature maps, got %v", len(n.adaptive), len(features))
	}

	levels := make([]*ts.Tensor, 0, len(features))
	for i, f := range features {
		size := f.MustSize()
		if len(size) != 5 || size[1] != n.cfg.StageChannels[i] {
			dropAll(levels)
			return nil, errors.Wrapf(ErrShapeMismatch, "level %d: expected [N %v D H W], got %v", i+1, n.cfg.StageChannels[i], size)
		}

		relu := f.MustRelu(false)
		proj := n.adaptive[i].Forward(relu)
		relu.MustDrop()
		level := n.dropout[i].ForwardT(proj, train)
		proj.MustDrop()

		levels = append(levels, level)
	}

	return levels, nil
}

// Refine merges pyramid levels top-down and returns the smoothed finest map.
// The input tensors are not consumed.
func (n *RefineNet) Refine(levels []*ts.Tensor) (*ts.Tensor, error) {
	if len(levels) != len(n.smooth)+1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %v pyramid levels, got %v", len(n.smooth)+1, len(levels))
	}

	p := levels[len(levels)-1]
	owned := false
	for i := len(levels) - 2; i >= 0; i-- {
		sum, err := Fuse(p, levels[i], 2)
		if owned {
			p.MustDrop()
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fusing level %d into %d", i+2, i+1)
		}
		p = n.smooth[i].Forward(sum)
		sum.MustDrop()
		owned = true
	}

	if !owned {
		return p.MustShallowClone(), nil
	}

	return p, nil
}

// Forward runs the network on x [N C D H W] and returns class scores
// [N classes D H W]. Height and width must be divisible by 8. A shape
// mismatch anywhere in the pyramid is returned as an error.
func (n *RefineNet) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	size, err := x.Size()
	if err != nil {
		return nil, errors.Wrap(err, "RefineNet")
	}
	if len(size) != 5 || size[1] != n.cfg.InChannels {
		return nil, errors.Wrapf(ErrShapeMismatch, "RefineNet: expected input [N %v D H W], got %v", n.cfg.InChannels, size)
	}

	features := n.backbone.ForwardStages(x, train)
	levels, err := n.Project(features, train)
	dropAll(features)
	if err != nil {
		return nil, err
	}

	p1, err := n.Refine(levels)
	dropAll(levels)
	if err != nil {
		return nil, err
	}

	out := n.predict.Forward(p1)
	p1.MustDrop()

	return out, nil
}

// ForwardT implements ts.ModuleT for RefineNet. It panics on shape
// mismatch; use Forward to get the error instead.
func (n *RefineNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out, err := n.Forward(x, train)
	if err != nil {
		panic(err)
	}

	return out
}

func dropAll(xs []*ts.Tensor) {
	for _, x := range xs {
		x.MustDrop()
	}
}
