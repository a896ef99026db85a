package refinenet

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
)

// NonLocalBlock holds the projections of a non-local (self-attention) block:
// query (theta), key (phi) and value (g) halve the channels, h restores them.
//
// Only the projections are defined. The block is built with the network but
// the forward pass does not use it.
// Ref. https://arxiv.org/abs/1711.07971
type NonLocalBlock struct {
	channels int64

	theta *nn.Conv3D
	phi   *nn.Conv3D
	g     *nn.Conv3D
	h     *nn.Conv3D
}

// NewNonLocalBlock creates NonLocalBlock. cIn must be positive and even.
func NewNonLocalBlock(p *nn.Path, cIn int64) (*NonLocalBlock, error) {
	if cIn <= 0 || cIn%2 != 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "non-local block needs a positive even channel count, got %v", cIn)
	}
	half := cIn / 2

	return &NonLocalBlock{
		channels: cIn,
		theta:    base.Pointwise(p.Sub("theta"), cIn, half),
		phi:      base.Pointwise(p.Sub("phi"), cIn, half),
		g:        base.Pointwise(p.Sub("g"), cIn, half),
		h:        base.Pointwise(p.Sub("h"), half, cIn),
	}, nil
}

// Channels returns the input (and output) channel count.
func (b *NonLocalBlock) Channels() int64 {
	return b.channels
}

// Project applies the query, key and value projections to x [N C D H W].
func (b *NonLocalBlock) Project(x *ts.Tensor) (theta, phi, g *ts.Tensor) {
	return b.theta.Forward(x), b.phi.Forward(x), b.g.Forward(x)
}

// Restore applies the output projection to y [N C/2 D H W].
func (b *NonLocalBlock) Restore(y *ts.Tensor) *ts.Tensor {
	return b.h.Forward(y)
}
