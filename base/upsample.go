package base

import (
	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"
)

// ErrInvalidScale is returned when an upsampling scale is not a positive integer.
var ErrInvalidScale = errors.New("invalid scale factor")

// Resize2D resizes the last two axes of x to [outH outW] with bilinear
// interpolation. All leading axes are folded into [batch channels] so that
// x can have any rank >= 3:
//
//	[A H W]       => [1 A H W]   => [A outH outW]
//	[N C D H W]   => [N C*D H W] => [N C D outH outW]
func Resize2D(x *ts.Tensor, outH, outW int64) (*ts.Tensor, error) {
	size, err := x.Size()
	if err != nil {
		return nil, errors.Wrap(err, "Resize2D")
	}
	if len(size) < 3 {
		return nil, errors.Errorf("Resize2D: expected tensor of rank >= 3, got shape %v", size)
	}
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("Resize2D: invalid output size [%v %v]", outH, outW)
	}

	lead := size[:len(size)-2]
	h, w := size[len(size)-2], size[len(size)-1]
	batch, folded := int64(1), lead[0]
	if len(lead) > 1 {
		batch = lead[0]
		folded = 1
		for _, d := range lead[1:] {
			folded *= d
		}
	}

	outSize := make([]int64, 0, len(size))
	outSize = append(outSize, lead...)
	outSize = append(outSize, outH, outW)

	if h == outH && w == outW {
		return x.MustShallowClone(), nil
	}

	x4 := x.MustReshape([]int64{batch, folded, h, w}, false)
	up := x4.MustUpsampleBilinear2d([]int64{outH, outW}, false, nil, nil, true)

	return up.MustReshape(outSize, true), nil
}

// Upsample3D upsamples height and width of a [N C D H W] tensor by an integer
// scale factor. Batch, channel and depth are left unchanged.
func Upsample3D(x *ts.Tensor, scale int64) (*ts.Tensor, error) {
	if scale <= 0 {
		return nil, errors.Wrapf(ErrInvalidScale, "Upsample3D: got %v", scale)
	}
	size, err := x.Size()
	if err != nil {
		return nil, errors.Wrap(err, "Upsample3D")
	}
	if len(size) != 5 {
		return nil, errors.Errorf("Upsample3D: expected [N C D H W] tensor, got shape %v", size)
	}

	return Resize2D(x, size[3]*scale, size[4]*scale)
}

// MustUpsample3D is Upsample3D that panics on error.
func MustUpsample3D(x *ts.Tensor, scale int64) *ts.Tensor {
	out, err := Upsample3D(x, scale)
	if err != nil {
		panic(err)
	}

	return out
}
