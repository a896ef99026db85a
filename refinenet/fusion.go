package refinenet

import (
	"reflect"

	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/base"
)

// ErrShapeMismatch is returned when two tensors that must be summed differ
// in any axis.
var ErrShapeMismatch = errors.New("shape mismatch")

// Fuse upsamples height and width of the coarser level by scale and adds the
// finer level to it. Both operands are left untouched.
//
//	coarse: [N C D H/s W/s]
//	fine:   [N C D H   W  ]
//	out:    [N C D H   W  ]
func Fuse(coarse, fine *ts.Tensor, scale int64) (*ts.Tensor, error) {
	up, err := base.Upsample3D(coarse, scale)
	if err != nil {
		return nil, errors.Wrap(err, "Fuse")
	}

	upSize := up.MustSize()
	fineSize, err := fine.Size()
	if err != nil {
		up.MustDrop()
		return nil, errors.Wrap(err, "Fuse")
	}
	if !reflect.DeepEqual(upSize, fineSize) {
		up.MustDrop()
		return nil, errors.Wrapf(ErrShapeMismatch, "Fuse: upsampled %v, finer level %v", upSize, fineSize)
	}

	return up.MustAdd(fine, true), nil
}
