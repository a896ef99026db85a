package refinenet

import (
	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"
)

// Segment turns class scores [N classes D H W] into a label map [N D H W]
// (int64) by taking the highest scoring class of every voxel. Ties go to the
// lower class index.
func Segment(scores *ts.Tensor) (*ts.Tensor, error) {
	size, err := scores.Size()
	if err != nil {
		return nil, errors.Wrap(err, "Segment")
	}
	if len(size) != 5 {
		return nil, errors.Errorf("Segment: expected [N classes D H W] scores, got %v", size)
	}

	n, classes := size[0], size[1]
	vox := size[2] * size[3] * size[4]
	vals := scores.Float64Values()

	labels := make([]int64, n*vox)
	for b := int64(0); b < n; b++ {
		base := b * classes * vox
		for v := int64(0); v < vox; v++ {
			best, bestVal := int64(0), vals[base+v]
			for c := int64(1); c < classes; c++ {
				if x := vals[base+c*vox+v]; x > bestVal {
					best, bestVal = c, x
				}
			}
			labels[b*vox+v] = best
		}
	}

	return ts.MustOfSlice(labels).MustView([]int64{n, size[2], size[3], size[4]}, true), nil
}
