package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is the backbone interface for a volumetric segmentation model.
//
// ForwardStages returns one feature map per stage, finest first. Each stage
// halves height and width of the previous one; depth is kept.
type Encoder interface {
	ForwardStages(x *ts.Tensor, train bool) []*ts.Tensor
	Channels() []int64
}
