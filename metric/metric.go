// Package metric provides overlap scores between predicted and ground truth
// label maps of any shape.
package metric

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// overlap returns |p ∩ t|, |p| and |t| of two binary masks.
func overlap(p, t *ts.Tensor) (inter, sumP, sumT float64) {
	pd := p.MustTotype(gotch.Double, false)
	td := t.MustTotype(gotch.Double, false)
	ptMul := pd.MustMul(td, false)

	inter = ptMul.MustSum(gotch.Double, true).Float64Values()[0]
	sumP = pd.MustSum(gotch.Double, true).Float64Values()[0]
	sumT = td.MustSum(gotch.Double, true).Float64Values()[0]

	return inter, sumP, sumT
}

func checkSize(pred, target *ts.Tensor) {
	if p, t := pred.MustSize(), target.MustSize(); !reflect.DeepEqual(p, t) {
		panic(errors.Errorf("metric: prediction shape %v differs from target shape %v", p, t))
	}
}

func binary(x *ts.Tensor) *ts.Tensor {
	return x.MustGt(ts.FloatScalar(0.5), false)
}

func classMask(x *ts.Tensor, class int64) *ts.Tensor {
	return x.MustEq(ts.IntScalar(class), false)
}

func dice(inter, sumP, sumT float64) float64 {
	if sumP+sumT == 0 {
		return 1
	}
	return 2 * inter / (sumP + sumT)
}

func iou(inter, sumP, sumT float64) float64 {
	union := sumP + sumT - inter
	if union == 0 {
		return 1
	}
	return inter / union
}

// DiceCoeff computes 2|P∩T| / (|P|+|T|) of two binary maps. Values > 0.5
// count as foreground. Two empty maps score 1.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	checkSize(pred, target)
	p, t := binary(pred), binary(target)
	defer p.MustDrop()
	defer t.MustDrop()

	return dice(overlap(p, t))
}

// IoU computes |P∩T| / |P∪T| of two binary maps.
func IoU(pred, target *ts.Tensor) float64 {
	checkSize(pred, target)
	p, t := binary(pred), binary(target)
	defer p.MustDrop()
	defer t.MustDrop()

	return iou(overlap(p, t))
}

// ClassDice computes the Dice coefficient of every class of two label maps.
func ClassDice(pred, target *ts.Tensor, numClasses int64) []float64 {
	checkSize(pred, target)
	scores := make([]float64, numClasses)
	for c := int64(0); c < numClasses; c++ {
		p, t := classMask(pred, c), classMask(target, c)
		scores[c] = dice(overlap(p, t))
		p.MustDrop()
		t.MustDrop()
	}

	return scores
}

// JaccardIndex computes the IoU averaged over classes of two label maps.
func JaccardIndex(pred, target *ts.Tensor, numClasses int64) float64 {
	checkSize(pred, target)
	if numClasses <= 0 {
		return 0
	}
	var sum float64
	for c := int64(0); c < numClasses; c++ {
		p, t := classMask(pred, c), classMask(target, c)
		sum += iou(overlap(p, t))
		p.MustDrop()
		t.MustDrop()
	}

	return sum / float64(numClasses)
}
