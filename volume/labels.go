package volume

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// MaxLabel is the largest label that fits an 8-bit label image.
const MaxLabel = 255

// ErrLabelRange is returned when a label cannot be stored in an 8-bit image.
var ErrLabelRange = errors.New("label out of range")

// Labels is a segmentation label map laid out like Volume.
type Labels struct {
	Depth  int
	Height int
	Width  int
	Data   []int64
}

// LabelsFromTensor copies a [1 D H W] or [D H W] label tensor.
func LabelsFromTensor(x *ts.Tensor) (*Labels, error) {
	size, err := x.Size()
	if err != nil {
		return nil, err
	}
	if len(size) == 4 {
		if size[0] != 1 {
			return nil, errors.Errorf("expected a single label map, got batch of %v", size[0])
		}
		size = size[1:]
	}
	if len(size) != 3 {
		return nil, errors.Errorf("expected [1 D H W] or [D H W] labels, got %v", x.MustSize())
	}

	cpu := x.MustTo(gotch.CPU, false)
	data := cpu.Int64Values()
	cpu.MustDrop()

	return &Labels{
		Depth:  int(size[0]),
		Height: int(size[1]),
		Width:  int(size[2]),
		Data:   data,
	}, nil
}

// LabelsFromVolume rounds voxel values of v to labels, e.g. for a ground
// truth map stored as an image stack.
func LabelsFromVolume(v *Volume) *Labels {
	l := &Labels{Depth: v.Depth, Height: v.Height, Width: v.Width, Data: make([]int64, len(v.Data))}
	for i, x := range v.Data {
		l.Data[i] = int64(x + 0.5)
	}
	return l
}

// At returns the label of voxel (d, y, x).
func (l *Labels) At(d, y, x int) int64 {
	return l.Data[(d*l.Height+y)*l.Width+x]
}

// Tensor returns l as a [1 D H W] int64 tensor.
func (l *Labels) Tensor() *ts.Tensor {
	return ts.MustOfSlice(l.Data).MustView([]int64{1, int64(l.Depth), int64(l.Height), int64(l.Width)}, true)
}

// Crop returns the top-left height x width region of every slice.
func (l *Labels) Crop(height, width int) (*Labels, error) {
	if height > l.Height || width > l.Width || height <= 0 || width <= 0 {
		return nil, errors.Errorf("cannot crop %vx%v labels to %vx%v", l.Width, l.Height, width, height)
	}
	out := &Labels{Depth: l.Depth, Height: height, Width: width, Data: make([]int64, l.Depth*height*width)}
	for d := 0; d < l.Depth; d++ {
		for y := 0; y < height; y++ {
			src := l.Data[(d*l.Height+y)*l.Width:]
			copy(out.Data[(d*height+y)*width:(d*height+y+1)*width], src[:width])
		}
	}

	return out, nil
}

// Counts returns the number of voxels of each class. Labels outside
// [0, numClasses) are ignored.
func (l *Labels) Counts(numClasses int) []int64 {
	counts := make([]int64, numClasses)
	for _, c := range l.Data {
		if c >= 0 && int(c) < numClasses {
			counts[c]++
		}
	}
	return counts
}

// Slice returns slice d as a gray image whose pixel values are the labels.
func (l *Labels) Slice(d int) (*image.Gray, error) {
	if d < 0 || d >= l.Depth {
		return nil, errors.Errorf("slice %d out of range [0, %d)", d, l.Depth)
	}
	img := image.NewGray(image.Rect(0, 0, l.Width, l.Height))
	plane := l.Data[d*l.Height*l.Width : (d+1)*l.Height*l.Width]
	for i, c := range plane {
		if c < 0 || c > MaxLabel {
			return nil, errors.Wrapf(ErrLabelRange, "label %d at slice %d", c, d)
		}
		img.Pix[i] = uint8(c)
	}
	return img, nil
}

// SaveSlices writes one image per slice into dir as slice_0000.<ext>.
// ext is "png" or "tif".
func (l *Labels) SaveSlices(dir, ext string) error {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext != "png" && ext != "tif" && ext != "tiff" {
		return errors.Errorf("unsupported label format %q", ext)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for d := 0; d < l.Depth; d++ {
		name := filepath.Join(dir, fmt.Sprintf("slice_%04d.%s", d, ext))
		img, err := l.Slice(d)
		if err != nil {
			return err
		}
		if err := writeSlice(name, ext, img); err != nil {
			return errors.Wrapf(err, "writing %q", name)
		}
	}

	return nil
}

func writeSlice(name, ext string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}

	if ext == "png" {
		err = png.Encode(f, img)
	} else {
		err = tiff.Encode(f, img, nil)
	}
	if err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
