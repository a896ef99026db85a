// Package volume reads and writes volumetric images as stacks of 2-D slices
// and converts them to and from [N C D H W] tensors.
package volume

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// Volume is a single-channel 3-D image stored slice by slice: voxel (d, y, x)
// is Data[(d*Height+y)*Width+x].
type Volume struct {
	Depth  int
	Height int
	Width  int
	Data   []float32
}

// New creates a zero volume.
func New(depth, height, width int) *Volume {
	return &Volume{
		Depth:  depth,
		Height: height,
		Width:  width,
		Data:   make([]float32, depth*height*width),
	}
}

// At returns voxel (d, y, x).
func (v *Volume) At(d, y, x int) float32 {
	return v.Data[(d*v.Height+y)*v.Width+x]
}

// Load reads a volume from a multi-page TIFF file or from a directory of
// slice images (png, jpg, tif) sorted by file name. Color slices are
// converted to gray; 16-bit samples are kept as such.
func Load(path string) (*Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loadDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return loadTIFF(path)
	default:
		return nil, errors.Errorf("unsupported volume file %q: expected .tif/.tiff or a directory of slices", path)
	}
}

func loadTIFF(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages, errs, err := tiff.DecodeAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", path)
	}

	var slices []image.Image
	for i := range pages {
		if len(pages[i]) == 0 {
			continue
		}
		if errs[i][0] != nil {
			return nil, errors.Wrapf(errs[i][0], "decoding %q page %d", path, i)
		}
		slices = append(slices, pages[i][0])
	}

	return fromSlices(slices)
}

func isSliceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

func loadDir(dir string) (*Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSliceFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	slices := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := readImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		slices = append(slices, img)
	}

	return fromSlices(slices)
}

// readImage reads image from file.
func readImage(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		err = fmt.Errorf("unsupported image format: %v", filepath.Ext(filename))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", filename)
	}

	return img, nil
}

// is16Bit reports whether img stores more than 8 bits per sample.
func is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// toGray16 converts any image to 16-bit gray.
func toGray16(img image.Image) *image.Gray16 {
	if g, ok := img.(*image.Gray16); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(g, image.Point{}, img, b, draw.Src, nil)

	return g
}

func fromSlices(slices []image.Image) (*Volume, error) {
	if len(slices) == 0 {
		return nil, errors.New("volume has no slices")
	}

	b := slices[0].Bounds()
	v := New(len(slices), b.Dy(), b.Dx())
	plane := v.Height * v.Width
	for d, s := range slices {
		if s.Bounds().Dx() != v.Width || s.Bounds().Dy() != v.Height {
			return nil, errors.Errorf("slice %d is %vx%v, expected %vx%v", d, s.Bounds().Dx(), s.Bounds().Dy(), v.Width, v.Height)
		}
		// 8-bit slices keep their 0..255 range.
		wide := is16Bit(s)
		g := toGray16(s)
		gb := g.Bounds()
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				val := float32(g.Gray16At(gb.Min.X+x, gb.Min.Y+y).Y)
				if !wide {
					val /= 0x101
				}
				v.Data[d*plane+y*v.Width+x] = val
			}
		}
	}

	return v, nil
}

// Normalize rescales voxels in place to zero mean and unit standard
// deviation. A constant volume only gets its mean removed.
func (v *Volume) Normalize() {
	data := make([]float64, len(v.Data))
	for i, x := range v.Data {
		data[i] = float64(x)
	}
	mean, std := stat.MeanStdDev(data, nil)
	if std == 0 {
		std = 1
	}
	for i, x := range data {
		v.Data[i] = float32((x - mean) / std)
	}
}

// FitShape returns the smallest multiple of `multiple` that is >= n.
func FitShape(n, multiple int) int {
	if multiple <= 1 {
		return n
	}
	return (n + multiple - 1) / multiple * multiple
}

// Pad returns a copy of v zero padded at the bottom and right to
// height x width. Height and width must not be smaller than v's.
func (v *Volume) Pad(height, width int) (*Volume, error) {
	if height < v.Height || width < v.Width {
		return nil, errors.Errorf("cannot pad %vx%v volume to %vx%v", v.Width, v.Height, width, height)
	}
	out := New(v.Depth, height, width)
	for d := 0; d < v.Depth; d++ {
		for y := 0; y < v.Height; y++ {
			src := v.Data[(d*v.Height+y)*v.Width : (d*v.Height+y+1)*v.Width]
			copy(out.Data[(d*height+y)*width:], src)
		}
	}

	return out, nil
}

// Tensor returns v as a [1 1 D H W] float tensor on device.
func (v *Volume) Tensor(device gotch.Device) *ts.Tensor {
	x := ts.MustOfSlice(v.Data).MustView([]int64{1, 1, int64(v.Depth), int64(v.Height), int64(v.Width)}, true)
	if device == gotch.CPU {
		return x
	}
	return x.MustTo(device, true)
}
