package volume

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Palette colors classes 1.. in previews; class 0 is background and left
// transparent.
var Palette = []color.NRGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
}

// grayImage maps slice d of v to 8-bit gray, stretching min..max to 0..255.
func (v *Volume) grayImage(d int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
	plane := v.Data[d*v.Height*v.Width : (d+1)*v.Height*v.Width]

	lo, hi := plane[0], plane[0]
	for _, x := range plane {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	scale := float32(0)
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for i, x := range plane {
		img.Pix[i] = uint8((x - lo) * scale)
	}

	return img
}

// Overlay renders slice d of v with its labels blended on top, enlarged by
// an integer factor. Labels are upscaled with nearest neighbor so class
// boundaries stay sharp.
func Overlay(v *Volume, l *Labels, d, scale int, opacity float64) (*image.NRGBA, error) {
	if v.Depth != l.Depth || v.Height != l.Height || v.Width != l.Width {
		return nil, errors.Errorf("volume %vx%vx%v and labels %vx%vx%v differ", v.Depth, v.Height, v.Width, l.Depth, l.Height, l.Width)
	}
	if d < 0 || d >= v.Depth {
		return nil, errors.Errorf("slice %d out of range [0, %d)", d, v.Depth)
	}
	if scale < 1 {
		scale = 1
	}
	w, h := v.Width*scale, v.Height*scale

	background := imaging.Resize(v.grayImage(d), w, h, imaging.Linear)

	slice, err := l.Slice(d)
	if err != nil {
		return nil, err
	}
	mask := resize.Resize(uint(w), uint(h), slice, resize.NearestNeighbor)
	colored := image.NewNRGBA(image.Rect(0, 0, w, h))
	mb := mask.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray).Y
			if c == 0 {
				continue
			}
			colored.SetNRGBA(x, y, Palette[(int(c)-1)%len(Palette)])
		}
	}

	return imaging.Overlay(background, colored, image.Pt(0, 0), opacity), nil
}

// SavePreview writes Overlay output to a png or jpg file.
func SavePreview(filename string, v *Volume, l *Labels, d, scale int) error {
	img, err := Overlay(v, l, d, scale, 0.5)
	if err != nil {
		return err
	}
	return imaging.Save(img, filename)
}
