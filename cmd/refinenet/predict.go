package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/metric"
	"github.com/sugarme/voxseg/refinenet"
	"github.com/sugarme/voxseg/report"
	"github.com/sugarme/voxseg/volume"
)

// Height and width go through three stride-2 stages and back.
const spatialMultiple = 8

type predictOptions struct {
	weights  string
	input    string
	target   string
	id       string
	manifest string
	out      string
	format   string
	plot     bool
	preview  bool
}

func newPredictCmd(flags *modelFlags) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Segment volumes with trained weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(flags, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.weights, "weights", "w", "", "weight file (.ot) to load")
	f.StringVarP(&opts.input, "input", "i", "", "volume: multi-page TIFF or directory of slices")
	f.StringVar(&opts.target, "target", "", "ground truth labels for --input, enables Dice scores")
	f.StringVar(&opts.id, "id", "", "name of the result for --input (default: input base name)")
	f.StringVar(&opts.manifest, "manifest", "", "CSV file with id,path[,target] columns")
	f.StringVarP(&opts.out, "out", "o", "predictions", "output directory")
	f.StringVar(&opts.format, "format", "png", "label slice format: png or tif")
	f.BoolVar(&opts.plot, "plot", false, "save a class fraction bar chart per volume")
	f.BoolVar(&opts.preview, "preview", false, "save an overlay preview of the middle slice")

	return cmd
}

func (o *predictOptions) entries() ([]report.Entry, error) {
	switch {
	case o.manifest != "" && o.input != "":
		return nil, errors.New("use either --input or --manifest")
	case o.manifest != "":
		return report.ReadManifest(o.manifest)
	case o.input != "":
		id := o.id
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(o.input), filepath.Ext(o.input))
		}
		return []report.Entry{{ID: id, Path: o.input, Target: o.target}}, nil
	default:
		return nil, errors.New("one of --input or --manifest is required")
	}
}

func runPredict(flags *modelFlags, opts *predictOptions) error {
	if flags.classes > volume.MaxLabel+1 {
		return errors.Errorf("--classes %d: label images hold at most %d classes", flags.classes, volume.MaxLabel+1)
	}
	entries, err := opts.entries()
	if err != nil {
		return err
	}

	vs, net, err := flags.build()
	if err != nil {
		return err
	}
	if opts.weights != "" {
		if err := vs.Load(opts.weights); err != nil {
			return errors.Wrapf(err, "loading weights %q", opts.weights)
		}
		slog.Info("weights loaded", "file", opts.weights)
	} else {
		slog.Warn("no --weights given, using randomly initialized network")
	}

	if err := os.MkdirAll(opts.out, 0755); err != nil {
		return err
	}

	for _, e := range entries {
		start := time.Now()
		if err := predictOne(net, flags, opts, e); err != nil {
			return errors.Wrapf(err, "volume %q", e.ID)
		}
		slog.Info("volume segmented", "id", e.ID, "elapsed", time.Since(start))
	}

	return nil
}

// segment runs the network on vol and returns labels of vol's size.
func segment(net *refinenet.RefineNet, device gotch.Device, vol *volume.Volume) (*volume.Labels, error) {
	padded, err := vol.Pad(volume.FitShape(vol.Height, spatialMultiple), volume.FitShape(vol.Width, spatialMultiple))
	if err != nil {
		return nil, err
	}

	x := padded.Tensor(device)
	defer x.MustDrop()

	var labels *volume.Labels
	ts.NoGrad(func() {
		var scores, labelTs *ts.Tensor
		scores, err = net.Forward(x, false)
		if err != nil {
			return
		}
		cpu := scores.MustTo(gotch.CPU, true)
		labelTs, err = refinenet.Segment(cpu)
		cpu.MustDrop()
		if err != nil {
			return
		}
		labels, err = volume.LabelsFromTensor(labelTs)
		labelTs.MustDrop()
	})
	if err != nil {
		return nil, err
	}

	return labels.Crop(vol.Height, vol.Width)
}

func predictOne(net *refinenet.RefineNet, flags *modelFlags, opts *predictOptions, e report.Entry) error {
	if flags.inChannels != 1 {
		return errors.Errorf("volumes are single-channel, network expects %v input channels", flags.inChannels)
	}
	vol, err := volume.Load(e.Path)
	if err != nil {
		return err
	}
	raw := &volume.Volume{Depth: vol.Depth, Height: vol.Height, Width: vol.Width, Data: append([]float32(nil), vol.Data...)}
	vol.Normalize()
	slog.Debug("volume loaded", "id", e.ID, "depth", vol.Depth, "height", vol.Height, "width", vol.Width)

	labels, err := segment(net, flags.device(), vol)
	if err != nil {
		return err
	}

	if err := labels.SaveSlices(filepath.Join(opts.out, e.ID), opts.format); err != nil {
		return err
	}

	var dice []float64
	if e.Target != "" {
		tv, err := volume.Load(e.Target)
		if err != nil {
			return errors.Wrap(err, "loading target")
		}
		if tv.Depth != labels.Depth || tv.Height != labels.Height || tv.Width != labels.Width {
			return errors.Errorf("target is %vx%vx%v, volume is %vx%vx%v", tv.Depth, tv.Height, tv.Width, labels.Depth, labels.Height, labels.Width)
		}
		target := volume.LabelsFromVolume(tv)
		pt, tt := labels.Tensor(), target.Tensor()
		dice = metric.ClassDice(pt, tt, flags.classes)
		iou := metric.JaccardIndex(pt, tt, flags.classes)
		pt.MustDrop()
		tt.MustDrop()
		slog.Info("scores", "id", e.ID, "dice", dice, "mean_iou", iou)
	}

	df, err := report.ClassVolumes(labels.Counts(int(flags.classes)), dice)
	if err != nil {
		return err
	}
	if err := report.SaveCSV(filepath.Join(opts.out, e.ID+".csv"), df); err != nil {
		return err
	}
	if opts.plot {
		if err := report.PlotFractions(filepath.Join(opts.out, e.ID+"_classes.png"), e.ID, df); err != nil {
			return err
		}
	}
	if opts.preview {
		name := filepath.Join(opts.out, fmt.Sprintf("%s_preview.png", e.ID))
		if err := volume.SavePreview(name, raw, labels, vol.Depth/2, 4); err != nil {
			return err
		}
	}

	return nil
}
