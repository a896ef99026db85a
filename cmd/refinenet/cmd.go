package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/voxseg/encoder"
	"github.com/sugarme/voxseg/refinenet"
)

// modelFlags are the persistent flags shared by all commands.
type modelFlags struct {
	inChannels    int64
	classes       int64
	features      int64
	stageChannels []int64
	dropout       bool
	dropoutProb   float64
	cuda          bool
	verbose       bool
}

func (f *modelFlags) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Int64Var(&f.inChannels, "in-channels", 1, "number of input channels")
	flags.Int64Var(&f.classes, "classes", 2, "number of segmentation classes")
	flags.Int64Var(&f.features, "features", 128, "common channel width of the feature pyramid")
	flags.Int64SliceVar(&f.stageChannels, "stage-channels", encoder.DefaultChannels, "backbone stage widths, finest first")
	flags.BoolVar(&f.dropout, "dropout", false, "add Dropout3d after each adaptive projection")
	flags.Float64Var(&f.dropoutProb, "dropout-prob", 0.5, "Dropout3d probability")
	flags.BoolVar(&f.cuda, "cuda", false, "use CUDA if available")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
}

func (f *modelFlags) config() refinenet.Config {
	cfg := refinenet.DefaultConfig(f.inChannels, f.classes)
	cfg.FeatureSize = f.features
	cfg.StageChannels = append([]int64(nil), f.stageChannels...)
	cfg.Dropout = f.dropout
	cfg.DropoutProb = f.dropoutProb
	return cfg
}

func (f *modelFlags) device() gotch.Device {
	if f.cuda {
		return gotch.NewCuda().CudaIfAvailable()
	}
	return gotch.CPU
}

// build creates the network on a new VarStore.
func (f *modelFlags) build() (*nn.VarStore, *refinenet.RefineNet, error) {
	vs := nn.NewVarStore(f.device())
	net, err := refinenet.New(vs.Root(), f.config())
	if err != nil {
		return nil, nil, err
	}
	return vs, net, nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// NewCLI creates the root command.
func NewCLI() *cobra.Command {
	flags := &modelFlags{}

	root := &cobra.Command{
		Use:           "refinenet",
		Short:         "RefineNet volumetric segmentation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flags.verbose)
		},
	}
	flags.register(root)

	root.AddCommand(
		newSummaryCmd(flags),
		newInitCmd(flags),
		newCheckCmd(flags),
		newPredictCmd(flags),
	)

	return root
}
