package refinenet

import (
	"github.com/pkg/errors"

	"github.com/sugarme/voxseg/encoder"
)

// ErrInvalidConfig is returned by New and Config.Validate.
var ErrInvalidConfig = errors.New("invalid RefineNet config")

// Config holds construction parameters of RefineNet. They are fixed once the
// network is built.
type Config struct {
	InChannels int64
	NumClasses int64

	// Dropout adds a Dropout3d layer after each adaptive projection.
	Dropout     bool
	DropoutProb float64

	// FeatureSize is the common channel width of the pyramid levels.
	FeatureSize int64

	// StageChannels are the backbone stage widths, finest first.
	StageChannels []int64
}

// DefaultConfig returns the configuration used by the reference network:
// 128 pyramid channels on a 32/64/128/256 VoxResNet, dropout off.
func DefaultConfig(inChannels, numClasses int64) Config {
	return Config{
		InChannels:    inChannels,
		NumClasses:    numClasses,
		DropoutProb:   0.5,
		FeatureSize:   128,
		StageChannels: append([]int64(nil), encoder.DefaultChannels...),
	}
}

// Validate checks cfg.
func (cfg Config) Validate() error {
	switch {
	case cfg.InChannels <= 0:
		return errors.Wrapf(ErrInvalidConfig, "input channels must be positive, got %v", cfg.InChannels)
	case cfg.NumClasses <= 0:
		return errors.Wrapf(ErrInvalidConfig, "number of classes must be positive, got %v", cfg.NumClasses)
	case cfg.FeatureSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "feature size must be positive, got %v", cfg.FeatureSize)
	case len(cfg.StageChannels) != 4:
		return errors.Wrapf(ErrInvalidConfig, "expected 4 stage channels, got %v", cfg.StageChannels)
	case cfg.Dropout && (cfg.DropoutProb < 0 || cfg.DropoutProb >= 1):
		return errors.Wrapf(ErrInvalidConfig, "dropout probability must be in [0, 1), got %v", cfg.DropoutProb)
	}

	return nil
}
