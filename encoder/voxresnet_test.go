package encoder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/encoder"
)

func TestVoxResNetStages(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := encoder.NewVoxResNet(vs.Root(), encoder.VoxResConfig{InChannels: 2})
	require.NoError(t, err)

	var e encoder.Encoder = net
	assert.Equal(t, encoder.DefaultChannels, e.Channels())

	x := ts.MustRand([]int64{2, 2, 4, 16, 16}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	ts.NoGrad(func() {
		features := e.ForwardStages(x, false)
		require.Len(t, features, 4)

		want := [][]int64{
			{2, 32, 4, 16, 16},
			{2, 64, 4, 8, 8},
			{2, 128, 4, 4, 4},
			{2, 256, 4, 2, 2},
		}
		for i, f := range features {
			assert.Equal(t, want[i], f.MustSize(), "stage %d", i+1)
			f.MustDrop()
		}
	})
}

func TestVoxResNetDeepSupervision(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := encoder.NewVoxResNet(vs.Root(), encoder.VoxResConfig{
		InChannels: 1,
		Channels:   []int64{4, 8, 8, 16},
		NumClasses: 3,
	})
	require.NoError(t, err)

	x := ts.MustRand([]int64{1, 1, 2, 16, 16}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	ts.NoGrad(func() {
		out := net.ForwardT(x, false)
		assert.Equal(t, []int64{1, 3, 2, 16, 16}, out.MustSize())
		out.MustDrop()
	})
}

func TestVoxResNetWithoutClassifiersPanics(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := encoder.NewVoxResNet(vs.Root(), encoder.VoxResConfig{InChannels: 1, Channels: []int64{2, 2, 2, 2}})
	require.NoError(t, err)

	x := ts.MustRand([]int64{1, 1, 1, 8, 8}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	assert.Panics(t, func() { net.ForwardT(x, false) })
}

func TestVoxResNetInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  encoder.VoxResConfig
	}{
		{"no input channels", encoder.VoxResConfig{}},
		{"three stages", encoder.VoxResConfig{InChannels: 1, Channels: []int64{8, 16, 32}}},
		{"zero width", encoder.VoxResConfig{InChannels: 1, Channels: []int64{8, 0, 32, 64}}},
		{"negative classes", encoder.VoxResConfig{InChannels: 1, NumClasses: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := nn.NewVarStore(gotch.CPU)
			_, err := encoder.NewVoxResNet(vs.Root(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestVoxResNetVariableNames(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	_, err := encoder.NewVoxResNet(vs.Root(), encoder.VoxResConfig{InChannels: 1})
	require.NoError(t, err)

	vars := vs.Variables()
	for _, name := range []string{"conv1a.weight", "conv1b.weight", "bn1a.weight", "conv4.weight", "voxres4b.conv2.weight"} {
		_, ok := vars[name]
		assert.True(t, ok, "missing variable %q", name)
	}
}
