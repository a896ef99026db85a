package refinenet_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/voxseg/refinenet"
)

func TestNonLocalBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	b, err := refinenet.NewNonLocalBlock(vs.Root(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), b.Channels())

	x := ts.MustRand([]int64{1, 8, 2, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	theta, phi, g := b.Project(x)
	for _, p := range []*ts.Tensor{theta, phi, g} {
		assert.Equal(t, []int64{1, 4, 2, 4, 4}, p.MustSize())
	}

	out := b.Restore(g)
	assert.Equal(t, []int64{1, 8, 2, 4, 4}, out.MustSize())

	for _, p := range []*ts.Tensor{theta, phi, g, out} {
		p.MustDrop()
	}
}

func TestNonLocalBlockInvalidChannels(t *testing.T) {
	for _, c := range []int64{0, -4, 7} {
		vs := nn.NewVarStore(gotch.CPU)
		_, err := refinenet.NewNonLocalBlock(vs.Root(), c)
		require.Error(t, err, "channels %v", c)
		assert.True(t, errors.Is(err, refinenet.ErrInvalidConfig))
	}
}

func TestRefineNetBuildsNonLocal(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := refinenet.New(vs.Root(), refinenet.DefaultConfig(1, 2))
	require.NoError(t, err)

	require.NotNil(t, net.NonLocal())
	assert.Equal(t, int64(256), net.NonLocal().Channels())
}

func TestRefineNetOddDeepestStage(t *testing.T) {
	cfg := refinenet.DefaultConfig(1, 2)
	cfg.StageChannels = []int64{4, 8, 16, 15}

	vs := nn.NewVarStore(gotch.CPU)
	_, err := refinenet.New(vs.Root(), cfg)
	assert.True(t, errors.Is(err, refinenet.ErrInvalidConfig))
}
