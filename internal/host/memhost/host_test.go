package memhost

import (
	"context"
	"testing"

	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/readiness"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleApp_BuildsWithEitherMechanism(t *testing.T) {
	for _, m := range []Mechanism{Require, Chunks} {
		h := SampleApp().SetMechanism(m)
		c, err := modtable.NewBuilder(h, nil).Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, h.IDs(), c.IDs())
		assert.NotNil(t, c.FindByExport("MsgCollection"))
	}
}

func TestHost_NoneMechanism(t *testing.T) {
	h := SampleApp().SetMechanism(None)
	assert.False(t, h.Available())
	_, err := modtable.NewBuilder(h, nil).Build(context.Background())
	assert.ErrorIs(t, err, modtable.ErrBundlerUnavailable)
}

func TestHost_CountsFactoryCalls(t *testing.T) {
	h := New().DefineValue("1", "x")
	req, ids, ok := h.Require(context.Background())
	require.True(t, ok)
	assert.Equal(t, []modcache.ModuleID{"1"}, ids)

	_, _ = req("1")
	_, _ = req("1")
	_, err := req("2")
	assert.Error(t, err)
	assert.Equal(t, 2, h.Calls("1"))
}

func TestHost_ReadyAfter(t *testing.T) {
	h := New().ReadyAfter(3, ReadySignals)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s, err := h.Sample(ctx)
		require.NoError(t, err)
		assert.Equal(t, readiness.Signals{}, s)
	}
	s, err := h.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReadySignals, s)
}

func TestHost_ChunkSplit(t *testing.T) {
	h := New().SetMechanism(Chunks)
	for i := 0; i < 20; i++ {
		h.DefineValue(modcache.ModuleID(string(rune('a'+i))), i)
	}
	arr, ok := h.ChunkArray(context.Background())
	require.True(t, ok)
	chunks := arr.Chunks()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2].Modules, 4)
}
