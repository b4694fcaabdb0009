//go:build js && wasm

package main

import (
	"context"
	"syscall/js"
	"testing"

	"modscout/internal/bootstrap"
	"modscout/internal/config"
	"modscout/internal/host/memhost"
	"modscout/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setPageConfig(t *testing.T, src string) {
	t.Helper()
	js.Global().Set("modscoutConfig", js.Global().Get("JSON").Call("parse", src))
	t.Cleanup(func() { js.Global().Delete("modscoutConfig") })
}

func TestLoadPageConfig_Defaults(t *testing.T) {
	pc, err := loadPageConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Bundler.RequireGlobal, pc.RequireGlobal)
}

func TestLoadPageConfig_Overrides(t *testing.T) {
	setPageConfig(t, `{"requireGlobal":"__req","pollMs":50}`)

	pc, err := loadPageConfig()
	require.NoError(t, err)
	assert.Equal(t, "__req", pc.RequireGlobal)
	assert.Equal(t, 50, pc.PollMs)
	assert.Equal(t, config.DefaultConfig().Bundler.ChunkGlobal, pc.ChunkGlobal)
}

func TestLoadPageConfig_MalformedKeepsDefaults(t *testing.T) {
	setPageConfig(t, `{"requireGlobal":"__req","pollMs":"fast"}`)

	pc, err := loadPageConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modscoutConfig")
	assert.Equal(t, config.DefaultConfig().Bundler.RequireGlobal, pc.RequireGlobal)
}

func TestSurfaceAPI_ReadyAndCapabilitiesAreProperties(t *testing.T) {
	b := bootstrap.New(memhost.SampleApp(), bootstrap.Options{Monitor: monitor.New()})
	api := surfaceAPI(b.Surface())

	assert.Equal(t, js.TypeBoolean, api.Get("ready").Type())
	assert.False(t, api.Get("ready").Bool())
	assert.True(t, api.Get("Msg").IsNull())

	_, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, api.Get("ready").Bool())
	assert.Equal(t, "fully_resolved", api.Get("state").String())
	assert.Equal(t, js.TypeObject, api.Get("Msg").Type())
	assert.Equal(t, js.TypeFunction, api.Get("inspect").Type())
}
