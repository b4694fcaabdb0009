package modtable

import (
	"context"

	"modscout/internal/modcache"
)

// RequireFunc is the bundler's require-by-id entry point. It may return an error
// or panic while the host application is still initialising.
type RequireFunc func(id modcache.ModuleID) (any, error)

// Chunk is one entry of a push-based chunk array: the chunk ids, the module ids its
// module-map patch defines (in definition order), and the callback the bundler
// runtime invokes with its require function once the chunk is installed.
type Chunk struct {
	IDs     []string
	Modules []modcache.ModuleID
	Runtime func(req RequireFunc)
}

// ChunkArray is the push-based loading mechanism.
type ChunkArray interface {
	// Chunks returns the entries pushed so far.
	Chunks() []Chunk
	// Push installs a chunk; the bundler runtime calls its Runtime callback.
	Push(c Chunk)
}

// Host exposes the two bundling mechanisms a page may use. Either may be absent.
type Host interface {
	// Require returns a direct require-by-id function and the ids of the module
	// table, when the page exposes one.
	Require(ctx context.Context) (RequireFunc, []modcache.ModuleID, bool)
	// ChunkArray returns the push-based chunk array, when the page has one.
	ChunkArray(ctx context.Context) (ChunkArray, bool)
}
