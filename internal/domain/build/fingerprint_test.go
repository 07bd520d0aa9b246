package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderHashChangesWithEveryInput(t *testing.T) {
	base := Fingerprint{ContentHash: "c", ThemeHash: "t", ConfigHash: "g", RendererHash: "r"}
	base.ComputeRenderHash()
	assert.Len(t, base.RenderHash, 64)

	again := base
	again.ComputeRenderHash()
	assert.Equal(t, base.RenderHash, again.RenderHash)

	for _, mutate := range []func(*Fingerprint){
		func(f *Fingerprint) { f.ContentHash = "c2" },
		func(f *Fingerprint) { f.ThemeHash = "t2" },
		func(f *Fingerprint) { f.ConfigHash = "g2" },
		func(f *Fingerprint) { f.RendererHash = "r2" },
	} {
		f := base
		mutate(&f)
		f.ComputeRenderHash()
		assert.NotEqual(t, base.RenderHash, f.RenderHash)
	}
}

func TestFieldBoundariesMatter(t *testing.T) {
	a := Fingerprint{ContentHash: "ab", ThemeHash: "c"}
	b := Fingerprint{ContentHash: "a", ThemeHash: "bc"}
	a.ComputeRenderHash()
	b.ComputeRenderHash()
	assert.NotEqual(t, a.RenderHash, b.RenderHash)
}

func TestETag(t *testing.T) {
	f := Fingerprint{ContentHash: "x"}
	f.ComputeRenderHash()
	tag := f.ETag()
	assert.Len(t, tag, 34)
	assert.Equal(t, `"`+f.RenderHash[:32]+`"`, tag)
	assert.Equal(t, HashString("abc"), HashBytes([]byte("abc")))
}
