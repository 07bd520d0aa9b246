package build

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint identifies one rendering of a page. Two renders with the same
// RenderHash produce the same bytes, so it doubles as an HTTP entity tag.
type Fingerprint struct {
	ContentHash  string
	ThemeHash    string
	ConfigHash   string
	RendererHash string
	RenderHash   string
}

func (f *Fingerprint) ComputeRenderHash() {
	h := sha256.New()
	h.Write([]byte(f.ContentHash))
	h.Write([]byte{0})
	h.Write([]byte(f.ThemeHash))
	h.Write([]byte{0})
	h.Write([]byte(f.ConfigHash))
	h.Write([]byte{0})
	h.Write([]byte(f.RendererHash))
	f.RenderHash = hex.EncodeToString(h.Sum(nil))
}

// ETag returns a strong entity tag for the fingerprint. ComputeRenderHash
// must have been called.
func (f Fingerprint) ETag() string {
	tag := f.RenderHash
	if len(tag) > 32 {
		tag = tag[:32]
	}
	return `"` + tag + `"`
}

func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func HashString(s string) string {
	return HashBytes([]byte(s))
}
