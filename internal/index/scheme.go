package index

var (
	bMeta = []byte("meta") // slug -> cachedEntry JSON
)
