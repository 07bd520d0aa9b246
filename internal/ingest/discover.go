package ingest

import (
	"io/fs"
	"os"
	"path"
	"strings"

	"hololog/internal/domain/content"
)

// ContentStore is the read-only view of the post directory the repository
// depends on. Names are slash-separated and relative to the store root.
type ContentStore interface {
	Exists(name string) bool
	ListEntries(dir string) ([]string, error)
	ReadText(name string) (string, error)
}

// Stamper is implemented by stores that can report file revisions cheaply.
// The repository uses it to validate cached metadata.
type Stamper interface {
	Stamp(name string) (content.SourceStamp, error)
}

// FSStore adapts an fs.FS to ContentStore.
type FSStore struct {
	fsys fs.FS
}

func NewFSStore(fsys fs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// NewDirStore roots a store at dir on the local file system.
func NewDirStore(dir string) *FSStore {
	return NewFSStore(os.DirFS(dir))
}

func (s *FSStore) Exists(name string) bool {
	_, err := fs.Stat(s.fsys, clean(name))
	return err == nil
}

func (s *FSStore) ListEntries(dir string) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, clean(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *FSStore) ReadText(name string) (string, error) {
	b, err := fs.ReadFile(s.fsys, clean(name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *FSStore) Stamp(name string) (content.SourceStamp, error) {
	st, err := fs.Stat(s.fsys, clean(name))
	if err != nil {
		return content.SourceStamp{}, err
	}
	return content.SourceStamp{ModTime: st.ModTime(), Size: st.Size()}, nil
}

func clean(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	if name == "" {
		return "."
	}
	return name
}

// IsPostFile reports whether name carries the post extension.
func IsPostFile(name, ext string) bool {
	return strings.HasSuffix(name, ext) && len(name) > len(ext)
}

// SlugFromName strips the post extension from a file name.
func SlugFromName(name, ext string) string {
	return strings.TrimSuffix(path.Base(name), ext)
}
