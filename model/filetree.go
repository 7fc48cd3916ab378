package model

import (
	"sort"

	"github.com/snapline/snapline/ref"
)

// FileEntry is one file inside a version's tree
type FileEntry struct {
	RelativePath string  `json:"relativePath"`
	Blob         ref.Ref `json:"blob"`
	Mode         uint32  `json:"mode,omitempty"`
}

// FileTree is the sorted file listing of a version
type FileTree struct {
	Files []FileEntry `json:"files"`
}

func (t *FileTree) Kind() Kind { return KindFileTree }

// Sort orders the entries by path.  Serialization requires sorted entries so
// equal trees hash equally.
func (t *FileTree) Sort() {
	sort.Slice(t.Files, func(i, j int) bool {
		return t.Files[i].RelativePath < t.Files[j].RelativePath
	})
}

// Lookup finds the entry for a path
func (t *FileTree) Lookup(path string) (FileEntry, bool) {
	for _, f := range t.Files {
		if f.RelativePath == path {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Source is the raw contents of a single file
type Source struct {
	Contents []byte `json:"contents"`
}

func (s *Source) Kind() Kind { return KindSource }
