// Package store persists snapline records in a content addressed object
// store on disk, and fetches missing records from the remote hub.
package store

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
)

// Store is a content addressed object store.  Each record file is named by
// its hash, grouped under a two character prefix directory.
type Store struct {
	dir string
}

// New opens (creating if needed) a store rooted at dir
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating objects dir")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) objectPath(r ref.Ref) string {
	h := r.String()
	return filepath.Join(s.dir, h[:2], h[2:])
}

// Put serializes a record, hashes it, and writes it if absent.  Idempotent:
// writing an already present ref is a no-op, and a concurrent write of the
// same ref lands identical bytes.
func (s *Store) Put(r model.Record) (ref.Ref, error) {
	data, err := model.Serialize(r)
	if err != nil {
		return "", err
	}
	h := ref.Compute(data)
	if s.Has(h) {
		return h, nil
	}
	if err = s.writeObject(h, data); err != nil {
		return "", err
	}
	return h, nil
}

// PutRaw stores pre-serialized record bytes under their hash.  Used when
// importing records fetched from the hub, so the remote bytes are kept
// verbatim.
func (s *Store) PutRaw(data []byte) (ref.Ref, error) {
	h := ref.Compute(data)
	if s.Has(h) {
		return h, nil
	}
	if err := s.writeObject(h, data); err != nil {
		return "", err
	}
	return h, nil
}

func (s *Store) writeObject(h ref.Ref, data []byte) error {
	path := s.objectPath(h)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating object prefix dir")
	}
	// write-temp+rename keeps each record write atomic
	tmp, err := os.CreateTemp(filepath.Dir(path), ".obj-*")
	if err != nil {
		return errors.Wrap(err, "creating temp object file")
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing temp object file")
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp object file")
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "moving object file into place")
	}
	return nil
}

// Get loads a record by ref.  The loaded bytes are re-hashed; a mismatch
// means the store is corrupted and is always fatal.
func (s *Store) Get(r ref.Ref) (model.Record, error) {
	data, err := s.GetRaw(r)
	if err != nil {
		return nil, err
	}
	return model.Deserialize(data)
}

// GetRaw loads the exact stored bytes of a record, hash verified
func (s *Store) GetRaw(r ref.Ref) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "object %s", r.Short())
		}
		return nil, errors.Wrapf(err, "reading object %s", r.Short())
	}
	if got := ref.Compute(data); got != r {
		return nil, errors.Errorf(
			"object %s is corrupted (content hashes to %s), run 'snapline checkout reset' to restore the workspace",
			r.Short(), got.Short())
	}
	return data, nil
}

// Has reports whether the record is present locally
func (s *Store) Has(r ref.Ref) bool {
	_, err := os.Stat(s.objectPath(r))
	return err == nil
}

// ErrNotFound marks a record absent from the local store
var ErrNotFound = errors.New("object not found")

// IsNotFound reports whether err means the record is absent rather than
// unreadable
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
