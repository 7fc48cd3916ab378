// Package ref defines the content address type used by every snapline record,
// plus the component identifier that names a component across scopes.
package ref

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"

	"github.com/pkg/errors"
)

// Size is the length of a hex encoded sha1 hash
const Size = 40

// ShortSize is the number of leading characters shown when displaying a ref.
// The short form is display only, never used as identity.
const ShortSize = 9

var hexRegex = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Ref is the 40 character hex content address of an immutable record
type Ref string

// Compute returns the ref for the given serialized bytes
func Compute(data []byte) Ref {
	s := sha1.Sum(data)
	return Ref(hex.EncodeToString(s[:]))
}

// Parse validates a string as a full length ref
func Parse(s string) (Ref, error) {
	r := Ref(s)
	if !r.IsValid() {
		return "", errors.Errorf("'%s' is not a valid hash", s)
	}
	return r, nil
}

// IsValid reports whether the ref is a well formed 40 character hex string
func (r Ref) IsValid() bool {
	return hexRegex.MatchString(string(r))
}

// IsEmpty reports whether the ref is unset
func (r Ref) IsEmpty() bool {
	return r == ""
}

// Short returns the first 9 characters, for display
func (r Ref) Short() string {
	if len(r) < ShortSize {
		return string(r)
	}
	return string(r[:ShortSize])
}

func (r Ref) String() string {
	return string(r)
}

// SortRefs sorts a slice of refs in place, lexicographically
func SortRefs(refs []Ref) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j] < refs[j-1]; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

// ContainsRef reports whether refs contains r
func ContainsRef(refs []Ref, r Ref) bool {
	for _, x := range refs {
		if x == r {
			return true
		}
	}
	return false
}
