// Package model holds the record types snapline persists: versions, component
// heads, lanes, version histories, file trees and raw sources.  A record is
// serialized to a deterministic byte form, and its content address is the
// sha1 of exactly those bytes.  Persisted records are immutable; loading a
// record whose bytes no longer hash to its address is treated as corruption.
package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/snapline/snapline/ref"
)

// Kind discriminates the record union
type Kind string

const (
	KindVersion        Kind = "version"
	KindModelComponent Kind = "component"
	KindLane           Kind = "lane"
	KindVersionHistory Kind = "versionHistory"
	KindFileTree       Kind = "fileTree"
	KindSource         Kind = "source"
)

// Record is one variant of the persisted object union
type Record interface {
	Kind() Kind
}

// envelope is the on disk form: the kind tag plus the record payload
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Serialize returns the canonical byte form of a record: compact JSON with
// the kind envelope and a trailing newline.  encoding/json emits struct
// fields in declaration order and map keys sorted, so the output is stable.
func Serialize(r Record) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrapf(err, "serialising %s record", r.Kind())
	}
	env, err := json.Marshal(envelope{Kind: r.Kind(), Payload: payload})
	if err != nil {
		return nil, errors.Wrapf(err, "serialising %s envelope", r.Kind())
	}
	return append(env, '\n'), nil
}

// HashOf returns the content address of a record
func HashOf(r Record) (ref.Ref, error) {
	data, err := Serialize(r)
	if err != nil {
		return "", err
	}
	return ref.Compute(data), nil
}

// Deserialize parses the canonical byte form back into a typed record
func Deserialize(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSuffix(data, []byte("\n")), &env); err != nil {
		return nil, errors.Wrap(err, "parsing record envelope")
	}
	var r Record
	switch env.Kind {
	case KindVersion:
		r = &Version{}
	case KindModelComponent:
		r = &ModelComponent{}
	case KindLane:
		r = &Lane{}
	case KindVersionHistory:
		r = &VersionHistory{}
	case KindFileTree:
		r = &FileTree{}
	case KindSource:
		r = &Source{}
	default:
		return nil, errors.Errorf("unknown record kind '%s'", env.Kind)
	}
	if err := json.Unmarshal(env.Payload, r); err != nil {
		return nil, errors.Wrapf(err, "parsing %s record", env.Kind)
	}
	return r, nil
}
