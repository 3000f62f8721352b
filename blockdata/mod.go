// Package blockdata defines the data model shared by the watcher components:
// the identity of a watched archive source, the block material fetched from
// it and the attestation it may carry.
//
// The package also implements the canonical mapping from a block index to its
// relative path inside an archive, which is used both to build fetch URLs and
// as the storage key of a signature.
package blockdata

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/xerrors"
)

// Source is the identity of one watched archive endpoint, as its base URL.
type Source string

// String implements fmt.Stringer.
func (s Source) String() string {
	return string(s)
}

// BlockURL resolves the archive path of the given block index against the
// base URL of the source.
func (s Source) BlockURL(index uint64) (string, error) {
	base, err := url.Parse(string(s))
	if err != nil {
		return "", xerrors.Errorf("invalid source url: %v", err)
	}

	rel, err := url.Parse(ArchivePath(index))
	if err != nil {
		return "", xerrors.Errorf("invalid archive path: %v", err)
	}

	return base.ResolveReference(rel).String(), nil
}

// Signature is the attestation of a block by the validator behind a source.
// The signature bytes are opaque to the watcher, which only records them.
type Signature struct {
	Signer    []byte `json:"signer"`
	Signature []byte `json:"signature"`
}

// BlockData is the material fetched from an archive for one block index. The
// contents are opaque and the signature is optional.
type BlockData struct {
	Index     uint64     `json:"index"`
	Contents  []byte     `json:"contents"`
	Signature *Signature `json:"signature,omitempty"`
}

// ArchivePath returns the canonical relative path of a block inside an
// archive. The index is formatted as a 16-digit hexadecimal name nested under
// seven two-character directory levels, so that archives never end up with a
// single flat directory holding millions of entries.
func ArchivePath(index uint64) string {
	name := fmt.Sprintf("%016x", index)

	parts := make([]string, 0, 8)
	for i := 0; i < 7; i++ {
		parts = append(parts, name[i*2:i*2+2])
	}

	parts = append(parts, name+".json")

	return strings.Join(parts, "/")
}

// SameSources returns true when the two slices contain the same set of
// sources, regardless of order and duplicates.
func SameSources(a, b []Source) bool {
	set := func(list []Source) map[Source]struct{} {
		m := make(map[Source]struct{})
		for _, src := range list {
			m[src] = struct{}{}
		}

		return m
	}

	sa, sb := set(a), set(b)

	if len(sa) != len(sb) {
		return false
	}

	for src := range sa {
		_, found := sb[src]
		if !found {
			return false
		}
	}

	return true
}
