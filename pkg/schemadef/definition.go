// Package schemadef holds the storage representation of a schema object
// definition and the canonicalization and hashing rules that give every
// definition a stable content hash.
package schemadef

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// Definition is the canonical storage representation of a schema object.
// Spec carries the type-specific body (columns for a table, expression for an
// index, body for a function). Everything that influences behavior lives in
// Spec; Description is cosmetic and excluded from semantic comparison.
type Definition struct {
	Version     string           `json:"version"`
	Type        types.ObjectType `json:"type"`
	Namespace   string           `json:"namespace"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Spec        json.RawMessage  `json:"spec"`
}

// Ref returns the logical identity of the definition.
func (d *Definition) Ref() types.ObjectRef {
	return types.ObjectRef{Type: d.Type, Namespace: d.Namespace, Name: d.Name}
}

// Serialize converts the Definition to a JSON byte array.
func (d *Definition) Serialize() ([]byte, apperrors.Error) {
	j, err := json.Marshal(d)
	if err != nil {
		return nil, ErrDefinitionSerialization
	}
	return j, nil
}

// Parse decodes a serialized definition.
func Parse(data []byte) (*Definition, apperrors.Error) {
	d := &Definition{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, ErrInvalidDefinition.Err(err)
	}
	return d, nil
}

// GetHash returns the hex SHA-512 hash of the normalized Definition.
func (d *Definition) GetHash() types.Hash {
	sz, err := d.Serialize()
	if err != nil {
		return ""
	}
	return HashOf(sz)
}

// HashOf normalizes raw definition JSON and returns its hex SHA-512 digest.
// Two equivalent JSON representations yield the same hash.
func HashOf(data []byte) types.Hash {
	nsz, err := NormalizeJSON(data)
	if err != nil {
		return ""
	}
	return types.Hash(HexEncodedSHA512(nsz))
}

// NormalizeJSON converts JSON to its RFC 8785 canonical form.
func NormalizeJSON(data []byte) ([]byte, error) {
	return jsoncanonicalizer.Transform(data)
}

// HexEncodedSHA512 returns the hex encoding of the SHA-512 digest of data.
func HexEncodedSHA512(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// Size returns the approximate size of the definition in bytes.
func (d *Definition) Size() int {
	return len(d.Spec) + len(d.Version) + len(d.Type) + len(d.Namespace) + len(d.Name)
}

// DiffersInSpec reports whether the Spec bodies of two definitions differ,
// ignoring cosmetic fields. A nil other always differs.
func (d *Definition) DiffersInSpec(other *Definition) bool {
	if other == nil {
		return true
	}
	a, errA := NormalizeJSON(d.Spec)
	b, errB := NormalizeJSON(other.Spec)
	if errA != nil || errB != nil {
		return true
	}
	return string(a) != string(b)
}
