package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageMagic prefixes every binary bytecode image.
var ImageMagic = []byte{'S', 'P', 'B', 'C'}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalCBOR encodes p as a binary image using canonical CBOR.
func MarshalCBOR(p *Program) ([]byte, error) {
	doc, err := toDocument(p, nil)
	if err != nil {
		return nil, err
	}
	body, err := cborEncMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("bytecode: encode image: %w", err)
	}
	return append(append([]byte{}, ImageMagic...), body...), nil
}

// UnmarshalCBOR decodes and validates a binary image.
func UnmarshalCBOR(data []byte) (*Program, error) {
	if !IsImage(data) {
		return nil, fmt.Errorf("bytecode: missing image header")
	}
	var doc document
	if err := cbor.Unmarshal(data[len(ImageMagic):], &doc); err != nil {
		return nil, fmt.Errorf("bytecode: decode image: %w", err)
	}
	return fromDocument(&doc)
}

// IsImage reports whether data starts with the binary image header.
func IsImage(data []byte) bool {
	if len(data) < len(ImageMagic) {
		return false
	}
	for i, b := range ImageMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}

// Unmarshal decodes either persisted form, sniffing the image header.
func Unmarshal(data []byte) (*Program, error) {
	if IsImage(data) {
		return UnmarshalCBOR(data)
	}
	return UnmarshalJSON(data)
}

// Fingerprint returns the SHA-256 of p's canonical image. Programs that
// encode identically share a fingerprint regardless of how they were built
// or which form they were loaded from.
func Fingerprint(p *Program) ([32]byte, error) {
	data, err := MarshalCBOR(p)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
