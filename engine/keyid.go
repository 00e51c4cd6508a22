package engine

import (
	"encoding/hex"
)

// KeyID is a one-way fingerprint of a secret key and the parameters it lives in.
type KeyID [32]byte

// IsZero reports whether id is unset.
func (id KeyID) IsZero() bool {
	return id == KeyID{}
}

// String returns the first eight bytes in hexadecimal.
func (id KeyID) String() string {
	return hex.EncodeToString(id[:8])
}
