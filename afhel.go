/*
Package afhel is a handle-based front end for homomorphic encryption.
Ciphertexts live in a registry and are addressed by short printable handles,
while the generation of the cryptographic context and keys collapses into a
single parameterized KeyGen call. The lattice cryptography is delegated to an
engine, by default the BGV scheme of Lattigo.
*/
package afhel

import (
	"github.com/afhel-go/afhel/env"
	"github.com/afhel-go/afhel/params"
	"github.com/afhel-go/afhel/registry"
)

// Handle addresses a ciphertext owned by a [Session].
type Handle = registry.Handle

// CryptoParameters is the parameter literal of [Session.KeyGen].
type CryptoParameters = params.CryptoParameters

// Auto asks KeyGen to derive L or M.
const Auto = params.Auto

var (
	ErrInvalidParameters = params.ErrInvalidParameters
	ErrEnvironment       = env.ErrEnvironment
	ErrNoEnvironment     = env.ErrNoEnvironment
	ErrCapacity          = env.ErrCapacity
	ErrForeignCiphertext = env.ErrForeignCiphertext
	ErrIO                = env.ErrIO
	ErrSerialization     = env.ErrSerialization
	ErrUnknownHandle     = registry.ErrUnknownHandle
)

// DefaultParameters returns the reference parameters: binary plaintexts at
// 128-bit security with L and M derived.
func DefaultParameters() CryptoParameters {
	return params.DefaultParameters()
}
