// Package engine declares the capabilities consumed from a homomorphic-encryption
// engine: context construction, key material, slot packing and ciphertext
// arithmetic. The package holds no cryptography; implementations live in
// sub-packages such as [github.com/afhel-go/afhel/engine/lattigo].
package engine

import (
	"encoding"
	"fmt"
)

// ContextBase is the minimal description from which an engine rebuilds an
// empty context shell: cyclotomic index, plaintext prime, Hensel exponent and
// the generators/orders of the plaintext slot group.
type ContextBase struct {
	M    int   `json:"m"`
	P    int   `json:"p"`
	R    int   `json:"r"`
	Gens []int `json:"gens"`
	Ords []int `json:"ords"`
}

func (b ContextBase) String() string {
	return fmt.Sprintf("m=%d, p=%d, r=%d, gens=%v, ords=%v", b.M, b.P, b.R, b.Gens, b.Ords)
}

// Backend is the entry point of an engine.
type Backend interface {
	// Name returns a short identifier of the engine.
	Name() string

	// FindSuitableM returns the cheapest cyclotomic index supporting L levels
	// at security level sec for the plaintext modulus p^r, number of
	// key-switching columns c, embedding degree d and minimum slot count s.
	FindSuitableM(sec, L, c, p, r, d, s int) (m int, err error)

	// CheckIndex returns an error if m does not admit a valid cyclotomic ring
	// for the plaintext modulus p^r.
	CheckIndex(m, p, r int) error

	// CheckSecurity returns an error if the ring of index m with L levels and
	// c key-switching columns for the plaintext modulus p^r does not reach
	// security level sec.
	CheckSecurity(sec, m, L, c, p, r int) error

	// NewContext builds an empty context shell (no modulus chain).
	NewContext(base ContextBase) (Context, error)

	// IrreduciblePoly returns a degree-d irreducible polynomial modulo p.
	IrreduciblePoly(p, d int) (SlotPolynomial, error)
}

// Context is the algebraic structure (ring and modulus chain) of an environment.
// The text encoding is the "full context" record of a persisted environment.
type Context interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler

	Base() ContextBase

	// BuildModChain extends the modulus chain to L primes, using c columns
	// for the key-switching matrices.
	BuildModChain(L, c int) error

	// Levels returns the length of the modulus chain, 0 before BuildModChain.
	Levels() int

	// FirstFactor returns the first irreducible factor of the natural
	// factorization of the cyclotomic polynomial modulo the plaintext modulus.
	FirstFactor() (SlotPolynomial, error)

	// NewSecretKey allocates an empty secret key bound to the context.
	NewSecretKey() (SecretKey, error)

	// NewSlotEncoder builds the slot-packing encoder defined by G.
	NewSlotEncoder(G SlotPolynomial) (SlotEncoder, error)
}

// SlotPolynomial identifies the polynomial defining the slot algebra.
type SlotPolynomial struct {
	Modulus uint64
	Degree  int
}

func (G SlotPolynomial) String() string {
	return fmt.Sprintf("deg=%d mod %d", G.Degree, G.Modulus)
}

// SecretKey owns the secret material of an environment. Its text encoding is
// the "secret key" record of a persisted environment.
type SecretKey interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler

	// GenSecKey samples a secret of Hamming weight w and derives the
	// public view and the relinearization key from it.
	GenSecKey(w int) error

	// AddRotationKeys adds the key-switching matrices for one-dimensional rotations.
	AddRotationKeys() error

	// PublicView returns the public capability bound to this secret key.
	PublicView() PublicView

	KeyID() KeyID
}

// PublicView is the public-key side of a [SecretKey]: it encrypts and evaluates
// but cannot decrypt. All operations are out-of-place and leave their inputs
// untouched.
type PublicView interface {
	KeyID() KeyID

	// Add returns a+b, or a-b if negate is set.
	Add(a, b Ciphertext, negate bool) (Ciphertext, error)
	Multiply(a, b Ciphertext) (Ciphertext, error)
	// MultiplyBy2 returns a*b*c.
	MultiplyBy2(a, b, c Ciphertext) (Ciphertext, error)
	Square(a Ciphertext) (Ciphertext, error)
	Cube(a Ciphertext) (Ciphertext, error)
	Negate(a Ciphertext) (Ciphertext, error)

	// Equal reports whether a and b are structurally equal ciphertexts and,
	// if comparePublicKeys is set, were produced under the same key.
	Equal(a, b Ciphertext, comparePublicKeys bool) (bool, error)
}

// SlotEncoder packs vectors of integers into the slots of a ciphertext.
type SlotEncoder interface {
	// Size returns the number of slots.
	Size() int

	// Encrypt encodes values (len(values) <= Size()) and encrypts them under pk.
	Encrypt(pk PublicView, values []int64) (Ciphertext, error)

	// Decrypt returns Size() values in [0, p^r).
	Decrypt(sk SecretKey, ct Ciphertext) ([]int64, error)

	// Rotate cyclically moves the slot at index i to index i+k.
	Rotate(pk PublicView, ct Ciphertext, k int) (Ciphertext, error)

	// Shift moves the slot at index i to index i+k, filling with zeros.
	Shift(pk PublicView, ct Ciphertext, k int) (Ciphertext, error)

	// TotalSums sums slots inside partitions of the given size, with
	// partitionSize <= 0 meaning the whole vector.
	TotalSums(pk PublicView, ct Ciphertext, partitionSize int) (Ciphertext, error)
}

// Ciphertext is an encrypted value owned by the engine.
type Ciphertext interface {
	// CopyNew returns a deep copy sharing no mutable state with the receiver.
	CopyNew() Ciphertext

	// KeyID identifies the key the ciphertext was produced under.
	KeyID() KeyID

	// Level returns the remaining multiplicative depth.
	Level() int
}
