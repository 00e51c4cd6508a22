// Package params resolves partially specified cryptographic parameters into a
// complete and consistent set from which an environment can be generated.
package params

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Auto is the sentinel asking the [Resolver] to derive L or M.
const Auto = -1

// ErrInvalidParameters is returned when a parameter set is invalid or inconsistent.
var ErrInvalidParameters = errors.New("invalid parameters")

// CryptoParameters is a literal description of the cryptographic parameters
// of an environment. L and M accept [Auto]; every other field is required.
//
//   - P: plaintext prime.
//   - R: Hensel lifting exponent, the plaintext modulus is P^R.
//   - W: Hamming weight of the secret key.
//   - D: embedding degree of the slot algebra, 0 selects the first factor
//     of the natural factorization.
//   - C: number of columns of the key-switching matrices.
//   - Sec: security level in bits.
//   - L: number of primes of the modulus chain.
//   - M: cyclotomic index.
//   - Rounds: number of rounds the L heuristic provisions for.
//   - S: minimum number of slots.
//   - Gens, Ords: generators and orders of the plaintext slot group, may be empty.
type CryptoParameters struct {
	P      int   `json:"p"`
	R      int   `json:"r"`
	W      int   `json:"w"`
	D      int   `json:"d"`
	C      int   `json:"c"`
	Sec    int   `json:"sec"`
	L      int   `json:"L"`
	M      int   `json:"m"`
	Rounds int   `json:"rounds"`
	S      int   `json:"s"`
	Gens   []int `json:"gens,omitempty"`
	Ords   []int `json:"ords,omitempty"`
}

// DefaultParameters returns the reference parameter set: binary plaintexts
// at 128-bit security with L and M derived automatically.
func DefaultParameters() CryptoParameters {
	return CryptoParameters{
		P:      2,
		R:      1,
		W:      64,
		D:      1,
		C:      2,
		Sec:    128,
		L:      Auto,
		M:      Auto,
		Rounds: 1,
		S:      0,
	}
}

// Resolved reports whether L and M are concrete.
func (p CryptoParameters) Resolved() bool {
	return p.L > 0 && p.M > 0
}

// Equal performs a deep equal. Nil and empty generator lists are equal.
func (p CryptoParameters) Equal(other CryptoParameters) bool {
	return cmp.Equal(p, other, cmpopts.EquateEmpty())
}

// CopyNew returns a deep copy of the parameters.
func (p CryptoParameters) CopyNew() CryptoParameters {
	p.Gens = append([]int(nil), p.Gens...)
	p.Ords = append([]int(nil), p.Ords...)
	return p
}

func (p CryptoParameters) String() string {
	return fmt.Sprintf("p=%d, r=%d, d=%d, c=%d, sec=%d, w=%d, L=%d, m=%d, R=%d, s=%d, gens=%v, ords=%v",
		p.P, p.R, p.D, p.C, p.Sec, p.W, p.L, p.M, p.Rounds, p.S, p.Gens, p.Ords)
}
