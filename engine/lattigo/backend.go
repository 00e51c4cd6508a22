// Package lattigo implements the [engine] capabilities with the BGV scheme of
// the Lattigo library.
//
// The cyclotomic index m is a power of two and the ring degree is N = m/2.
// Slots form a one-dimensional vector of N/2 values stored on the first row of
// the 2 x N/2 BGV slot matrix and mirrored on the second row, so that a cyclic
// rotation of the vector is a single column rotation.
//
// Plaintext prime powers p^r for which BGV has no batching-friendly plaintext
// ring (e.g. p = 2) are evaluated over a carrier prime t = 1 mod m. Slots are
// encoded with their representative in (-p^r/2, p^r/2], decryption lifts them
// to (-t/2, t/2] and reduces them modulo p^r. The carrier is sized so that a
// product of three encoded values, summed up to 2^CarrierHeadroom times,
// stays below t/2: every single operation is exact. Chains of operations are
// exact as long as intermediate values stay below t/2 in absolute value.
// Prime powers for which no carrier of at most 40 bits exists are rejected.
package lattigo

import (
	"fmt"
	"math/big"
	"math/bits"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/utils/factorization"

	"github.com/afhel-go/afhel/engine"
)

const (
	// DefaultPrimeBits is the default bit-size of the primes of the modulus chain.
	DefaultPrimeBits = 44

	// DefaultCarrierHeadroom is the default log2 of the number of
	// degree-three products a carrier plaintext modulus can sum exactly.
	DefaultCarrierHeadroom = 8

	// MinLogM and MaxLogM bound the supported cyclotomic indices.
	MinLogM = rlwe.MinLogN + 1
	MaxLogM = 17

	minCarrierBits = 17
	maxCarrierBits = 40
	maxModuliSize  = 60

	// carrierDegree is the largest degree of a single operation (Cube, MultiplyBy2).
	carrierDegree = 3
)

// Config is the configuration of a [Backend]. The zero value selects the defaults.
type Config struct {
	// PrimeBits is the bit-size of the primes of the modulus chain.
	PrimeBits int `json:",omitempty"`
	// CarrierHeadroom is the log2 of the number of degree-three products a
	// carrier plaintext modulus sums exactly.
	CarrierHeadroom int `json:",omitempty"`
}

func (cfg Config) primeBits() int {
	if cfg.PrimeBits <= 0 {
		return DefaultPrimeBits
	}
	return min(cfg.PrimeBits, maxModuliSize)
}

func (cfg Config) carrierHeadroom() int {
	if cfg.CarrierHeadroom <= 0 {
		return DefaultCarrierHeadroom
	}
	return cfg.CarrierHeadroom
}

// Backend is the Lattigo BGV implementation of [engine.Backend].
type Backend struct {
	cfg Config
}

// NewBackend returns a new [Backend].
func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Name returns the engine identifier.
func (b *Backend) Name() string {
	return "lattigo/bgv"
}

// maxLogQP is the largest modulus (in bits) of a ring of degree 2^logN that
// reaches the given security level for ternary secrets
// (HomomorphicEncryption.org standard, extrapolated for 2^16).
var maxLogQP = map[int]map[int]int{
	128: {10: 27, 11: 54, 12: 109, 13: 218, 14: 438, 15: 881, 16: 1761},
	192: {10: 19, 11: 37, 12: 75, 13: 152, 14: 305, 15: 611, 16: 1220},
	256: {10: 14, 11: 29, 12: 58, 13: 118, 14: 237, 15: 476, 16: 952},
}

func securityTable(sec int) (map[int]int, error) {
	switch {
	case sec <= 0:
		return nil, fmt.Errorf("invalid security level %d", sec)
	case sec <= 128:
		return maxLogQP[128], nil
	case sec <= 192:
		return maxLogQP[192], nil
	case sec <= 256:
		return maxLogQP[256], nil
	default:
		return nil, fmt.Errorf("security level %d above 256 is not supported", sec)
	}
}

// FindSuitableM returns the smallest power-of-two cyclotomic index whose ring
// supports the modulus chain of L primes for the plaintext modulus p^r at
// security level sec with at least s slots. The embedding degree d must be 0
// or 1.
func (b *Backend) FindSuitableM(sec, L, c, p, r, d, s int) (m int, err error) {

	if L < 1 {
		return 0, fmt.Errorf("cannot FindSuitableM: L=%d must be positive", L)
	}

	if c < 1 {
		return 0, fmt.Errorf("cannot FindSuitableM: c=%d must be positive", c)
	}

	if d > 1 {
		return 0, fmt.Errorf("cannot FindSuitableM: embedding degree d=%d is not supported by fully split slots", d)
	}

	table, err := securityTable(sec)
	if err != nil {
		return 0, fmt.Errorf("cannot FindSuitableM: %w", err)
	}

	for logN := 10; logN <= MaxLogM-1; logN++ {

		m = 1 << (logN + 1)

		if s > 0 && 1<<(logN-1) < s {
			continue
		}

		logQP, err := b.logQP(m, L, c, p, r)
		if err != nil {
			continue
		}

		if logQP <= table[logN] {
			return m, nil
		}
	}

	return 0, fmt.Errorf("cannot FindSuitableM: no ring up to m=2^%d supports L=%d at sec=%d", MaxLogM, L, sec)
}

// CheckSecurity returns an error if the ring of index m, with the modulus
// chain of L primes and c columns for the plaintext modulus p^r, does not
// reach the security level sec.
func (b *Backend) CheckSecurity(sec, m, L, c, p, r int) error {

	if err := b.CheckIndex(m, p, r); err != nil {
		return err
	}

	table, err := securityTable(sec)
	if err != nil {
		return err
	}

	logN := bits.Len(uint(m)) - 2

	bound, ok := table[logN]
	if !ok {
		return fmt.Errorf("m=%d is too small for sec=%d", m, sec)
	}

	logQP, err := b.logQP(m, L, c, p, r)
	if err != nil {
		return err
	}

	if logQP > bound {
		return fmt.Errorf("m=%d supports logQP <= %d at sec=%d, L=%d with c=%d needs %d", m, bound, sec, L, c, logQP)
	}

	return nil
}

// CheckIndex returns an error if m is not a supported power of two or if no
// plaintext modulus emulating Z_{p^r} exists for it.
func (b *Backend) CheckIndex(m, p, r int) (err error) {

	if m <= 0 || m&(m-1) != 0 {
		return fmt.Errorf("m=%d is not a power of two", m)
	}

	if logM := bits.Len(uint(m)) - 1; logM < MinLogM || logM > MaxLogM {
		return fmt.Errorf("m=2^%d is outside [2^%d, 2^%d]", logM, MinLogM, MaxLogM)
	}

	_, _, err = b.plaintextModulus(m, p, r)
	return
}

// NewContext returns an empty context shell for the given base.
func (b *Backend) NewContext(base engine.ContextBase) (engine.Context, error) {

	if err := b.CheckIndex(base.M, base.P, base.R); err != nil {
		return nil, fmt.Errorf("cannot NewContext: %w", err)
	}

	if err := checkGenerators(base); err != nil {
		return nil, fmt.Errorf("cannot NewContext: %w", err)
	}

	t, carrier, err := b.plaintextModulus(base.M, base.P, base.R)
	if err != nil {
		return nil, fmt.Errorf("cannot NewContext: %w", err)
	}

	pr, _ := power(base.P, base.R)

	return &Context{
		backend: b,
		base:    base,
		logN:    bits.Len(uint(base.M)) - 2,
		t:       t,
		pr:      pr,
		carrier: carrier,
	}, nil
}

// IrreduciblePoly returns the degree-d factor of the slot algebra. Slots of a
// power-of-two cyclotomic ring with t = 1 mod m are fully split, hence only
// d = 1 exists.
func (b *Backend) IrreduciblePoly(p, d int) (engine.SlotPolynomial, error) {
	if d != 1 {
		return engine.SlotPolynomial{}, fmt.Errorf("cannot IrreduciblePoly: degree %d does not divide the order of the plaintext modulus (1)", d)
	}
	if p < 2 {
		return engine.SlotPolynomial{}, fmt.Errorf("cannot IrreduciblePoly: invalid modulus p=%d", p)
	}
	return engine.SlotPolynomial{Modulus: uint64(p), Degree: 1}, nil
}

// logQP returns the bit-size of the modulus of the ring of index m with a
// chain of L primes and c columns for the plaintext modulus p^r.
func (b *Backend) logQP(m, L, c, p, r int) (int, error) {

	t, _, err := b.plaintextModulus(m, p, r)
	if err != nil {
		return 0, err
	}

	logQ, logP := b.moduli(L, c, bits.Len64(t))

	return sum(logQ) + sum(logP), nil
}

// moduli returns the bit-sizes of the L primes of the modulus chain and of the
// ceil(L/c) special primes used by key-switching.
func (b *Backend) moduli(L, c, tBits int) (logQ, logP []int) {

	primeBits := min(max(b.cfg.primeBits(), tBits+20), maxModuliSize)

	logQ = make([]int, L)
	logQ[0] = min(max(primeBits, tBits+30), maxModuliSize)
	for i := 1; i < L; i++ {
		logQ[i] = primeBits
	}

	logP = make([]int, (L+c-1)/c)
	for i := range logP {
		logP[i] = min(logQ[0]+6, maxModuliSize)
	}

	return
}

// plaintextModulus returns the BGV plaintext modulus emulating Z_{p^r} for the
// cyclotomic index m, and whether it is a carrier.
func (b *Backend) plaintextModulus(m, p, r int) (t uint64, carrier bool, err error) {

	if p < 2 || !factorization.IsPrime(big.NewInt(int64(p))) {
		return 0, false, fmt.Errorf("p=%d is not prime", p)
	}

	pr, err := power(p, r)
	if err != nil {
		return 0, false, err
	}

	if r == 1 && pr%uint64(m) == 1 && bits.Len64(pr) <= maxCarrierBits {
		return pr, false, nil
	}

	size := carrierSize(pr, b.cfg.carrierHeadroom())

	if size > maxCarrierBits {
		return 0, false, fmt.Errorf("p^r=%d needs a carrier plaintext modulus of %d bits, above the %d-bit limit", pr, size, maxCarrierBits)
	}

	if t, err = carrierPrime(size, uint64(m)); err != nil {
		return 0, false, err
	}

	return t, true, nil
}

// carrierSize returns the bit-size of a carrier plaintext modulus t such that
// 2^headroom products of carrierDegree values in (-pr/2, pr/2] are below t/2.
func carrierSize(pr uint64, headroom int) int {
	return max(minCarrierBits, carrierDegree*(bits.Len64(pr)-1)+headroom+2)
}

// carrierPrime returns the smallest prime t = 1 mod m of at least the given bit-size.
func carrierPrime(size int, m uint64) (uint64, error) {

	k := (uint64(1)<<(size-1) + m - 1) / m

	for q := k*m + 1; bits.Len64(q) <= maxCarrierBits+1; q += m {
		if factorization.IsPrime(new(big.Int).SetUint64(q)) {
			return q, nil
		}
	}

	return 0, fmt.Errorf("no prime of %d bits is 1 mod %d", size, m)
}

// checkGenerators accepts either no generators or the canonical structure
// of Z_m^* for a power-of-two m: 5 of order N/2, optionally followed by -1
// of order 2.
func checkGenerators(base engine.ContextBase) error {

	if len(base.Gens) != len(base.Ords) {
		return fmt.Errorf("len(gens)=%d != len(ords)=%d", len(base.Gens), len(base.Ords))
	}

	want := []struct{ gen, ord int }{{5, base.M / 4}, {base.M - 1, 2}}

	if len(base.Gens) > len(want) {
		return fmt.Errorf("Z_%d^* has at most %d generators", base.M, len(want))
	}

	for i := range base.Gens {
		ord := base.Ords[i]
		if ord < 0 {
			ord = -ord
		}
		if base.Gens[i]%base.M != want[i].gen || ord != want[i].ord {
			return fmt.Errorf("generator %d of order %d does not match the slot structure (%d of order %d)", base.Gens[i], base.Ords[i], want[i].gen, want[i].ord)
		}
	}

	return nil
}

// power returns p^r, failing if it does not fit in maxModuliSize bits.
func power(p, r int) (uint64, error) {

	if r < 1 {
		return 0, fmt.Errorf("r=%d must be positive", r)
	}

	x := uint64(1)
	for i := 0; i < r; i++ {
		hi, lo := bits.Mul64(x, uint64(p))
		if hi != 0 || bits.Len64(lo) > maxModuliSize {
			return 0, fmt.Errorf("p^r=%d^%d overflows %d bits", p, r, maxModuliSize)
		}
		x = lo
	}

	return x, nil
}

func sum(x []int) (s int) {
	for _, v := range x {
		s += v
	}
	return
}
