package params

import (
	"fmt"
	"log"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/tuneinsight/lattigo/v6/utils/factorization"

	"github.com/afhel-go/afhel/engine"
)

const (
	// DefaultBitsPerPrime is the bit-size of a modulus-chain prime assumed
	// by the L heuristic.
	DefaultBitsPerPrime = 44

	precision = 128
	maxLogPR  = 60
)

// Config is the configuration of a [Resolver].
type Config struct {
	// BitsPerPrime overrides [DefaultBitsPerPrime] if positive.
	BitsPerPrime int

	// Trace receives the derived values, nil disables tracing.
	Trace *log.Logger
}

// Resolver fills in the omitted values of a [CryptoParameters] and validates
// the completed set.
type Resolver struct {
	backend      engine.Backend
	bitsPerPrime int
	trace        *log.Logger
}

// NewResolver returns a [Resolver] delegating the search of the cyclotomic
// index to backend.
func NewResolver(backend engine.Backend, cfg Config) *Resolver {

	bitsPerPrime := cfg.BitsPerPrime
	if bitsPerPrime <= 0 {
		bitsPerPrime = DefaultBitsPerPrime
	}

	return &Resolver{
		backend:      backend,
		bitsPerPrime: bitsPerPrime,
		trace:        cfg.Trace,
	}
}

// BitsPerPrime returns the prime bit-size used by the L heuristic.
func (r *Resolver) BitsPerPrime() int {
	return r.bitsPerPrime
}

// Resolve returns a copy of p with L and M derived when set to [Auto]. The
// cyclotomic index, given or derived, must support L levels at security
// level p.Sec. Every error wraps [ErrInvalidParameters].
func (r *Resolver) Resolve(p CryptoParameters) (CryptoParameters, error) {

	p = p.CopyNew()

	if err := validate(p); err != nil {
		return p, fmt.Errorf("cannot Resolve: %w: %w", ErrInvalidParameters, err)
	}

	if p.L == Auto {
		p.L = HeuristicL(p.Rounds, p.P, p.R, r.bitsPerPrime)
		r.tracef("calculated L: %d", p.L)
	}

	if p.M == Auto {
		m, err := r.backend.FindSuitableM(p.Sec, p.L, p.C, p.P, p.R, p.D, p.S)
		if err != nil {
			return p, fmt.Errorf("cannot Resolve: %w: %w", ErrInvalidParameters, err)
		}
		p.M = m
		r.tracef("calculated m: %d", p.M)
	}

	if err := r.backend.CheckIndex(p.M, p.P, p.R); err != nil {
		return p, fmt.Errorf("cannot Resolve: %w: %w", ErrInvalidParameters, err)
	}

	if err := r.backend.CheckSecurity(p.Sec, p.M, p.L, p.C, p.P, p.R); err != nil {
		return p, fmt.Errorf("cannot Resolve: %w: %w", ErrInvalidParameters, err)
	}

	return p, nil
}

func (r *Resolver) tracef(format string, v ...any) {
	if r.trace != nil {
		r.trace.Printf("params: "+format, v...)
	}
}

// HeuristicL returns the default length of the modulus chain for the given
// number of rounds, plaintext prime p, Hensel exponent r and prime bit-size:
//
//	L = 3*rounds + 3 [+ rounds*ceil(2*ln(p)*r*3 / (bitsPerPrime*ln(2))) + 1]
//
// where the bracketed term applies if p > 2 or r > 1.
func HeuristicL(rounds, p, r, bitsPerPrime int) (L int) {

	L = 3*rounds + 3

	if p > 2 || r > 1 {

		lnP := bigfloat.Log(new(big.Float).SetPrec(precision).SetInt64(int64(p)))
		ln2 := bigfloat.Log(new(big.Float).SetPrec(precision).SetInt64(2))

		// log2(p) * 6r / bitsPerPrime
		x := new(big.Float).SetPrec(precision).Quo(lnP, ln2)
		x.Mul(x, new(big.Float).SetInt64(int64(6*r)))
		x.Quo(x, new(big.Float).SetInt64(int64(bitsPerPrime)))

		L += rounds*ceil(x) + 1
	}

	return
}

// ceil returns the smallest integer not smaller than the non-negative x.
func ceil(x *big.Float) int {
	i, acc := x.Int64()
	if acc == big.Below {
		i++
	}
	return int(i)
}

func validate(p CryptoParameters) error {

	switch {
	case p.P < 2 || !factorization.IsPrime(big.NewInt(int64(p.P))):
		return fmt.Errorf("p=%d is not prime", p.P)
	case p.R < 1:
		return fmt.Errorf("r=%d must be positive", p.R)
	case new(big.Int).Exp(big.NewInt(int64(p.P)), big.NewInt(int64(p.R)), nil).BitLen() > maxLogPR:
		return fmt.Errorf("p^r=%d^%d exceeds %d bits", p.P, p.R, maxLogPR)
	case p.W < 1:
		return fmt.Errorf("w=%d must be positive", p.W)
	case p.D < 0:
		return fmt.Errorf("d=%d must be non-negative", p.D)
	case p.C < 1:
		return fmt.Errorf("c=%d must be positive", p.C)
	case p.Sec < 1:
		return fmt.Errorf("sec=%d must be positive", p.Sec)
	case p.L != Auto && p.L < 1:
		return fmt.Errorf("L=%d must be positive or Auto", p.L)
	case p.M != Auto && p.M < 1:
		return fmt.Errorf("m=%d must be positive or Auto", p.M)
	case p.Rounds < 1:
		return fmt.Errorf("R=%d must be positive", p.Rounds)
	case p.S < 0:
		return fmt.Errorf("s=%d must be non-negative", p.S)
	case len(p.Gens) != len(p.Ords):
		return fmt.Errorf("len(gens)=%d != len(ords)=%d", len(p.Gens), len(p.Ords))
	}

	return nil
}
