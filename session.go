package afhel

import (
	"fmt"
	"log"

	"github.com/afhel-go/afhel/dispatch"
	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/env"
	"github.com/afhel-go/afhel/registry"
)

// Config is the configuration of a [Session].
type Config struct {
	// Backend is the engine, the Lattigo BGV backend if nil.
	Backend engine.Backend
	// BitsPerPrime overrides the prime size assumed when deriving L.
	BitsPerPrime int
	// Trace receives a trace of every call, nil disables tracing.
	Trace *log.Logger
}

// Session binds one environment to one ciphertext registry. Operations
// mutate their first handle in place. It is safe for concurrent use.
type Session struct {
	env   *env.Environment
	reg   *registry.Registry[engine.Ciphertext]
	dsp   *dispatch.Dispatcher
	trace *log.Logger
}

// NewSession returns a [Session] without environment.
func NewSession(cfg Config) *Session {
	e := env.New(env.Config{Backend: cfg.Backend, BitsPerPrime: cfg.BitsPerPrime, Trace: cfg.Trace})
	reg := registry.New[engine.Ciphertext]()
	return &Session{
		env:   e,
		reg:   reg,
		dsp:   dispatch.New(e, reg, cfg.Trace),
		trace: cfg.Trace,
	}
}

func (s *Session) tracef(format string, v ...any) {
	if s.trace != nil {
		s.trace.Printf("afhel: "+format, v...)
	}
}

// KeyGen generates a new environment from p. Parameters set to [Auto] are
// derived. Handles of ciphertexts produced under a previous environment stay
// in the registry but are rejected by every operation.
func (s *Session) KeyGen(p CryptoParameters) error {
	return s.env.KeyGen(p)
}

// Parameters returns the resolved parameters of the environment.
func (s *Session) Parameters() (CryptoParameters, error) {
	return s.env.Parameters()
}

// NumSlots returns the number of values a ciphertext holds, 0 before KeyGen.
func (s *Session) NumSlots() int {
	return s.env.NumSlots()
}

// PlaintextModulus returns p^r, 0 before KeyGen.
func (s *Session) PlaintextModulus() int64 {
	return s.env.PlaintextModulus()
}

// KeyID returns the fingerprint of the active key, the zero value before KeyGen.
func (s *Session) KeyID() engine.KeyID {
	return s.env.KeyID()
}

// Encrypt encrypts values, padded with zeros to NumSlots, and returns the
// handle of the new ciphertext.
func (s *Session) Encrypt(values []int64) (Handle, error) {

	ct, err := s.env.Encrypt(values)
	if err != nil {
		return "", err
	}

	h := s.reg.Insert(ct)
	s.tracef("Encrypt({ID%s}%v)", h, values)

	return h, nil
}

// Decrypt returns the NumSlots values encrypted under h.
func (s *Session) Decrypt(h Handle) ([]int64, error) {

	ct, err := s.reg.Get(h)
	if err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	values, err := s.env.Decrypt(ct)
	if err != nil {
		return nil, err
	}

	s.tracef("Decrypt({ID%s}) = %v", h, values)

	return values, nil
}

// Add sets a to a+b, or to a-b if negate is set.
func (s *Session) Add(a, b Handle, negate bool) error {
	return s.dsp.Add(a, b, negate)
}

// Multiply sets a to a*b.
func (s *Session) Multiply(a, b Handle) error {
	return s.dsp.Multiply(a, b)
}

// MultiplyPair sets a to a*b*c.
func (s *Session) MultiplyPair(a, b, c Handle) error {
	return s.dsp.MultiplyPair(a, b, c)
}

// ScalarReduce sets a to a*b summed over partitions of partitionSize slots;
// 0 sums all slots.
func (s *Session) ScalarReduce(a, b Handle, partitionSize int) error {
	return s.dsp.ScalarReduce(a, b, partitionSize)
}

// Square sets a to a^2.
func (s *Session) Square(a Handle) error {
	return s.dsp.Square(a)
}

// Cube sets a to a^3.
func (s *Session) Cube(a Handle) error {
	return s.dsp.Cube(a)
}

// Negate sets a to -a.
func (s *Session) Negate(a Handle) error {
	return s.dsp.Negate(a)
}

// Equals reports whether a and b hold the same ciphertext and, if
// comparePublicKeys is set, were produced under the same key.
func (s *Session) Equals(a, b Handle, comparePublicKeys bool) (bool, error) {
	return s.dsp.Equals(a, b, comparePublicKeys)
}

// Rotate cyclically moves the slot at index i of a to index i+k.
func (s *Session) Rotate(a Handle, k int) error {
	return s.dsp.Rotate(a, k)
}

// Shift moves the slot at index i of a to index i+k, filling with zeros.
func (s *Session) Shift(a Handle, k int) error {
	return s.dsp.Shift(a, k)
}

// SaveEnvironment writes the environment to the file at path.
// The error wraps [ErrIO] or [ErrSerialization] on failure.
func (s *Session) SaveEnvironment(path string) error {
	s.tracef("SaveEnvironment(%s)", path)
	return s.env.Save(path)
}

// RestoreEnvironment replaces the environment with the one stored in the
// file at path. Handles created under the same key remain usable.
func (s *Session) RestoreEnvironment(path string) error {
	s.tracef("RestoreEnvironment(%s)", path)
	return s.env.Restore(path)
}

// Duplicate copies the ciphertext of h under a new handle.
func (s *Session) Duplicate(h Handle) (Handle, error) {
	return s.reg.Duplicate(h)
}

// Store copies ct into the registry and returns its handle.
func (s *Session) Store(ct engine.Ciphertext) (Handle, error) {
	if ct == nil {
		return "", fmt.Errorf("cannot Store: nil ciphertext")
	}
	return s.reg.Insert(ct.CopyNew()), nil
}

// Retrieve returns a copy of the ciphertext of h.
func (s *Session) Retrieve(h Handle) (engine.Ciphertext, error) {
	return s.reg.Retrieve(h)
}

// Replace overwrites the ciphertext of h with a copy of ct. It fails with
// [ErrUnknownHandle] if h is absent.
func (s *Session) Replace(h Handle, ct engine.Ciphertext) error {
	if ct == nil {
		return fmt.Errorf("cannot Replace: nil ciphertext")
	}
	return s.reg.Replace(h, ct.CopyNew())
}

// Erase removes h. Erasing an absent handle is a no-op.
func (s *Session) Erase(h Handle) {
	s.reg.Erase(h)
}

// Handles returns the handles in use, sorted.
func (s *Session) Handles() []Handle {
	return s.reg.Handles()
}
