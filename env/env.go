// Package env implements the cryptographic environment: the context, key
// material and slot encoder from which ciphertexts are produced and consumed.
package env

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/engine/lattigo"
	"github.com/afhel-go/afhel/params"
	"github.com/afhel-go/afhel/utils"
)

var (
	// ErrEnvironment is returned when the generation of an environment fails.
	ErrEnvironment = errors.New("environment generation failed")
	// ErrNoEnvironment is returned by operations requiring an active environment.
	ErrNoEnvironment = errors.New("no active environment")
	// ErrCapacity is returned when a plaintext vector exceeds the number of slots.
	ErrCapacity = errors.New("plaintext vector exceeds slot capacity")
	// ErrForeignCiphertext is returned when a ciphertext was not produced
	// under the key of the active environment.
	ErrForeignCiphertext = errors.New("ciphertext does not belong to the active environment")
	// ErrIO is returned when reading or writing a persisted environment fails.
	ErrIO = errors.New("environment I/O failed")
	// ErrSerialization is returned when a persisted environment cannot be
	// encoded or decoded.
	ErrSerialization = errors.New("environment serialization failed")
)

// Config is the configuration of an [Environment].
type Config struct {
	// Backend is the engine, the Lattigo BGV backend if nil.
	Backend engine.Backend
	// BitsPerPrime is passed to the [params.Resolver].
	BitsPerPrime int
	// Trace receives a trace of the environment lifecycle, nil disables tracing.
	Trace *log.Logger
}

// Environment owns at most one active state: a context, a secret key with
// its public view, a slot polynomial and a slot encoder. The state is
// replaced as a whole by [Environment.KeyGen] and [Environment.Restore],
// never partially. It is safe for concurrent use.
type Environment struct {
	backend  engine.Backend
	resolver *params.Resolver
	trace    *log.Logger

	mu    sync.RWMutex
	state *state
}

// state is an immutable environment. Calls into its engine objects are
// serialized by mu.
type state struct {
	params params.CryptoParameters

	ctx engine.Context
	sk  engine.SecretKey
	pk  engine.PublicView
	G   engine.SlotPolynomial
	ecd engine.SlotEncoder

	slots   int
	modulus int64
	id      engine.KeyID

	mu sync.Mutex
}

// New returns an [Environment] without active state.
func New(cfg Config) *Environment {

	backend := cfg.Backend
	if backend == nil {
		backend = lattigo.NewBackend(lattigo.Config{})
	}

	return &Environment{
		backend:  backend,
		resolver: params.NewResolver(backend, params.Config{BitsPerPrime: cfg.BitsPerPrime, Trace: cfg.Trace}),
		trace:    cfg.Trace,
	}
}

func (e *Environment) tracef(format string, v ...any) {
	if e.trace != nil {
		e.trace.Printf("env: "+format, v...)
	}
}

func (e *Environment) current() (*state, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return nil, ErrNoEnvironment
	}
	return e.state, nil
}

func (e *Environment) swap(st *state) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
}

// KeyGen resolves p, generates a new environment from it and makes it the
// active one. On failure the previous environment stays active and the error
// wraps [params.ErrInvalidParameters] or [ErrEnvironment].
func (e *Environment) KeyGen(p params.CryptoParameters) (err error) {

	e.tracef("KeyGen START")

	resolved, err := e.resolver.Resolve(p)
	if err != nil {
		return fmt.Errorf("cannot KeyGen: %w", err)
	}

	st, err := e.generate(resolved)
	if err != nil {
		return fmt.Errorf("cannot KeyGen: %w: %w", ErrEnvironment, err)
	}

	e.swap(st)

	e.tracef("KeyGen COMPLETED (key %s, %d slots)", st.id, st.slots)

	return nil
}

// generate builds a complete state from resolved parameters.
func (e *Environment) generate(p params.CryptoParameters) (st *state, err error) {

	defer func() {
		if r := recover(); r != nil {
			st, err = nil, fmt.Errorf("engine panic: %v", r)
		}
	}()

	ctx, err := e.backend.NewContext(engine.ContextBase{M: p.M, P: p.P, R: p.R, Gens: p.Gens, Ords: p.Ords})
	if err != nil {
		return nil, err
	}

	if err = ctx.BuildModChain(p.L, p.C); err != nil {
		return nil, err
	}

	e.tracef("created context: %s", p)

	var G engine.SlotPolynomial
	if p.D == 0 {
		G, err = ctx.FirstFactor()
	} else {
		G, err = e.backend.IrreduciblePoly(p.P, p.D)
	}
	if err != nil {
		return nil, err
	}

	sk, err := ctx.NewSecretKey()
	if err != nil {
		return nil, err
	}

	if err = sk.GenSecKey(p.W); err != nil {
		return nil, err
	}

	e.tracef("created public/private key pair")

	return e.complete(p, ctx, sk, G)
}

// complete derives the rotation keys and the slot encoder of a state whose
// context and secret key are set.
func (e *Environment) complete(p params.CryptoParameters, ctx engine.Context, sk engine.SecretKey, G engine.SlotPolynomial) (*state, error) {

	if err := sk.AddRotationKeys(); err != nil {
		return nil, err
	}

	ecd, err := ctx.NewSlotEncoder(G)
	if err != nil {
		return nil, err
	}

	if ecd.Size() < 1 {
		return nil, fmt.Errorf("slot encoder has no slots")
	}

	if p.S > 0 && ecd.Size() < p.S {
		return nil, fmt.Errorf("%d slots, %d requested", ecd.Size(), p.S)
	}

	modulus := new(big.Int).Exp(big.NewInt(int64(p.P)), big.NewInt(int64(p.R)), nil)

	return &state{
		params:  p,
		ctx:     ctx,
		sk:      sk,
		pk:      sk.PublicView(),
		G:       G,
		ecd:     ecd,
		slots:   ecd.Size(),
		modulus: modulus.Int64(),
		id:      sk.KeyID(),
	}, nil
}

// Encrypt encrypts values, padded with zeros to [Environment.NumSlots],
// under the active key. Values are reduced modulo p^r. More values than
// slots is an error wrapping [ErrCapacity].
func (e *Environment) Encrypt(values []int64) (engine.Ciphertext, error) {

	st, err := e.current()
	if err != nil {
		return nil, fmt.Errorf("cannot Encrypt: %w", err)
	}

	if len(values) > st.slots {
		return nil, fmt.Errorf("cannot Encrypt: %w: %d values for %d slots", ErrCapacity, len(values), st.slots)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	ct, err := st.ecd.Encrypt(st.pk, utils.PadSlice(values, st.slots))
	if err != nil {
		return nil, fmt.Errorf("cannot Encrypt: %w", err)
	}

	return ct, nil
}

// Decrypt returns the [Environment.NumSlots] values, in [0, p^r), encrypted by ct.
func (e *Environment) Decrypt(ct engine.Ciphertext) ([]int64, error) {

	st, err := e.current()
	if err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	if err = st.check(ct); err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	values, err := st.ecd.Decrypt(st.sk, ct)
	if err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	return values, nil
}

// NumSlots returns the number of slots of the active environment, 0 if there is none.
func (e *Environment) NumSlots() int {
	st, err := e.current()
	if err != nil {
		return 0
	}
	return st.slots
}

// Parameters returns the resolved parameters of the active environment.
func (e *Environment) Parameters() (params.CryptoParameters, error) {
	st, err := e.current()
	if err != nil {
		return params.CryptoParameters{}, err
	}
	return st.params.CopyNew(), nil
}

// PlaintextModulus returns p^r, 0 if there is no active environment.
func (e *Environment) PlaintextModulus() int64 {
	st, err := e.current()
	if err != nil {
		return 0
	}
	return st.modulus
}

// KeyID returns the fingerprint of the active key, the zero value if there is none.
func (e *Environment) KeyID() engine.KeyID {
	st, err := e.current()
	if err != nil {
		return engine.KeyID{}
	}
	return st.id
}

// Levels returns the length of the modulus chain of the active environment.
func (e *Environment) Levels() int {
	st, err := e.current()
	if err != nil {
		return 0
	}
	return st.ctx.Levels()
}

func (st *state) check(cts ...engine.Ciphertext) error {
	for _, ct := range cts {
		if ct == nil {
			return fmt.Errorf("%w: nil ciphertext", ErrForeignCiphertext)
		}
		if ct.KeyID() != st.id {
			return fmt.Errorf("%w: key %s, active key %s", ErrForeignCiphertext, ct.KeyID(), st.id)
		}
	}
	return nil
}
