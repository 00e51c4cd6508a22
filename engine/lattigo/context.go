package lattigo

import (
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"

	"github.com/afhel-go/afhel/engine"
)

// Context is the Lattigo implementation of [engine.Context].
type Context struct {
	backend *Backend
	base    engine.ContextBase
	logN    int

	// t is the BGV plaintext modulus and pr = p^r the emulated one.
	t       uint64
	pr      uint64
	carrier bool

	columns int
	literal bgv.ParametersLiteral
	params  *bgv.Parameters
}

// contextRecord is the text encoding of a [Context].
type contextRecord struct {
	Engine           string         `json:"engine"`
	Levels           int            `json:"levels"`
	Columns          int            `json:"columns"`
	PlaintextModulus uint64         `json:"plaintext_modulus"`
	Carrier          bool           `json:"carrier"`
	Scheme           bgv.Parameters `json:"scheme"`
}

// Base returns the description the context was built from.
func (ctx *Context) Base() engine.ContextBase {
	return ctx.base
}

// Levels returns the number of primes in the modulus chain.
func (ctx *Context) Levels() int {
	if ctx.params == nil {
		return 0
	}
	return ctx.params.QCount()
}

// Parameters returns the BGV parameters, nil before [Context.BuildModChain].
func (ctx *Context) Parameters() *bgv.Parameters {
	return ctx.params
}

// PlaintextModulus returns p^r.
func (ctx *Context) PlaintextModulus() uint64 {
	return ctx.pr
}

// CarrierModulus returns the BGV plaintext modulus and whether it differs from p^r.
func (ctx *Context) CarrierModulus() (t uint64, carrier bool) {
	return ctx.t, ctx.carrier
}

// BuildModChain generates the L primes of the modulus chain and the special
// primes of the key-switching matrices with c columns.
func (ctx *Context) BuildModChain(L, c int) (err error) {

	if ctx.params != nil {
		return fmt.Errorf("cannot BuildModChain: modulus chain already built")
	}

	if L < 1 || c < 1 {
		return fmt.Errorf("cannot BuildModChain: invalid L=%d or c=%d", L, c)
	}

	logQ, logP := ctx.backend.moduli(L, c, bits.Len64(ctx.t))

	literal := bgv.ParametersLiteral{
		LogN:             ctx.logN,
		LogQ:             logQ,
		LogP:             logP,
		PlaintextModulus: ctx.t,
	}

	params, err := bgv.NewParametersFromLiteral(literal)
	if err != nil {
		return fmt.Errorf("cannot BuildModChain: %w", err)
	}

	// Pins the generated primes so that later re-instantiations are identical.
	literal.LogQ, literal.LogP = nil, nil
	literal.Q, literal.P = params.Q(), params.P()

	ctx.literal = literal
	ctx.params = &params
	ctx.columns = c

	return nil
}

// secretParameters returns the parameters with a sparse ternary secret
// distribution of Hamming weight w.
func (ctx *Context) secretParameters(w int) (bgv.Parameters, error) {
	literal := ctx.literal
	literal.Xs = ring.Ternary{H: w}
	return bgv.NewParametersFromLiteral(literal)
}

// FirstFactor returns the linear factor defining the slots.
func (ctx *Context) FirstFactor() (engine.SlotPolynomial, error) {
	return engine.SlotPolynomial{Modulus: uint64(ctx.base.P), Degree: 1}, nil
}

// NewSecretKey returns an empty secret key bound to the context.
func (ctx *Context) NewSecretKey() (engine.SecretKey, error) {
	if ctx.params == nil {
		return nil, fmt.Errorf("cannot NewSecretKey: modulus chain not built")
	}
	return &SecretKey{ctx: ctx}, nil
}

// NewSlotEncoder returns the encoder of the one-dimensional slot vector.
func (ctx *Context) NewSlotEncoder(G engine.SlotPolynomial) (engine.SlotEncoder, error) {

	if ctx.params == nil {
		return nil, fmt.Errorf("cannot NewSlotEncoder: modulus chain not built")
	}

	if G.Degree != 1 || G.Modulus != uint64(ctx.base.P) {
		return nil, fmt.Errorf("cannot NewSlotEncoder: slot polynomial (%s) does not split the ring modulo %d", G, ctx.base.P)
	}

	return &SlotEncoder{
		ctx:   ctx,
		ecd:   bgv.NewEncoder(*ctx.params),
		slots: ctx.params.MaxSlots() >> 1,
	}, nil
}

// MarshalText encodes the modulus chain and the scheme parameters as JSON.
func (ctx *Context) MarshalText() ([]byte, error) {

	if ctx.params == nil {
		return nil, fmt.Errorf("cannot MarshalText: modulus chain not built")
	}

	return json.Marshal(contextRecord{
		Engine:           ctx.backend.Name(),
		Levels:           ctx.params.QCount(),
		Columns:          ctx.columns,
		PlaintextModulus: ctx.pr,
		Carrier:          ctx.carrier,
		Scheme:           *ctx.params,
	})
}

// UnmarshalText populates the context shell from the output of [Context.MarshalText].
func (ctx *Context) UnmarshalText(text []byte) (err error) {

	var rec contextRecord
	if err = json.Unmarshal(text, &rec); err != nil {
		return fmt.Errorf("cannot UnmarshalText: %w", err)
	}

	switch {
	case rec.Engine != ctx.backend.Name():
		return fmt.Errorf("cannot UnmarshalText: context was produced by %q", rec.Engine)
	case rec.Scheme.LogN() != ctx.logN:
		return fmt.Errorf("cannot UnmarshalText: LogN=%d does not match m=%d", rec.Scheme.LogN(), ctx.base.M)
	case rec.Scheme.PlaintextModulus() != ctx.t || rec.PlaintextModulus != ctx.pr || rec.Carrier != ctx.carrier:
		return fmt.Errorf("cannot UnmarshalText: plaintext modulus %d does not match the context base (%s)", rec.Scheme.PlaintextModulus(), ctx.base)
	case rec.Levels != rec.Scheme.QCount() || rec.Columns < 1:
		return fmt.Errorf("cannot UnmarshalText: inconsistent modulus chain (levels=%d, columns=%d)", rec.Levels, rec.Columns)
	}

	params := rec.Scheme

	ctx.literal = bgv.ParametersLiteral{
		LogN:             params.LogN(),
		Q:                params.Q(),
		P:                params.P(),
		Xs:               params.Xs(),
		Xe:               params.Xe(),
		PlaintextModulus: params.PlaintextModulus(),
	}
	ctx.params = &params
	ctx.columns = rec.Columns

	return nil
}

func (ctx *Context) String() string {
	if ctx.params == nil {
		return ctx.base.String()
	}
	return fmt.Sprintf("%s, L=%d, c=%d, t=%d, logQP=%.0f", ctx.base, ctx.params.QCount(), ctx.columns, ctx.t, ctx.params.LogQP())
}
