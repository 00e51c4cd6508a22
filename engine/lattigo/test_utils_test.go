package lattigo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/lattigo/v6/utils/sampling"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/utils"
)

// testSetup is a context description used by the test suite.
type testSetup struct {
	Base engine.ContextBase
	L    int
	C    int
	W    int
}

var testSetups = []testSetup{
	// native plaintext modulus t = p
	{Base: engine.ContextBase{M: 1 << 13, P: 65537, R: 1}, L: 3, C: 2, W: 64},
	// carrier plaintext modulus for Z_2
	{Base: engine.ContextBase{M: 1 << 13, P: 2, R: 1}, L: 3, C: 2, W: 64},
	// carrier plaintext modulus for Z_9
	{Base: engine.ContextBase{M: 1 << 13, P: 3, R: 2, Gens: []int{5}, Ords: []int{1 << 11}}, L: 3, C: 3, W: 128},
	// 40-bit carrier plaintext modulus for Z_2039
	{Base: engine.ContextBase{M: 1 << 13, P: 2039, R: 1}, L: 4, C: 2, W: 64},
}

type testContext struct {
	ctx *Context
	sk  *SecretKey
	pv  *PublicView
	se  *SlotEncoder
}

func newTestContext(setup testSetup) (tc *testContext, err error) {

	backend := NewBackend(Config{})

	ectx, err := backend.NewContext(setup.Base)
	if err != nil {
		return nil, err
	}

	if err = ectx.BuildModChain(setup.L, setup.C); err != nil {
		return nil, err
	}

	G, err := ectx.FirstFactor()
	if err != nil {
		return nil, err
	}

	esk, err := ectx.NewSecretKey()
	if err != nil {
		return nil, err
	}

	if err = esk.GenSecKey(setup.W); err != nil {
		return nil, err
	}

	if err = esk.AddRotationKeys(); err != nil {
		return nil, err
	}

	ese, err := ectx.NewSlotEncoder(G)
	if err != nil {
		return nil, err
	}

	return &testContext{
		ctx: ectx.(*Context),
		sk:  esk.(*SecretKey),
		pv:  esk.PublicView().(*PublicView),
		se:  ese.(*SlotEncoder),
	}, nil
}

func (tc *testContext) String() string {
	return fmt.Sprintf("m=%d/p=%d/r=%d/L=%d/slots=%d", tc.ctx.base.M, tc.ctx.base.P, tc.ctx.base.R, tc.ctx.Levels(), tc.se.Size())
}

func name(op string, tc *testContext) string {
	return fmt.Sprintf("%s/%s", op, tc)
}

// newTestVector returns a vector of n values uniformly distributed in [0, p^r).
func (tc *testContext) newTestVector(n int) []int64 {
	values := make([]int64, n)
	for i := range values {
		values[i] = int64(sampling.RandUint64() % tc.ctx.pr)
	}
	return values
}

// newExtremeVector returns a vector of n values cycling through the
// representatives of p^r with the largest magnitude.
func (tc *testContext) newExtremeVector(n, offset int) []int64 {
	pr := int64(tc.ctx.pr)
	pattern := []int64{pr - 1, pr - 2, pr / 2, pr/2 + 1, -1, 1 - pr}
	values := make([]int64, n)
	for i := range values {
		values[i] = pattern[(i+offset)%len(pattern)]
	}
	return values
}

func (tc *testContext) encrypt(t *testing.T, values []int64) engine.Ciphertext {
	ct, err := tc.se.Encrypt(tc.pv, values)
	require.NoError(t, err)
	return ct
}

func (tc *testContext) verify(t *testing.T, ct engine.Ciphertext, want []int64) {
	have, err := tc.se.Decrypt(tc.sk, ct)
	require.NoError(t, err)
	require.Len(t, have, tc.se.Size())
	require.Equal(t, want, have)
}

// apply returns f applied slot-wise modulo p^r.
func (tc *testContext) apply(f func(x ...int64) int64, xs ...[]int64) []int64 {
	pr := int64(tc.ctx.pr)
	out := make([]int64, len(xs[0]))
	args := make([]int64, len(xs))
	for i := range out {
		for j := range xs {
			args[j] = xs[j][i]
		}
		out[i] = ((f(args...) % pr) + pr) % pr
	}
	return out
}

// rotate returns s with the element at index i moved to index i+k mod len(s).
func rotate(s []int64, k int) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[utils.Mod(i+k, len(s))] = v
	}
	return out
}

// shift returns s with the element at index i moved to index i+k when it
// exists, and zeros elsewhere.
func shift(s []int64, k int) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		if j := i + k; j >= 0 && j < len(s) {
			out[j] = v
		}
	}
	return out
}
