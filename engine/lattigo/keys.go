package lattigo

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/zeebo/blake3"

	"github.com/afhel-go/afhel/engine"
)

const keyIDDomain = "afhel/lattigo/bgv key fingerprint v1"

// SecretKey is the Lattigo implementation of [engine.SecretKey]. It owns the
// secret polynomial together with the key material derived from it: the
// public encryption key, the relinearization key and the rotation keys.
type SecretKey struct {
	ctx *Context

	kgen *rlwe.KeyGenerator
	sk   *rlwe.SecretKey
	pk   *rlwe.PublicKey
	rlk  *rlwe.RelinearizationKey
	gks  []*rlwe.GaloisKey

	enc  *rlwe.Encryptor
	dec  *rlwe.Decryptor
	eval *bgv.Evaluator

	id engine.KeyID
}

// GenSecKey samples a ternary secret of Hamming weight w.
func (key *SecretKey) GenSecKey(w int) (err error) {

	if w < 1 || w > 1<<key.ctx.logN {
		return fmt.Errorf("cannot GenSecKey: Hamming weight w=%d not in [1, %d]", w, 1<<key.ctx.logN)
	}

	params, err := key.ctx.secretParameters(w)
	if err != nil {
		return fmt.Errorf("cannot GenSecKey: %w", err)
	}

	key.sk = rlwe.NewKeyGenerator(params).GenSecretKeyNew()

	return key.derive()
}

// derive regenerates every public object from the secret polynomial.
func (key *SecretKey) derive() (err error) {

	params := *key.ctx.params

	key.kgen = rlwe.NewKeyGenerator(params)

	key.pk = key.kgen.GenPublicKeyNew(key.sk)
	key.rlk = key.kgen.GenRelinearizationKeyNew(key.sk)
	key.gks = nil

	key.enc = rlwe.NewEncryptor(params, key.pk)
	key.dec = rlwe.NewDecryptor(params, key.sk)
	key.eval = bgv.NewEvaluator(params, rlwe.NewMemEvaluationKeySet(key.rlk))

	key.id, err = fingerprint(params, key.sk)
	return
}

// AddRotationKeys generates the Galois keys of the column rotations by 2^i,
// 0 <= 2^i < N/2, from which every rotation of the slot vector is composed.
func (key *SecretKey) AddRotationKeys() error {

	if key.sk == nil {
		return fmt.Errorf("cannot AddRotationKeys: secret key not generated")
	}

	params := *key.ctx.params

	steps := []int{}
	for k := 1; k < params.MaxSlots()>>1; k <<= 1 {
		steps = append(steps, k)
	}

	key.gks = key.kgen.GenGaloisKeysNew(params.GaloisElements(steps), key.sk)
	key.eval = key.eval.WithKey(rlwe.NewMemEvaluationKeySet(key.rlk, key.gks...))

	return nil
}

// PublicView returns the public capability of the key.
func (key *SecretKey) PublicView() engine.PublicView {
	return &PublicView{key: key}
}

// KeyID returns the fingerprint of the key.
func (key *SecretKey) KeyID() engine.KeyID {
	return key.id
}

// MarshalText returns the base64 encoding of the secret polynomial.
func (key *SecretKey) MarshalText() ([]byte, error) {

	if key.sk == nil {
		return nil, fmt.Errorf("cannot MarshalText: secret key not generated")
	}

	data, err := key.sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("cannot MarshalText: %w", err)
	}

	text := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(text, data)
	return text, nil
}

// UnmarshalText reads the secret polynomial and re-derives the public key
// and the relinearization key. Rotation keys must be re-added.
func (key *SecretKey) UnmarshalText(text []byte) (err error) {

	data := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(data, text)
	if err != nil {
		return fmt.Errorf("cannot UnmarshalText: %w", err)
	}

	sk := rlwe.NewSecretKey(*key.ctx.params)
	if err = sk.UnmarshalBinary(data[:n]); err != nil {
		return fmt.Errorf("cannot UnmarshalText: %w", err)
	}

	if sk.Value.Q.N() != 1<<key.ctx.logN || sk.Value.Q.Level() != key.ctx.params.MaxLevelQ() {
		return fmt.Errorf("cannot UnmarshalText: secret key does not belong to the context")
	}

	key.sk = sk

	return key.derive()
}

// fingerprint hashes the ring and moduli of the parameters together with the
// secret polynomial.
func fingerprint(params bgv.Parameters, sk *rlwe.SecretKey) (id engine.KeyID, err error) {

	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return id, err
	}

	hasher := blake3.New()
	buf := new(bytes.Buffer)

	buf.WriteString(keyIDDomain)
	binary.Write(buf, binary.BigEndian, int64(params.LogN()))
	binary.Write(buf, binary.BigEndian, params.PlaintextModulus())
	binary.Write(buf, binary.BigEndian, params.Q())
	binary.Write(buf, binary.BigEndian, params.P())
	buf.Write(skBytes)

	hasher.Write(buf.Bytes())
	copy(id[:], hasher.Sum(nil))

	return
}

// PublicView is the public capability of a [SecretKey]: it exposes
// encryption-side evaluation only.
type PublicView struct {
	key *SecretKey
}

// KeyID returns the fingerprint of the underlying key.
func (pv *PublicView) KeyID() engine.KeyID {
	return pv.key.id
}

// operand type-checks ct and checks that it was produced under this key.
func (pv *PublicView) operand(ct engine.Ciphertext) (*Ciphertext, error) {
	c, ok := ct.(*Ciphertext)
	if !ok || c == nil || c.Ciphertext == nil {
		return nil, fmt.Errorf("invalid ciphertext type %T", ct)
	}
	if c.id != pv.key.id {
		return nil, fmt.Errorf("ciphertext was produced under key %s, not %s", c.id, pv.key.id)
	}
	return c, nil
}

func (pv *PublicView) operands(cts ...engine.Ciphertext) (out []*Ciphertext, err error) {
	out = make([]*Ciphertext, len(cts))
	for i := range cts {
		if out[i], err = pv.operand(cts[i]); err != nil {
			return nil, err
		}
	}
	return
}

// Add returns a+b, or a-b if negate is set.
func (pv *PublicView) Add(a, b engine.Ciphertext, negate bool) (engine.Ciphertext, error) {

	ops, err := pv.operands(a, b)
	if err != nil {
		return nil, fmt.Errorf("cannot Add: %w", err)
	}

	out := ops[0].copyNew()

	if negate {
		err = pv.key.eval.Sub(out.Ciphertext, ops[1].Ciphertext, out.Ciphertext)
	} else {
		err = pv.key.eval.Add(out.Ciphertext, ops[1].Ciphertext, out.Ciphertext)
	}

	if err != nil {
		return nil, fmt.Errorf("cannot Add: %w", err)
	}

	return out, nil
}

// Multiply returns the relinearized and rescaled product a*b. It consumes one level.
func (pv *PublicView) Multiply(a, b engine.Ciphertext) (engine.Ciphertext, error) {

	ops, err := pv.operands(a, b)
	if err != nil {
		return nil, fmt.Errorf("cannot Multiply: %w", err)
	}

	out, err := pv.mul(ops[0], ops[1])
	if err != nil {
		return nil, fmt.Errorf("cannot Multiply: %w", err)
	}

	return out, nil
}

func (pv *PublicView) mul(a, b *Ciphertext) (*Ciphertext, error) {

	eval := pv.key.eval

	level := min(a.Level(), b.Level())
	if level == 0 {
		return nil, fmt.Errorf("no level left to rescale the product")
	}

	out := bgv.NewCiphertext(*pv.key.ctx.params, 1, level)

	if err := eval.MulRelin(a.Ciphertext, b.Ciphertext, out); err != nil {
		return nil, err
	}

	if err := eval.Rescale(out, out); err != nil {
		return nil, err
	}

	return &Ciphertext{Ciphertext: out, id: pv.key.id}, nil
}

// MultiplyBy2 returns a*b*c. It consumes two levels.
func (pv *PublicView) MultiplyBy2(a, b, c engine.Ciphertext) (engine.Ciphertext, error) {

	ops, err := pv.operands(a, b, c)
	if err != nil {
		return nil, fmt.Errorf("cannot MultiplyBy2: %w", err)
	}

	bc, err := pv.mul(ops[1], ops[2])
	if err != nil {
		return nil, fmt.Errorf("cannot MultiplyBy2: %w", err)
	}

	out, err := pv.mul(ops[0], bc)
	if err != nil {
		return nil, fmt.Errorf("cannot MultiplyBy2: %w", err)
	}

	return out, nil
}

// Square returns a^2. It consumes one level.
func (pv *PublicView) Square(a engine.Ciphertext) (engine.Ciphertext, error) {

	op, err := pv.operand(a)
	if err != nil {
		return nil, fmt.Errorf("cannot Square: %w", err)
	}

	out, err := pv.mul(op, op)
	if err != nil {
		return nil, fmt.Errorf("cannot Square: %w", err)
	}

	return out, nil
}

// Cube returns a^3. It consumes two levels.
func (pv *PublicView) Cube(a engine.Ciphertext) (engine.Ciphertext, error) {

	op, err := pv.operand(a)
	if err != nil {
		return nil, fmt.Errorf("cannot Cube: %w", err)
	}

	sq, err := pv.mul(op, op)
	if err != nil {
		return nil, fmt.Errorf("cannot Cube: %w", err)
	}

	out, err := pv.mul(op, sq)
	if err != nil {
		return nil, fmt.Errorf("cannot Cube: %w", err)
	}

	return out, nil
}

// Negate returns -a.
func (pv *PublicView) Negate(a engine.Ciphertext) (engine.Ciphertext, error) {

	op, err := pv.operand(a)
	if err != nil {
		return nil, fmt.Errorf("cannot Negate: %w", err)
	}

	out := op.copyNew()
	if err = pv.key.eval.Mul(out.Ciphertext, int64(-1), out.Ciphertext); err != nil {
		return nil, fmt.Errorf("cannot Negate: %w", err)
	}

	return out, nil
}

// Equal reports whether a and b hold identical ciphertext polynomials and
// metadata and, if comparePublicKeys is set, the same key fingerprint.
func (pv *PublicView) Equal(a, b engine.Ciphertext, comparePublicKeys bool) (bool, error) {

	ca, ok := a.(*Ciphertext)
	if !ok || ca == nil {
		return false, fmt.Errorf("cannot Equal: invalid ciphertext type %T", a)
	}

	cb, ok := b.(*Ciphertext)
	if !ok || cb == nil {
		return false, fmt.Errorf("cannot Equal: invalid ciphertext type %T", b)
	}

	if comparePublicKeys && ca.id != cb.id {
		return false, nil
	}

	if ca.Degree() != cb.Degree() || ca.Level() != cb.Level() {
		return false, nil
	}

	return ca.Ciphertext.Equal(cb.Ciphertext), nil
}

// Ciphertext is a BGV ciphertext tagged with the fingerprint of its key.
type Ciphertext struct {
	*rlwe.Ciphertext
	id engine.KeyID
}

// CopyNew returns a deep copy of the ciphertext.
func (ct *Ciphertext) CopyNew() engine.Ciphertext {
	return ct.copyNew()
}

func (ct *Ciphertext) copyNew() *Ciphertext {
	return &Ciphertext{Ciphertext: ct.Ciphertext.CopyNew(), id: ct.id}
}

// KeyID returns the fingerprint of the key the ciphertext was produced under.
func (ct *Ciphertext) KeyID() engine.KeyID {
	return ct.id
}
