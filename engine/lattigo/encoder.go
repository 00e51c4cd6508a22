package lattigo

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/utils"
)

// SlotEncoder is the Lattigo implementation of [engine.SlotEncoder].
type SlotEncoder struct {
	ctx   *Context
	ecd   *bgv.Encoder
	slots int
}

// Size returns the number of slots, N/2.
func (se *SlotEncoder) Size() int {
	return se.slots
}

// Encrypt reduces the values modulo p^r, pads them with zeros to Size()
// and encrypts them under pk. Each value is encoded with its representative
// in (-p^r/2, p^r/2].
func (se *SlotEncoder) Encrypt(pk engine.PublicView, values []int64) (engine.Ciphertext, error) {

	pv, ok := pk.(*PublicView)
	if !ok || pv == nil {
		return nil, fmt.Errorf("cannot Encrypt: invalid public view type %T", pk)
	}

	if len(values) > se.slots {
		return nil, fmt.Errorf("cannot Encrypt: %d values exceed the %d slots", len(values), se.slots)
	}

	params := *se.ctx.params
	t, pr := int64(se.ctx.t), se.ctx.pr

	coeffs := make([]uint64, params.MaxSlots())
	for i, v := range utils.ReduceSlice(values, int64(pr)) {
		c := uint64(utils.Mod(utils.CenteredLift(uint64(v), pr), t))
		coeffs[i] = c
		coeffs[i+se.slots] = c
	}

	pt := bgv.NewPlaintext(params, params.MaxLevel())
	if err := se.ecd.Encode(coeffs, pt); err != nil {
		return nil, fmt.Errorf("cannot Encrypt: %w", err)
	}

	ct, err := pv.key.enc.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("cannot Encrypt: %w", err)
	}

	return &Ciphertext{Ciphertext: ct, id: pv.key.id}, nil
}

// Decrypt returns the Size() values of the first row of the slot matrix,
// reduced into [0, p^r).
func (se *SlotEncoder) Decrypt(sk engine.SecretKey, ct engine.Ciphertext) ([]int64, error) {

	key, ok := sk.(*SecretKey)
	if !ok || key == nil || key.dec == nil {
		return nil, fmt.Errorf("cannot Decrypt: invalid secret key type %T", sk)
	}

	op, err := (&PublicView{key: key}).operand(ct)
	if err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	coeffs := make([]uint64, se.ctx.params.MaxSlots())
	if err = se.ecd.Decode(key.dec.DecryptNew(op.Ciphertext), coeffs); err != nil {
		return nil, fmt.Errorf("cannot Decrypt: %w", err)
	}

	t, pr := se.ctx.t, int64(se.ctx.pr)

	values := make([]int64, se.slots)
	for i := range values {
		values[i] = utils.Mod(utils.CenteredLift(coeffs[i], t), pr)
	}

	return values, nil
}

// Rotate moves the slot at index i to index i+k mod Size().
func (se *SlotEncoder) Rotate(pk engine.PublicView, ct engine.Ciphertext, k int) (engine.Ciphertext, error) {

	pv, op, err := se.operand(pk, ct)
	if err != nil {
		return nil, fmt.Errorf("cannot Rotate: %w", err)
	}

	out, err := se.rotate(pv, op, k)
	if err != nil {
		return nil, fmt.Errorf("cannot Rotate: %w", err)
	}

	return out, nil
}

// Shift moves the slot at index i to index i+k when 0 <= i+k < Size() and
// sets the vacated slots to zero. A non-zero shift consumes one level if any
// is left.
func (se *SlotEncoder) Shift(pk engine.PublicView, ct engine.Ciphertext, k int) (engine.Ciphertext, error) {

	pv, op, err := se.operand(pk, ct)
	if err != nil {
		return nil, fmt.Errorf("cannot Shift: %w", err)
	}

	if k == 0 {
		return op.copyNew(), nil
	}

	rotated := op
	if k%se.slots != 0 {
		if rotated, err = se.rotate(pv, op, k); err != nil {
			return nil, fmt.Errorf("cannot Shift: %w", err)
		}
	}

	mask := make([]uint64, se.ctx.params.MaxSlots())
	for i := 0; i < se.slots; i++ {
		if j := i - k; j >= 0 && j < se.slots {
			mask[i] = 1
			mask[i+se.slots] = 1
		}
	}

	params := *se.ctx.params
	eval := pv.key.eval

	out := bgv.NewCiphertext(params, 1, rotated.Level())
	if err = eval.Mul(rotated.Ciphertext, mask, out); err != nil {
		return nil, fmt.Errorf("cannot Shift: %w", err)
	}

	if out.Level() > 0 {
		if err = eval.Rescale(out, out); err != nil {
			return nil, fmt.Errorf("cannot Shift: %w", err)
		}
	}

	return &Ciphertext{Ciphertext: out, id: pv.key.id}, nil
}

// TotalSums sums the slots within consecutive partitions of partitionSize
// slots, after which slot j*partitionSize holds the sum of partition j.
// If partitionSize <= 0 or partitionSize == Size(), every slot holds the
// sum of all slots.
func (se *SlotEncoder) TotalSums(pk engine.PublicView, ct engine.Ciphertext, partitionSize int) (engine.Ciphertext, error) {

	pv, op, err := se.operand(pk, ct)
	if err != nil {
		return nil, fmt.Errorf("cannot TotalSums: %w", err)
	}

	if partitionSize <= 0 {
		partitionSize = se.slots
	}

	if !utils.IsPowerOfTwo(partitionSize) || partitionSize > se.slots {
		return nil, fmt.Errorf("cannot TotalSums: partition size %d is not a power of two dividing %d", partitionSize, se.slots)
	}

	params := *se.ctx.params
	eval := pv.key.eval

	acc := op.copyNew()
	tmp := bgv.NewCiphertext(params, 1, acc.Level())

	for step := 1; step < partitionSize; step <<= 1 {

		if err = eval.RotateColumns(acc.Ciphertext, step, tmp); err != nil {
			return nil, fmt.Errorf("cannot TotalSums: %w", err)
		}

		if err = eval.Add(acc.Ciphertext, tmp, acc.Ciphertext); err != nil {
			return nil, fmt.Errorf("cannot TotalSums: %w", err)
		}
	}

	return acc, nil
}

func (se *SlotEncoder) operand(pk engine.PublicView, ct engine.Ciphertext) (*PublicView, *Ciphertext, error) {

	pv, ok := pk.(*PublicView)
	if !ok || pv == nil {
		return nil, nil, fmt.Errorf("invalid public view type %T", pk)
	}

	op, err := pv.operand(ct)
	if err != nil {
		return nil, nil, err
	}

	return pv, op, nil
}

// rotate composes the right rotation by k from left column rotations by
// powers of two, for which the Galois keys exist.
func (se *SlotEncoder) rotate(pv *PublicView, op *Ciphertext, k int) (*Ciphertext, error) {

	left := utils.Mod(-k, se.slots)
	if left == 0 {
		return op.copyNew(), nil
	}

	params := *se.ctx.params
	eval := pv.key.eval

	buf := [2]*rlwe.Ciphertext{
		bgv.NewCiphertext(params, 1, op.Level()),
		bgv.NewCiphertext(params, 1, op.Level()),
	}

	src := op.Ciphertext
	var i int
	for step := 1; step < se.slots; step <<= 1 {

		if left&step == 0 {
			continue
		}

		if err := eval.RotateColumns(src, step, buf[i]); err != nil {
			return nil, err
		}

		src, i = buf[i], 1-i
	}

	return &Ciphertext{Ciphertext: src, id: pv.key.id}, nil
}
