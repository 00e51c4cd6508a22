// Package dispatch applies homomorphic operations to the ciphertexts of a
// registry, in place, with the key material of an environment.
package dispatch

import (
	"fmt"
	"log"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/env"
	"github.com/afhel-go/afhel/registry"
)

// Dispatcher applies operations to registry entries. An operation replaces
// its target entry only if it succeeds. Handles are resolved first: an absent
// handle fails with [registry.ErrUnknownHandle]. Ciphertexts produced under
// another key fail with [env.ErrForeignCiphertext]. Engine failures, such as
// an exhausted modulus chain, are returned wrapped.
type Dispatcher struct {
	env   *env.Environment
	reg   *registry.Registry[engine.Ciphertext]
	trace *log.Logger
}

// New returns a [Dispatcher] operating on the entries of reg with the
// active environment of e. trace may be nil.
func New(e *env.Environment, reg *registry.Registry[engine.Ciphertext], trace *log.Logger) *Dispatcher {
	return &Dispatcher{env: e, reg: reg, trace: trace}
}

func (d *Dispatcher) tracef(format string, v ...any) {
	if d.trace != nil {
		d.trace.Printf("dispatch: "+format, v...)
	}
}

// evaluation computes the new value of the target from its current value
// and the values of the other operands.
type evaluation func(pk engine.PublicView, ecd engine.SlotEncoder, target engine.Ciphertext, operands []engine.Ciphertext) (engine.Ciphertext, error)

// apply replaces the target by f(target, operands...).
func (d *Dispatcher) apply(op string, target registry.Handle, others []registry.Handle, f evaluation) (err error) {

	operands := make([]engine.Ciphertext, len(others))
	for i, h := range others {
		if operands[i], err = d.reg.Get(h); err != nil {
			return fmt.Errorf("cannot %s: %w", op, err)
		}
	}

	err = d.reg.Update(target, func(ct engine.Ciphertext) (engine.Ciphertext, error) {

		snap, err := d.env.Snapshot()
		if err != nil {
			return nil, err
		}

		if err = snap.Check(append([]engine.Ciphertext{ct}, operands...)...); err != nil {
			return nil, err
		}

		return snap.Evaluate(func(pk engine.PublicView, ecd engine.SlotEncoder) (engine.Ciphertext, error) {
			return f(pk, ecd, ct, operands)
		})
	})

	if err != nil {
		return fmt.Errorf("cannot %s: %w", op, err)
	}

	return nil
}

// Add sets a to a+b, or to a-b if negate is set.
func (d *Dispatcher) Add(a, b registry.Handle, negate bool) error {
	d.tracef("Add(%s, %s, negate=%t)", a, b, negate)
	return d.apply("Add", a, []registry.Handle{b}, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, ops []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.Add(ct, ops[0], negate)
	})
}

// Multiply sets a to a*b. It consumes one level.
func (d *Dispatcher) Multiply(a, b registry.Handle) error {
	d.tracef("Multiply(%s, %s)", a, b)
	return d.apply("Multiply", a, []registry.Handle{b}, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, ops []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.Multiply(ct, ops[0])
	})
}

// MultiplyPair sets a to a*b*c. It consumes two levels.
func (d *Dispatcher) MultiplyPair(a, b, c registry.Handle) error {
	d.tracef("MultiplyPair(%s, %s, %s)", a, b, c)
	return d.apply("MultiplyPair", a, []registry.Handle{b, c}, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, ops []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.MultiplyBy2(ct, ops[0], ops[1])
	})
}

// ScalarReduce sets a to a*b summed over partitions of partitionSize slots:
// slot j*partitionSize receives the sum of partition j. A partitionSize of 0,
// negative or equal to the number of slots sums all slots into every slot.
func (d *Dispatcher) ScalarReduce(a, b registry.Handle, partitionSize int) error {
	d.tracef("ScalarReduce(%s, %s, partitionSize=%d)", a, b, partitionSize)
	return d.apply("ScalarReduce", a, []registry.Handle{b}, func(pk engine.PublicView, ecd engine.SlotEncoder, ct engine.Ciphertext, ops []engine.Ciphertext) (engine.Ciphertext, error) {
		prod, err := pk.Multiply(ct, ops[0])
		if err != nil {
			return nil, err
		}
		return ecd.TotalSums(pk, prod, partitionSize)
	})
}

// Square sets a to a^2.
func (d *Dispatcher) Square(a registry.Handle) error {
	d.tracef("Square(%s)", a)
	return d.apply("Square", a, nil, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, _ []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.Square(ct)
	})
}

// Cube sets a to a^3.
func (d *Dispatcher) Cube(a registry.Handle) error {
	d.tracef("Cube(%s)", a)
	return d.apply("Cube", a, nil, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, _ []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.Cube(ct)
	})
}

// Negate sets a to -a.
func (d *Dispatcher) Negate(a registry.Handle) error {
	d.tracef("Negate(%s)", a)
	return d.apply("Negate", a, nil, func(pk engine.PublicView, _ engine.SlotEncoder, ct engine.Ciphertext, _ []engine.Ciphertext) (engine.Ciphertext, error) {
		return pk.Negate(ct)
	})
}

// Rotate cyclically moves the slot at index i of a to index i+k.
func (d *Dispatcher) Rotate(a registry.Handle, k int) error {
	d.tracef("Rotate(%s, %d)", a, k)
	return d.apply("Rotate", a, nil, func(pk engine.PublicView, ecd engine.SlotEncoder, ct engine.Ciphertext, _ []engine.Ciphertext) (engine.Ciphertext, error) {
		return ecd.Rotate(pk, ct, k)
	})
}

// Shift moves the slot at index i of a to index i+k, filling with zeros.
func (d *Dispatcher) Shift(a registry.Handle, k int) error {
	d.tracef("Shift(%s, %d)", a, k)
	return d.apply("Shift", a, nil, func(pk engine.PublicView, ecd engine.SlotEncoder, ct engine.Ciphertext, _ []engine.Ciphertext) (engine.Ciphertext, error) {
		return ecd.Shift(pk, ct, k)
	})
}

// Equals reports whether a and b hold identical ciphertexts and, if
// comparePublicKeys is set, were produced under the same key.
func (d *Dispatcher) Equals(a, b registry.Handle, comparePublicKeys bool) (bool, error) {

	cta, err := d.reg.Get(a)
	if err != nil {
		return false, fmt.Errorf("cannot Equals: %w", err)
	}

	ctb, err := d.reg.Get(b)
	if err != nil {
		return false, fmt.Errorf("cannot Equals: %w", err)
	}

	snap, err := d.env.Snapshot()
	if err != nil {
		return false, fmt.Errorf("cannot Equals: %w", err)
	}

	eq, err := snap.Equal(cta, ctb, comparePublicKeys)
	if err != nil {
		return false, fmt.Errorf("cannot Equals: %w", err)
	}

	return eq, nil
}
