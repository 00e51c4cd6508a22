package env

import (
	"fmt"

	"github.com/afhel-go/afhel/engine"
)

// Snapshot is a read-only view of the environment that was active when it
// was taken. It stays valid after the environment is replaced.
type Snapshot struct {
	st *state
}

// Snapshot returns a view of the active environment.
func (e *Environment) Snapshot() (*Snapshot, error) {
	st, err := e.current()
	if err != nil {
		return nil, err
	}
	return &Snapshot{st: st}, nil
}

// KeyID returns the fingerprint of the key of the snapshot.
func (s *Snapshot) KeyID() engine.KeyID {
	return s.st.id
}

// NumSlots returns the number of slots.
func (s *Snapshot) NumSlots() int {
	return s.st.slots
}

// Check returns an error wrapping [ErrForeignCiphertext] if any ciphertext
// was produced under another key.
func (s *Snapshot) Check(cts ...engine.Ciphertext) error {
	return s.st.check(cts...)
}

// Evaluate runs f with exclusive access to the public view and the slot
// encoder. Engine panics are returned as errors.
func (s *Snapshot) Evaluate(f func(pk engine.PublicView, ecd engine.SlotEncoder) (engine.Ciphertext, error)) (ct engine.Ciphertext, err error) {

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			ct, err = nil, fmt.Errorf("engine panic: %v", r)
		}
	}()

	return f(s.st.pk, s.st.ecd)
}

// Equal compares two ciphertexts with the public view.
func (s *Snapshot) Equal(a, b engine.Ciphertext, comparePublicKeys bool) (bool, error) {

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	return s.st.pk.Equal(a, b, comparePublicKeys)
}
