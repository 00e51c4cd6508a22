// Package registry implements a store of owned values addressed by short
// printable handles.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/afhel-go/afhel/utils"
)

// ErrUnknownHandle is returned when a handle is absent from the registry.
var ErrUnknownHandle = errors.New("unknown handle")

// Handle is an opaque printable token addressing a registry entry.
type Handle string

// CopyNewer is a type that can be deep copied.
type CopyNewer[T any] interface {
	CopyNew() T
}

// Registry maps handles to owned values. Every handle refers to a distinct
// value: values are never shared between two handles. It is safe for
// concurrent use.
type Registry[T CopyNewer[T]] struct {
	mu      sync.RWMutex
	seq     *Sequence
	entries map[Handle]T
}

// New returns an empty registry issuing handles from a [Sequence] seeded
// from the wall clock.
func New[T CopyNewer[T]]() *Registry[T] {
	return NewWithSequence[T](NewSequence())
}

// NewWithSequence returns an empty registry issuing handles from seq.
func NewWithSequence[T CopyNewer[T]](seq *Sequence) *Registry[T] {
	return &Registry[T]{
		seq:     seq,
		entries: map[Handle]T{},
	}
}

// Insert stores v under a fresh handle. The registry takes ownership of v.
func (r *Registry[T]) Insert(v T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(v)
}

func (r *Registry[T]) insert(v T) (h Handle) {
	for {
		if h = r.seq.Next(); !r.has(h) {
			r.entries[h] = v
			return
		}
	}
}

func (r *Registry[T]) has(h Handle) (ok bool) {
	_, ok = r.entries[h]
	return
}

// Get returns the value stored under h. The value is owned by the registry
// and must not be modified.
func (r *Registry[T]) Get(h Handle) (v T, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[h]
	if !ok {
		return v, fmt.Errorf("cannot Get: %w %q", ErrUnknownHandle, h)
	}

	return v, nil
}

// Retrieve returns a deep copy of the value stored under h.
func (r *Registry[T]) Retrieve(h Handle) (v T, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[h]
	if !ok {
		return v, fmt.Errorf("cannot Retrieve: %w %q", ErrUnknownHandle, h)
	}

	return v.CopyNew(), nil
}

// Update replaces the value stored under h by f(value). The entry is left
// unchanged if f returns an error. The registry is locked while f runs:
// f must not call it.
func (r *Registry[T]) Update(h Handle, f func(v T) (T, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[h]
	if !ok {
		return fmt.Errorf("cannot Update: %w %q", ErrUnknownHandle, h)
	}

	v, err := f(v)
	if err != nil {
		return err
	}

	r.entries[h] = v
	return nil
}

// Duplicate stores a deep copy of the value of h under a fresh handle.
func (r *Registry[T]) Duplicate(h Handle) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[h]
	if !ok {
		return "", fmt.Errorf("cannot Duplicate: %w %q", ErrUnknownHandle, h)
	}

	return r.insert(v.CopyNew()), nil
}

// Replace overwrites the value stored under h with v. It does not insert:
// replacing an absent handle returns [ErrUnknownHandle].
func (r *Registry[T]) Replace(h Handle, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has(h) {
		return fmt.Errorf("cannot Replace: %w %q", ErrUnknownHandle, h)
	}

	r.entries[h] = v
	return nil
}

// Erase removes h. Erasing an absent handle is a no-op.
func (r *Registry[T]) Erase(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

// Clear removes every entry.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Handles returns the handles in use, sorted.
func (r *Registry[T]) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return utils.GetSortedKeys(r.entries)
}
