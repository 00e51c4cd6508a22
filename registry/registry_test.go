package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// vector is a mutable value with deep-copy semantics.
type vector struct {
	values []int
}

func (v *vector) CopyNew() *vector {
	return &vector{values: append([]int(nil), v.values...)}
}

func newVector(values ...int) *vector {
	return &vector{values: values}
}

func TestSequence(t *testing.T) {

	seq := NewSequenceFrom(1000)
	require.Equal(t, Handle("1000"), seq.Next())
	require.Equal(t, Handle("1001"), seq.Next())

	seq = NewSequence()
	a, b := seq.Next(), seq.Next()
	require.NotEqual(t, a, b)
	require.Len(t, string(a), len(fmt.Sprint(uint64(1)<<40)))
}

func TestRegistry(t *testing.T) {

	t.Run("Insert/Get", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1, 2, 3))
		v, err := r.Get(h)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, v.values)
		require.Equal(t, 1, r.Len())
	})

	t.Run("UnknownHandle", func(t *testing.T) {
		r := New[*vector]()
		h := Handle("42")

		_, err := r.Get(h)
		require.ErrorIs(t, err, ErrUnknownHandle)

		_, err = r.Retrieve(h)
		require.ErrorIs(t, err, ErrUnknownHandle)

		_, err = r.Duplicate(h)
		require.ErrorIs(t, err, ErrUnknownHandle)

		require.ErrorIs(t, r.Replace(h, newVector()), ErrUnknownHandle)
		require.Equal(t, 0, r.Len())

		require.ErrorIs(t, r.Update(h, func(v *vector) (*vector, error) { return v, nil }), ErrUnknownHandle)

		require.NotPanics(t, func() { r.Erase(h) })
	})

	t.Run("Erase", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1))
		r.Erase(h)
		_, err := r.Get(h)
		require.ErrorIs(t, err, ErrUnknownHandle)
		r.Erase(h)
		require.Equal(t, 0, r.Len())
	})

	t.Run("Duplicate/Independent", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1, 2))

		d, err := r.Duplicate(h)
		require.NoError(t, err)
		require.NotEqual(t, h, d)

		require.NoError(t, r.Update(d, func(v *vector) (*vector, error) {
			v.values[0] = 7
			return v, nil
		}))

		v, err := r.Get(h)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2}, v.values)

		v, err = r.Get(d)
		require.NoError(t, err)
		require.Equal(t, []int{7, 2}, v.values)
	})

	t.Run("Retrieve/Copy", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1, 2))
		v, err := r.Retrieve(h)
		require.NoError(t, err)
		v.values[0] = 9
		w, err := r.Get(h)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2}, w.values)
	})

	t.Run("Update/Failure", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1))
		errOp := fmt.Errorf("level exhausted")
		err := r.Update(h, func(v *vector) (*vector, error) {
			return newVector(2), errOp
		})
		require.ErrorIs(t, err, errOp)
		v, err := r.Get(h)
		require.NoError(t, err)
		require.Equal(t, []int{1}, v.values)
	})

	t.Run("Replace", func(t *testing.T) {
		r := New[*vector]()
		h := r.Insert(newVector(1))
		require.NoError(t, r.Replace(h, newVector(5, 6)))
		v, err := r.Get(h)
		require.NoError(t, err)
		require.Equal(t, []int{5, 6}, v.values)
		require.Equal(t, 1, r.Len())
	})

	t.Run("Handles/Collision", func(t *testing.T) {
		seq := NewSequenceFrom(1000)
		r := NewWithSequence[*vector](seq)

		h0 := r.Insert(newVector(0))
		require.Equal(t, Handle("1000"), h0)

		// rewinding the sequence must not overwrite the live entry
		seq.next = 1000
		h1 := r.Insert(newVector(1))
		require.Equal(t, Handle("1001"), h1)

		v, err := r.Get(h0)
		require.NoError(t, err)
		require.Equal(t, []int{0}, v.values)

		require.Equal(t, []Handle{"1000", "1001"}, r.Handles())

		r.Clear()
		require.Equal(t, 0, r.Len())
		require.Empty(t, r.Handles())
	})

	t.Run("Concurrent/Insert", func(t *testing.T) {
		r := New[*vector]()

		const goroutines, inserts = 8, 500

		handles := make([][]Handle, goroutines)

		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < inserts; i++ {
					handles[g] = append(handles[g], r.Insert(newVector(g, i)))
				}
			}(g)
		}
		wg.Wait()

		seen := map[Handle]bool{}
		for g := range handles {
			for _, h := range handles[g] {
				require.False(t, seen[h], "handle %s issued twice", h)
				seen[h] = true
			}
		}
		require.Equal(t, goroutines*inserts, r.Len())
	})
}
