package env

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/engine/lattigo"
	"github.com/afhel-go/afhel/params"
	"github.com/afhel-go/afhel/utils"
)

var flagParamString = flag.String("params", "", "specify the test cryptographic parameters as a JSON string.")

func testParameters(t *testing.T) params.CryptoParameters {
	if *flagParamString != "" {
		var p params.CryptoParameters
		require.NoError(t, json.Unmarshal([]byte(*flagParamString), &p))
		return p
	}
	return params.ExampleParametersBinaryLogM14
}

func newTestEnvironment(t *testing.T, p params.CryptoParameters) *Environment {
	e := New(Config{})
	require.NoError(t, e.KeyGen(p))
	return e
}

// panicBackend is a backend whose contexts cannot be built.
type panicBackend struct {
	*lattigo.Backend
}

func (panicBackend) NewContext(engine.ContextBase) (engine.Context, error) {
	panic("out of memory")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

type failingKey struct {
	engine.SecretKey
}

func (failingKey) MarshalText() ([]byte, error) {
	return nil, errors.New("cannot MarshalText")
}

func TestNoEnvironment(t *testing.T) {

	e := New(Config{})

	require.Equal(t, 0, e.NumSlots())
	require.Equal(t, int64(0), e.PlaintextModulus())
	require.True(t, e.KeyID().IsZero())
	require.Equal(t, 0, e.Levels())

	_, err := e.Encrypt([]int64{1})
	require.ErrorIs(t, err, ErrNoEnvironment)

	_, err = e.Snapshot()
	require.ErrorIs(t, err, ErrNoEnvironment)

	_, err = e.Parameters()
	require.ErrorIs(t, err, ErrNoEnvironment)

	_, err = e.WriteTo(&bytes.Buffer{})
	require.ErrorIs(t, err, ErrNoEnvironment)

	path := filepath.Join(t.TempDir(), "env.txt")
	require.ErrorIs(t, e.Save(path), ErrNoEnvironment)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestEnvironment(t *testing.T) {

	p := testParameters(t)

	var trace bytes.Buffer
	e := New(Config{Trace: log.New(&trace, "", 0)})
	require.NoError(t, e.KeyGen(p))

	require.Contains(t, trace.String(), "KeyGen START")
	require.Contains(t, trace.String(), "KeyGen COMPLETED")

	slots := e.NumSlots()
	modulus := e.PlaintextModulus()

	t.Run("NumSlots", func(t *testing.T) {
		require.Positive(t, slots)
		require.Equal(t, p.M/4, slots)
		require.Equal(t, slots, e.NumSlots())

		snap, err := e.Snapshot()
		require.NoError(t, err)
		require.Equal(t, slots, snap.NumSlots())
		require.Equal(t, e.KeyID(), snap.KeyID())
	})

	t.Run("Parameters", func(t *testing.T) {
		have, err := e.Parameters()
		require.NoError(t, err)
		require.True(t, have.Equal(p))
		require.Equal(t, p.L, e.Levels())
	})

	t.Run("Encrypt/RoundTrip", func(t *testing.T) {
		values := make([]int64, slots)
		for i := range values {
			values[i] = int64(i) % modulus
		}
		ct, err := e.Encrypt(values)
		require.NoError(t, err)
		have, err := e.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, values, have)
	})

	t.Run("Encrypt/Padded", func(t *testing.T) {
		values := []int64{1, 0, 1, 1}
		ct, err := e.Encrypt(values)
		require.NoError(t, err)
		have, err := e.Decrypt(ct)
		require.NoError(t, err)
		require.Len(t, have, slots)
		require.Equal(t, utils.PadSlice(values, slots), have)
	})

	t.Run("Encrypt/Reduced", func(t *testing.T) {
		ct, err := e.Encrypt([]int64{-1, modulus + 1})
		require.NoError(t, err)
		have, err := e.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, []int64{modulus - 1, 1}, have[:2])
	})

	t.Run("Encrypt/Capacity", func(t *testing.T) {
		_, err := e.Encrypt(make([]int64, slots+1))
		require.ErrorIs(t, err, ErrCapacity)
	})

	t.Run("Decrypt/Foreign", func(t *testing.T) {
		other := newTestEnvironment(t, p)
		require.NotEqual(t, e.KeyID(), other.KeyID())

		ct, err := other.Encrypt([]int64{1})
		require.NoError(t, err)

		_, err = e.Decrypt(ct)
		require.ErrorIs(t, err, ErrForeignCiphertext)

		snap, err := e.Snapshot()
		require.NoError(t, err)
		require.ErrorIs(t, snap.Check(ct), ErrForeignCiphertext)
		require.ErrorIs(t, snap.Check(nil), ErrForeignCiphertext)
	})

	t.Run("KeyGen/InvalidParameters", func(t *testing.T) {
		id := e.KeyID()
		bad := p.CopyNew()
		bad.P = 6
		require.ErrorIs(t, e.KeyGen(bad), params.ErrInvalidParameters)
		require.Equal(t, id, e.KeyID())
		require.Equal(t, slots, e.NumSlots())
	})

	t.Run("KeyGen/Failure", func(t *testing.T) {
		id := e.KeyID()
		bad := p.CopyNew()
		bad.Gens, bad.Ords = []int{3}, []int{7}
		err := e.KeyGen(bad)
		require.ErrorIs(t, err, ErrEnvironment)
		require.NotErrorIs(t, err, params.ErrInvalidParameters)
		require.Equal(t, id, e.KeyID())
	})

	t.Run("KeyGen/Panic", func(t *testing.T) {
		e := New(Config{Backend: panicBackend{lattigo.NewBackend(lattigo.Config{})}})
		require.ErrorIs(t, e.KeyGen(p), ErrEnvironment)
		require.Equal(t, 0, e.NumSlots())
	})

	t.Run("Snapshot/Stable", func(t *testing.T) {
		e := newTestEnvironment(t, p)

		snap, err := e.Snapshot()
		require.NoError(t, err)

		ct, err := e.Encrypt([]int64{1, 1})
		require.NoError(t, err)

		require.NoError(t, e.KeyGen(p))
		require.NotEqual(t, snap.KeyID(), e.KeyID())

		neg, err := snap.Evaluate(func(pk engine.PublicView, ecd engine.SlotEncoder) (engine.Ciphertext, error) {
			return pk.Negate(ct)
		})
		require.NoError(t, err)
		require.Equal(t, snap.KeyID(), neg.KeyID())

		_, err = snap.Evaluate(func(engine.PublicView, engine.SlotEncoder) (engine.Ciphertext, error) {
			panic("scratch buffer overflow")
		})
		require.Error(t, err)
	})
}

func TestPersistence(t *testing.T) {

	p := testParameters(t)
	e := newTestEnvironment(t, p)

	values := []int64{1, 0, 1, 0, 1, 1}
	ct, err := e.Encrypt(values)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "env.txt")

	t.Run("Save/Format", func(t *testing.T) {
		require.NoError(t, e.Save(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		require.Len(t, lines, 3)

		var meta metadata
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
		require.Equal(t, p.M, meta.M)
		require.Equal(t, p.P, meta.P)
		require.Equal(t, p.R, meta.R)
	})

	t.Run("Restore", func(t *testing.T) {
		restored := New(Config{})
		require.NoError(t, restored.Restore(path))

		require.Equal(t, e.NumSlots(), restored.NumSlots())
		require.Equal(t, e.KeyID(), restored.KeyID())
		require.Equal(t, e.PlaintextModulus(), restored.PlaintextModulus())

		have, err := restored.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, utils.PadSlice(values, e.NumSlots()), have)

		rp, err := restored.Parameters()
		require.NoError(t, err)
		require.True(t, rp.Equal(p))

		snap, err := restored.Snapshot()
		require.NoError(t, err)
		rotated, err := snap.Evaluate(func(pk engine.PublicView, ecd engine.SlotEncoder) (engine.Ciphertext, error) {
			return ecd.Rotate(pk, ct, 2)
		})
		require.NoError(t, err)

		have, err = e.Decrypt(rotated)
		require.NoError(t, err)
		require.Equal(t, rotate(utils.PadSlice(values, e.NumSlots()), 2), have)
	})

	t.Run("Restore/Replaces", func(t *testing.T) {
		other := newTestEnvironment(t, p)
		require.NotEqual(t, e.KeyID(), other.KeyID())
		require.NoError(t, other.Restore(path))
		require.Equal(t, e.KeyID(), other.KeyID())
	})

	t.Run("Restore/Failures", func(t *testing.T) {

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.SplitAfter(string(data), "\n")

		target := newTestEnvironment(t, p)
		id := target.KeyID()

		err = target.Restore(filepath.Join(dir, "missing.txt"))
		require.ErrorIs(t, err, ErrIO)

		for name, content := range map[string]string{
			"empty":      "",
			"metadata":   "{not json\n",
			"truncated":  lines[0] + lines[1],
			"context":    lines[0] + "{}\n" + lines[2],
			"secret key": lines[0] + lines[1] + "AAAA\n",
			"base":       strings.Replace(lines[0], `"p":2`, `"p":4`, 1) + lines[1] + lines[2],
			"parameters": strings.Replace(lines[0], `"L":3`, `"L":4`, 1) + lines[1] + lines[2],
		} {
			t.Run(name, func(t *testing.T) {
				_, err := target.ReadFrom(strings.NewReader(content))
				require.ErrorIs(t, err, ErrSerialization)
				require.Equal(t, id, target.KeyID())
			})
		}
	})

	t.Run("WriteTo/Failure", func(t *testing.T) {
		_, err := e.WriteTo(failingWriter{})
		require.ErrorIs(t, err, ErrIO)

		err = e.Save(filepath.Join(dir, "missing", "env.txt"))
		require.ErrorIs(t, err, ErrIO)
	})

	t.Run("Save/KeepsExisting", func(t *testing.T) {

		before, err := os.ReadFile(path)
		require.NoError(t, err)

		st, err := e.current()
		require.NoError(t, err)

		broken := New(Config{})
		broken.swap(&state{
			params:  st.params,
			ctx:     st.ctx,
			sk:      failingKey{st.sk},
			pk:      st.pk,
			G:       st.G,
			ecd:     st.ecd,
			slots:   st.slots,
			modulus: st.modulus,
			id:      st.id,
		})

		require.ErrorIs(t, broken.Save(path), ErrSerialization)

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, before, after)

		occupied := filepath.Join(dir, "occupied")
		require.NoError(t, os.Mkdir(occupied, 0o700))
		require.ErrorIs(t, e.Save(occupied), ErrIO)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, entry := range entries {
			require.NotContains(t, entry.Name(), ".tmp")
		}
	})

	t.Run("WriteTo/ReadFrom", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := e.WriteTo(&buf)
		require.NoError(t, err)
		require.Equal(t, int64(buf.Len()), n)

		restored := New(Config{})
		m, err := restored.ReadFrom(&buf)
		require.NoError(t, err)
		require.Equal(t, n, m)
		require.Equal(t, e.KeyID(), restored.KeyID())
	})
}

func TestReferenceScenario(t *testing.T) {

	if testing.Short() {
		t.Skip("skipped in -short mode")
	}

	e := newTestEnvironment(t, params.DefaultParameters())
	require.Positive(t, e.NumSlots())

	values := make([]int64, e.NumSlots())
	for i := range values {
		values[i] = int64(1 - i%2)
	}

	ct, err := e.Encrypt(values)
	require.NoError(t, err)

	have, err := e.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, values, have)
}

// rotate returns s with the element at index i moved to index i+k mod len(s).
func rotate(s []int64, k int) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[utils.Mod(i+k, len(s))] = v
	}
	return out
}
