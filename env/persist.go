package env

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/afhel-go/afhel/engine"
	"github.com/afhel-go/afhel/params"
)

// metadata is the first record of a persisted environment. The parameters are
// informative: the context is rebuilt from the base alone.
type metadata struct {
	engine.ContextBase
	Parameters *params.CryptoParameters `json:"parameters,omitempty"`
}

// WriteTo writes the active environment to w as three newline-terminated
// records: the context metadata, the full context and the secret key.
// The public key is derived from the secret key and is not written.
// Errors wrap [ErrNoEnvironment], [ErrIO] or [ErrSerialization].
func (e *Environment) WriteTo(w io.Writer) (n int64, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cannot WriteTo: %w: engine panic: %v", ErrSerialization, r)
		}
	}()

	st, err := e.current()
	if err != nil {
		return 0, fmt.Errorf("cannot WriteTo: %w", err)
	}

	p := st.params.CopyNew()

	records := make([][]byte, 3)

	if records[0], err = json.Marshal(metadata{ContextBase: st.ctx.Base(), Parameters: &p}); err != nil {
		return 0, fmt.Errorf("cannot WriteTo: %w: metadata: %w", ErrSerialization, err)
	}

	if records[1], err = st.ctx.MarshalText(); err != nil {
		return 0, fmt.Errorf("cannot WriteTo: %w: context: %w", ErrSerialization, err)
	}

	if records[2], err = st.sk.MarshalText(); err != nil {
		return 0, fmt.Errorf("cannot WriteTo: %w: secret key: %w", ErrSerialization, err)
	}

	bw := bufio.NewWriter(w)

	for _, record := range records {

		if bytes.IndexByte(record, '\n') >= 0 {
			return n, fmt.Errorf("cannot WriteTo: %w: record spans several lines", ErrSerialization)
		}

		var inc int
		if inc, err = bw.Write(append(record, '\n')); err != nil {
			return n + int64(inc), fmt.Errorf("cannot WriteTo: %w: %w", ErrIO, err)
		}
		n += int64(inc)
	}

	if err = bw.Flush(); err != nil {
		return n, fmt.Errorf("cannot WriteTo: %w: %w", ErrIO, err)
	}

	return n, nil
}

// ReadFrom reads an environment written by [Environment.WriteTo] and makes it
// the active one. The public view, the rotation keys, the slot polynomial and
// the slot encoder are re-derived. On failure the previous environment stays
// active and the error wraps [ErrIO] or [ErrSerialization].
func (e *Environment) ReadFrom(r io.Reader) (n int64, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cannot ReadFrom: %w: engine panic: %v", ErrSerialization, r)
		}
	}()

	br := bufio.NewReader(r)

	readRecord := func(name string) ([]byte, error) {
		line, err := br.ReadBytes('\n')
		n += int64(len(line))
		switch {
		case err == io.EOF && len(line) == 0:
			return nil, fmt.Errorf("%w: missing %s record", ErrSerialization, name)
		case err != nil && err != io.EOF:
			return nil, fmt.Errorf("%w: %s: %w", ErrIO, name, err)
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}

	line, err := readRecord("metadata")
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w", err)
	}

	var meta metadata
	if err = json.Unmarshal(line, &meta); err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: metadata: %w", ErrSerialization, err)
	}

	ctx, err := e.backend.NewContext(meta.ContextBase)
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: metadata: %w", ErrSerialization, err)
	}

	if line, err = readRecord("context"); err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w", err)
	}

	if err = ctx.UnmarshalText(line); err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: context: %w", ErrSerialization, err)
	}

	sk, err := ctx.NewSecretKey()
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: secret key: %w", ErrSerialization, err)
	}

	if line, err = readRecord("secret key"); err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w", err)
	}

	if err = sk.UnmarshalText(line); err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: secret key: %w", ErrSerialization, err)
	}

	p, err := restoredParameters(meta, ctx)
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: metadata: %w", ErrSerialization, err)
	}

	G, err := ctx.FirstFactor()
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: %w", ErrSerialization, err)
	}

	st, err := e.complete(p, ctx, sk, G)
	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w: %w", ErrSerialization, err)
	}

	e.swap(st)

	e.tracef("restored environment (key %s, %d slots)", st.id, st.slots)

	return n, nil
}

// restoredParameters returns the parameters recorded in the metadata, checked
// against the context, or the subset of them implied by the context.
func restoredParameters(meta metadata, ctx engine.Context) (params.CryptoParameters, error) {

	base := meta.ContextBase

	if meta.Parameters == nil {
		return params.CryptoParameters{
			P:    base.P,
			R:    base.R,
			M:    base.M,
			L:    ctx.Levels(),
			Gens: base.Gens,
			Ords: base.Ords,
		}, nil
	}

	p := meta.Parameters.CopyNew()

	if p.M != base.M || p.P != base.P || p.R != base.R || p.L != ctx.Levels() {
		return p, fmt.Errorf("parameters (%s) do not match the context (%s, L=%d)", p, base, ctx.Levels())
	}

	return p, nil
}

// Save writes the active environment to the file at path. The records are
// written to a temporary file of the same directory which then replaces
// path, so that a failed Save leaves any existing file unchanged.
func (e *Environment) Save(path string) (err error) {

	if _, err = e.current(); err != nil {
		return fmt.Errorf("cannot Save: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("cannot Save: %w: %w", ErrIO, err)
	}

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err = e.WriteTo(f); err != nil {
		return fmt.Errorf("cannot Save: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("cannot Save: %w: %w", ErrIO, err)
	}

	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("cannot Save: %w: %w", ErrIO, err)
	}

	return nil
}

// Restore reads the environment stored in the file at path and makes it the
// active one.
func (e *Environment) Restore(path string) (err error) {

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot Restore: %w: %w", ErrIO, err)
	}

	defer f.Close()

	if _, err = e.ReadFrom(f); err != nil {
		return fmt.Errorf("cannot Restore: %w", err)
	}

	return nil
}
