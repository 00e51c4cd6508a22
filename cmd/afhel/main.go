// Afhel generates, inspects and benchmarks homomorphic encryption environments.
//
//	afhel keygen [-params JSON] -out FILE
//	afhel info -env FILE
//	afhel bench [-params JSON | -env FILE] [-runs N]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/afhel-go/afhel"
)

func main() {

	log.SetFlags(0)
	log.SetPrefix("afhel: ")

	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygen(os.Args[2:])
	case "info":
		err = info(os.Args[2:])
	case "bench":
		err = bench(os.Args[2:])
	default:
		usage()
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: afhel keygen|info|bench [flags]")
	os.Exit(2)
}

func parseParameters(s string) (p afhel.CryptoParameters, err error) {
	p = afhel.DefaultParameters()
	if s != "" {
		if err = json.Unmarshal([]byte(s), &p); err != nil {
			return p, fmt.Errorf("invalid -params: %w", err)
		}
	}
	return
}

func newSession(verbose bool) *afhel.Session {
	cfg := afhel.Config{}
	if verbose {
		cfg.Trace = log.New(os.Stderr, "", log.Lmicroseconds)
	}
	return afhel.NewSession(cfg)
}

func keygen(args []string) error {

	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	paramString := fs.String("params", "", "the parameters as a JSON string, the defaults if empty")
	out := fs.String("out", "", "the file the environment is written to")
	verbose := fs.Bool("v", false, "trace the key generation")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("keygen: -out is required")
	}

	p, err := parseParameters(*paramString)
	if err != nil {
		return err
	}

	s := newSession(*verbose)

	now := time.Now()
	if err = s.KeyGen(p); err != nil {
		return err
	}
	fmt.Printf("KeyGen: %s\n", time.Since(now))

	if err = s.SaveEnvironment(*out); err != nil {
		return err
	}

	return printInfo(s)
}

func info(args []string) error {

	fs := flag.NewFlagSet("info", flag.ExitOnError)
	path := fs.String("env", "", "the environment file")
	fs.Parse(args)

	s := newSession(false)
	if err := s.RestoreEnvironment(*path); err != nil {
		return err
	}

	return printInfo(s)
}

func printInfo(s *afhel.Session) error {

	p, err := s.Parameters()
	if err != nil {
		return err
	}

	fmt.Printf("Parameters: %s\n", p)
	fmt.Printf("Plaintext modulus: %d\n", s.PlaintextModulus())
	fmt.Printf("Slots: %d\n", s.NumSlots())
	fmt.Printf("Key: %s\n", s.KeyID())

	return nil
}

func bench(args []string) error {

	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	paramString := fs.String("params", "", "the parameters as a JSON string, the defaults if empty")
	path := fs.String("env", "", "an environment file, overrides -params")
	runs := fs.Int("runs", 10, "the number of runs per operation")
	fs.Parse(args)

	s := newSession(false)

	if *path != "" {
		if err := s.RestoreEnvironment(*path); err != nil {
			return err
		}
	} else {
		p, err := parseParameters(*paramString)
		if err != nil {
			return err
		}
		if err = s.KeyGen(p); err != nil {
			return err
		}
	}

	if err := printInfo(s); err != nil {
		return err
	}

	values := make([]int64, s.NumSlots())
	for i := range values {
		values[i] = int64(i) % s.PlaintextModulus()
	}

	b, err := s.Encrypt(values)
	if err != nil {
		return err
	}
	defer s.Erase(b)

	ops := []struct {
		name string
		f    func(h afhel.Handle) error
	}{
		{"Decrypt", func(h afhel.Handle) error {
			_, err := s.Decrypt(h)
			return err
		}},
		{"Add", func(h afhel.Handle) error { return s.Add(h, b, false) }},
		{"Multiply", func(h afhel.Handle) error { return s.Multiply(h, b) }},
		{"Square", func(h afhel.Handle) error { return s.Square(h) }},
		{"Negate", func(h afhel.Handle) error { return s.Negate(h) }},
		{"Rotate", func(h afhel.Handle) error { return s.Rotate(h, 1) }},
		{"Shift", func(h afhel.Handle) error { return s.Shift(h, 1) }},
		{"ScalarReduce", func(h afhel.Handle) error { return s.ScalarReduce(h, b, 0) }},
	}

	durations := make([]float64, *runs)

	for i := range durations {
		now := time.Now()
		h, err := s.Encrypt(values)
		if err != nil {
			return err
		}
		durations[i] = float64(time.Since(now).Nanoseconds()) / 1e6
		s.Erase(h)
	}
	printStats("Encrypt", durations)

	for _, op := range ops {
		for i := range durations {
			h, err := s.Duplicate(b)
			if err != nil {
				return err
			}
			now := time.Now()
			if err = op.f(h); err != nil {
				return fmt.Errorf("%s: %w", op.name, err)
			}
			durations[i] = float64(time.Since(now).Nanoseconds()) / 1e6
			s.Erase(h)
		}
		printStats(op.name, durations)
	}

	return nil
}

// printStats prints the mean, median, standard deviation and 95th percentile of durations in ms.
func printStats(name string, durations []float64) {
	mean, _ := stats.Mean(durations)
	median, _ := stats.Median(durations)
	stddev, _ := stats.StandardDeviation(durations)
	p95, _ := stats.Percentile(durations, 95)
	fmt.Printf("%-12s mean %9.3f ms  median %9.3f ms  stddev %8.3f ms  p95 %9.3f ms\n", name, mean, median, stddev, p95)
}
