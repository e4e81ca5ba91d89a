// Package determinism verifies that assembly is a pure function of its input
// by running the pipeline twice, once on the draft as given and once on a copy
// whose section arrays and id lists are shuffled, and comparing hashes.
package determinism

import (
	"context"
	"encoding/json"
	"math/rand/v2"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctxpack/internal/assemble"
	"ctxpack/internal/ctxerr"
	"ctxpack/internal/diff"
	"ctxpack/internal/draft"
	"ctxpack/internal/pack"
)

// DefaultSeed seeds the shuffle when Options.Seed is zero.
const DefaultSeed uint64 = 1

// Options configures a check.
type Options struct {
	Pack pack.Options
	// Seed drives the permutation of run B. 0 means DefaultSeed.
	Seed uint64
	// Parallel runs A and B concurrently instead of one after the other.
	Parallel bool
	// Tamper, when set, mutates run B's manifest before it is re-hashed.
	// It exists to exercise the mismatch path end to end.
	Tamper func(*assemble.Manifest)
	// DiffMaxBytes bounds the diff rendered on mismatch. 0 means no limit.
	DiffMaxBytes int
}

// Result reports one check. Manifest is run A's output.
type Result struct {
	OK       bool               `json:"ok"`
	HashA    string             `json:"hash_a"`
	HashB    string             `json:"hash_b"`
	Diff     string             `json:"diff,omitempty"`
	Manifest *assemble.Manifest `json:"-"`
}

// Err returns the DETERMINISM_ERROR for a mismatch, nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.OK {
		return nil
	}
	return ctxerr.Determinism(r.HashA, r.HashB)
}

// Check runs the pipeline twice over raw. A pipeline failure in either run is
// returned as is (VALIDATION_ERROR, BUDGET_ERROR, ASSEMBLY_ERROR); a hash
// mismatch is reported through Result.OK and Result.Err.
func Check(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	log := opts.Pack.Assemble.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	var a, b *assemble.Manifest
	runA := func() error {
		res, err := pack.Build(raw, opts.Pack)
		if err != nil {
			return err
		}
		a = res.Manifest
		return nil
	}
	runB := func() error {
		res, err := pack.Build(Permute(raw, seed), opts.Pack)
		if err != nil {
			return err
		}
		b = res.Manifest
		if opts.Tamper != nil {
			opts.Tamper(b)
			if err := b.Seal(); err != nil {
				return ctxerr.Assembly(err, "reseal tampered manifest")
			}
		}
		return nil
	}

	if opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return runA()
		})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return runB()
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := runA(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := runB(); err != nil {
			return nil, err
		}
	}

	r := &Result{OK: a.Hash == b.Hash, HashA: a.Hash, HashB: b.Hash, Manifest: a}
	if !r.OK {
		d, err := diff.Values("run-a", "run-b", a, b, diff.Options{MaxBytes: opts.DiffMaxBytes})
		if err != nil {
			return nil, ctxerr.Assembly(err, "diff manifests")
		}
		r.Diff = d
		log.Warn("determinism mismatch",
			zap.String("hash_a", r.HashA),
			zap.String("hash_b", r.HashB),
			zap.Uint64("seed", seed))
	} else {
		log.Debug("determinism ok", zap.String("hash", r.HashA), zap.Uint64("seed", seed), zap.Bool("parallel", opts.Parallel))
	}
	return r, nil
}

// Permute returns raw with every section array and id list shuffled by a
// PRNG seeded with seed. Input that does not decode as a draft is returned
// unchanged so the pipeline reports the decode failure itself.
func Permute(raw []byte, seed uint64) []byte {
	d, err := draft.Parse(raw)
	if err != nil {
		return raw
	}
	shuffle(d, seed)
	out, err := json.Marshal(d)
	if err != nil {
		return raw
	}
	return out
}

func shuffle(d *draft.Draft, seed uint64) {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, sec := range draft.KnownSections {
		items := d.Items(sec)
		r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}
	for _, ids := range [][]string{d.MustInclude, d.NiceToHave, d.NeverInclude} {
		r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
}
