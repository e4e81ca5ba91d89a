package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctxpack/internal/assemble"
	"ctxpack/internal/bundle"
	"ctxpack/internal/config"
	"ctxpack/internal/ctxerr"
	"ctxpack/internal/determinism"
	"ctxpack/internal/draft"
	"ctxpack/internal/pack"
	"ctxpack/internal/validate"
)

type assembleFlags struct {
	model          string
	mergeMaxTokens int
	strictOrder    bool
	dryRun         bool
	out            string
	report         string
	bundle         string
	caps           []string
}

// mismatch is the stderr record for a failed determinism check.
type mismatch struct {
	Reason string `json:"reason"`
	HashA  string `json:"hash_a"`
	HashB  string `json:"hash_b"`
	Diff   string `json:"diff,omitempty"`
}

func (a *app) assembleCmd() *cobra.Command {
	var f assembleFlags
	cmd := &cobra.Command{
		Use:   "assemble <draft.json>",
		Short: "Validate, assemble and hash a draft",
		Long: `Validate the draft, assemble it under its budgets and seal the manifest hash.

Without --dry-run the manifest is written to --out, or to stdout when --out is
not given. With --dry-run only the {totals, perSection} summary is printed and
--out and --bundle are ignored.

CTX_DETERMINISM_CHECK=1 assembles twice (the second time on a shuffled copy)
and exits 4 when the hashes differ.`,
		Args: oneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.assemble(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.model, "model", "", "model name selecting the token-estimate scale")
	fl.IntVar(&f.mergeMaxTokens, "merge-max-tokens", 0, "merge spans on one path whose gap is within N estimated tokens (0 = overlapping or contiguous only)")
	fl.BoolVar(&f.strictOrder, "strict-order", false, "require order to list every known section exactly once")
	fl.BoolVar(&f.dryRun, "dry-run", false, "print the summary only; write no manifest or bundle")
	fl.StringVar(&f.out, "out", "", "write the manifest JSON to this path")
	fl.StringVar(&f.report, "report", "", "write the observability report JSON to this path")
	fl.StringVar(&f.bundle, "bundle", "", "write the reproducible zip pack to this path")
	fl.StringArrayVar(&f.caps, "section.cap", nil, "section cap override name=tokens,files (repeatable)")
	return cmd
}

func (a *app) options(cmd *cobra.Command, f assembleFlags) (pack.Options, error) {
	cfg := a.cfg
	fl := cmd.Flags()
	model := cfg.Model
	if fl.Changed("model") {
		model = f.model
	}
	merge := cfg.MergeMaxTokens
	if fl.Changed("merge-max-tokens") {
		if f.mergeMaxTokens < 0 {
			return pack.Options{}, usageErr("--merge-max-tokens must be non-negative, got %d", f.mergeMaxTokens)
		}
		merge = f.mergeMaxTokens
	}
	strict := cfg.StrictOrder
	if fl.Changed("strict-order") {
		strict = f.strictOrder
	}

	caps := make(map[string]draft.SectionCap, len(cfg.SectionCaps)+len(f.caps))
	for name, cp := range cfg.SectionCaps {
		caps[name] = cp
	}
	for _, s := range f.caps {
		name, cp, err := config.ParseSectionCap(s)
		if err != nil {
			return pack.Options{}, usageErr("--section.cap: %v", err)
		}
		caps[name] = cp
	}

	return pack.Options{
		Validate:    validate.Options{StrictOrder: strict},
		Assemble:    assemble.Config{Model: model, MergeMaxTokens: merge, Logger: a.logger},
		SectionCaps: caps,
	}, nil
}

func (a *app) assemble(cmd *cobra.Command, path string, f assembleFlags) error {
	opts, err := a.options(cmd, f)
	if err != nil {
		return err
	}
	raw, err := readDraft(path)
	if err != nil {
		return err
	}

	var m *assemble.Manifest
	if a.cfg.Determinism.Enabled {
		dopts := determinism.Options{
			Pack:     opts,
			Seed:     a.cfg.Determinism.Seed,
			Parallel: a.cfg.Determinism.Parallel,
		}
		if a.cfg.Determinism.ForceMismatch {
			dopts.Tamper = func(m *assemble.Manifest) { m.Metrics.MergedSpans++ }
		}
		res, err := determinism.Check(cmd.Context(), raw, dopts)
		if err != nil {
			return a.fail(f, err)
		}
		if !res.OK {
			return a.mismatch(f, res)
		}
		m = res.Manifest
	} else {
		res, err := pack.Build(raw, opts)
		if err != nil {
			return a.fail(f, err)
		}
		m = res.Manifest
	}

	if f.dryRun {
		if err := bundle.EncodeJSON(a.stdout, m.Summary()); err != nil {
			return failure(err)
		}
	} else {
		if f.out != "" {
			if err := bundle.WriteJSON(f.out, m); err != nil {
				return failure(fmt.Errorf("write --out: %w", err))
			}
		} else if err := bundle.EncodeJSON(a.stdout, m); err != nil {
			return failure(err)
		}
		if f.bundle != "" {
			if err := bundle.WritePack(f.bundle, m, bundle.PackOptions{Model: opts.Assemble.Model}); err != nil {
				return failure(fmt.Errorf("write --bundle: %w", err))
			}
		}
	}

	if f.report != "" {
		if err := bundle.WriteJSON(f.report, bundle.NewReport(m)); err != nil {
			return failure(fmt.Errorf("write --report: %w", err))
		}
	}
	a.logger.Info("assembled",
		zap.String("hash", m.Hash),
		zap.Bool("dry_run", f.dryRun),
		zap.Bool("determinism_check", a.cfg.Determinism.Enabled))
	return nil
}

// fail writes the failure report when one was requested and returns err for
// exit-code mapping.
func (a *app) fail(f assembleFlags, err error) error {
	a.logger.Debug("assemble failed", zap.String("code", string(ctxerr.CodeOf(err))), zap.Error(err))
	if f.report != "" {
		if werr := bundle.WriteJSON(f.report, bundle.FailureReport(err)); werr != nil {
			a.logger.Warn("write failure report", zap.Error(werr))
		}
	}
	return err
}

func (a *app) mismatch(f assembleFlags, res *determinism.Result) error {
	derr := res.Err()
	if f.report != "" {
		r := bundle.FailureReport(derr)
		r.Hash = res.HashA
		if werr := bundle.WriteJSON(f.report, r); werr != nil {
			a.logger.Warn("write failure report", zap.Error(werr))
		}
	}
	body, err := json.Marshal(mismatch{
		Reason: string(ctxerr.CodeDeterminism),
		HashA:  res.HashA,
		HashB:  res.HashB,
		Diff:   res.Diff,
	})
	if err != nil {
		return failure(err)
	}
	fmt.Fprintln(a.stderr, string(body))
	return &exitError{code: exitDeterminism, err: derr, reported: true}
}
