package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ctxpack/internal/canon"
	"ctxpack/internal/ctxerr"
	"ctxpack/internal/validate"
)

func (a *app) validateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <draft.json>",
		Short: "Check a draft's structure and references",
		Args:  oneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDraft(args[0])
			if err != nil {
				return err
			}
			opts := validate.Options{StrictOrder: a.cfg.StrictOrder}
			if cmd.Flags().Changed("strict-order") {
				opts.StrictOrder = strict
			}
			if _, err := validate.Draft(raw, opts); err != nil {
				a.logger.Debug("validation failed", zap.Error(err))
				return err
			}
			a.println("ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict-order", false, "require order to list every known section exactly once")
	return cmd
}

func (a *app) hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <draft.json>",
		Short: "Print the canonical sha256 of the parsed JSON",
		Args:  oneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readDraft(args[0])
			if err != nil {
				return err
			}
			h, err := canon.HashJSON(raw)
			if err != nil {
				return ctxerr.Validation("", "%v", err)
			}
			a.println(h)
			return nil
		},
	}
}

func (a *app) printCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "print <draft.json>",
		Short: "Pretty-print the parsed JSON with sorted keys",
		Args:  oneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return usageErr("--format must be json or yaml, got %q", format)
			}
			raw, err := readDraft(args[0])
			if err != nil {
				return err
			}
			tree, err := decodeTree(raw)
			if err != nil {
				return ctxerr.Validation("", "%v", err)
			}
			if format == "yaml" {
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(plain(tree)); err != nil {
					return failure(err)
				}
				return enc.Close()
			}
			out, err := canon.Indent(tree)
			if err != nil {
				return ctxerr.Validation("", "%v", err)
			}
			if _, err := a.stdout.Write(out); err != nil {
				return failure(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return tree, nil
}

// plain converts json.Number leaves to int64 or float64 so YAML renders them
// as numbers rather than quoted strings.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = plain(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = plain(el)
		}
		return out
	}
	return v
}
