package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/mtinv-quakeml/internal/domain"
	"github.com/couchcryptid/mtinv-quakeml/internal/pipeline"
)

const stdinName = "-"

// input is one report to convert. text is preloaded for stdin only.
type input struct {
	name string
	text *string
}

// result is the outcome of converting one input.
type result struct {
	name   string
	out    []byte
	report *domain.Report
	err    error
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir string
		jobs   int
	)

	cmd := &cobra.Command{
		Use:   "convert [files...]",
		Short: "Convert reports to QuakeML",
		Long: `Converts each report file to a QuakeML document. With no files, or "-",
the report is read from stdin.

Without --out-dir documents are written to stdout in argument order. With
--out-dir each document is written to <event>-<origin>[-<date>].xml (or .json).
A failing report does not stop the others; the exit status is non-zero if
any report failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := opts.converter(cmd)
			if err != nil {
				return err
			}
			inputs, err := collectInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}

			results, err := convertAll(cmd.Context(), conv, inputs, jobs)
			if err != nil {
				return err
			}
			return emit(cmd, opts.logger(cmd), conv, results, outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "write one document per report into this directory")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "reports converted in parallel")
	return cmd
}

func collectInputs(stdin io.Reader, args []string) ([]input, error) {
	if len(args) == 0 {
		args = []string{stdinName}
	}
	inputs := make([]input, 0, len(args))
	readStdin := false
	for _, a := range args {
		if a != stdinName {
			inputs = append(inputs, input{name: a})
			continue
		}
		if readStdin {
			return nil, fmt.Errorf("stdin given more than once")
		}
		readStdin = true
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text := string(data)
		inputs = append(inputs, input{name: stdinName, text: &text})
	}
	return inputs, nil
}

// convertAll converts inputs concurrently, at most jobs at a time. Per-report
// failures are kept in the results; only cancellation aborts the batch.
func convertAll(ctx context.Context, conv *pipeline.Converter, inputs []input, jobs int) ([]result, error) {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = convertOne(conv, in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func convertOne(conv *pipeline.Converter, in input) result {
	res := result{name: in.name}
	text, err := in.read()
	if err != nil {
		res.err = err
		return res
	}
	res.out, res.report, res.err = conv.Convert(text)
	return res
}

func (in input) read() (string, error) {
	if in.text != nil {
		return *in.text, nil
	}
	data, err := os.ReadFile(in.name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// emit writes successful documents and reports failures on stderr.
func emit(cmd *cobra.Command, logger *slog.Logger, conv *pipeline.Converter, results []result, outDir string) error {
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.name, res.err)
			continue
		}
		for _, w := range res.report.Warnings {
			logger.Warn("optional field skipped", "file", res.name, "error", w)
		}

		if outDir == "" {
			if _, err := cmd.OutOrStdout().Write(res.out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			continue
		}
		dest := filepath.Join(outDir, conv.DocumentName(res.report)+conv.Extension())
		if err := os.WriteFile(dest, res.out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		logger.Info("converted", "file", res.name, "output", dest, "event_id", res.report.EventID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(results))
	}
	return nil
}
