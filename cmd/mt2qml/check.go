package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/mtinv-quakeml/internal/domain"
	"github.com/couchcryptid/mtinv-quakeml/internal/pipeline"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [files...]",
		Short: "Parse reports and print diagnostics without converting",
		Long: `Parses each report and prints one line per file: a short summary when it
parses, otherwise the error class and the offending field with its line number.
The exit status is non-zero if any report fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := opts.converter(cmd)
			if err != nil {
				return err
			}
			inputs, err := collectInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			failed := 0
			for _, in := range inputs {
				if !checkOne(cmd, conv, in) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d reports failed", failed, len(inputs))
			}
			return nil
		},
	}
}

func checkOne(cmd *cobra.Command, conv *pipeline.Converter, in input) bool {
	out := cmd.OutOrStdout()
	text, err := in.read()
	var r *domain.Report
	if err == nil {
		r, err = conv.Parse(text)
	}
	if err != nil {
		fmt.Fprintf(out, "%s: FAIL %s: %v\n", in.name, pipeline.ErrorKind(err), err)
		return false
	}

	fmt.Fprintf(out, "%s: ok event=%d origin=%d mw=%.2f stations=%d warnings=%d\n",
		in.name, r.EventID, r.OriginID, r.Mw, len(r.Stations), len(r.Warnings))
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %v\n", w)
	}
	return true
}
