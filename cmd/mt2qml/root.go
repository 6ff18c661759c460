package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/mtinv-quakeml/internal/config"
	"github.com/couchcryptid/mtinv-quakeml/internal/observability"
	"github.com/couchcryptid/mtinv-quakeml/internal/pipeline"
	"github.com/couchcryptid/mtinv-quakeml/internal/qml"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string

	authority string
	agency    string
	format    string
	anss      bool
	lenient   bool

	clock clockwork.Clock
}

func newRootCmd(clock clockwork.Clock) *cobra.Command {
	opts := &rootOptions{clock: clock}

	cmd := &cobra.Command{
		Use:   "mt2qml",
		Short: "Convert mtinv moment tensor reports to QuakeML",
		Long: `mt2qml reads the plain text reports written by mtinv and renders each
solution as a QuakeML 1.2 event with origin, magnitude and focal mechanism.

Settings come from --config (TOML) and are overridden by flags.`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "TOML file with converter settings")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.authority, "authority", "local", "authority id used in smi: identifiers")
	pf.StringVar(&opts.agency, "agency", "NN", "agency id for creationInfo")
	pf.StringVar(&opts.format, "format", config.FormatXML, "output format (xml or json)")
	pf.BoolVar(&opts.anss, "anss", false, "add ANSS catalog attributes to the event")
	pf.BoolVar(&opts.lenient, "lenient", false, "skip malformed optional fields instead of failing")

	cmd.AddCommand(
		newConvertCmd(opts),
		newCheckCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return observability.NewLoggerWithWriter(cmd.ErrOrStderr(), o.logLevel, "text")
}

// converter builds a Converter from the config file, then applies any flag
// the user set explicitly.
func (o *rootOptions) converter(cmd *cobra.Command) (*pipeline.Converter, error) {
	conv, err := loadConverterOptions(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("authority") {
		conv.Authority = o.authority
	}
	if flags.Changed("agency") {
		conv.Agency = o.agency
	}
	if flags.Changed("format") {
		conv.Format = o.format
	}
	if flags.Changed("anss") {
		conv.ANSS = o.anss
	}
	if flags.Changed("lenient") {
		conv.Lenient = o.lenient
	}
	if conv.Format != config.FormatXML && conv.Format != config.FormatJSON {
		return nil, fmt.Errorf("invalid format %q: want %s or %s", conv.Format, config.FormatXML, config.FormatJSON)
	}

	conv.Clock = o.clock
	return pipeline.NewConverter(conv), nil
}

// loadConverterOptions reads converter settings from a TOML file. An empty
// path yields the defaults. Unknown keys are rejected.
func loadConverterOptions(path string) (pipeline.ConverterOptions, error) {
	opts := pipeline.ConverterOptions{
		Authority: "local",
		Agency:    "NN",
		Format:    config.FormatXML,
		XML:       qml.DefaultXMLConfig(),
	}
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return opts, fmt.Errorf("parse config %s: %w", path, err)
	}
	return opts, nil
}
