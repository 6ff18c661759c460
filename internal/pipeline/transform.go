package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/mtinv-quakeml/internal/config"
	"github.com/couchcryptid/mtinv-quakeml/internal/domain"
	"github.com/couchcryptid/mtinv-quakeml/internal/observability"
	"github.com/couchcryptid/mtinv-quakeml/internal/qml"
)

// Content types stamped on output messages.
const (
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
)

// ConverterOptions configures a Converter.
type ConverterOptions struct {
	Authority string `toml:"authority"`
	Agency    string `toml:"agency"`
	ANSS      bool   `toml:"anss"`
	Lenient   bool   `toml:"lenient"`
	// Format is config.FormatXML or config.FormatJSON.
	Format string        `toml:"format"`
	XML    qml.XMLConfig `toml:"xml"`

	Clock clockwork.Clock `toml:"-"`
}

// OptionsFromConfig maps the service configuration onto ConverterOptions.
func OptionsFromConfig(cfg *config.Config) ConverterOptions {
	return ConverterOptions{
		Authority: cfg.QuakeMLAuthority,
		Agency:    cfg.QuakeMLAgency,
		ANSS:      cfg.QuakeMLANSS,
		Lenient:   cfg.QuakeMLLenient,
		Format:    cfg.QuakeMLOutput,
		XML:       qml.DefaultXMLConfig(),
	}
}

// Converter turns mtinv report text into a serialized QuakeML document.
// It keeps no per-call state and is safe for concurrent use.
type Converter struct {
	mapper     *domain.Mapper
	root       *qml.Root
	serializer *qml.Serializer
	format     string
	parse      domain.ParseOptions
}

// NewConverter builds a Converter. Empty authority and agency default to
// "local" and "NN"; an empty format means XML.
func NewConverter(opts ConverterOptions) *Converter {
	if opts.Authority == "" {
		opts.Authority = "local"
	}
	if opts.Agency == "" {
		opts.Agency = "NN"
	}
	if opts.Format == "" {
		opts.Format = config.FormatXML
	}

	mapper := domain.NewMapper(opts.Authority, opts.Agency, opts.ANSS)
	root := qml.NewRoot(mapper.URIs, opts.Agency)
	root.Namespaces = mapper.Namespaces()
	if opts.Clock != nil {
		root.Clock = opts.Clock
	}

	return &Converter{
		mapper:     mapper,
		root:       root,
		serializer: qml.NewSerializer(opts.XML),
		format:     opts.Format,
		parse:      domain.ParseOptions{Lenient: opts.Lenient},
	}
}

// Parse parses one report.
func (c *Converter) Parse(text string) (*domain.Report, error) {
	return domain.ParseReportWithOptions(text, c.parse)
}

// Event maps a parsed report to its QuakeML event element.
func (c *Converter) Event(r *domain.Report) *qml.Dict {
	return c.mapper.Event(r)
}

// Document wraps event into a q:quakeml document and encodes it.
func (c *Converter) Document(event *qml.Dict) ([]byte, error) {
	doc := c.root.EventDocument(event)
	if c.format == config.FormatJSON {
		return json.Marshal(doc)
	}
	return c.serializer.Marshal(doc)
}

// Convert runs parse, map and encode for one report.
func (c *Converter) Convert(text string) ([]byte, *domain.Report, error) {
	r, err := c.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	out, err := c.Document(c.Event(r))
	if err != nil {
		return nil, r, fmt.Errorf("encode event %d: %w", r.EventID, err)
	}
	return out, r, nil
}

// DocumentName is the file stem for a converted report, e.g.
// "719663-1468305-1482914412". It matches the identifier stem, so revisions
// of one event get distinct names.
func (c *Converter) DocumentName(r *domain.Report) string {
	return path.Base(c.mapper.ResourceID(r))
}

// Extension returns the file extension for the configured format.
func (c *Converter) Extension() string {
	if c.format == config.FormatJSON {
		return ".json"
	}
	return ".xml"
}

// ContentType returns the MIME type of the documents Document produces.
func (c *Converter) ContentType() string {
	if c.format == config.FormatJSON {
		return ContentTypeJSON
	}
	return ContentTypeXML
}

// Now returns the converter clock's current time.
func (c *Converter) Now() time.Time {
	return c.root.Clock.Now()
}

// ErrorKind classifies conversion errors for metrics and logs.
func ErrorKind(err error) string {
	if errors.Is(err, qml.ErrSerialization) {
		return "serialization"
	}
	return domain.ErrorKind(err)
}

// QuakeMLTransformer implements Transformer by converting report text to a
// QuakeML document with optional geocoding enrichment.
type QuakeMLTransformer struct {
	converter *Converter
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewTransformer creates a QuakeMLTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(converter *Converter, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *QuakeMLTransformer {
	return &QuakeMLTransformer{
		converter: converter,
		geocoder:  geocoder,
		logger:    logger,
		metrics:   metrics,
	}
}

func (t *QuakeMLTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	r, err := t.converter.Parse(string(raw.Value))
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("parse report: %w", err)
	}
	for _, w := range r.Warnings {
		t.logger.Warn("optional field skipped",
			"event_id", r.EventID,
			"offset", raw.Offset,
			"error", w,
		)
	}
	if t.metrics != nil {
		t.metrics.ReportWarnings.Add(float64(len(r.Warnings)))
	}

	event := t.converter.Event(r)
	geoSource := domain.EnrichWithGeocoding(ctx, event, r, t.geocoder, t.logger)

	body, err := t.converter.Document(event)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("encode event %d: %w", r.EventID, err)
	}

	eventID := strconv.FormatInt(r.EventID, 10)
	headers := map[string]string{
		"content_type": t.converter.ContentType(),
		"event_id":     eventID,
		"origin_id":    strconv.FormatInt(r.OriginID, 10),
		"processed_at": qml.FormatTime(t.converter.Now()),
	}
	if geoSource != domain.GeoSourceNone {
		headers["geo_source"] = geoSource
	}
	return domain.OutputEvent{
		Key:     []byte(eventID),
		Value:   body,
		Headers: headers,
	}, nil
}
