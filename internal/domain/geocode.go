package domain

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/mtinv-quakeml/internal/qml"
)

// Geocoding outcomes reported by EnrichWithGeocoding.
const (
	GeoSourceNone     = ""
	GeoSourceReverse  = "reverse"
	GeoSourceFailed   = "failed"
	GeoSourceOriginal = "original"
)

// EnrichWithGeocoding reverse geocodes the report's epicenter and appends a
// "nearest cities" description to event. If geocoder is nil or the lookup
// fails, event is left untouched (graceful degradation). The returned source
// tells which of those happened.
func EnrichWithGeocoding(ctx context.Context, event *qml.Dict, r *Report, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil || event == nil {
		return GeoSourceNone
	}

	result, err := geocoder.ReverseGeocode(ctx, r.Latitude, r.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", r.EventID,
			"lat", r.Latitude,
			"lon", r.Longitude,
			"error", err,
		)
		return GeoSourceFailed
	}
	if result.FormattedAddress == "" {
		return GeoSourceOriginal
	}

	descriptions := append(event.List("description"), qml.NewDict().
		Set("text", result.FormattedAddress).
		Set("type", DescriptionType))
	event.Set("description", descriptions)
	return GeoSourceReverse
}
