package qml

import (
	"fmt"
	"time"
)

// QuakeML namespaces.
const (
	QNamespace       = "http://quakeml.org/xmlns/quakeml/1.2"
	BEDNamespace     = "http://quakeml.org/xmlns/bed/1.2"
	BEDRTNamespace   = "http://quakeml.org/xmlns/bed-rt/1.2"
	CatalogNamespace = "http://anss.org/xmlns/catalog/0.1"
)

// TimeFormat renders QuakeML dateTime values with microsecond precision.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// FormatTime formats t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// URIGenerator builds QuakeML resource identifiers of the form
// <schema>:<authority>/<resource>[#<local>].
type URIGenerator struct {
	Schema      string
	AuthorityID string
}

// NewURIGenerator returns a generator, defaulting to "smi" and "local".
func NewURIGenerator(schema, authorityID string) URIGenerator {
	if schema == "" {
		schema = "smi"
	}
	if authorityID == "" {
		authorityID = "local"
	}
	return URIGenerator{Schema: schema, AuthorityID: authorityID}
}

// URI returns the identifier for resourceID with an optional local id.
func (g URIGenerator) URI(resourceID, localID string) string {
	schema, auth := g.Schema, g.AuthorityID
	if schema == "" {
		schema = "smi"
	}
	if auth == "" {
		auth = "local"
	}
	rid := fmt.Sprintf("%s:%s/%s", schema, auth, resourceID)
	if localID != "" {
		rid += "#" + localID
	}
	return rid
}
