package qml

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// catalogSpace seeds the name-based UUIDs used for eventParameters identifiers.
var catalogSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(QNamespace))

// eventParameterKeys are the children eventParameters accepts, in schema order.
var eventParameterKeys = []string{
	"comment", "event", "description", "origin", "magnitude", "stationMagnitude",
	"focalMechanism", "reading", "pick", "amplitude",
}

// Root wraps events into the QuakeML document structure.
type Root struct {
	URIs   URIGenerator
	Agency string
	Clock  clockwork.Clock

	// Namespaces are extra xmlns:<prefix> declarations for the root element.
	Namespaces map[string]string
	// DefaultNamespace is the BED namespace unless overridden (e.g. BED-RT).
	DefaultNamespace string
}

// NewRoot returns a Root with the real clock and BED default namespace.
func NewRoot(uris URIGenerator, agency string) *Root {
	return &Root{
		URIs:             uris,
		Agency:           agency,
		Clock:            clockwork.NewRealClock(),
		DefaultNamespace: BEDNamespace,
	}
}

// EventParameters builds an eventParameters element. children is keyed by
// element name (event, origin, focalMechanism, ...); unknown keys are dropped.
// The publicID is a name-based UUID of the contained event ids, so the same
// events always yield the same catalog id.
func (r *Root) EventParameters(children map[string][]any) *Dict {
	now := r.clock().Now().UTC()

	var ids []string
	for _, ev := range children["event"] {
		if d, ok := ev.(*Dict); ok {
			ids = append(ids, d.String("@publicID"))
		}
	}
	catalogID := uuid.NewSHA1(catalogSpace, []byte(strings.Join(ids, "|")))

	ep := NewDict().
		Set("@publicID", r.URIs.URI("catalog/"+catalogID.String(), "")).
		Set("creationInfo", NewDict().
			Set("agencyID", r.Agency).
			Set("creationTime", FormatTime(now)).
			Set("version", fmt.Sprintf("%d", now.UnixMicro())))

	for _, k := range eventParameterKeys {
		if v, ok := children[k]; ok {
			if v == nil {
				v = []any{}
			}
			ep.Set(k, v)
		}
	}
	return ep
}

// Document returns the q:quakeml root element around eventParameters.
func (r *Root) Document(eventParameters *Dict) *Dict {
	ns := r.DefaultNamespace
	if ns == "" {
		ns = BEDNamespace
	}
	q := NewDict().
		Set("@xmlns:q", QNamespace).
		Set("@xmlns", ns).
		Set("@xmlns:catalog", CatalogNamespace)
	for _, prefix := range sortedKeys(r.Namespaces) {
		q.Set("@xmlns:"+prefix, r.Namespaces[prefix])
	}
	q.Set("eventParameters", eventParameters)
	return NewDict().Set("q:quakeml", q)
}

// EventDocument wraps a single event into a complete document. The event's
// resource id is appended to the catalog id as a local id.
func (r *Root) EventDocument(event *Dict) *Dict {
	ep := r.EventParameters(map[string][]any{"event": {event}})
	eventID := event.String("@publicID")
	if _, rest, ok := strings.Cut(eventID, "/"); ok {
		ep.Set("@publicID", ep.String("@publicID")+"#"+strings.ReplaceAll(rest, "/", "="))
	}
	return r.Document(ep)
}

func (r *Root) clock() clockwork.Clock {
	if r.Clock == nil {
		return clockwork.NewRealClock()
	}
	return r.Clock
}

// SetANSSParams tags an event with the ANSS catalog attributes.
func SetANSSParams(event *Dict, agencyID string, eventID int64) {
	ag := strings.ToLower(agencyID)
	event.
		Set("@catalog:datasource", ag).
		Set("@catalog:dataid", fmt.Sprintf("%s%08d", ag, eventID)).
		Set("@catalog:eventsource", ag).
		Set("@catalog:eventid", fmt.Sprintf("%08d", eventID))
}
