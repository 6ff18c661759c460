package domain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/couchcryptid/mtinv-quakeml/internal/qml"
)

// Fixed values for this source format.
const (
	MagnitudeType   = "Mwr"
	Category        = "regional"
	WaveType        = "combined"
	DepthType       = "from moment tensor inversion"
	EventType       = "earthquake"
	DescriptionType = "nearest cities"

	// MTNamespace qualifies the per-station contribution extension elements.
	MTNamespace = "http://github.com/couchcryptid/mtinv-quakeml/xmlns/mt/1.0"
	mtPrefix    = "mt"

	// dyne·cm to N·m.
	dyneCmExp = -7

	// Great-circle km per degree on a 6371 km sphere.
	kmPerDegree = 111.19492664455873

	unitsText = "Scalar moment, tensor elements and principal axis lengths in N*m " +
		"(reported dyne*cm x 1e-7). Depth in m."
)

// Mapper turns a parsed Report into the generic QuakeML event tree.
type Mapper struct {
	URIs   qml.URIGenerator
	Agency string
	// ANSS adds the catalog:* attributes to the event.
	ANSS bool
}

// NewMapper returns a Mapper issuing smi:<authority>/... identifiers.
func NewMapper(authority, agency string, anss bool) *Mapper {
	return &Mapper{URIs: qml.NewURIGenerator("smi", authority), Agency: agency, ANSS: anss}
}

// Namespaces returns the extra root namespaces the mapped tree uses.
func (m *Mapper) Namespaces() map[string]string {
	return map[string]string{mtPrefix: MTNamespace}
}

// ResourceID is the stem shared by every identifier of one report. It only
// depends on report content, so repeated conversions agree.
func (m *Mapper) ResourceID(r *Report) string {
	rid := fmt.Sprintf("mtinv/%d-%d", r.EventID, r.OriginID)
	if r.CreationTime != nil {
		rid += fmt.Sprintf("-%d", r.CreationTime.Unix())
	}
	return rid
}

// EventID returns the event's publicID.
func (m *Mapper) EventID(r *Report) string {
	return m.URIs.URI(fmt.Sprintf("event/%d", r.EventID), "")
}

// Event maps r to a QuakeML event element with its origin, magnitude and
// focal mechanism nested inside.
func (m *Mapper) Event(r *Report) *qml.Dict {
	rid := m.ResourceID(r)
	originID := m.URIs.URI(rid, "origin")
	magID := m.URIs.URI(rid, "mag")
	fmID := m.URIs.URI(rid, "focalmech")

	ev := qml.NewDict().Set("@publicID", m.EventID(r))
	if m.ANSS {
		qml.SetANSSParams(ev, m.Agency, r.EventID)
	}
	ev.
		Set("type", EventType).
		Set("description", []any{}).
		Set("comment", []any{}).
		Set("preferredOriginID", originID).
		Set("preferredMagnitudeID", magID).
		Set("preferredFocalMechanismID", fmID).
		Set("origin", qml.Seq(m.origin(r, originID))).
		Set("magnitude", qml.Seq(m.magnitude(r, magID, originID))).
		Set("focalMechanism", qml.Seq(m.focalMechanism(r, rid, fmID, originID, magID))).
		Set("creationInfo", m.creationInfo(r))
	return ev
}

func (m *Mapper) origin(r *Report, id string) *qml.Dict {
	quality := qml.NewDict().
		SetIf(r.StationsUsed != nil, "usedStationCount", lo.FromPtr(r.StationsUsed)).
		SetIf(r.AzimuthalGap != nil, "azimuthalGap", lo.FromPtr(r.AzimuthalGap)).
		SetIf(r.ClosestDistance != nil, "minimumDistance", lo.FromPtr(r.ClosestDistance)/kmPerDegree)

	mode, status := evaluation(r)
	return qml.NewDict().
		Set("@publicID", id).
		Set("comment", []any{}).
		Set("time", qml.Quantity(qml.FormatTime(r.OriginTime))).
		Set("latitude", qml.Quantity(r.Latitude)).
		Set("longitude", qml.Quantity(r.Longitude)).
		Set("depth", qml.Quantity(r.Depth*1000)).
		Set("depthType", DepthType).
		SetIf(quality.Len() > 0, "quality", quality).
		Set("evaluationMode", mode).
		Set("evaluationStatus", status).
		Set("creationInfo", m.creationInfo(r))
}

func (m *Mapper) magnitude(r *Report, id, originID string) *qml.Dict {
	mode, status := evaluation(r)
	return qml.NewDict().
		Set("@publicID", id).
		Set("comment", []any{}).
		Set("mag", qml.Quantity(r.Mw)).
		Set("type", MagnitudeType).
		Set("originID", originID).
		Set("methodID", m.methodID()).
		SetIf(r.StationsUsed != nil, "stationCount", lo.FromPtr(r.StationsUsed)).
		SetIf(r.AzimuthalGap != nil, "azimuthalGap", lo.FromPtr(r.AzimuthalGap)).
		Set("stationMagnitudeContribution", []any{}).
		Set("evaluationMode", mode).
		Set("evaluationStatus", status).
		Set("creationInfo", m.creationInfo(r))
}

func (m *Mapper) focalMechanism(r *Report, rid, id, originID, magID string) *qml.Dict {
	comments := []any{
		qml.NewDict().Set("@id", m.URIs.URI(rid, "units")).Set("text", unitsText),
	}
	if r.Version != "" {
		comments = append(comments, qml.NewDict().Set("@id", m.URIs.URI(rid, "provenance")).Set("text", r.Version))
	}

	mode, status := evaluation(r)
	return qml.NewDict().
		Set("@publicID", id).
		Set("comment", comments).
		Set("triggeringOriginID", originID).
		Set("nodalPlanes", nodalPlanes(r.NodalPlanes)).
		Set("principalAxes", qml.NewDict().
			Set("tAxis", axis(r.Axes.T)).
			Set("pAxis", axis(r.Axes.P)).
			Set("nAxis", axis(r.Axes.N))).
		SetIf(r.AzimuthalGap != nil, "azimuthalGap", lo.FromPtr(r.AzimuthalGap)).
		Set("methodID", m.methodID()).
		Set("momentTensor", m.momentTensor(r, rid, originID, magID)).
		Set("evaluationMode", mode).
		Set("evaluationStatus", status).
		Set("creationInfo", m.creationInfo(r))
}

func (m *Mapper) momentTensor(r *Report, rid, originID, magID string) *qml.Dict {
	s := r.Spherical
	return qml.NewDict().
		Set("@publicID", m.URIs.URI(rid, "mt")).
		Set("comment", []any{}).
		Set("dataUsed", qml.Seq(dataUsed(r))).
		Set("derivedOriginID", originID).
		Set("momentMagnitudeID", magID).
		Set("scalarMoment", qml.Quantity(newtonMeters(r.ScalarMoment))).
		Set("tensor", qml.NewDict().
			Set("Mrr", qml.Quantity(newtonMeters(s.Mrr))).
			Set("Mtt", qml.Quantity(newtonMeters(s.Mtt))).
			Set("Mpp", qml.Quantity(newtonMeters(s.Mff))).
			Set("Mrt", qml.Quantity(newtonMeters(s.Mrt))).
			Set("Mrp", qml.Quantity(newtonMeters(s.Mrf))).
			Set("Mtp", qml.Quantity(newtonMeters(s.Mtf)))).
		SetIf(r.Epsilon != nil, "variance", lo.FromPtr(r.Epsilon)).
		SetIf(r.VarianceReduction != nil, "varianceReduction", fraction(r.VarianceReduction)).
		SetIf(r.DoubleCouple != nil, "doubleCouple", fraction(r.DoubleCouple)).
		SetIf(r.CLVD != nil, "clvd", fraction(r.CLVD)).
		SetIf(r.ISO != nil, "iso", fraction(r.ISO)).
		Set("methodID", m.methodID()).
		Set("category", Category).
		Set(mtPrefix+":stationContribution", stationContributions(r.Stations)).
		SetIf(r.Cartesian != nil, mtPrefix+":cartesianTensor", cartesianTensor(r.Cartesian)).
		SetIf(r.TotalFit != nil, mtPrefix+":totalFit", lo.FromPtr(r.TotalFit)).
		Set("creationInfo", m.creationInfo(r))
}

// cartesianTensor carries the north-east-down elements alongside the
// spherical tensor, in the same units.
func cartesianTensor(c *CartesianTensor) *qml.Dict {
	if c == nil {
		return nil
	}
	return qml.NewDict().
		Set("Mxx", qml.Quantity(newtonMeters(c.Mxx))).
		Set("Myy", qml.Quantity(newtonMeters(c.Myy))).
		Set("Mzz", qml.Quantity(newtonMeters(c.Mzz))).
		Set("Mxy", qml.Quantity(newtonMeters(c.Mxy))).
		Set("Mxz", qml.Quantity(newtonMeters(c.Mxz))).
		Set("Myz", qml.Quantity(newtonMeters(c.Myz)))
}

func (m *Mapper) creationInfo(r *Report) *qml.Dict {
	ci := qml.NewDict().Set("agencyID", m.Agency)
	if r.Author != "" {
		ci.Set("author", r.Author)
	}
	if r.CreationTime != nil {
		ci.Set("creationTime", qml.FormatTime(*r.CreationTime))
	}
	if v := versionNumber(r.Version); v != "" {
		ci.Set("version", v)
	}
	return ci
}

func (m *Mapper) methodID() string {
	return m.URIs.URI("method/moment-tensor", "")
}

func evaluation(r *Report) (mode, status string) {
	if r.Reviewed {
		return "manual", "reviewed"
	}
	return "automatic", "preliminary"
}

func nodalPlanes(planes [2]NodalPlane) *qml.Dict {
	plane := func(p NodalPlane) *qml.Dict {
		return qml.NewDict().
			Set("strike", qml.Quantity(p.Strike)).
			Set("dip", qml.Quantity(p.Dip)).
			Set("rake", qml.Quantity(p.Rake))
	}
	return qml.NewDict().
		Set("@preferredPlane", 1).
		Set("nodalPlane1", plane(planes[0])).
		Set("nodalPlane2", plane(planes[1]))
}

func axis(a Axis) *qml.Dict {
	return qml.NewDict().
		Set("azimuth", qml.Quantity(a.Trend)).
		Set("plunge", qml.Quantity(a.Plunge)).
		Set("length", qml.Quantity(newtonMeters(a.Eigenvalue)))
}

// dataUsed summarizes the defining stations. The period band spans the
// passbands of the stations that report one.
func dataUsed(r *Report) *qml.Dict {
	du := qml.NewDict().Set("waveType", WaveType)
	if r.StationsUsed != nil {
		du.Set("stationCount", *r.StationsUsed)
	}
	defining := r.DefiningStations()
	hi := lo.FilterMap(defining, func(s Station, _ int) (float64, bool) {
		return lo.FromPtr(s.HighFrequency), s.HighFrequency != nil && *s.HighFrequency > 0
	})
	lf := lo.FilterMap(defining, func(s Station, _ int) (float64, bool) {
		return lo.FromPtr(s.LowFrequency), s.LowFrequency != nil && *s.LowFrequency > 0
	})
	if len(hi) > 0 {
		du.Set("shortestPeriod", 1/lo.Max(hi))
	}
	if len(lf) > 0 {
		du.Set("longestPeriod", 1/lo.Min(lf))
	}
	return du
}

func stationContributions(stations []Station) []any {
	return lo.Map(stations, func(s Station, _ int) any {
		return qml.NewDict().
			Set("waveformID", qml.NewDict().
				Set("@networkCode", s.Network).
				Set("@stationCode", s.Code)).
			Set("used", s.Defining).
			Set("distance", qml.Quantity(s.Distance)).
			Set("azimuth", qml.Quantity(s.Azimuth)).
			SetIf(s.BackAzimuth != nil, "backAzimuth", qml.Quantity(s.BackAzimuth)).
			SetIf(s.LowFrequency != nil, "lowFrequency", qml.Quantity(s.LowFrequency)).
			SetIf(s.HighFrequency != nil, "highFrequency", qml.Quantity(s.HighFrequency)).
			SetIf(s.VelocityModel != "", "velocityModel", s.VelocityModel)
	})
}

func newtonMeters(v Scaled) float64 {
	return Scaled{Mantissa: v.Mantissa, Exp: v.Exp + dyneCmExp}.Value()
}

func fraction(percent *float64) float64 {
	return *percent / 100
}

// versionNumber picks "3.0.6" out of "mtinv Version 3.0.6 2016/10/21".
func versionNumber(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}
