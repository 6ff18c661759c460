package domain

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// Scaled is a number written as mantissa × 10^Exp in the report.
type Scaled struct {
	Mantissa float64
	Exp      int
}

// Value returns mantissa × 10^Exp.
func (s Scaled) Value() float64 {
	return s.Mantissa * math.Pow10(s.Exp)
}

// NodalPlane is one strike/dip/rake triple in degrees.
type NodalPlane struct {
	Strike float64
	Dip    float64
	Rake   float64
}

// Axis is one principal axis of the major double couple. Eigenvalue shares
// the exponent of the spherical tensor block.
type Axis struct {
	Eigenvalue Scaled
	Trend      float64
	Plunge     float64
}

// PrincipalAxes holds the T (tension), N (null) and P (pressure) axes.
type PrincipalAxes struct {
	T Axis
	N Axis
	P Axis
}

// SphericalTensor holds the six independent elements in the r, t, f basis.
type SphericalTensor struct {
	Mrr, Mtt, Mff, Mrt, Mrf, Mtf Scaled
}

// CartesianTensor holds the six independent elements in the north, east,
// down basis.
type CartesianTensor struct {
	Mxx, Mxy, Mxz, Myy, Myz, Mzz Scaled
}

// Station is one row of the station table. Columns the table does not carry
// are left nil or empty.
type Station struct {
	Network       string
	Code          string
	Defining      bool
	Distance      float64  // km
	Azimuth       float64  // degrees
	BackAzimuth   *float64 // degrees
	LowFrequency  *float64 // Hz
	HighFrequency *float64 // Hz
	VelocityModel string
}

// Report is the parsed content of one mtinv text report. Pointer fields are
// optional and nil when the report does not carry them.
type Report struct {
	EventID   int64
	OriginID  int64
	Algorithm string

	OriginTime time.Time
	Latitude   float64
	Longitude  float64
	Depth      float64 // km, as reported

	Mw           float64
	ScalarMoment Scaled // dyne·cm, as reported

	DoubleCouple      *float64 // percent
	CLVD              *float64 // percent
	ISO               *float64 // percent
	Epsilon           *float64
	VarianceReduction *float64 // percent
	TotalFit          *float64

	NodalPlanes [2]NodalPlane
	Spherical   SphericalTensor
	Cartesian   *CartesianTensor
	Axes        PrincipalAxes

	Stations        []Station
	StationsUsed    *int
	AzimuthalGap    *float64 // degrees
	ClosestDistance *float64 // km

	Author       string
	CreationTime *time.Time
	Version      string
	Reviewed     bool

	// Warnings collects optional-field errors skipped in lenient mode.
	Warnings []error
}

// DefiningStations returns the stations used in the inversion.
func (r *Report) DefiningStations() []Station {
	return lo.Filter(r.Stations, func(s Station, _ int) bool { return s.Defining })
}
