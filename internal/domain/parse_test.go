package domain

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePath = "testdata/mt_719663_v3.0.6.txt"

func fixtureText(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(fixturePath)
	require.NoError(t, err)
	return string(data)
}

func parseFixture(t *testing.T) *Report {
	t.Helper()
	r, err := ParseReport(fixtureText(t))
	require.NoError(t, err)
	return r
}

// replaceLine swaps the first line containing old for repl ("" deletes it).
func replaceLine(t *testing.T, text, old, repl string) string {
	t.Helper()
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.Contains(l, old) {
			if repl == "" {
				return strings.Join(append(lines[:i:i], lines[i+1:]...), "\n")
			}
			lines[i] = repl
			return strings.Join(lines, "\n")
		}
	}
	t.Fatalf("fixture has no line containing %q", old)
	return ""
}

func TestParseReport_Fixture(t *testing.T) {
	r := parseFixture(t)

	assert.Equal(t, int64(719663), r.EventID)
	assert.Equal(t, int64(1468305), r.OriginID)
	assert.Equal(t, "mtinv time-domain regional full-waveform inversion", r.Algorithm)
	assert.Equal(t, time.Date(2016, 12, 28, 8, 18, 1, 300000000, time.UTC), r.OriginTime)
	assert.Equal(t, 38.3777, r.Latitude)
	assert.Equal(t, -118.3602, r.Longitude)

	assert.Equal(t, 6.0, r.Depth)
	assert.Equal(t, 4.53, r.Mw)
	assert.Equal(t, Scaled{Mantissa: 7.73, Exp: 22}, r.ScalarMoment)
	assert.InEpsilon(t, 7.73*math.Pow10(22), r.ScalarMoment.Value(), 1e-12)

	require.NotNil(t, r.DoubleCouple)
	assert.Equal(t, 78.0, *r.DoubleCouple)
	assert.Equal(t, 22.0, *r.CLVD)
	assert.Equal(t, 0.0, *r.ISO)
	assert.Equal(t, 0.11, *r.Epsilon)
	assert.Equal(t, 63.40, *r.VarianceReduction)
	assert.Equal(t, 14.21, *r.TotalFit)

	assert.Equal(t, "NSL analyst", r.Author)
	require.NotNil(t, r.CreationTime)
	assert.Equal(t, time.Date(2016, 12, 28, 8, 40, 12, 0, time.UTC), *r.CreationTime)
	assert.Equal(t, "mtinv Version 3.0.6 2016/10/21", r.Version)
	assert.False(t, r.Reviewed)
	assert.Empty(t, r.Warnings)
}

func TestParseReport_NodalPlanesAndAxes(t *testing.T) {
	r := parseFixture(t)

	assert.Equal(t, [2]NodalPlane{
		{Strike: 152, Dip: 82, Rake: -176},
		{Strike: 62, Dip: 86, Rake: -8},
	}, r.NodalPlanes)

	assert.Equal(t, Axis{Eigenvalue: Scaled{7.73, 22}, Trend: 197, Plunge: 3}, r.Axes.T)
	assert.Equal(t, Axis{Eigenvalue: Scaled{0, 22}, Trend: 301, Plunge: 77}, r.Axes.N)
	assert.Equal(t, Axis{Eigenvalue: Scaled{-7.73, 22}, Trend: 107, Plunge: 10}, r.Axes.P)
}

func TestParseReport_Tensors(t *testing.T) {
	r := parseFixture(t)

	assert.Equal(t, SphericalTensor{
		Mrr: Scaled{-4.99, 22}, Mtt: Scaled{-2.62, 22}, Mff: Scaled{7.61, 22},
		Mrt: Scaled{3.18, 22}, Mrf: Scaled{0.50, 22}, Mtf: Scaled{0.84, 22},
	}, r.Spherical)

	require.NotNil(t, r.Cartesian)
	got := map[string]float64{
		"Mxx": r.Cartesian.Mxx.Mantissa, "Mxy": r.Cartesian.Mxy.Mantissa, "Mxz": r.Cartesian.Mxz.Mantissa,
		"Myy": r.Cartesian.Myy.Mantissa, "Myz": r.Cartesian.Myz.Mantissa, "Mzz": r.Cartesian.Mzz.Mantissa,
	}
	assert.Equal(t, map[string]float64{
		"Mxx": -2.62, "Mxy": -0.84, "Mxz": 3.18, "Myy": 7.61, "Myz": -0.50, "Mzz": -4.99,
	}, got)
	assert.Equal(t, 22, r.Cartesian.Mzz.Exp)
}

func TestParseReport_Stations(t *testing.T) {
	r := parseFixture(t)

	require.Len(t, r.Stations, 7)
	codes := make([]string, 0, len(r.Stations))
	for _, s := range r.Stations {
		codes = append(codes, s.Code)
		assert.True(t, s.Defining, s.Code)
	}
	assert.Equal(t, []string{"REDF", "MPK", "WDEM", "PAH", "BEK", "KVN", "LHV"}, codes)

	first := r.Stations[0]
	assert.Equal(t, "NN", first.Network)
	assert.Equal(t, 35.8, first.Distance)
	assert.Equal(t, 27.0, first.Azimuth)
	require.NotNil(t, first.BackAzimuth)
	assert.Equal(t, 207.0, *first.BackAzimuth)
	assert.Equal(t, 0.02, *first.LowFrequency)
	assert.Equal(t, 0.05, *first.HighFrequency)
	assert.Equal(t, "wus", first.VelocityModel)
	assert.Equal(t, "SN", r.Stations[6].Network)

	require.NotNil(t, r.StationsUsed)
	assert.Equal(t, 7, *r.StationsUsed)
	assert.Equal(t, 92.0, *r.AzimuthalGap)
	assert.Equal(t, 35.8, *r.ClosestDistance)
	assert.Len(t, r.DefiningStations(), 7)
}

func TestParseReport_Deterministic(t *testing.T) {
	a := parseFixture(t)
	b := parseFixture(t)
	assert.Equal(t, a, b)
}

func TestParseReport_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t\n"},
		{"unrelated document", "Dear colleague,\nplease find attached the minutes.\n"},
		{"markup only", "<pre>\n=====\n</pre>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))
			assert.Equal(t, "format", ErrorKind(err))
		})
	}
}

func TestParseReport_HeaderOutsideWindow(t *testing.T) {
	text := strings.Repeat("preamble line\n", 30) + fixtureText(t)

	_, err := ParseReport(text)
	assert.ErrorIs(t, err, ErrFormat)

	r, err := ParseReportWithOptions(text, ParseOptions{HeaderWindow: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(719663), r.EventID)
}

func TestParseReport_TruncatedBeforeNodalPlanes(t *testing.T) {
	text := fixtureText(t)
	idx := strings.Index(text, "Major Double Couple")
	require.Positive(t, idx)

	r, err := ParseReport(text[:idx])
	require.Error(t, err)
	assert.Nil(t, r)
	assert.True(t, errors.Is(err, ErrIncompleteSolution))

	var ie *IncompleteSolutionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "nodal planes", ie.Block)
}

func TestParseReport_IncompleteBlocks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, text string) string
		block   string
		missing []string
	}{
		{
			name:    "second nodal plane missing",
			mutate:  func(t *testing.T, s string) string { return replaceLine(t, s, "Nodal Plane 2:", "") },
			block:   "nodal planes",
			missing: []string{"Nodal Plane 2"},
		},
		{
			name: "nodal plane short a value",
			mutate: func(t *testing.T, s string) string {
				return replaceLine(t, s, "Nodal Plane 1:", "Nodal Plane 1: 152 82")
			},
			block:   "nodal planes",
			missing: []string{"Nodal Plane 1 strike/dip/rake"},
		},
		{
			name:    "N axis missing",
			mutate:  func(t *testing.T, s string) string { return replaceLine(t, s, "N-axis", "") },
			block:   "principal axes",
			missing: []string{"N-axis"},
		},
		{
			name: "T axis repeated",
			mutate: func(t *testing.T, s string) string {
				return replaceLine(t, s, "P-axis", " T-axis ev= 7.73 trend= 197 plunge= 3")
			},
			block:   "principal axes",
			missing: []string{"T-axis (repeated)", "P-axis"},
		},
		{
			name:    "spherical element missing",
			mutate:  func(t *testing.T, s string) string { return replaceLine(t, s, "Mrt=", " Mrt= 3.18 Mrf= 0.50 EXP=22") },
			block:   "spherical tensor",
			missing: []string{"Mtf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(tt.mutate(t, fixtureText(t)))
			require.Error(t, err)

			var ie *IncompleteSolutionError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.block, ie.Block)
			assert.Equal(t, tt.missing, ie.Missing)
			assert.Equal(t, "incomplete", ErrorKind(err))
		})
	}
}

func TestParseReport_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		old   string
		repl  string
		label string
		line  int
	}{
		{"non-numeric depth", "Depth =", "Depth = six (km)", "Depth", 12},
		{"missing Mw", "Mw =", "", "Mw", 0},
		{"garbled moment", "Mo =", "Mo = 7.73x10^ (dyne x cm)", "Mo", 14},
		{"day of year mismatch", "2016/12/28 (363)", "2016/12/28 (300) 08:18:01.30 38.3777 -118.3602 1468305", "origin time", 10},
		{"latitude out of range", "2016/12/28 (363)", "2016/12/28 (363) 08:18:01.30 98.3777 -118.3602 1468305", "latitude", 10},
		{"axis order", "T-axis", " T-axis trend= 197 ev= 7.73 plunge= 3", "T-axis", 38},
		{"non-numeric rake", "Nodal Plane 2:", "Nodal Plane 2: 62 86 n/a", "Nodal Plane 2", 26},
		{"station too far", "REDF", " NN REDF Y 30000 27 207 0.020 0.050 wus", "station REDF distance", 47},
		{"azimuth 360", "MPK", " NN MPK Y 71.3 360 122 0.020 0.050 wus", "station MPK azimuth", 48},
		{"bad defining flag", "WDEM", " NN WDEM maybe 97.2 181 1 0.020 0.050 wus", "station WDEM def", 49},
		{"station row missing a column", "PAH", " NN PAH Y 120.4 333 153 0.020 0.050", "station PAH", 50},
		{"station row with extra column", "BEK", " NN BEK Y 146.2 82 263 0.020 0.050 wus extra", "station BEK", 51},
		{"used count disagrees with table", "Used=7", " Number of Stations (defining only) = 6 Used=6", "Used", 43},
		{"missing event id", "Event ID", "", "Event ID", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(replaceLine(t, fixtureText(t), tt.old, tt.repl))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFieldParse))

			var fe *FieldParseError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.label, fe.Label)
			assert.Equal(t, tt.line, fe.Line)
			if tt.line > 0 {
				assert.Contains(t, err.Error(), "line")
				assert.NotEmpty(t, fe.Raw)
			}
		})
	}
}

func TestParseReport_LenientOptionalFields(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Epsilon =", "Epsilon = n/a")
	text = replaceLine(t, text, "REDF", " NN REDF Y 35.8 400 207 0.020 0.050 wus")

	_, err := ParseReport(text)
	require.ErrorIs(t, err, ErrFieldParse)

	r, err := ParseReportWithOptions(text, ParseOptions{Lenient: true})
	require.NoError(t, err)
	assert.Nil(t, r.Epsilon)
	require.Len(t, r.Warnings, 2)
	for _, w := range r.Warnings {
		assert.ErrorIs(t, w, ErrFieldParse)
	}
	assert.Len(t, r.Stations, 6)
	assert.Equal(t, "MPK", r.Stations[0].Code)
}

func TestParseReport_MisTokenizedStationRowFailsInLenientMode(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "PAH", " NN PAH Y 120.4 333 153 0.020 0.050")

	r, err := ParseReportWithOptions(text, ParseOptions{Lenient: true})
	require.ErrorIs(t, err, ErrFieldParse)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "expected 9 columns, got 8")
}

func TestParseReport_StationTableEndsAtNonStationLine(t *testing.T) {
	tests := []struct {
		name string
		next string
	}{
		{"label line", "Author: NSL analyst"},
		{"version line", "mtinv Version 3.0.6 2016/10/21"},
		{"prose", "REVIEWED BY NSL STAFF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := replaceLine(t, fixtureText(t), "Author:", tt.next)

			r, err := ParseReport(text)
			require.NoError(t, err)
			assert.Len(t, r.Stations, 7)
			assert.Equal(t, "LHV", r.Stations[6].Code)
		})
	}
}

func TestParseReport_LenientKeepsRequiredFatal(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Mw =", "Mw = big")

	_, err := ParseReportWithOptions(text, ParseOptions{Lenient: true})
	require.ErrorIs(t, err, ErrFieldParse)

	text = replaceLine(t, fixtureText(t), "Nodal Plane 1:", "")
	_, err = ParseReportWithOptions(text, ParseOptions{Lenient: true})
	require.ErrorIs(t, err, ErrIncompleteSolution)
}

func TestParseReport_OptionalFieldsAbsent(t *testing.T) {
	text := fixtureText(t)
	for _, label := range []string{"Percent CLVD", "Total Fit", "Author:", "Date:", "Used=", "Moment Tensor Elements: Cartesian", " -2.62 -0.84", " -0.84  7.61", "3.18 -0.50 -4.99"} {
		text = replaceLine(t, text, label, "")
	}

	r, err := ParseReport(text)
	require.NoError(t, err)
	assert.Nil(t, r.CLVD)
	assert.Nil(t, r.TotalFit)
	assert.Nil(t, r.CreationTime)
	assert.Nil(t, r.StationsUsed)
	assert.Nil(t, r.Cartesian)
	assert.Empty(t, r.Author)
	assert.NotNil(t, r.DoubleCouple)
}

func TestParseReport_ExponentHandling(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Mrr=", " Mrr= -4.99e21 Mtt= -2.62 Mff= 7.61")
	text = replaceLine(t, text, "3.18 -0.50 -4.99 EXP=22", "  3.18 -0.50 -4.99")

	r, err := ParseReport(text)
	require.NoError(t, err)
	assert.Equal(t, Scaled{-4.99, 21}, r.Spherical.Mrr)
	assert.Equal(t, Scaled{-2.62, 22}, r.Spherical.Mtt)
	require.NotNil(t, r.Cartesian)
	assert.Equal(t, 22, r.Cartesian.Mxx.Exp, "falls back to the spherical block exponent")
	assert.Equal(t, 22, r.Axes.T.Eigenvalue.Exp)
}

func TestParseReport_AlternateSpellings(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Mrr=", " Mrr= -4.99 Mtt= -2.62 Mpp= 7.61")
	text = replaceLine(t, text, "Mrt=", " Mrt= 3.18 Mrp= 0.50 Mtp= 0.84 EXP=22")
	text = replaceLine(t, text, "Net  Sta", " network station used dist az baz lo-f hi-f model")
	text = strings.ReplaceAll(text, "\n", "\r\n")

	r, err := ParseReport(text)
	require.NoError(t, err)
	assert.Equal(t, Scaled{7.61, 22}, r.Spherical.Mff)
	assert.Equal(t, Scaled{0.84, 22}, r.Spherical.Mtf)
	assert.Len(t, r.Stations, 7)
}

func TestParseReport_StationTableWithoutOptionalColumns(t *testing.T) {
	text := fixtureText(t)
	text = replaceLine(t, text, "Net  Sta", " Net Sta Def Distance Azimuth")
	text = replaceLine(t, text, "Used=7", " Number of Stations (defining only) = 0 Used=0")
	rows := []string{"REDF", "MPK", "WDEM", "PAH", "BEK", "KVN", "LHV"}
	for i, code := range rows {
		net := "NN"
		if i >= 5 {
			net = "SN"
		}
		text = replaceLine(t, text, " "+code+" ", " "+net+" "+code+" N 100 10")
	}

	r, err := ParseReport(text)
	require.NoError(t, err)
	require.Len(t, r.Stations, 7)
	assert.False(t, r.Stations[0].Defining)
	assert.Nil(t, r.Stations[0].BackAzimuth)
	assert.Nil(t, r.Stations[0].LowFrequency)
	assert.Empty(t, r.Stations[0].VelocityModel)
	assert.Empty(t, r.DefiningStations())
}

func TestParseReport_Reviewed(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Author:", "Author: NSL analyst REVIEWED BY NSL STAFF")

	r, err := ParseReport(text)
	require.NoError(t, err)
	assert.True(t, r.Reviewed)
}

func TestParseReport_OriginIDFromEventLine(t *testing.T) {
	r, err := ParseReport(replaceLine(t, fixtureText(t), "Origin ID:", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1468305), r.OriginID)
}

func TestParseReport_ZeroOriginID(t *testing.T) {
	text := replaceLine(t, fixtureText(t), "Origin ID:", "Origin ID: 0")

	r, err := ParseReport(text)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.OriginID, "labeled origin id wins over the event line column")

	text = replaceLine(t, text, "Origin ID:", "")
	text = replaceLine(t, text, "2016/12/28 (363)", "2016/12/28 (363) 08:18:01.30 38.3777 -118.3602 0")
	r, err = ParseReport(text)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.OriginID)
}

func TestParseScaled(t *testing.T) {
	tests := []struct {
		in   string
		want Scaled
		ok   bool
	}{
		{"7.73x10^22 (dyne x cm)", Scaled{7.73, 22}, true},
		{"-1.5e3", Scaled{-1.5, 3}, true},
		{"+2E-2", Scaled{2, -2}, true},
		{".5", Scaled{0.5, 0}, true},
		{"6.0 (km)", Scaled{6, 0}, true},
		{"78 %", Scaled{78, 0}, true},
		{"78%", Scaled{78, 0}, true},
		{"35.8,", Scaled{35.8, 0}, true},
		{"abc", Scaled{}, false},
		{"4x", Scaled{}, false},
		{"6.0.1", Scaled{}, false},
		{"1e400", Scaled{}, false},
		{"", Scaled{}, false},
		{"-", Scaled{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseScaled(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize(t *testing.T) {
	text := "<pre>\r\n=====\r\n  Depth   =  6.0  \r\n\r\n---\r\n Mw = 4.53\r\n</pre>\r\n"

	lines := Tokenize(text)

	require.Len(t, lines, 2)
	assert.Equal(t, Line{Index: 2, Text: "Depth = 6.0"}, lines[0])
	assert.Equal(t, 3, lines[0].Number())
	assert.Equal(t, []string{"Mw", "=", "4.53"}, lines[1].Tokens())
}

func TestFindLabeled(t *testing.T) {
	lines := Tokenize("Moment Tensor Elements\nMo = 7.73x10^22\nMw: 4.53\nMwr 5\n")

	_, rest, ok := findLabeled(lines, "Mo")
	require.True(t, ok)
	assert.Equal(t, "7.73x10^22", rest)

	_, rest, ok = findLabeled(lines, "Mw")
	require.True(t, ok)
	assert.Equal(t, "4.53", rest)

	_, _, ok = findLabeled(lines, "Depth")
	assert.False(t, ok)
}
