package domain

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	eventTimeLayout = "2006/01/02 15:04:05"
	maxDistanceKm   = 20037
)

var (
	// eventLineRe matches "2016/12/28 (363) 08:18:01.30 38.3777 -118.3602 1468305".
	eventLineRe = regexp.MustCompile(`^(\d{4}/\d{2}/\d{2})\s+\((\d{1,3})\)\s+(\S+)\s+(\S+)\s+(\S+)(?:\s+(\d+))?`)
	axisLineRe  = regexp.MustCompile(`^([TNP])-axis\b(.*)$`)
	usedRe      = regexp.MustCompile(`\bUsed=\s*(\S+)`)
	gapRe       = regexp.MustCompile(`\bGap=\s*(\S+)`)
	closestRe   = regexp.MustCompile(`\bDistance=\s*(\S+)`)
	versionRe   = regexp.MustCompile(`(?i)^mtinv\s+version\s+\S+`)
	reviewedRe  = regexp.MustCompile(`(?i)\breviewed\s+by\b`)

	networkCodeRe = regexp.MustCompile(`^[A-Z0-9]{1,2}$`)
	stationCodeRe = regexp.MustCompile(`^[A-Z0-9]{1,5}$`)
)

// Spherical components may also be written in the r, t, p convention.
var sphericalAliases = map[string]string{
	"Mpp": "Mff",
	"Mrp": "Mrf",
	"Mtp": "Mtf",
}

var stationColumns = map[string]string{
	"net":         "net",
	"network":     "net",
	"sta":         "sta",
	"station":     "sta",
	"def":         "def",
	"used":        "def",
	"dist":        "dist",
	"distance":    "dist",
	"az":          "az",
	"azi":         "az",
	"azimuth":     "az",
	"baz":         "baz",
	"backazimuth": "baz",
	"lof":         "lof",
	"lo-f":        "lof",
	"hif":         "hif",
	"hi-f":        "hif",
	"model":       "model",
}

var requiredStationColumns = []string{"net", "sta", "def", "dist", "az"}

// ParseOptions tunes ParseReportWithOptions.
type ParseOptions struct {
	// Lenient records FieldParseErrors of optional fields in Report.Warnings
	// instead of failing. Required fields and grouped blocks stay fatal.
	Lenient bool
	// HeaderWindow bounds how many kept lines may precede the header.
	// Zero means HeaderWindow.
	HeaderWindow int
}

// ParseReport parses an mtinv text report with the default strict policy.
func ParseReport(text string) (*Report, error) {
	return ParseReportWithOptions(text, ParseOptions{})
}

// ParseReportWithOptions parses an mtinv text report. It returns either a
// complete Report or an error; there is no partial result.
func ParseReportWithOptions(text string, opts ParseOptions) (*Report, error) {
	lines := Tokenize(text)
	if len(lines) == 0 {
		return nil, &FormatError{Reason: "empty input"}
	}
	if _, ok := findHeader(lines, opts.HeaderWindow); !ok {
		return nil, &FormatError{Reason: "no mtinv moment tensor solution header"}
	}

	p := &parser{lines: lines, opts: opts, r: &Report{}}
	steps := []func() error{
		p.identifiers,
		p.eventLine,
		p.scalars,
		p.nodalPlanes,
		p.spherical,
		p.cartesian,
		p.axes,
		p.stations,
		p.trailer,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return p.r, nil
}

type parser struct {
	lines []Line
	opts  ParseOptions
	r     *Report

	// sphericalExp is the spherical block's EXP, shared by the eigenvalues
	// and by a Cartesian block that omits its own.
	sphericalExp int
	haveOrigin   bool
}

// soft downgrades an optional-field parse error to a warning in lenient mode.
func (p *parser) soft(err error) error {
	if err == nil {
		return nil
	}
	if p.opts.Lenient && errors.Is(err, ErrFieldParse) {
		p.r.Warnings = append(p.r.Warnings, err)
		return nil
	}
	return err
}

func requiredError(label string) error {
	return &FieldParseError{Label: label, Reason: "required field not found"}
}

func (p *parser) identifiers() error {
	id, found, err := labeledInt(p.lines, "Event ID")
	if err != nil {
		return err
	}
	if !found {
		return requiredError("Event ID")
	}
	p.r.EventID = id

	// Origin ID may instead come from the trailing column of the event line.
	orid, found, err := labeledInt(p.lines, "Origin ID")
	if err != nil {
		return err
	}
	if found {
		p.r.OriginID = orid
		p.haveOrigin = true
	}

	if _, rest, ok := findLabeled(p.lines, "Algorithm"); ok {
		p.r.Algorithm = rest
	}
	return nil
}

func (p *parser) eventLine() error {
	for _, l := range p.lines {
		m := eventLineRe.FindStringSubmatch(l.Text)
		if m == nil {
			continue
		}
		t, err := time.Parse(eventTimeLayout, m[1]+" "+m[3])
		if err != nil {
			return fieldError("origin time", l, "invalid date/time")
		}
		doy, _ := strconv.Atoi(m[2])
		if t.YearDay() != doy {
			return fieldError("origin time", l, "day of year "+m[2]+" does not match date "+m[1])
		}
		lat, ok := parseNumber(m[4])
		if !ok || lat < -90 || lat > 90 {
			return fieldError("latitude", l, "not a valid latitude")
		}
		lon, ok := parseNumber(m[5])
		if !ok || lon < -180 || lon > 180 {
			return fieldError("longitude", l, "not a valid longitude")
		}
		if m[6] != "" && !p.haveOrigin {
			p.r.OriginID, _ = strconv.ParseInt(m[6], 10, 64)
			p.haveOrigin = true
		}
		p.r.OriginTime = t
		p.r.Latitude = lat
		p.r.Longitude = lon
		break
	}
	if p.r.OriginTime.IsZero() {
		return requiredError("origin time")
	}
	if !p.haveOrigin {
		return requiredError("Origin ID")
	}
	return nil
}

func (p *parser) scalars() error {
	required := []struct {
		label string
		dst   *float64
	}{
		{"Depth", &p.r.Depth},
		{"Mw", &p.r.Mw},
	}
	for _, f := range required {
		v, found, err := labeledNumber(p.lines, f.label)
		if err != nil {
			return err
		}
		if !found {
			return requiredError(f.label)
		}
		*f.dst = v
	}

	mo, found, err := labeledScaled(p.lines, "Mo")
	if err != nil {
		return err
	}
	if !found {
		return requiredError("Mo")
	}
	p.r.ScalarMoment = mo

	optional := []struct {
		label string
		dst   **float64
	}{
		{"Percent Double Couple", &p.r.DoubleCouple},
		{"Percent CLVD", &p.r.CLVD},
		{"Percent ISO", &p.r.ISO},
		{"Epsilon", &p.r.Epsilon},
		{"Percent Variance Reduction", &p.r.VarianceReduction},
		{"Total Fit", &p.r.TotalFit},
	}
	for _, f := range optional {
		v, found, err := labeledNumber(p.lines, f.label)
		if err != nil {
			if err := p.soft(err); err != nil {
				return err
			}
			continue
		}
		if found {
			*f.dst = &v
		}
	}
	return nil
}

func (p *parser) nodalPlanes() error {
	const block = "nodal planes"
	start := -1
	for i, l := range p.lines {
		if strings.EqualFold(l.Text, "strike dip rake") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return &IncompleteSolutionError{Block: block, Missing: []string{"strike dip rake header", "Nodal Plane 1", "Nodal Plane 2"}}
	}

	var absent []string
	for i, label := range []string{"Nodal Plane 1", "Nodal Plane 2"} {
		l, rest, ok := findLabeled(p.lines[start:], label)
		if !ok {
			absent = append(absent, label)
			continue
		}
		vals := strings.Fields(rest)
		if len(vals) != 3 {
			absent = append(absent, label+" strike/dip/rake")
			continue
		}
		var triple [3]float64
		for j, v := range vals {
			f, ok := parseNumber(v)
			if !ok {
				return fieldError(label, l, "not a number")
			}
			triple[j] = f
		}
		p.r.NodalPlanes[i] = NodalPlane{Strike: triple[0], Dip: triple[1], Rake: triple[2]}
	}
	if len(absent) > 0 {
		return &IncompleteSolutionError{Block: block, Missing: absent}
	}
	return nil
}

func (p *parser) spherical() error {
	const block = "spherical tensor"
	names := []string{"Mrr", "Mtt", "Mff", "Mrt", "Mrf", "Mtf"}
	i, ok := findContaining(p.lines, "Spherical Coordinates")
	if !ok {
		return &IncompleteSolutionError{Block: block, Missing: names}
	}
	vals, exp, err := components(p.lines[i+1:], block)
	if err != nil {
		return err
	}
	p.sphericalExp = exp
	for alias, name := range sphericalAliases {
		if v, ok := vals[alias]; ok {
			vals[name] = v
		}
	}
	if absent := missing(vals, names...); len(absent) > 0 {
		return &IncompleteSolutionError{Block: block, Missing: absent}
	}
	p.r.Spherical = SphericalTensor{
		Mrr: vals["Mrr"], Mtt: vals["Mtt"], Mff: vals["Mff"],
		Mrt: vals["Mrt"], Mrf: vals["Mrf"], Mtf: vals["Mtf"],
	}
	return nil
}

// cartesian reads the optional 3x3 block. The upper triangle is kept; a
// block without its own EXP takes the spherical block's exponent.
func (p *parser) cartesian() error {
	const label = "cartesian tensor"
	i, ok := findContaining(p.lines, "Cartesian Coordinates")
	if !ok {
		return nil
	}
	rows := p.lines[i+1:]
	if len(rows) < 3 {
		return p.soft(&FieldParseError{Label: label, Line: p.lines[i].Number(), Raw: p.lines[i].Text, Reason: "expected 3 rows"})
	}

	var m [3][3]float64
	exp := p.sphericalExp
	for r, l := range rows[:3] {
		var nums []float64
		for _, tok := range l.Tokens() {
			if v, ok := strings.CutPrefix(tok, "EXP="); ok {
				e, err := strconv.Atoi(v)
				if err != nil {
					return p.soft(fieldError(label+" EXP", l, "not an integer"))
				}
				exp = e
				continue
			}
			f, ok := parseNumber(tok)
			if !ok {
				return p.soft(fieldError(label, l, "not a number"))
			}
			nums = append(nums, f)
		}
		if len(nums) != 3 {
			return p.soft(fieldError(label, l, "expected 3 values"))
		}
		copy(m[r][:], nums)
	}

	at := func(r, c int) Scaled { return Scaled{Mantissa: m[r][c], Exp: exp} }
	p.r.Cartesian = &CartesianTensor{
		Mxx: at(0, 0), Mxy: at(0, 1), Mxz: at(0, 2),
		Myy: at(1, 1), Myz: at(1, 2), Mzz: at(2, 2),
	}
	return nil
}

func (p *parser) axes() error {
	const block = "principal axes"
	exp := p.sphericalExp
	seen := make(map[string]int)
	parsed := make(map[string]Axis)
	for _, l := range p.lines {
		m := axisLineRe.FindStringSubmatch(l.Text)
		if m == nil {
			continue
		}
		name := m[1]
		seen[name]++
		pairs := componentRe.FindAllStringSubmatch(m[2], -1)
		if len(pairs) != 3 || pairs[0][1] != "ev" || pairs[1][1] != "trend" || pairs[2][1] != "plunge" {
			return fieldError(name+"-axis", l, "expected ev=, trend=, plunge=")
		}
		var vals [3]float64
		for i, pair := range pairs {
			v, ok := parseNumber(pair[2])
			if !ok {
				return fieldError(name+"-axis "+pair[1], l, "not a number")
			}
			vals[i] = v
		}
		parsed[name] = Axis{Eigenvalue: Scaled{Mantissa: vals[0], Exp: exp}, Trend: vals[1], Plunge: vals[2]}
	}

	var problems []string
	for _, name := range []string{"T", "N", "P"} {
		switch seen[name] {
		case 0:
			problems = append(problems, name+"-axis")
		case 1:
		default:
			problems = append(problems, name+"-axis (repeated)")
		}
	}
	if len(problems) > 0 {
		return &IncompleteSolutionError{Block: block, Missing: problems}
	}
	p.r.Axes = PrincipalAxes{T: parsed["T"], N: parsed["N"], P: parsed["P"]}
	return nil
}

func (p *parser) stations() error {
	var usedLine Line
	for _, l := range p.lines {
		if m := usedRe.FindStringSubmatch(l.Text); m != nil {
			usedLine = l
			n, err := strconv.Atoi(strings.TrimRight(m[1], ",;"))
			if err != nil {
				if err := p.soft(fieldError("Used", l, "not an integer")); err != nil {
					return err
				}
			} else {
				p.r.StationsUsed = &n
			}
		}
		if m := gapRe.FindStringSubmatch(l.Text); m != nil {
			if v, ok := parseNumber(m[1]); ok {
				p.r.AzimuthalGap = &v
			} else if err := p.soft(fieldError("Gap", l, "not a number")); err != nil {
				return err
			}
		}
		if m := closestRe.FindStringSubmatch(l.Text); m != nil {
			if v, ok := parseNumber(m[1]); ok {
				p.r.ClosestDistance = &v
			} else if err := p.soft(fieldError("Distance", l, "not a number")); err != nil {
				return err
			}
		}
	}

	skipped := 0
	for i, l := range p.lines {
		cols, ok := tableHeader(l, stationColumns)
		if !ok || !hasColumns(cols, requiredStationColumns) {
			continue
		}
		for _, row := range p.lines[i+1:] {
			if !stationRow(cols, row) {
				break
			}
			fields, ok := zipRow(cols, row)
			if !ok {
				code := row.Tokens()[slices.Index(cols, "sta")]
				return fieldError("station "+code, row,
					fmt.Sprintf("expected %d columns, got %d", len(cols), len(row.Tokens())))
			}
			st, err := parseStation(fields, row)
			if err != nil {
				if err := p.soft(err); err != nil {
					return err
				}
				skipped++
				continue
			}
			p.r.Stations = append(p.r.Stations, st)
		}
		break
	}

	// Rows skipped in lenient mode already account for any shortfall.
	if p.r.StationsUsed != nil && skipped == 0 {
		if n := len(p.r.DefiningStations()); n != *p.r.StationsUsed {
			reason := fmt.Sprintf("table lists %d defining stations, header says %d", n, *p.r.StationsUsed)
			if err := p.soft(fieldError("Used", usedLine, reason)); err != nil {
				return err
			}
		}
	}
	return nil
}

// stationRow reports whether l reads as a row of the station table: no label
// punctuation, and network and station codes where the header puts them.
// A row that passes but has the wrong arity is an error, not the table's end.
func stationRow(cols []string, l Line) bool {
	if strings.ContainsAny(l.Text, ":=") {
		return false
	}
	toks := l.Tokens()
	for col, re := range map[string]*regexp.Regexp{"net": networkCodeRe, "sta": stationCodeRe} {
		i := slices.Index(cols, col)
		if i < 0 || i >= len(toks) || !re.MatchString(toks[i]) {
			return false
		}
	}
	return true
}

func hasColumns(cols, want []string) bool {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func parseStation(f map[string]string, l Line) (Station, error) {
	st := Station{Network: f["net"], Code: f["sta"], VelocityModel: f["model"]}

	switch strings.ToLower(f["def"]) {
	case "y", "yes", "true", "1", "d":
		st.Defining = true
	case "n", "no", "false", "0", "u":
	default:
		return Station{}, fieldError("station "+st.Code+" def", l, "not a defining flag")
	}

	var ok bool
	if st.Distance, ok = parseNumber(f["dist"]); !ok || st.Distance < 0 || st.Distance > maxDistanceKm {
		return Station{}, fieldError("station "+st.Code+" distance", l, "out of range [0, 20037] km")
	}
	if st.Azimuth, ok = parseNumber(f["az"]); !ok || !validAzimuth(st.Azimuth) {
		return Station{}, fieldError("station "+st.Code+" azimuth", l, "out of range [0, 360)")
	}
	if raw, present := f["baz"]; present {
		v, ok := parseNumber(raw)
		if !ok || !validAzimuth(v) {
			return Station{}, fieldError("station "+st.Code+" back azimuth", l, "out of range [0, 360)")
		}
		st.BackAzimuth = &v
	}
	for _, c := range []struct {
		col string
		dst **float64
	}{{"lof", &st.LowFrequency}, {"hif", &st.HighFrequency}} {
		raw, present := f[c.col]
		if !present {
			continue
		}
		v, ok := parseNumber(raw)
		if !ok || v < 0 {
			return Station{}, fieldError("station "+st.Code+" "+c.col, l, "not a frequency")
		}
		*c.dst = &v
	}
	return st, nil
}

func validAzimuth(v float64) bool { return v >= 0 && v < 360 }

func (p *parser) trailer() error {
	if _, rest, ok := findLabeled(p.lines, "Author"); ok {
		p.r.Author = rest
	}
	if l, rest, ok := findLabeled(p.lines, "Date"); ok {
		t, err := time.Parse(eventTimeLayout, rest)
		if err != nil {
			if err := p.soft(fieldError("Date", l, "invalid date/time")); err != nil {
				return err
			}
		} else {
			p.r.CreationTime = &t
		}
	}
	for _, l := range p.lines {
		if p.r.Version == "" && versionRe.MatchString(l.Text) {
			p.r.Version = l.Text
		}
		if reviewedRe.MatchString(l.Text) {
			p.r.Reviewed = true
		}
	}
	return nil
}
