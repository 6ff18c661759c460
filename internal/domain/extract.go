package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// numberRe is the permissive numeric pattern: optional sign, digits with an
	// optional decimal point, and an optional "x10^NN" or "eNN" exponent. The
	// last group forces a clean boundary so "6.0.1" or "4x" are rejected.
	numberRe = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+))(?:(?:x10\^|[eE])([-+]?\d+))?(?:$|[\s%(),;])`)

	// componentRe finds "Name= value" pairs inside tensor and axis lines.
	componentRe = regexp.MustCompile(`\b([A-Za-z]+)=\s*(\S+)`)

	// blockExpRe picks the block exponent, e.g. "EXP=22".
	blockExpRe = regexp.MustCompile(`\bEXP=\s*([-+]?\d+)`)
)

// parseScaled parses the leading number of s into mantissa and exponent.
func parseScaled(s string) (Scaled, bool) {
	m := numberRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Scaled{}, false
	}
	mant, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(mant, 0) || math.IsNaN(mant) {
		return Scaled{}, false
	}
	exp := 0
	if m[2] != "" {
		exp, err = strconv.Atoi(m[2])
		if err != nil {
			return Scaled{}, false
		}
	}
	v := Scaled{Mantissa: mant, Exp: exp}
	if f := v.Value(); math.IsInf(f, 0) || math.IsNaN(f) {
		return Scaled{}, false
	}
	return v, true
}

// parseNumber parses the leading number of s as a finite float.
func parseNumber(s string) (float64, bool) {
	v, ok := parseScaled(s)
	if !ok {
		return 0, false
	}
	return v.Value(), true
}

// findLabeled returns the first line starting with label followed by "=" or
// ":" and the text after the separator.
func findLabeled(lines []Line, label string) (Line, string, bool) {
	for _, l := range lines {
		rest, ok := strings.CutPrefix(l.Text, label)
		if !ok {
			continue
		}
		rest = strings.TrimLeft(rest, " ")
		if rest == "" || (rest[0] != '=' && rest[0] != ':') {
			continue
		}
		return l, strings.TrimSpace(rest[1:]), true
	}
	return Line{}, "", false
}

// findContaining returns the index of the first line containing substr.
func findContaining(lines []Line, substr string) (int, bool) {
	for i, l := range lines {
		if strings.Contains(l.Text, substr) {
			return i, true
		}
	}
	return 0, false
}

// labeledNumber extracts a required or optional labeled scalar. found is
// false when the label does not occur.
func labeledNumber(lines []Line, label string) (v float64, found bool, err error) {
	l, rest, ok := findLabeled(lines, label)
	if !ok {
		return 0, false, nil
	}
	v, ok = parseNumber(rest)
	if !ok {
		return 0, true, fieldError(label, l, "not a number")
	}
	return v, true, nil
}

// labeledScaled is labeledNumber keeping mantissa and exponent apart.
func labeledScaled(lines []Line, label string) (v Scaled, found bool, err error) {
	l, rest, ok := findLabeled(lines, label)
	if !ok {
		return Scaled{}, false, nil
	}
	v, ok = parseScaled(rest)
	if !ok {
		return Scaled{}, true, fieldError(label, l, "not a number")
	}
	return v, true, nil
}

// labeledInt extracts an integer identifier such as "Event ID: 719663".
func labeledInt(lines []Line, label string) (int64, bool, error) {
	l, rest, ok := findLabeled(lines, label)
	if !ok {
		return 0, false, nil
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, true, fieldError(label, l, "empty value")
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, true, fieldError(label, l, "not an integer")
	}
	return n, true, nil
}

// components collects "Name= value" pairs from consecutive lines, stopping
// at the first line without any. Each value keeps its own exponent when it
// has one and otherwise takes the block "EXP=NN", which is also returned
// (0 when the block has none).
func components(lines []Line, label string) (map[string]Scaled, int, error) {
	vals := make(map[string]Scaled)
	own := make(map[string]bool)
	blockExp, hasExp := 0, false
	for _, l := range lines {
		pairs := componentRe.FindAllStringSubmatch(l.Text, -1)
		if len(pairs) == 0 {
			break
		}
		for _, p := range pairs {
			name, raw := p[1], p[2]
			if name == "EXP" {
				m := blockExpRe.FindStringSubmatch(l.Text)
				if m == nil {
					return nil, 0, fieldError(label+" EXP", l, "not an integer")
				}
				blockExp, _ = strconv.Atoi(m[1])
				hasExp = true
				continue
			}
			v, ok := parseScaled(raw)
			if !ok {
				return nil, 0, fieldError(label+" "+name, l, "not a number")
			}
			vals[name] = v
			own[name] = strings.ContainsAny(raw, "^eE")
		}
	}
	if hasExp {
		for name, v := range vals {
			if !own[name] {
				v.Exp = blockExp
				vals[name] = v
			}
		}
	}
	return vals, blockExp, nil
}

// missing returns the names absent from vals, in the order given.
func missing(vals map[string]Scaled, names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := vals[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// tableHeader maps header tokens to canonical column names. ok is false if
// any token is not a known column alias.
func tableHeader(l Line, aliases map[string]string) ([]string, bool) {
	toks := l.Tokens()
	cols := make([]string, len(toks))
	for i, t := range toks {
		c, ok := aliases[strings.ToLower(t)]
		if !ok {
			return nil, false
		}
		cols[i] = c
	}
	return cols, true
}

// zipRow associates a data line's tokens with the header's columns.
func zipRow(cols []string, l Line) (map[string]string, bool) {
	toks := l.Tokens()
	if len(toks) != len(cols) {
		return nil, false
	}
	row := make(map[string]string, len(cols))
	for i, c := range cols {
		row[c] = toks[i]
	}
	return row, true
}

func fieldError(label string, l Line, reason string) *FieldParseError {
	return &FieldParseError{Label: label, Line: l.Number(), Raw: l.Text, Reason: reason}
}
