package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrFormat             = errors.New("not an mtinv moment tensor report")
	ErrFieldParse         = errors.New("field parse error")
	ErrIncompleteSolution = errors.New("incomplete moment tensor solution")
)

// FormatError means the input does not look like a report at all.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// FieldParseError carries the label and line of a field that could not be
// parsed. Line is the 1-based line number in the raw text, 0 when the field
// was not found at all.
type FieldParseError struct {
	Label  string
	Line   int
	Raw    string
	Reason string
}

func (e *FieldParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("field %q: %s", e.Label, e.Reason)
	}
	return fmt.Sprintf("field %q at line %d: %s: %q", e.Label, e.Line, e.Reason, e.Raw)
}

func (e *FieldParseError) Is(target error) bool { return target == ErrFieldParse }

// IncompleteSolutionError reports a grouped block (nodal planes, eigen
// triad, tensor) that is absent or only partially present.
type IncompleteSolutionError struct {
	Block   string
	Missing []string
}

func (e *IncompleteSolutionError) Error() string {
	return fmt.Sprintf("%v: %s: missing %s", ErrIncompleteSolution, e.Block, strings.Join(e.Missing, ", "))
}

func (e *IncompleteSolutionError) Is(target error) bool { return target == ErrIncompleteSolution }

// ErrorKind names the error class for metrics and CLI diagnostics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrFieldParse):
		return "field"
	case errors.Is(err, ErrIncompleteSolution):
		return "incomplete"
	default:
		return "other"
	}
}
