// Package diag carries the non-fatal diagnostics channel: a flat, ordered
// list of records accumulated during parsing and verification. Fatal errors
// travel as typed error values instead and never appear here twice.
package diag

import (
	"fmt"
	"sort"
)

// Severity of a diagnostic record.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Record is one diagnostic.
type Record struct {
	Unit     string
	Line     int
	Severity Severity
	Message  string
}

func (r Record) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", r.Unit, r.Line, r.Severity, r.Message)
}

// List is an append-only diagnostic accumulator. It is not safe for
// concurrent use; the compilation session is single-threaded.
type List struct {
	records []Record
}

// Add appends a record.
func (l *List) Add(unit string, line int, sev Severity, format string, args ...interface{}) {
	l.records = append(l.records, Record{
		Unit:     unit,
		Line:     line,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Infof, Warnf and Errorf append records of the respective severity.
func (l *List) Infof(unit string, line int, format string, args ...interface{}) {
	l.Add(unit, line, Info, format, args...)
}

func (l *List) Warnf(unit string, line int, format string, args ...interface{}) {
	l.Add(unit, line, Warning, format, args...)
}

func (l *List) Errorf(unit string, line int, format string, args ...interface{}) {
	l.Add(unit, line, Error, format, args...)
}

// Len returns the number of records.
func (l *List) Len() int { return len(l.records) }

// HasErrors reports whether any record has Error severity.
func (l *List) HasErrors() bool {
	for _, r := range l.records {
		if r.Severity == Error {
			return true
		}
	}
	return false
}

// Records returns the records sorted by (unit, line), the reporting order.
// The sort is stable so records on the same line keep insertion order.
func (l *List) Records() []Record {
	out := append([]Record(nil), l.records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// ForUnit returns the sorted records belonging to one source unit.
func (l *List) ForUnit(unit string) []Record {
	var out []Record
	for _, r := range l.Records() {
		if r.Unit == unit {
			out = append(out, r)
		}
	}
	return out
}
