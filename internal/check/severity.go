package check

import "fmt"

// Severity is the ordered scale findings are ranked on. The zero value is
// SeverityOK so an empty scan aggregates to OK.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalJSON serializes the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// AggregateSeverity returns the maximum severity across the given findings,
// SeverityOK for an empty slice.
func AggregateSeverity(findings []Finding) Severity {
	max := SeverityOK
	for _, f := range findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// ExitCode maps the aggregate severity of unresolved alerts to the
// process exit status: 0 for OK/INFO, 1 for WARNING, 2 for CRITICAL.
func ExitCode(aggregate Severity) int {
	switch aggregate {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}
