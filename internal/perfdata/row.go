// Package perfdata holds the historical KPI performance table: its rows,
// the scope filters used to select them, and loaders for workbook and CSV
// sources. A Table is immutable once built and safe for concurrent readers.
package perfdata

import (
	"fmt"
	"strings"

	"github.com/vinodismyname/crcalc/internal/textnorm"
)

// RecordTypeReal marks actual (non-target) observations.
const RecordTypeReal = "real"

// Row is one observation of the performance table.
type Row struct {
	Period     int // yyyymm, 0 when absent
	RecordType string
	Segment    string
	Subchannel string
	Tribe      string
	KPIName    string
	Volume     float64

	// VolumeMalformed is set when a non-empty volume cell failed coercion
	// and Volume was forced to 0.
	VolumeMalformed bool

	// Keys are normalized copies of the label fields, filled by NewTable.
	Keys Keys
}

// Keys carries the normalized comparison keys of a Row.
type Keys struct {
	Segment    string
	Subchannel string
	Tribe      string
	KPI        string
}

func keysFor(r Row) Keys {
	return Keys{
		Segment:    textnorm.Normalize(r.Segment),
		Subchannel: textnorm.Normalize(r.Subchannel),
		Tribe:      textnorm.Normalize(r.Tribe),
		KPI:        textnorm.Normalize(r.KPIName),
	}
}

// Scope selects rows by segment, subchannel, tribe and period. Empty
// strings and a zero Period leave that dimension unconstrained.
type Scope struct {
	Segment    string
	Subchannel string
	Tribe      string
	Period     int
}

// WithoutTribe drops the tribe constraint.
func (s Scope) WithoutTribe() Scope {
	s.Tribe = ""
	return s
}

// WithoutSubchannel drops the subchannel constraint.
func (s Scope) WithoutSubchannel() Scope {
	s.Subchannel = ""
	return s
}

func (s Scope) String() string {
	parts := make([]string, 0, 4)
	if s.Segment != "" {
		parts = append(parts, "segment="+s.Segment)
	}
	if s.Subchannel != "" {
		parts = append(parts, "subchannel="+s.Subchannel)
	}
	if s.Tribe != "" {
		parts = append(parts, "tribe="+s.Tribe)
	}
	if s.Period != 0 {
		parts = append(parts, fmt.Sprintf("period=%d", s.Period))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}

// matcher is a Scope with its labels normalized once.
type matcher struct {
	segment    string
	subchannel string
	tribe      string
	period     int
}

func (s Scope) matcher() matcher {
	return matcher{
		segment:    textnorm.Normalize(s.Segment),
		subchannel: textnorm.Normalize(s.Subchannel),
		tribe:      textnorm.Normalize(s.Tribe),
		period:     s.Period,
	}
}

func (m matcher) match(r *Row) bool {
	if m.segment != "" && r.Keys.Segment != m.segment {
		return false
	}
	if m.subchannel != "" && r.Keys.Subchannel != m.subchannel {
		return false
	}
	if m.tribe != "" && r.Keys.Tribe != m.tribe {
		return false
	}
	if m.period != 0 && r.Period != m.period {
		return false
	}
	return true
}
