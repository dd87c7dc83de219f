package perfdata

import (
	"sort"
	"strings"
)

// Stats summarizes what happened while building a Table.
type Stats struct {
	SourceRows       int `json:"source_rows"`
	KeptRows         int `json:"kept_rows"`
	DroppedNonReal   int `json:"dropped_non_real"`
	MalformedVolumes int `json:"malformed_volumes"`
	MissingPeriods   int `json:"missing_periods"`
}

// Table is the immutable, "Real"-only performance table. All accessors
// return copies; nothing handed out aliases the internal slice.
type Table struct {
	rows  []Row
	stats Stats
}

// NewTable copies rows, derives their normalized keys and keeps only
// "Real" observations. When hasRecordType is false (the source had no
// record type column) every row is kept.
func NewTable(rows []Row, hasRecordType bool) *Table {
	t := &Table{rows: make([]Row, 0, len(rows))}
	t.stats.SourceRows = len(rows)
	for _, r := range rows {
		if hasRecordType && !strings.EqualFold(strings.TrimSpace(r.RecordType), RecordTypeReal) {
			t.stats.DroppedNonReal++
			continue
		}
		r.Keys = keysFor(r)
		if r.VolumeMalformed {
			t.stats.MalformedVolumes++
		}
		if r.Period == 0 {
			t.stats.MissingPeriods++
		}
		t.rows = append(t.rows, r)
	}
	t.stats.KeptRows = len(t.rows)
	return t
}

// Len returns the number of kept rows.
func (t *Table) Len() int { return len(t.rows) }

// Stats returns load statistics.
func (t *Table) Stats() Stats { return t.stats }

// Rows returns a copy of every kept row in source order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Select returns the rows matching scope, in source order.
func (t *Table) Select(scope Scope) []Row {
	m := scope.matcher()
	var out []Row
	for i := range t.rows {
		if m.match(&t.rows[i]) {
			out = append(out, t.rows[i])
		}
	}
	return out
}

// Has reports whether any row matches scope.
func (t *Table) Has(scope Scope) bool {
	m := scope.matcher()
	for i := range t.rows {
		if m.match(&t.rows[i]) {
			return true
		}
	}
	return false
}

// Segments lists distinct segments ordered by normalized name. The display
// spelling is the first one seen.
func (t *Table) Segments() []string {
	return t.distinct(Scope{}, func(r *Row) (string, string) { return r.Keys.Segment, r.Segment })
}

// Subchannels lists the distinct subchannels of a segment (optionally of a
// single period) ordered by normalized name.
func (t *Table) Subchannels(segment string, period int) []string {
	return t.distinct(Scope{Segment: segment, Period: period}, func(r *Row) (string, string) {
		return r.Keys.Subchannel, r.Subchannel
	})
}

// Tribes lists the distinct tribes of a scope ordered by normalized name.
func (t *Table) Tribes(scope Scope) []string {
	return t.distinct(scope, func(r *Row) (string, string) { return r.Keys.Tribe, r.Tribe })
}

// FirstTribe returns the first non-empty tribe, in source order, among the
// rows of scope. ok is false when none has a tribe.
func (t *Table) FirstTribe(scope Scope) (tribe string, ok bool) {
	m := scope.matcher()
	for i := range t.rows {
		r := &t.rows[i]
		if !m.match(r) || r.Keys.Tribe == "" {
			continue
		}
		return strings.TrimSpace(r.Tribe), true
	}
	return "", false
}

// Periods lists the distinct non-zero periods in ascending order.
func (t *Table) Periods() []int {
	seen := map[int]struct{}{}
	for i := range t.rows {
		if p := t.rows[i].Period; p != 0 {
			seen[p] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// KPINames lists the distinct KPI labels ordered by normalized name.
func (t *Table) KPINames() []string {
	return t.distinct(Scope{}, func(r *Row) (string, string) { return r.Keys.KPI, r.KPIName })
}

func (t *Table) distinct(scope Scope, field func(*Row) (key, display string)) []string {
	m := scope.matcher()
	type entry struct{ key, display string }
	seen := map[string]struct{}{}
	var entries []entry
	for i := range t.rows {
		r := &t.rows[i]
		if !m.match(r) {
			continue
		}
		key, display := field(r)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry{key: key, display: strings.TrimSpace(display)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.display
	}
	return out
}
