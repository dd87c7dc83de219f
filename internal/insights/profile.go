package insights

import (
	"context"
	"fmt"
	"sort"

	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/kpi"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/runtime"
	"github.com/vinodismyname/crcalc/internal/textnorm"
)

// DescribeDatasetInput names the dataset to profile.
type DescribeDatasetInput struct {
	DatasetID string `json:"dataset_id" jsonschema_description:"Dataset handle returned by open_dataset" validate:"required"`
}

// SubchannelProfile lists a subchannel with its detected tribe.
type SubchannelProfile struct {
	Name  string `json:"name"`
	Tribe string `json:"tribe"`
	Rows  int    `json:"rows"`
}

// SegmentProfile groups the subchannels and tribes of a segment.
type SegmentProfile struct {
	Segment     string              `json:"segment"`
	Subchannels []SubchannelProfile `json:"subchannels"`
	Tribes      []string            `json:"tribes"`
}

// KPIMatch reports how a KPI label is read by the locator.
type KPIMatch struct {
	Name    string  `json:"name"`
	Concept string  `json:"concept"`
	Tier    string  `json:"tier"`
	Rows    int     `json:"rows"`
	Volume  float64 `json:"volume"`
}

// DescribeDatasetOutput is the profile of a loaded dataset.
type DescribeDatasetOutput struct {
	DatasetID string           `json:"dataset_id"`
	Rows      int              `json:"rows"`
	Stats     perfdata.Stats   `json:"stats"`
	Periods   []int            `json:"periods"`
	Segments  []SegmentProfile `json:"segments"`
	KPIs      []KPIMatch       `json:"kpis"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// Profiler holds dependencies for dataset profiling.
type Profiler struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
}

// DescribeDataset profiles the dataset behind in.DatasetID.
func (p *Profiler) DescribeDataset(ctx context.Context, in DescribeDatasetInput) (DescribeDatasetOutput, error) {
	tbl, err := p.Mgr.Table(in.DatasetID)
	if err != nil {
		return DescribeDatasetOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return DescribeDatasetOutput{}, err
	}
	out := Profile(tbl)
	out.DatasetID = in.DatasetID
	return out, nil
}

// Profile lists segments, subchannels, tribes, periods and the KPI labels
// of t with the concept and tier each one matches, plus data quality
// warnings.
func Profile(t *perfdata.Table) DescribeDatasetOutput {
	out := DescribeDatasetOutput{
		Rows:     t.Len(),
		Stats:    t.Stats(),
		Periods:  t.Periods(),
		Segments: []SegmentProfile{},
		KPIs:     []KPIMatch{},
	}

	untribed := 0
	for _, seg := range t.Segments() {
		sp := SegmentProfile{Segment: seg, Tribes: t.Tribes(perfdata.Scope{Segment: seg})}
		for _, sub := range t.Subchannels(seg, 0) {
			scope := perfdata.Scope{Segment: seg, Subchannel: sub}
			tribe, ok := t.FirstTribe(scope)
			if !ok {
				tribe = config.UndefinedTribe
				untribed++
			}
			sp.Subchannels = append(sp.Subchannels, SubchannelProfile{Name: sub, Tribe: tribe, Rows: len(t.Select(scope))})
		}
		out.Segments = append(out.Segments, sp)
	}

	type acc struct {
		rows   int
		volume float64
	}
	byKey := map[string]*acc{}
	for _, r := range t.Rows() {
		a, ok := byKey[r.Keys.KPI]
		if !ok {
			a = &acc{}
			byKey[r.Keys.KPI] = a
		}
		a.rows++
		a.volume += r.Volume
	}
	seen := map[kpi.Concept]bool{}
	for _, name := range t.KPINames() {
		c, tier := kpi.Classify(name)
		seen[c] = true
		a := byKey[textnorm.Normalize(name)]
		m := KPIMatch{Name: name, Concept: c.String(), Tier: tier.String()}
		if a != nil {
			m.Rows = a.rows
			m.Volume = round2(a.volume)
		}
		out.KPIs = append(out.KPIs, m)
	}
	sort.SliceStable(out.KPIs, func(i, j int) bool { return out.KPIs[i].Concept < out.KPIs[j].Concept })

	out.Warnings = qualityChecks(out, seen, untribed)
	return out
}

func qualityChecks(p DescribeDatasetOutput, seen map[kpi.Concept]bool, untribed int) []string {
	var warnings []string
	for _, c := range kpi.Concepts {
		if !seen[c] {
			warnings = append(warnings, fmt.Sprintf("no KPI label matches %s (expected like %q); ratios fall back to defaults", c, c.Label()))
		}
	}
	if p.Stats.MalformedVolumes > 0 {
		warnings = append(warnings, fmt.Sprintf("%d volume cells could not be read as numbers and count as 0", p.Stats.MalformedVolumes))
	}
	if p.Stats.MissingPeriods > 0 && len(p.Periods) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows have no period and are ignored by period filters", p.Stats.MissingPeriods))
	}
	if untribed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d subchannels have no tribe and use %s with Web retention", untribed, config.UndefinedTribe))
	}
	if p.Rows == 0 {
		warnings = append(warnings, "no Real rows after filtering record types")
	}
	return warnings
}
