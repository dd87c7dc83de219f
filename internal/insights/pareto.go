package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/scenario"
)

// RankedRow is a scenario result placed in the Pareto ranking.
type RankedRow struct {
	scenario.Result
	Rank             int     `json:"rank"`
	CumulativeVolume int64   `json:"cumulative_volume"`
	CumulativePct    float64 `json:"cumulative_pct"`
	Priority         bool    `json:"priority"`
}

// Ranking is a segment's results ordered by avoided volume, with the
// priority subset whose cumulative share stays within the threshold.
type Ranking struct {
	Rows         []RankedRow `json:"rows"`
	Priority     []RankedRow `json:"priority"`
	TotalAvoided int64       `json:"total_avoided_volume"`
}

// Rank orders results by avoided volume descending. Ties keep the input
// order. cumulative_pct is 100*cumulative/total, or 0 for every row when
// the total is 0. Rows with cumulative_pct <= config.ParetoThresholdPct
// form the priority subset; the row that crosses the threshold is left out.
func Rank(results []scenario.Result) Ranking {
	rows := make([]RankedRow, len(results))
	for i, r := range results {
		rows[i] = RankedRow{Result: r}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].AvoidedContactVolume > rows[j].AvoidedContactVolume
	})

	var total int64
	for _, r := range rows {
		total += r.AvoidedContactVolume
	}

	out := Ranking{Rows: rows, Priority: []RankedRow{}, TotalAvoided: total}
	var cum int64
	for i := range rows {
		cum += rows[i].AvoidedContactVolume
		rows[i].Rank = i + 1
		rows[i].CumulativeVolume = cum
		if total > 0 {
			rows[i].CumulativePct = 100 * float64(cum) / float64(total)
		}
		rows[i].Priority = rows[i].CumulativePct <= config.ParetoThresholdPct
		if rows[i].Priority {
			out.Priority = append(out.Priority, rows[i])
		}
	}
	return out
}

// RankSegment runs the calculator for every subchannel of segment, in
// ascending normalized-name order, and ranks the results. The tribe of each
// subchannel is detected from the data. It stops with ctx.Err() when the
// context ends between subchannels.
func RankSegment(ctx context.Context, calc *scenario.Calculator, segment string, period int, volume int64) (Ranking, error) {
	segment = strings.TrimSpace(segment)
	subs := calc.Table.Subchannels(segment, period)
	if len(subs) == 0 {
		scope := perfdata.Scope{Segment: segment, Period: period}
		return Ranking{}, fmt.Errorf("%w: %s", scenario.ErrNoDataForScope, scope)
	}
	results := make([]scenario.Result, 0, len(subs))
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return Ranking{}, err
		}
		res, err := calc.Compute(ctx, scenario.Request{
			Segment:           segment,
			Subchannel:        sub,
			Period:            period,
			TransactionVolume: volume,
		})
		if errors.Is(err, scenario.ErrNoDataForScope) {
			continue
		}
		if err != nil {
			return Ranking{}, err
		}
		results = append(results, res)
	}
	return Rank(results), nil
}

// Insight summarizes a ranking in the terms the business reads it.
type Insight struct {
	TotalAvoided        int64    `json:"total_avoided_volume"`
	PriorityCount       int      `json:"priority_count"`
	PrioritySubchannels []string `json:"priority_subchannels"`
	Summary             string   `json:"summary"`
}

// Summarize builds the insight text of a ranking.
func Summarize(r Ranking) Insight {
	names := make([]string, 0, len(r.Priority))
	for _, p := range r.Priority {
		names = append(names, p.Subchannel)
	}
	in := Insight{
		TotalAvoided:        r.TotalAvoided,
		PriorityCount:       len(names),
		PrioritySubchannels: names,
	}
	total := fmt.Sprintf("Volume total estimado de CR evitado: %s.", FormatInt(r.TotalAvoided))
	threshold := FormatInt(int64(config.ParetoThresholdPct))
	switch {
	case len(r.Rows) == 0:
		in.Summary = total + " Nenhum subcanal com potencial calculado."
		return in
	case in.PriorityCount == 0:
		// the top row alone crosses the threshold
		in.Summary = fmt.Sprintf("%s O subcanal %s sozinho supera %s%% do potencial. Priorize esse subcanal para maximizar impacto.", total, r.Rows[0].Subchannel, threshold)
		return in
	}
	in.Summary = fmt.Sprintf(
		"%s %d subcanais concentram %s%% do potencial: %s. Priorize esses subcanais para maximizar impacto.",
		total, in.PriorityCount, threshold, strings.Join(names, ", "),
	)
	return in
}
