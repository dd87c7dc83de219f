package insights

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/ratios"
	"github.com/vinodismyname/crcalc/internal/runtime"
	"github.com/vinodismyname/crcalc/internal/scenario"
	"github.com/vinodismyname/crcalc/internal/textnorm"
	"github.com/vinodismyname/crcalc/pkg/pagination"
)

// ErrCursorMismatch reports a cursor issued for another dataset or query.
var ErrCursorMismatch = errors.New("cursor does not match request")

// RankSegmentInput ranks every subchannel of a segment for one simulated
// transaction volume. With a cursor, the remaining fields may be omitted.
type RankSegmentInput struct {
	DatasetID         string `json:"dataset_id,omitempty" jsonschema_description:"Dataset handle returned by open_dataset" validate:"required_without=Cursor"`
	Segment           string `json:"segment,omitempty" jsonschema_description:"Segment to rank (e.g. Móvel, Residencial)" validate:"required_without=Cursor"`
	Period            int    `json:"period,omitempty" jsonschema_description:"Optional yyyymm period restricting the historical ratios" validate:"omitempty,gte=190001,lte=299912"`
	TransactionVolume int64  `json:"transaction_volume,omitempty" jsonschema_description:"Simulated transaction volume applied to every subchannel" validate:"gte=0"`
	PageSize          int    `json:"page_size,omitempty" jsonschema_description:"Ranked rows per page (default 50, max 500)" validate:"omitempty,min=1,max=500"`
	Cursor            string `json:"cursor,omitempty" jsonschema_description:"Opaque cursor from a previous page" validate:"omitempty,cursor"`
	TopN              int    `json:"top_n,omitempty" jsonschema_description:"Subchannels listed in the concentration breakdown (default 5)" validate:"omitempty,min=1,max=10"`
}

// PriorityEntry is a compact row of the priority subset.
type PriorityEntry struct {
	Rank                 int     `json:"rank"`
	Subchannel           string  `json:"subchannel"`
	Tribe                string  `json:"tribe"`
	AvoidedContactVolume int64   `json:"avoided_contact_volume"`
	CumulativePct        float64 `json:"cumulative_pct"`
}

// RankSegmentOutput is one page of the ranking plus segment-wide summaries.
type RankSegmentOutput struct {
	DatasetID         string          `json:"dataset_id"`
	Segment           string          `json:"segment"`
	Period            int             `json:"period,omitempty"`
	TransactionVolume int64           `json:"transaction_volume"`
	Rows              []RankedRow     `json:"rows"`
	Priority          []PriorityEntry `json:"priority"`
	Insight           Insight         `json:"insight"`
	Concentration     Concentration   `json:"concentration"`
	TribeMix          []TribeMix      `json:"tribe_mix"`
	Meta              struct {
		Total      int    `json:"total"`
		Offset     int    `json:"offset"`
		Returned   int    `json:"returned"`
		PageSize   int    `json:"page_size"`
		Truncated  bool   `json:"truncated"`
		NextCursor string `json:"next_cursor,omitempty"`
	} `json:"meta"`
}

// Ranker pages Pareto rankings of loaded datasets.
type Ranker struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
	Params *params.Params
}

// Query resolves the effective dataset, segment, period and volume of in,
// preferring the cursor when present.
func (r *Ranker) Query(in RankSegmentInput) (RankSegmentInput, int, error) {
	q := in
	offset := 0
	if strings.TrimSpace(in.Cursor) == "" {
		return q, offset, nil
	}
	c, err := pagination.DecodeCursor(in.Cursor)
	if err != nil {
		return q, 0, err
	}
	if in.DatasetID != "" && in.DatasetID != c.Did {
		return q, 0, ErrCursorMismatch
	}
	if in.Segment != "" && !textnorm.Equal(in.Segment, c.Seg) {
		return q, 0, ErrCursorMismatch
	}
	q.DatasetID, q.Segment, q.Period, q.TransactionVolume = c.Did, c.Seg, c.Per, c.Tv
	q.PageSize = c.Ps
	return q, c.Off, nil
}

// Ranking computes the full ranking behind in without paging.
func (r *Ranker) Ranking(ctx context.Context, in RankSegmentInput) (Ranking, error) {
	tbl, err := r.Mgr.Table(in.DatasetID)
	if err != nil {
		return Ranking{}, err
	}
	calc := scenario.NewCalculator(tbl, ratios.NewResolver(r.Params))
	return RankSegment(ctx, calc, in.Segment, in.Period, in.TransactionVolume)
}

// RankSegment ranks the segment and returns the page selected by the
// cursor (or the first page).
func (r *Ranker) RankSegment(ctx context.Context, in RankSegmentInput) (RankSegmentOutput, error) {
	var out RankSegmentOutput
	q, offset, err := r.Query(in)
	if err != nil {
		return out, err
	}
	q.Segment = strings.TrimSpace(q.Segment)
	out.DatasetID, out.Segment, out.Period, out.TransactionVolume = q.DatasetID, q.Segment, q.Period, q.TransactionVolume

	ranking, err := r.Ranking(ctx, q)
	if err != nil {
		return out, err
	}

	pageSize := r.Limits.PageSize(q.PageSize)
	total := len(ranking.Rows)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	out.Rows = ranking.Rows[offset:end]
	out.Priority = make([]PriorityEntry, 0, len(ranking.Priority))
	for _, p := range ranking.Priority {
		out.Priority = append(out.Priority, PriorityEntry{
			Rank:                 p.Rank,
			Subchannel:           p.Subchannel,
			Tribe:                p.Tribe,
			AvoidedContactVolume: p.AvoidedContactVolume,
			CumulativePct:        round2(p.CumulativePct),
		})
	}
	out.Insight = Summarize(ranking)
	out.Concentration = Concentrate(ranking, q.TopN)
	out.TribeMix = Compose(ranking)

	out.Meta.Total = total
	out.Meta.Offset = offset
	out.Meta.Returned = len(out.Rows)
	out.Meta.PageSize = pageSize
	if end < total {
		out.Meta.Truncated = true
		next, err := pagination.EncodeCursor(pagination.Cursor{
			Did: q.DatasetID,
			Seg: q.Segment,
			Per: q.Period,
			Tv:  q.TransactionVolume,
			Off: pagination.NextOffset(offset, len(out.Rows)),
			Ps:  pageSize,
		})
		if err != nil {
			return out, err
		}
		out.Meta.NextCursor = next
	}

	zerolog.Ctx(ctx).Info().
		Str("dataset_id", q.DatasetID).
		Str("segment", q.Segment).
		Int64("transaction_volume", q.TransactionVolume).
		Int("subchannels", total).
		Int("priority", len(ranking.Priority)).
		Int64("total_avoided", ranking.TotalAvoided).
		Msg("segment ranked")
	return out, nil
}
