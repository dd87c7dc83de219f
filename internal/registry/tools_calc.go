package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vinodismyname/crcalc/internal/export"
	"github.com/vinodismyname/crcalc/internal/insights"
	"github.com/vinodismyname/crcalc/internal/ratios"
	"github.com/vinodismyname/crcalc/internal/scenario"
	"github.com/vinodismyname/crcalc/pkg/mcperr"
	"github.com/vinodismyname/crcalc/pkg/validation"
)

// ComputeScenarioInput defines one what-if calculation.
type ComputeScenarioInput struct {
	DatasetID         string `json:"dataset_id" jsonschema_description:"Dataset handle returned by open_dataset" validate:"required"`
	Segment           string `json:"segment" jsonschema_description:"Segment name (accents and case are ignored)" validate:"required"`
	Subchannel        string `json:"subchannel" jsonschema_description:"Subchannel name within the segment" validate:"required"`
	Tribe             string `json:"tribe,omitempty" jsonschema_description:"Optional tribe override; detected from the data when omitted"`
	Period            int    `json:"period,omitempty" jsonschema_description:"Optional yyyymm period restricting the historical ratios" validate:"omitempty,gte=190001,lte=299912"`
	TransactionVolume int64  `json:"transaction_volume" jsonschema_description:"Simulated transaction volume" validate:"gte=0"`
}

// ComputeScenario runs the calculator for in against its dataset.
func ComputeScenario(ctx context.Context, deps Deps, in ComputeScenarioInput) (scenario.Result, error) {
	tbl, err := deps.Datasets.Table(in.DatasetID)
	if err != nil {
		return scenario.Result{}, err
	}
	calc := scenario.NewCalculator(tbl, ratios.NewResolver(deps.Params))
	return calc.Compute(ctx, scenario.Request{
		Segment:           in.Segment,
		Subchannel:        in.Subchannel,
		Tribe:             in.Tribe,
		Period:            in.Period,
		TransactionVolume: in.TransactionVolume,
	})
}

// RegisterCalculatorTools wires compute_scenario, rank_segment and
// write_ranking_workbook.
func RegisterCalculatorTools(s *server.MCPServer, reg *Registry, deps Deps) {
	compute := mcp.NewTool(
		"compute_scenario",
		mcp.WithDescription("Estimate the contact volume avoided when a subchannel absorbs a simulated transaction volume. Access volume = transactions / (transactions per access); active users = transactions / unique-user ratio; avoided contacts = floor(accesses x conversion rate x retention). Ratios come from the dataset with fallbacks, and the origin of each is reported. Errors: NO_DATA_FOR_SCOPE when no row matches segment, subchannel and period; INVALID_HANDLE."),
		mcp.WithInputSchema[ComputeScenarioInput](),
		mcp.WithOutputSchema[scenario.Result](),
	)
	s.AddTool(compute, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ComputeScenarioInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := ComputeScenario(ctx, deps, in)
		if err != nil {
			return toolError(err, mcperr.CalculationFailed), nil
		}
		summary := fmt.Sprintf("%s / %s (%s): acessos=%s mau=%s cr_evitado=%s",
			out.Segment, out.Subchannel, out.Tribe,
			insights.FormatInt(out.AccessVolume), insights.FormatInt(out.ActiveUserEstimate), insights.FormatInt(out.AvoidedContactVolume))
		return mcp.NewToolResultStructured(out, summary), nil
	}))
	reg.Register(compute)

	ranker := &insights.Ranker{Limits: deps.Limits, Mgr: deps.Datasets, Params: deps.Params}
	rank := mcp.NewTool(
		"rank_segment",
		mcp.WithDescription("Apply one simulated transaction volume to every subchannel of a segment and rank them by avoided contact volume (Pareto). Rows carry rank, cumulative volume and cumulative percentage; the priority subset holds the rows whose cumulative share stays within 80%. Also returns an insight summary, HHI concentration and the mix by tribe. Results are paged: pass meta.next_cursor as cursor to continue. Errors: NO_DATA_FOR_SCOPE, INVALID_HANDLE, CURSOR_INVALID."),
		mcp.WithInputSchema[insights.RankSegmentInput](),
		mcp.WithOutputSchema[insights.RankSegmentOutput](),
	)
	s.AddTool(rank, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in insights.RankSegmentInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := ranker.RankSegment(ctx, in)
		if err != nil {
			return toolError(err, mcperr.CalculationFailed), nil
		}
		summary := fmt.Sprintf("subchannels=%d returned=%d offset=%d truncated=%v total_avoided=%s",
			out.Meta.Total, out.Meta.Returned, out.Meta.Offset, out.Meta.Truncated, insights.FormatInt(out.Insight.TotalAvoided))
		lines := []string{summary, out.Insight.Summary}
		for _, row := range out.Rows {
			lines = append(lines, fmt.Sprintf("%d. %s (%s) cr_evitado=%s acumulado=%.2f%%", row.Rank, row.Subchannel, row.Tribe, insights.FormatInt(row.AvoidedContactVolume), row.CumulativePct))
		}
		if out.Meta.NextCursor != "" {
			lines = append(lines, "next_cursor="+out.Meta.NextCursor)
		}
		res := mcp.NewToolResultStructured(out, summary)
		res.Content = []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
		return res, nil
	}))
	reg.Register(rank)

	writer := &export.Writer{Ranker: ranker}
	if deps.Security != nil {
		writer.Validator = deps.Security
	}
	write := mcp.NewTool(
		"write_ranking_workbook",
		mcp.WithDescription("Rank a segment as rank_segment does and save the full result to an .xlsx file with two sheets: Resultados (every subchannel) and Top_80_Pareto (priority subset). The output path must be inside an allowed directory. Hidden unless CRCALC_ENABLE_WRITES=true."),
		mcp.WithInputSchema[export.WriteRankingInput](),
		mcp.WithOutputSchema[export.WriteRankingOutput](),
	)
	s.AddTool(write, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in export.WriteRankingInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := writer.WriteRanking(ctx, in)
		if err != nil {
			return toolError(err, mcperr.WriteFailed), nil
		}
		summary := fmt.Sprintf("path=%s rows=%d priority_rows=%d", out.Path, out.Rows, out.PriorityRows)
		return mcp.NewToolResultStructured(out, summary), nil
	}))
	reg.Register(write)
}
