package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/insights"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/runtime"
	"github.com/vinodismyname/crcalc/internal/security"
	"github.com/vinodismyname/crcalc/pkg/mcperr"
	"github.com/vinodismyname/crcalc/pkg/validation"
)

// Deps carries the shared services tool handlers run against.
type Deps struct {
	Limits   runtime.Limits
	Datasets *datasets.Manager
	Params   *params.Params
	Security *security.Manager
}

// --- Input / Output Schemas (typed for discovery) ---

// OpenDatasetInput defines parameters for loading a performance table.
type OpenDatasetInput struct {
	Path  string `json:"path" jsonschema_description:"Path to the performance table (.xlsx, .xlsm, .xltx, .xltm or .csv) inside an allowed directory" validate:"required,dataset_ext"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Worksheet name; defaults to Tabela Performance, else the first sheet"`
}

// LimitsInfo reports the guardrails a client should respect.
type LimitsInfo struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
	MaxOpenDatasets       int `json:"max_open_datasets"`
	MaxRowsPerDataset     int `json:"max_rows_per_dataset"`
	RankPageSize          int `json:"rank_page_size"`
	MaxRankPageSize       int `json:"max_rank_page_size"`
}

// OpenDatasetOutput documents the response fields for open_dataset.
type OpenDatasetOutput struct {
	DatasetID string         `json:"dataset_id" jsonschema_description:"Server-assigned dataset handle ID"`
	Path      string         `json:"path" jsonschema_description:"Canonical path of the loaded file"`
	Rows      int            `json:"rows" jsonschema_description:"Real rows kept after filtering record types"`
	Stats     perfdata.Stats `json:"stats"`
	Segments  []string       `json:"segments"`
	Limits    LimitsInfo     `json:"limits"`
}

// CloseDatasetInput defines parameters for closing a dataset.
type CloseDatasetInput struct {
	DatasetID string `json:"dataset_id" jsonschema_description:"Dataset handle ID to close" validate:"required"`
}

// CloseDatasetOutput reports the close outcome.
type CloseDatasetOutput struct {
	Success bool `json:"success" jsonschema_description:"True when the handle was closed"`
}

// ListDatasetsInput takes no fields.
type ListDatasetsInput struct{}

// ListDatasetsOutput lists the open dataset handles, oldest first.
type ListDatasetsOutput struct {
	Datasets []datasets.Info `json:"datasets"`
	Limits   LimitsInfo      `json:"limits"`
}

// GetParametersInput takes no fields.
type GetParametersInput struct{}

func limitsInfo(l runtime.Limits) LimitsInfo {
	return LimitsInfo{
		MaxConcurrentRequests: l.MaxConcurrentRequests,
		MaxOpenDatasets:       l.MaxOpenDatasets,
		MaxRowsPerDataset:     l.MaxRowsPerDataset,
		RankPageSize:          l.RankPageSize,
		MaxRankPageSize:       l.MaxRankPageSize,
	}
}

// OpenDataset loads (or reuses) the dataset at in.Path. Waiting for a free
// dataset slot is bounded by the acquire timeout.
func OpenDataset(ctx context.Context, deps Deps, in OpenDatasetInput) (OpenDatasetOutput, error) {
	acquireCtx := ctx
	if deps.Limits.AcquireRequestTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, deps.Limits.AcquireRequestTimeout)
		defer cancel()
	}
	id, canonical, err := deps.Datasets.GetOrOpenByPath(acquireCtx, strings.TrimSpace(in.Path), strings.TrimSpace(in.Sheet))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return OpenDatasetOutput{}, errBusy
		}
		return OpenDatasetOutput{}, err
	}
	tbl, err := deps.Datasets.Table(id)
	if err != nil {
		return OpenDatasetOutput{}, err
	}
	return OpenDatasetOutput{
		DatasetID: id,
		Path:      canonical,
		Rows:      tbl.Len(),
		Stats:     tbl.Stats(),
		Segments:  tbl.Segments(),
		Limits:    limitsInfo(deps.Limits),
	}, nil
}

var errBusy = errors.New("open dataset limit reached")

// ListDatasets reports the handles currently held by the manager.
func ListDatasets(deps Deps) ListDatasetsOutput {
	return ListDatasetsOutput{Datasets: deps.Datasets.List(), Limits: limitsInfo(deps.Limits)}
}

// RegisterDatasetTools wires open_dataset, list_datasets, close_dataset,
// describe_dataset and get_parameters.
func RegisterDatasetTools(s *server.MCPServer, reg *Registry, deps Deps) {
	openTool := mcp.NewTool(
		"open_dataset",
		mcp.WithDescription("Load a KPI performance table (workbook or CSV) and return a dataset handle. Only rows of record type Real are kept. Required columns: SEGMENTO, NM_SUBCANAL, NM_TORRE, NM_KPI, VOL_KPI; ANOMES, TP_META and NM_SUBCANAL_2 are optional. Reopening the same path and sheet reuses the handle. Errors: MISSING_COLUMN, INVALID_SHEET, UNSUPPORTED_FORMAT, PERMISSION_DENIED, BUSY_RESOURCE."),
		mcp.WithInputSchema[OpenDatasetInput](),
		mcp.WithOutputSchema[OpenDatasetOutput](),
	)
	s.AddTool(openTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in OpenDatasetInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := OpenDataset(ctx, deps, in)
		if errors.Is(err, errBusy) {
			return mcperr.Wrapf(mcperr.BusyResource, "open dataset limit reached (max=%d)", deps.Limits.MaxOpenDatasets), nil
		}
		if err != nil {
			return toolError(err, mcperr.OpenFailed), nil
		}
		summary := fmt.Sprintf("dataset_id=%s rows=%d segments=%d malformed_volumes=%d", out.DatasetID, out.Rows, len(out.Segments), out.Stats.MalformedVolumes)
		return mcp.NewToolResultStructured(out, summary), nil
	}))
	reg.Register(openTool)

	listTool := mcp.NewTool(
		"list_datasets",
		mcp.WithDescription("List the open dataset handles with their path, sheet, row count and expiry. Handles idle past their TTL are evicted; reopen the path with open_dataset."),
		mcp.WithInputSchema[ListDatasetsInput](),
		mcp.WithOutputSchema[ListDatasetsOutput](),
	)
	s.AddTool(listTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ListDatasetsInput) (*mcp.CallToolResult, error) {
		out := ListDatasets(deps)
		lines := []string{fmt.Sprintf("open=%d max=%d", len(out.Datasets), out.Limits.MaxOpenDatasets)}
		for _, d := range out.Datasets {
			lines = append(lines, fmt.Sprintf("- %s %s rows=%d", d.ID, d.Path, d.Rows))
		}
		res := mcp.NewToolResultStructured(out, lines[0])
		res.Content = []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
		return res, nil
	}))
	reg.Register(listTool)

	closeTool := mcp.NewTool(
		"close_dataset",
		mcp.WithDescription("Close a previously opened dataset handle and free its slot"),
		mcp.WithInputSchema[CloseDatasetInput](),
		mcp.WithOutputSchema[CloseDatasetOutput](),
	)
	s.AddTool(closeTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in CloseDatasetInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		if err := deps.Datasets.CloseHandle(ctx, strings.TrimSpace(in.DatasetID)); err != nil {
			return toolError(err, mcperr.InvalidHandle), nil
		}
		return mcp.NewToolResultStructured(CloseDatasetOutput{Success: true}, "closed"), nil
	}))
	reg.Register(closeTool)

	profiler := &insights.Profiler{Limits: deps.Limits, Mgr: deps.Datasets}
	describe := mcp.NewTool(
		"describe_dataset",
		mcp.WithDescription("List the segments of a dataset with their subchannels and detected tribes, the periods present, and how each KPI name maps to transactions, accesses or unique users. Use it to pick valid segment and subchannel names before compute_scenario or rank_segment. Warnings flag missing KPI concepts, malformed volumes and subchannels without a tribe."),
		mcp.WithInputSchema[insights.DescribeDatasetInput](),
		mcp.WithOutputSchema[insights.DescribeDatasetOutput](),
	)
	s.AddTool(describe, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in insights.DescribeDatasetInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := profiler.DescribeDataset(ctx, in)
		if err != nil {
			return toolError(err, mcperr.InvalidHandle), nil
		}
		lines := []string{fmt.Sprintf("rows=%d segments=%d periods=%d kpis=%d", out.Rows, len(out.Segments), len(out.Periods), len(out.KPIs))}
		for _, sp := range out.Segments {
			lines = append(lines, fmt.Sprintf("- %s subchannels=%d tribes=%v", sp.Segment, len(sp.Subchannels), previewHeader(sp.Tribes, 6)))
		}
		for _, w := range out.Warnings {
			lines = append(lines, "! "+w)
		}
		res := mcp.NewToolResultStructured(out, lines[0])
		res.Content = []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
		return res, nil
	}))
	reg.Register(describe)

	paramsTool := mcp.NewTool(
		"get_parameters",
		mcp.WithDescription("Return the fixed parameters in effect: retention by tribe, conversion rate by segment, default unique-user ratio and default conversion rate, plus the fallback rules (Dma uses Bot retention, unknown tribes use Web)."),
		mcp.WithInputSchema[GetParametersInput](),
		mcp.WithOutputSchema[params.Snapshot](),
	)
	s.AddTool(paramsTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in GetParametersInput) (*mcp.CallToolResult, error) {
		snap := deps.Params.Snapshot()
		summary := fmt.Sprintf("source=%s tribes=%d segments=%d default_uu_ratio=%.2f", snap.Source, len(snap.RetentionByTribe), len(snap.ConversionRateBySegment), snap.DefaultUniqueUserRatio)
		return mcp.NewToolResultStructured(snap, summary), nil
	}))
	reg.Register(paramsTool)
}

func previewHeader(vals []string, n int) []string {
	if len(vals) <= n {
		return vals
	}
	out := append([]string{}, vals[:n]...)
	return append(out, "...")
}
