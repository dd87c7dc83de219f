package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	InvalidHandle     Code = "INVALID_HANDLE"
	InvalidSheet      Code = "INVALID_SHEET"
	CursorInvalid     Code = "CURSOR_INVALID"
	CursorBuildFailed Code = "CURSOR_BUILD_FAILED"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"

	// Data
	MissingColumn  Code = "MISSING_COLUMN"
	EmptySource    Code = "EMPTY_SOURCE"
	NoDataForScope Code = "NO_DATA_FOR_SCOPE"

	// IO & Formats
	OpenFailed        Code = "OPEN_FAILED"
	WriteFailed       Code = "WRITE_FAILED"
	NotFound          Code = "NOT_FOUND"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"

	// Calculation
	CalculationFailed Code = "CALCULATION_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InvalidHandle:     {Code: InvalidHandle, Message: "dataset handle not found or expired", Retryable: true, NextSteps: []string{"Reopen the dataset with open_dataset and retry"}},
	InvalidSheet:      {Code: InvalidSheet, Message: "sheet not found", Retryable: true, NextSteps: []string{"Omit sheet to use Tabela Performance or the first sheet", "Check case and spacing"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart pagination from the first page"}},
	CursorBuildFailed: {Code: CursorBuildFailed, Message: "failed to encode next page cursor", Retryable: true, NextSteps: []string{"Retry with a smaller page_size"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay", "Close datasets no longer in use"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Restrict the ranking to one period", "Retry with a smaller dataset"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: false, NextSteps: []string{"Split the source table or raise the row limit"}},

	MissingColumn:  {Code: MissingColumn, Message: "required column missing from the performance table", Retryable: false, NextSteps: []string{"Provide SEGMENTO, NM_SUBCANAL, NM_TORRE, NM_KPI and VOL_KPI columns"}},
	EmptySource:    {Code: EmptySource, Message: "source has no header row", Retryable: false, NextSteps: []string{"Verify the file and sheet contain the performance table"}},
	NoDataForScope: {Code: NoDataForScope, Message: "no data for filters", Retryable: true, NextSteps: []string{"Call describe_dataset to list segments, subchannels and periods", "Drop the period filter"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open dataset", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	WriteFailed:       {Code: WriteFailed, Message: "failed to write workbook", Retryable: false, NextSteps: []string{"Verify the output directory is writable"}},
	NotFound:          {Code: NotFound, Message: "file not found", Retryable: true, NextSteps: []string{"Check the path and that it lies in an allowed directory"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported file format", Retryable: false, NextSteps: []string{"Use .xlsx, .xlsm or .csv for data and .xlsx for exports"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path outside the allowed directories", Retryable: false, NextSteps: []string{"Choose a path under CRCALC_ALLOWED_DIRS"}},

	CalculationFailed: {Code: CalculationFailed, Message: "calculation failed", Retryable: true, NextSteps: []string{"Verify segment and subchannel names via describe_dataset"}},
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	parts := strings.SplitN(t, ":", 2)
	code := Code(strings.TrimSpace(parts[0]))
	msg := ""
	if len(parts) > 1 {
		msg = strings.TrimSpace(parts[1])
	}
	return mcp.NewToolResultError(normalize(code, msg))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}
