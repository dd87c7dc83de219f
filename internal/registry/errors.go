package registry

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/insights"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/scenario"
	"github.com/vinodismyname/crcalc/internal/security"
	"github.com/vinodismyname/crcalc/pkg/mcperr"
)

// codeFor maps domain errors to catalog codes. fallback is used for errors
// with no specific mapping.
func codeFor(err error, fallback mcperr.Code) mcperr.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return mcperr.Timeout
	case errors.Is(err, datasets.ErrHandleNotFound):
		return mcperr.InvalidHandle
	case errors.Is(err, scenario.ErrNoDataForScope):
		return mcperr.NoDataForScope
	case errors.Is(err, scenario.ErrInvalidRequest):
		return mcperr.Validation
	case errors.Is(err, insights.ErrCursorMismatch):
		return mcperr.CursorInvalid
	case errors.Is(err, perfdata.ErrMissingColumn):
		return mcperr.MissingColumn
	case errors.Is(err, perfdata.ErrSheetNotFound):
		return mcperr.InvalidSheet
	case errors.Is(err, perfdata.ErrEmptySource):
		return mcperr.EmptySource
	case errors.Is(err, perfdata.ErrTooManyRows):
		return mcperr.LimitExceeded
	case errors.Is(err, perfdata.ErrUnsupportedFormat), errors.Is(err, security.ErrUnsupportedExtension):
		return mcperr.UnsupportedFormat
	case errors.Is(err, security.ErrNotAllowed):
		return mcperr.PermissionDenied
	case errors.Is(err, security.ErrNotFound):
		return mcperr.NotFound
	}
	return fallback
}

// toolError renders err as a "CODE: message | nextSteps" tool result.
func toolError(err error, fallback mcperr.Code) *mcp.CallToolResult {
	code := codeFor(err, fallback)
	if code == mcperr.Timeout {
		return mcperr.New(code, "")
	}
	return mcperr.New(code, err.Error())
}
