package mcperr

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestNewUsesCatalogMessage(t *testing.T) {
	got := text(t, New(NoDataForScope, ""))
	require.Equal(t, "NO_DATA_FOR_SCOPE: no data for filters | nextSteps: Call describe_dataset to list segments, subchannels and periods; Drop the period filter", got)
}

func TestFromText(t *testing.T) {
	require.Equal(t, "VALIDATION: segment is required | nextSteps: Correct the inputs per schema and retry", text(t, FromText("VALIDATION: segment is required")))
	require.Equal(t, "CUSTOM: kept", text(t, FromText("CUSTOM: kept")))
	require.Contains(t, text(t, FromText("")), "VALIDATION: invalid inputs")
}

func TestCatalogEntries(t *testing.T) {
	for _, c := range []Code{Validation, InvalidHandle, InvalidSheet, CursorInvalid, CursorBuildFailed, BusyResource, Timeout, LimitExceeded, MissingColumn, EmptySource, NoDataForScope, OpenFailed, WriteFailed, NotFound, UnsupportedFormat, PermissionDenied, CalculationFailed} {
		e, ok := Lookup(c)
		require.True(t, ok, c)
		require.Equal(t, c, e.Code)
		require.NotEmpty(t, e.Message)
		require.NotEmpty(t, e.NextSteps)
	}
	_, ok := Lookup("NOPE")
	require.False(t, ok)
}
