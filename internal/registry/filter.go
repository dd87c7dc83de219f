package registry

import (
	"context"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// EnvEnableWrites enables tools that create files.
const EnvEnableWrites = "CRCALC_ENABLE_WRITES"

// WriteToolFilter conditionally hides write tools unless explicitly enabled.
type WriteToolFilter struct {
	allowWrites bool
}

// NewWriteToolFilter constructs a filter with an explicit setting.
func NewWriteToolFilter(allowWrites bool) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: allowWrites}
}

// NewWriteToolFilterFromEnv constructs a filter using CRCALC_ENABLE_WRITES.
func NewWriteToolFilterFromEnv() *WriteToolFilter {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvEnableWrites)))
	return NewWriteToolFilter(v == "1" || v == "true" || v == "yes")
}

// AllowWrites reports whether write tools are exposed.
func (f *WriteToolFilter) AllowWrites() bool { return f.allowWrites }

// FilterTools implements server tool filtering semantics: when writes are
// disabled, tools named write_* are excluded from discovery.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if isWriteTool(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isWriteTool(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "write_")
}
